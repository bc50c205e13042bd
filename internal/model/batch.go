package model

import (
	"github.com/rotisserie/eris"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchInFlight  BatchStatus = "in_flight"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s BatchStatus) Terminal() bool {
	return s == BatchSucceeded || s == BatchFailed
}

// Batch is a contiguous slice of rows that share one adapter call.
type Batch struct {
	ID         int         `json:"batch_id"`
	RowIndices []int       `json:"row_indices"`
	Status     BatchStatus `json:"status"`
	Attempts   int         `json:"attempt_count"`
}

// NewBatch returns a pending batch.
func NewBatch(id int, rows []int) *Batch {
	return &Batch{ID: id, RowIndices: rows, Status: BatchPending}
}

// Transition moves the batch to the next state. Only
// pending→in_flight and in_flight→{succeeded,failed} are legal.
func (b *Batch) Transition(to BatchStatus) error {
	switch {
	case b.Status == BatchPending && to == BatchInFlight,
		b.Status == BatchInFlight && to.Terminal():
		b.Status = to
		return nil
	}
	return eris.Errorf("batch %d: illegal transition %s -> %s", b.ID, b.Status, to)
}

// Abandon returns an in-flight batch to pending when the run stops before
// the batch reaches a terminal state. It is dispatched again on resume.
func (b *Batch) Abandon() error {
	if b.Status != BatchInFlight {
		return eris.Errorf("batch %d: cannot abandon from %s", b.ID, b.Status)
	}
	b.Status = BatchPending
	return nil
}
