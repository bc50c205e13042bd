// Package mocks provides test doubles for the run ledger.
package mocks

import (
	"context"

	model "github.com/sells-group/leadbatch/internal/model"
	store "github.com/sells-group/leadbatch/internal/store"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// CreateRun provides a mock function with given fields: ctx, run
func (_m *MockStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	ret := _m.Called(ctx, run)

	if len(ret) == 0 {
		panic("no return value specified for CreateRun")
	}

	var r0 *model.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Run) (*model.Run, error)); ok {
		return rf(ctx, run)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// FinishRun provides a mock function with given fields: ctx, runID, status, result
func (_m *MockStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	ret := _m.Called(ctx, runID, status, result)

	if len(ret) == 0 {
		panic("no return value specified for FinishRun")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, model.RunStatus, *model.RunResult) error); ok {
		return rf(ctx, runID, status, result)
	}
	return ret.Error(0)
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetRun")
	}

	var r0 *model.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	return r0, ret.Error(1)
}

// ListRuns provides a mock function with given fields: ctx, filter
func (_m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListRuns")
	}

	var r0 []model.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Run)
	}
	return r0, ret.Error(1)
}

// RecordBatch provides a mock function with given fields: ctx, runID, o
func (_m *MockStore) RecordBatch(ctx context.Context, runID string, o model.BatchOutcome) error {
	ret := _m.Called(ctx, runID, o)

	if len(ret) == 0 {
		panic("no return value specified for RecordBatch")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, model.BatchOutcome) error); ok {
		return rf(ctx, runID, o)
	}
	return ret.Error(0)
}

// ListBatches provides a mock function with given fields: ctx, runID
func (_m *MockStore) ListBatches(ctx context.Context, runID string) ([]model.BatchOutcome, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for ListBatches")
	}

	var r0 []model.BatchOutcome
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.BatchOutcome)
	}
	return r0, ret.Error(1)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}
	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}
	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ store.Store = (*MockStore)(nil)
