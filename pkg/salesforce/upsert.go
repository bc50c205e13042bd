package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// LeadUpsert is one lead to push, keyed by email.
type LeadUpsert struct {
	Email  string
	Fields map[string]any
}

// UpsertResult summarizes an UpsertLeads call.
type UpsertResult struct {
	Inserted   int      `json:"inserted"`
	Updated    int      `json:"updated"`
	Failed     int      `json:"failed"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// UpsertLeads pushes leads idempotently: a Lead that already exists with the
// same email is updated in place, others are inserted. Repeating a call with
// the same input updates the same records rather than creating duplicates.
// Within one call the first lead per email wins.
func UpsertLeads(ctx context.Context, c Client, leads []LeadUpsert) (*UpsertResult, error) {
	res := &UpsertResult{}
	if len(leads) == 0 {
		return res, nil
	}

	unique := make([]LeadUpsert, 0, len(leads))
	emails := make([]string, 0, len(leads))
	seen := make(map[string]bool, len(leads))
	for _, l := range leads {
		key := strings.ToLower(strings.TrimSpace(l.Email))
		if key == "" {
			return nil, eris.New("sf: upsert leads: lead without email")
		}
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true
		unique = append(unique, LeadUpsert{Email: key, Fields: l.Fields})
		emails = append(emails, key)
	}

	existing, err := FindLeadsByEmail(ctx, c, emails)
	if err != nil {
		return nil, eris.Wrap(err, "sf: upsert leads")
	}

	var updates []CollectionRecord
	var inserts []map[string]any
	for _, l := range unique {
		fields := make(map[string]any, len(l.Fields)+1)
		for k, v := range l.Fields {
			fields[k] = v
		}
		if lead, ok := existing[l.Email]; ok {
			updates = append(updates, CollectionRecord{ID: lead.ID, Fields: fields})
			continue
		}
		fields["Email"] = l.Email
		inserts = append(inserts, fields)
	}

	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		results, err := c.UpdateCollection(ctx, "Lead", updates[start:end])
		if err != nil {
			return res, eris.Wrap(err, fmt.Sprintf("sf: update leads batch %d-%d", start, end))
		}
		res.Updated += res.tally(results)
	}

	for start := 0; start < len(inserts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(inserts))
		results, err := c.InsertCollection(ctx, "Lead", inserts[start:end])
		if err != nil {
			return res, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		res.Inserted += res.tally(results)
	}

	return res, nil
}

// tally records failures and returns the number of successful results.
func (r *UpsertResult) tally(results []CollectionResult) int {
	ok := 0
	for _, cr := range results {
		if cr.Success {
			ok++
			continue
		}
		r.Failed++
		r.Errors = append(r.Errors, strings.Join(cr.Errors, "; "))
	}
	return ok
}
