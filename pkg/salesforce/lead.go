package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID                string `json:"Id" salesforce:"Id"`
	FirstName         string `json:"FirstName" salesforce:"FirstName"`
	LastName          string `json:"LastName" salesforce:"LastName"`
	Company           string `json:"Company" salesforce:"Company"`
	Email             string `json:"Email" salesforce:"Email"`
	Title             string `json:"Title" salesforce:"Title"`
	Website           string `json:"Website" salesforce:"Website"`
	Industry          string `json:"Industry" salesforce:"Industry"`
	City              string `json:"City" salesforce:"City"`
	State             string `json:"State" salesforce:"State"`
	Country           string `json:"Country" salesforce:"Country"`
	NumberOfEmployees int    `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	LeadSource        string `json:"LeadSource" salesforce:"LeadSource"`
	Status            string `json:"Status" salesforce:"Status"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "FirstName", "LastName", "Company", "Email", "Title", "Website",
	"Industry", "City", "State", "Country", "NumberOfEmployees", "LeadSource", "Status",
}

// maxInClause bounds the number of literals in one SOQL IN clause so the
// query string stays under the REST URI limit.
const maxInClause = 100

// FindLeadsByEmail returns existing Leads keyed by lower-cased email. Emails
// with no matching Lead are absent from the map. When several Leads share an
// address the first one returned wins.
func FindLeadsByEmail(ctx context.Context, c Client, emails []string) (map[string]Lead, error) {
	found := make(map[string]Lead, len(emails))
	for start := 0; start < len(emails); start += maxInClause {
		end := min(start+maxInClause, len(emails))

		quoted := make([]string, 0, end-start)
		for _, e := range emails[start:end] {
			quoted = append(quoted, "'"+escapeSoql(e)+"'")
		}
		soql := fmt.Sprintf(
			"SELECT %s FROM Lead WHERE IsConverted = false AND Email IN (%s)",
			strings.Join(leadFields, ", "),
			strings.Join(quoted, ", "),
		)

		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("sf: find leads by email batch %d-%d", start, end))
		}
		for _, l := range leads {
			key := strings.ToLower(strings.TrimSpace(l.Email))
			if _, dup := found[key]; key != "" && !dup {
				found[key] = l
			}
		}
	}
	return found, nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
