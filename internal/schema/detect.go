package schema

import (
	"strings"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/normalize"
)

// Roles maps column name to role. Columns are kept in header order.
type Roles struct {
	Columns []string
	ByName  map[string]Role
}

// Options tunes detection.
type Options struct {
	// SniffValues lets a column whose header matched nothing be promoted to
	// email when most sampled values are addresses. Off by default so role
	// assignment depends on header text alone.
	SniffValues bool
}

// Detect classifies every header. sample is the bounded set of leading rows
// (same column order as headers); it is consulted only when SniffValues is on.
// Detect never fails: unmatched headers are RoleUnknown.
func Detect(headers []string, sample [][]string, opts Options) Roles {
	roles := Roles{
		Columns: make([]string, 0, len(headers)),
		ByName:  make(map[string]Role, len(headers)),
	}
	for i, h := range headers {
		if _, seen := roles.ByName[h]; seen {
			continue
		}
		role := HeaderRole(h)
		if role == RoleUnknown && opts.SniffValues && looksLikeEmails(column(sample, i)) {
			role = RoleEmail
		}
		roles.Columns = append(roles.Columns, h)
		roles.ByName[h] = role
	}
	return roles
}

// HeaderRole classifies a single header.
func HeaderRole(header string) Role {
	h := foldHeader(header)
	if h == "" {
		return RoleUnknown
	}
	for _, r := range rules {
		for _, e := range r.exact {
			if h == e {
				return r.role
			}
		}
		for _, c := range r.contains {
			if strings.Contains(h, c) {
				return r.role
			}
		}
	}
	return RoleUnknown
}

// foldHeader lowercases and turns camelCase/underscores into spaced words
// while keeping "_id" detectable.
func foldHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	var b strings.Builder
	prevLower := false
	for _, r := range h {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte(' ')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevLower = false
			continue
		}
		b.WriteRune(r)
		prevLower = r >= 'a' && r <= 'z'
	}
	folded := b.String()
	if strings.HasSuffix(folded, "_id") {
		return folded
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(folded, "_", " ")), " ")
}

// Role returns the role of col, or RoleUnknown.
func (r Roles) Role(col string) Role {
	if role, ok := r.ByName[col]; ok {
		return role
	}
	return RoleUnknown
}

// ColumnsFor returns the columns assigned role, in header order.
func (r Roles) ColumnsFor(role Role) []string {
	var out []string
	for _, c := range r.Columns {
		if r.ByName[c] == role {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the first non-blank value rec holds for any column with the
// given role, trimmed, or "" when none is present. For email and website the
// first value that normalizes to a usable address or domain wins over an
// earlier unusable one, so a stray note in one column cannot become the
// dedup key.
func (r Roles) Value(rec model.Record, role Role) string {
	first := ""
	for _, c := range r.ColumnsFor(role) {
		v := strings.TrimSpace(rec.GetOr(c, ""))
		if v == "" {
			continue
		}
		if usable(role, v) {
			return v
		}
		if first == "" {
			first = v
		}
	}
	return first
}

func usable(role Role, v string) bool {
	switch role {
	case RoleEmail:
		return normalize.Email(v) != ""
	case RoleWebsite:
		return normalize.Domain(v) != ""
	default:
		return true
	}
}

// Has reports whether at least one column carries role.
func (r Roles) Has(role Role) bool {
	for _, c := range r.Columns {
		if r.ByName[c] == role {
			return true
		}
	}
	return false
}

// Summary counts columns per role, for logging.
func (r Roles) Summary() map[Role]int {
	out := make(map[Role]int)
	for _, c := range r.Columns {
		out[r.ByName[c]]++
	}
	return out
}

// MissingIdentity returns a reason when rec carries nothing that identifies
// the lead (no company, email, website, or identifier value).
func (r Roles) MissingIdentity(rec model.Record) string {
	for _, role := range []Role{RoleCompanyName, RoleEmail, RoleWebsite, RoleIdentifier} {
		if r.Value(rec, role) != "" {
			return ""
		}
	}
	return "missing identifying field (company, email, website, or id)"
}

func column(sample [][]string, idx int) []string {
	out := make([]string, 0, len(sample))
	for _, row := range sample {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out
}

func looksLikeEmails(values []string) bool {
	nonBlank, hits := 0, 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		nonBlank++
		if normalize.Email(v) != "" {
			hits++
		}
	}
	return nonBlank > 0 && hits*2 > nonBlank
}
