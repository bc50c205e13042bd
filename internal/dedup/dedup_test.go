package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

func row(idx int, domain, email string, score model.FitScore) model.Row {
	return model.Row{
		Record:  model.NewRecord(idx, []string{"company"}, []string{"Acme"}),
		Derived: model.DerivedFields{FitScore: score},
		Domain:  domain,
		Email:   email,
	}
}

func indices(rows []model.Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.Record.RowIndex
	}
	return out
}

func TestKey(t *testing.T) {
	assert.Equal(t, "domain:acme.com", Key("acme.com", "info@acme.com"))
	assert.Equal(t, "email:info@acme.com", Key("", "info@acme.com"))
	assert.Equal(t, "", Key("", ""))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FirstSeen, p)

	p, err = ParsePolicy("highest-score")
	require.NoError(t, err)
	assert.Equal(t, HighestScore, p)

	_, err = ParsePolicy("newest")
	assert.True(t, resilience.IsFatalConfig(err))
}

func TestApply_FirstSeen(t *testing.T) {
	rows := []model.Row{
		row(0, "", "info@acme.com", model.FitNone),
		row(1, "", "", model.FitNone),
		row(2, "", "info@acme.com", model.FitStrong),
		row(3, "", "", model.FitNone),
	}

	res := Apply(rows, FirstSeen)
	assert.Equal(t, []int{0, 1, 3}, indices(res.Rows))
	require.Len(t, res.Removed, 1)
	assert.Equal(t, 2, res.Removed[0].RowIndex)
	assert.Equal(t, 0, res.Removed[0].KeptRowIndex)
	assert.Equal(t, "email:info@acme.com", res.Removed[0].Key)
	assert.Contains(t, res.Removed[0].Reason, "first seen at row 0")
}

func TestApply_HighestScore(t *testing.T) {
	rows := []model.Row{
		row(0, "acme.com", "", model.FitNone),
		row(1, "acme.com", "", model.FitPossible),
		row(2, "acme.com", "", model.FitStrong),
		row(3, "acme.com", "", model.FitStrong),
		row(4, "globex.com", "", model.FitPossible),
	}

	res := Apply(rows, HighestScore)
	assert.Equal(t, []int{2, 4}, indices(res.Rows))
	require.Len(t, res.Removed, 3)
	for _, rm := range res.Removed {
		assert.Equal(t, 2, rm.KeptRowIndex, "row %d", rm.RowIndex)
	}
}

func TestApply_HighestScoreTieKeepsFirst(t *testing.T) {
	rows := []model.Row{
		row(0, "", "a@b.com", model.FitPossible),
		row(1, "", "a@b.com", model.FitPossible),
	}
	res := Apply(rows, HighestScore)
	assert.Equal(t, []int{0}, indices(res.Rows))
}

func TestApply_NoDuplicates(t *testing.T) {
	rows := []model.Row{
		row(0, "a.com", "", model.FitNone),
		row(1, "b.com", "", model.FitNone),
		row(2, "", "x@a.com", model.FitNone),
		row(3, "", "", model.FitNone),
		row(4, "", "", model.FitNone),
	}
	for _, p := range []Policy{FirstSeen, HighestScore} {
		res := Apply(rows, p)
		assert.Len(t, res.Rows, len(rows))
		assert.Empty(t, res.Removed)
	}
}

func TestApply_KeysAreDistinct(t *testing.T) {
	var rows []model.Row
	domains := []string{"a.com", "b.com", "", "a.com", "c.com", "b.com", "", "c.com"}
	for i, d := range domains {
		rows = append(rows, row(i, d, "", model.FitScore(i%3)))
	}
	for _, p := range []Policy{FirstSeen, HighestScore} {
		res := Apply(rows, p)
		seen := map[string]bool{}
		for _, r := range res.Rows {
			k := KeyOf(r)
			if k == "" {
				continue
			}
			assert.False(t, seen[k], "key %s repeated under %s", k, p)
			seen[k] = true
		}
		assert.Equal(t, len(rows), len(res.Rows)+len(res.Removed))
	}
}
