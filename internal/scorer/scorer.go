package scorer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/leadbatch/internal/model"
)

// Input holds the row fields the rules look at. Missing fields are "".
type Input struct {
	CompanyName    string
	Industry       string
	Headline       string
	Keywords       string
	JobTitle       string
	Employees      int
	EmployeesKnown bool
}

// Result is the outcome of scoring one row.
type Result struct {
	Score     model.FitScore
	Reasoning string
	// Rule is the 1-based index of the rule that fired.
	Rule int
	// NeedsEnrichment is set when the deterministic answer is weak: the row
	// did not reach a strong fit and is missing industry or headcount.
	NeedsEnrichment bool
}

type termSet struct {
	terms    []string
	patterns []*regexp.Regexp
}

func compileTerms(terms []string) termSet {
	ts := termSet{terms: make([]string, 0, len(terms))}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		ts.terms = append(ts.terms, t)
		ts.patterns = append(ts.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return ts
}

// match returns the first term (in list order) found in text.
func (ts termSet) match(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for i, p := range ts.patterns {
		if p.MatchString(text) {
			return ts.terms[i], true
		}
	}
	return "", false
}

// Scorer evaluates the qualification rules. It is safe for concurrent use.
type Scorer struct {
	rules       Rules
	outsourcing termSet
	domain      termSet
	adjacent    termSet
	title       termSet
	service     termSet
}

// New compiles a rule set into a Scorer.
func New(rules Rules) *Scorer {
	return &Scorer{
		rules:       rules,
		outsourcing: compileTerms(rules.OutsourcingTerms),
		domain:      compileTerms(rules.DomainKeywords),
		adjacent:    compileTerms(rules.AdjacentTerms),
		title:       compileTerms(rules.TitleTerms),
		service:     compileTerms(rules.ServiceTerms),
	}
}

// Rules returns the rule set the scorer was built from.
func (s *Scorer) Rules() Rules {
	return s.rules
}

// Score applies the rules in order; the first match wins.
func (s *Scorer) Score(in Input) Result {
	res := s.evaluate(in)
	res.NeedsEnrichment = res.Score < model.FitStrong &&
		(strings.TrimSpace(in.Industry) == "" || !in.EmployeesKnown)
	return res
}

func (s *Scorer) evaluate(in Input) Result {
	if term, ok := s.outsourcing.match(in.Industry); ok {
		return Result{
			Score:     model.FitStrong,
			Rule:      1,
			Reasoning: fmt.Sprintf("industry %q matches outsourcing/BPO category (%q)", in.Industry, term),
		}
	}

	haystack := strings.Join([]string{in.CompanyName, in.Industry, in.Headline, in.Keywords}, " | ")
	if term, ok := s.domain.match(haystack); ok {
		return Result{
			Score:     model.FitStrong,
			Rule:      2,
			Reasoning: fmt.Sprintf("domain keyword %q found in company, industry, headline, or keywords", term),
		}
	}

	enough := in.EmployeesKnown && in.Employees >= s.rules.MinEmployees
	if term, ok := s.adjacent.match(in.Industry); ok && enough {
		return Result{
			Score:     model.FitPossible,
			Rule:      3,
			Reasoning: fmt.Sprintf("adjacent industry %q (%q) with %d employees (>= %d)", in.Industry, term, in.Employees, s.rules.MinEmployees),
		}
	}

	if term, ok := s.title.match(in.JobTitle); ok && enough {
		return Result{
			Score:     model.FitPossible,
			Rule:      4,
			Reasoning: fmt.Sprintf("relevant job title %q (%q) at company with %d employees (>= %d)", in.JobTitle, term, in.Employees, s.rules.MinEmployees),
		}
	}

	if in.EmployeesKnown && in.Employees >= s.rules.LargeEmployees {
		if term, ok := s.service.match(in.Industry); ok {
			return Result{
				Score:     model.FitPossible,
				Rule:      5,
				Reasoning: fmt.Sprintf("large company (%d employees >= %d) in service industry %q (%q)", in.Employees, s.rules.LargeEmployees, in.Industry, term),
			}
		}
	}

	return Result{
		Score:     model.FitNone,
		Rule:      6,
		Reasoning: noMatchReason(in),
	}
}

func noMatchReason(in Input) string {
	var parts []string
	if strings.TrimSpace(in.Industry) == "" {
		parts = append(parts, "industry unknown")
	} else {
		parts = append(parts, fmt.Sprintf("industry %q", in.Industry))
	}
	if in.EmployeesKnown {
		parts = append(parts, fmt.Sprintf("%d employees", in.Employees))
	} else {
		parts = append(parts, "employee count unknown")
	}
	return "no qualifying signal (" + strings.Join(parts, ", ") + ")"
}

var employeeCountNoise = strings.NewReplacer(
	",", "",
	"+", "",
	"~", "",
	"employees", "",
	"employee", "",
	"approx.", "",
	"approx", "",
)

// ParseEmployeeCount reads headcount strings such as "51-200", "1,200",
// "10k", or "10,000+". Ranges use the lower bound.
func ParseEmployeeCount(raw string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	s = strings.TrimSpace(employeeCountNoise.Replace(s))
	for _, sep := range []string{"-", "–", " to "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
			break
		}
	}
	s = strings.TrimSpace(s)

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int(f * mult), true
}
