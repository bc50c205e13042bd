// Package scorer implements the deterministic lead qualification rules that
// produce a 0/1/2 fit score with an audit-ready reasoning string.
package scorer

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadbatch/internal/config"
)

// Rules holds the tunable inputs of the qualification rules. Keyword lists
// and employee thresholds are configuration data, not invariants.
type Rules struct {
	// Rule 1: industry text naming an outsourcing category.
	OutsourcingTerms []string `yaml:"outsourcing_terms" mapstructure:"outsourcing_terms"`
	// Rule 2: explicit domain-operation keywords searched across company
	// name, industry, headline, and keyword text.
	DomainKeywords []string `yaml:"domain_keywords" mapstructure:"domain_keywords"`
	// Rule 3: adjacent industries.
	AdjacentTerms []string `yaml:"adjacent_terms" mapstructure:"adjacent_terms"`
	// Rule 4: relevant job titles.
	TitleTerms []string `yaml:"title_terms" mapstructure:"title_terms"`
	// Rule 5: generic service/support industries.
	ServiceTerms []string `yaml:"service_terms" mapstructure:"service_terms"`

	MinEmployees   int `yaml:"min_employees" mapstructure:"min_employees"`
	LargeEmployees int `yaml:"large_employees" mapstructure:"large_employees"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		OutsourcingTerms: []string{
			"outsourcing", "outsourced", "offshoring", "bpo",
			"business process",
		},
		DomainKeywords: []string{
			"call center", "call centre", "contact center", "contact centre",
			"virtual assistant", "back office", "data entry", "offshore",
			"nearshore", "staff augmentation", "answering service",
			"lead generation", "appointment setting", "telemarketing",
		},
		AdjacentTerms: []string{
			"customer service", "customer support", "telecommunications",
			"telecom", "contact", "call",
		},
		TitleTerms: []string{
			"operations", "customer success", "customer experience",
			"support", "coo", "head of cx",
		},
		ServiceTerms: []string{
			"services", "support", "consulting", "staffing",
		},

		MinEmployees:   20,
		LargeEmployees: 200,
	}
}

// LoadRules reads a YAML rules file and applies it on top of base. Lists in
// the file replace the corresponding base list; zero thresholds are ignored.
func LoadRules(path string, base Rules) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: read rules file %s", path)
	}
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: parse rules file %s", path)
	}
	return base.merge(file), nil
}

// FromConfig builds the rule set from configuration: defaults, then the
// optional rules file, then inline overrides. The result is validated.
func FromConfig(cfg config.ScoringConfig) (Rules, error) {
	rules := DefaultRules()
	if cfg.RulesFile != "" {
		var err error
		rules, err = LoadRules(cfg.RulesFile, rules)
		if err != nil {
			return Rules{}, err
		}
	}
	rules = rules.merge(Rules{
		OutsourcingTerms: cfg.OutsourcingTerms,
		DomainKeywords:   cfg.DomainKeywords,
		AdjacentTerms:    cfg.AdjacentTerms,
		TitleTerms:       cfg.TitleTerms,
		ServiceTerms:     cfg.ServiceTerms,
		MinEmployees:     cfg.MinEmployees,
		LargeEmployees:   cfg.LargeEmployees,
	})
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) merge(o Rules) Rules {
	if len(o.OutsourcingTerms) > 0 {
		r.OutsourcingTerms = o.OutsourcingTerms
	}
	if len(o.DomainKeywords) > 0 {
		r.DomainKeywords = o.DomainKeywords
	}
	if len(o.AdjacentTerms) > 0 {
		r.AdjacentTerms = o.AdjacentTerms
	}
	if len(o.TitleTerms) > 0 {
		r.TitleTerms = o.TitleTerms
	}
	if len(o.ServiceTerms) > 0 {
		r.ServiceTerms = o.ServiceTerms
	}
	if o.MinEmployees > 0 {
		r.MinEmployees = o.MinEmployees
	}
	if o.LargeEmployees > 0 {
		r.LargeEmployees = o.LargeEmployees
	}
	return r
}

// Validate checks that a rule set is internally consistent.
func (r Rules) Validate() error {
	var errs []string

	lists := []struct {
		name  string
		terms []string
	}{
		{"outsourcing_terms", r.OutsourcingTerms},
		{"domain_keywords", r.DomainKeywords},
		{"adjacent_terms", r.AdjacentTerms},
		{"title_terms", r.TitleTerms},
		{"service_terms", r.ServiceTerms},
	}
	for _, l := range lists {
		for _, term := range l.terms {
			if strings.TrimSpace(term) == "" {
				errs = append(errs, l.name+" contains a blank term")
				break
			}
		}
	}

	if r.MinEmployees < 0 {
		errs = append(errs, "min_employees must be >= 0")
	}
	if r.LargeEmployees < r.MinEmployees {
		errs = append(errs, "large_employees must be >= min_employees")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: rules validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
