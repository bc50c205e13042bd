// Package normalize maps raw company names and locations to the short,
// casual forms used in outreach copy, and derives dedup keys.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// entitySuffixes is ordered: longer multi-word forms come before the tokens
// they contain so "Pty Ltd" is removed as one unit. Every pattern requires a
// separator before the suffix, so a name that is only a suffix is kept.
var entitySuffixes = compileSuffixes(
	`pty\.?\s+ltd\.?`,
	`pvt\.?\s+ltd\.?`,
	`private\s+limited`,
	`gmbh\s*&\s*co\.?\s*kg`,
	`l\.?\s?l\.?\s?c\.?`,
	`l\.?\s?l\.?\s?p\.?`,
	`p\.?\s?l\.?\s?l\.?\s?c\.?`,
	`incorporated`,
	`inc\.?`,
	`corporation`,
	`corp\.?`,
	`limited`,
	`ltd\.?`,
	`gmbh`,
	`pty\.?`,
	`plc\.?`,
	`l\.?p\.?`,
	`p\.?c\.?`,
	`s\.?a\.?s\.?`,
	`s\.?a\.?`,
	`s\.?r\.?l\.?`,
	`s\.?p\.?a\.?`,
	`b\.?v\.?`,
	`n\.?v\.?`,
	`a\.?g\.?`,
	`k\.?g\.?`,
	`oy`,
	`ab`,
	`a/s`,
	`company`,
	`co\.?`,
)

var (
	multiSpace   = regexp.MustCompile(`\s+`)
	trailingJunk = " \t,;&-–—"
)

func compileSuffixes(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)[\s,]+(?:` + p + `)$`)
	}
	return out
}

// Company strips legal-entity suffixes from name, repeatedly, until none
// match, so Company(Company(x)) == Company(x). Case is preserved. Blank input
// yields "".
func Company(name string) string {
	n := cleanSpace(name)
	if n == "" {
		return ""
	}

	// Every strip shortens n, so this reaches a fixed point.
	for {
		stripped := stripOneSuffix(n)
		if stripped == n {
			return n
		}
		n = stripped
	}
}

func stripOneSuffix(n string) string {
	for _, re := range entitySuffixes {
		loc := re.FindStringIndex(n)
		if loc == nil {
			continue
		}
		rest := strings.TrimRight(n[:loc[0]], trailingJunk)
		if rest == "" {
			return n
		}
		return rest
	}
	return n
}

// cleanSpace applies NFKC, collapses whitespace, and trims.
func cleanSpace(s string) string {
	s = norm.NFKC.String(s)
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
