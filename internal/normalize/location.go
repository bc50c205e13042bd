package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultCityMaxLen is the longest city name (in runes) kept verbatim.
const DefaultCityMaxLen = 12

// Normalizer carries the tunable location threshold. The zero value uses
// DefaultCityMaxLen.
type Normalizer struct {
	CityMaxLen int
}

// Location is Normalizer{}.Location.
func Location(city, state, country string) string {
	return Normalizer{}.Location(city, state, country)
}

// Location maps a city/state/country triple to one short label:
//
//  1. a well-known metro abbreviation for city ("San Francisco" → "SF")
//  2. city title-cased, when it is short enough
//  3. the two-letter code for state (full names mapped, codes passed through)
//  4. the country abbreviation
//  5. "" when everything is blank
//
// Unmapped values still produce output: a long unmapped state falls back to
// country and then to itself title-cased; a long city with nothing else falls
// back to itself title-cased.
func (n Normalizer) Location(city, state, country string) string {
	maxLen := n.CityMaxLen
	if maxLen <= 0 {
		maxLen = DefaultCityMaxLen
	}

	city = cleanSpace(city)
	state = cleanSpace(state)
	country = cleanSpace(country)

	if city != "" {
		if abbr, ok := metroAbbreviations[lookupKey(city)]; ok {
			return abbr
		}
		if utf8.RuneCountInString(city) <= maxLen {
			return TitleCase(city)
		}
	}

	if state != "" {
		if code, ok := StateCode(state); ok {
			return code
		}
	}

	if country != "" {
		if abbr, ok := countryAbbreviations[lookupKey(country)]; ok {
			return abbr
		}
	}

	switch {
	case state != "":
		return TitleCase(state)
	case country != "":
		return TitleCase(country)
	case city != "":
		return TitleCase(city)
	}
	return ""
}

// StateCode maps a US state or Canadian province to its two-letter code.
// Two-letter input is passed through uppercased.
func StateCode(s string) (string, bool) {
	s = cleanSpace(s)
	if s == "" {
		return "", false
	}
	if utf8.RuneCountInString(s) == 2 && isLetters(s) {
		return strings.ToUpper(s), true
	}
	code, ok := stateCodes[lookupKey(s)]
	return code, ok
}

var titleCaser = cases.Title(language.English)

// TitleCase converts "WEST JORDAN" to "West Jordan".
func TitleCase(s string) string {
	s = cleanSpace(s)
	if s == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(s))
}

// lookupKey folds punctuation and case so "St. Louis", "st louis" and
// "ST LOUIS" share a table entry.
func lookupKey(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(".", "", ",", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
