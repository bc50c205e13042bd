package normalize

// metroAbbreviations keys are lookupKey-folded city names.
var metroAbbreviations = map[string]string{
	"san francisco":          "SF",
	"new york":               "NYC",
	"new york city":          "NYC",
	"nyc":                    "NYC",
	"los angeles":            "LA",
	"washington":             "DC",
	"washington dc":          "DC",
	"washington d c":         "DC",
	"philadelphia":           "Philly",
	"las vegas":              "Vegas",
	"salt lake city":         "SLC",
	"new orleans":            "NOLA",
	"kansas city":            "KC",
	"oklahoma city":          "OKC",
	"st louis":               "STL",
	"saint louis":            "STL",
	"dallas fort worth":      "DFW",
	"dallas ft worth":        "DFW",
	"minneapolis st paul":    "Twin Cities",
	"minneapolis saint paul": "Twin Cities",
	"san francisco bay area": "Bay Area",
	"bay area":               "Bay Area",
	"silicon valley":         "Bay Area",
	"greater boston":         "Boston",
	"greater london":         "London",
	"city of london":         "London",
	"mexico city":            "CDMX",
	"ho chi minh city":       "Saigon",
	"rio de janeiro":         "Rio",
}

// stateCodes keys are lookupKey-folded names.
var stateCodes = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
	"district of columbia": "DC",
	"puerto rico":          "PR",

	"alberta":                   "AB",
	"british columbia":          "BC",
	"manitoba":                  "MB",
	"new brunswick":             "NB",
	"newfoundland and labrador": "NL",
	"nova scotia":               "NS",
	"ontario":                   "ON",
	"prince edward island":      "PE",
	"quebec":                    "QC",
	"québec":                    "QC",
	"saskatchewan":              "SK",
}

// countryAbbreviations keys are lookupKey-folded names.
var countryAbbreviations = map[string]string{
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"us":                       "US",
	"u s a":                    "US",
	"america":                  "US",
	"united kingdom":           "UK",
	"uk":                       "UK",
	"great britain":            "UK",
	"england":                  "UK",
	"scotland":                 "UK",
	"wales":                    "UK",
	"northern ireland":         "UK",
	"united arab emirates":     "UAE",
	"uae":                      "UAE",
	"canada":                   "CA",
	"australia":                "AU",
	"new zealand":              "NZ",
	"ireland":                  "IE",
	"germany":                  "DE",
	"deutschland":              "DE",
	"france":                   "FR",
	"spain":                    "ES",
	"italy":                    "IT",
	"netherlands":              "NL",
	"the netherlands":          "NL",
	"belgium":                  "BE",
	"switzerland":              "CH",
	"sweden":                   "SE",
	"norway":                   "NO",
	"denmark":                  "DK",
	"finland":                  "FI",
	"poland":                   "PL",
	"portugal":                 "PT",
	"india":                    "IN",
	"philippines":              "PH",
	"singapore":                "SG",
	"south africa":             "ZA",
	"mexico":                   "MX",
	"brazil":                   "BR",
	"argentina":                "AR",
	"colombia":                 "CO",
	"israel":                   "IL",
	"japan":                    "JP",
	"south korea":              "KR",
	"hong kong":                "HK",
}
