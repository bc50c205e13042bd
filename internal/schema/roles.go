// Package schema classifies arbitrary lead-file headers by semantic role so
// the rest of the pipeline never depends on a fixed column layout.
package schema

// Role is the semantic role of a column.
type Role string

// The six base roles. Every refined role below reports one of these as its
// Family.
const (
	RoleIdentifier  Role = "identifier"
	RoleEmail       Role = "email"
	RoleCompanyName Role = "company_name"
	RoleLocation    Role = "location"
	RoleFreeText    Role = "free_text"
	RoleUnknown     Role = "unknown"
)

// Refined roles used by the scorer and the location normalizer.
const (
	RoleWebsite       Role = "website"
	RoleCity          Role = "city"
	RoleState         Role = "state"
	RoleCountry       Role = "country"
	RoleIndustry      Role = "industry"
	RoleJobTitle      Role = "job_title"
	RoleEmployeeCount Role = "employee_count"
	RoleKeywords      Role = "keywords"
	RoleHeadline      Role = "headline"
)

// Family maps a refined role to its base role.
func (r Role) Family() Role {
	switch r {
	case RoleWebsite:
		return RoleIdentifier
	case RoleCity, RoleState, RoleCountry:
		return RoleLocation
	case RoleIndustry, RoleJobTitle, RoleEmployeeCount, RoleKeywords, RoleHeadline:
		return RoleFreeText
	case "":
		return RoleUnknown
	default:
		return r
	}
}

// rule is one row of the ordered keyword table. A header matches when its
// folded form equals one of exact, or contains one of contains.
type rule struct {
	role     Role
	exact    []string
	contains []string
}

// rules is evaluated top to bottom; the first match wins. Order matters:
// "company_email" must be an email column and "company size" an employee
// count, so those come before the company rule. Social profile links and
// email metadata columns ("Email Status", "Company Name for Emails") are
// matched first so they never feed the website or email keys.
var rules = []rule{
	{role: RoleIdentifier, contains: []string{"linkedin", "linked in", "twitter", "facebook", "instagram", "youtube", "you tube", "tiktok", "tik tok", "github", "git hub", "crunchbase", "angellist"}},
	{role: RoleCompanyName, contains: []string{"name for email"}},
	{role: RoleUnknown, contains: []string{"email status", "email confidence", "email verif", "email source", "email opt", "email bounce", "email open", "email sent", "emails sent", "email catch"}},
	{role: RoleEmail, contains: []string{"email", "e-mail", "e mail", "mail address"}},
	{role: RoleIdentifier, exact: []string{"id", "uuid", "guid", "key", "record id", "lead id"}, contains: []string{"_id", " id", "uuid", "external id", "crm id"}},
	{role: RoleWebsite, contains: []string{"website", "domain", "url", "web site", "homepage", "site"}},
	{role: RoleEmployeeCount, contains: []string{"employee", "headcount", "head count", "company size", "staff count", "num staff", "team size"}},
	{role: RoleIndustry, exact: []string{"sic", "sic code"}, contains: []string{"industry", "industries", "sector", "vertical", "naics"}},
	{role: RoleKeywords, contains: []string{"keyword", "tags", "specialt", "technologies", "services offered"}},
	{role: RoleJobTitle, contains: []string{"title", "position", "job", "role", "seniority"}},
	{role: RoleHeadline, contains: []string{"headline", "tagline"}},
	{role: RoleCompanyName, contains: []string{"company", "business", "organization", "organisation", "employer", "account name", "firm"}},
	{role: RoleCity, contains: []string{"city", "town", "metro", "locality"}},
	{role: RoleState, contains: []string{"state", "province", "region"}},
	{role: RoleCountry, contains: []string{"country", "nation"}},
	{role: RoleLocation, contains: []string{"location", "address", "geo", "hq"}},
	{role: RoleFreeText, contains: []string{"description", "summary", "about", "notes", "bio", "overview", "comment"}},
}
