package notification

import (
	"regexp"
	"sort"
	"strings"
)

// Variable is one known template token.
type Variable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Variable categories.
const (
	CategoryCustomer  = "customer"
	CategoryInsurance = "insurance"
	CategoryQuotation = "quotation"
	CategoryCompany   = "company"
	CategorySystem    = "system"
)

// catalogue is the static registry of variables a template may reference,
// grouped by category. Drives UI listing and token extraction.
var catalogue = map[string][]Variable{
	CategoryCustomer: {
		{Name: "customer_name", Description: "Full name of the customer"},
		{Name: "customer_email", Description: "Email address of the customer"},
		{Name: "customer_phone", Description: "Phone number of the customer"},
		{Name: "customer_address", Description: "Postal address of the customer"},
		{Name: "customer_birth_date", Description: "Birth date (YYYY-MM-DD)"},
	},
	CategoryInsurance: {
		{Name: "policy_number", Description: "Policy number"},
		{Name: "policy_type", Description: "Type of the policy"},
		{Name: "insurance_company", Description: "Issuing insurance company"},
		{Name: "premium_amount", Description: "Premium amount (plain decimal)"},
		{Name: "policy_start_date", Description: "Policy start date (YYYY-MM-DD)"},
		{Name: "policy_expiry_date", Description: "Policy expiry date (YYYY-MM-DD)"},
	},
	CategoryQuotation: {
		{Name: "quotation_number", Description: "Quotation number"},
		{Name: "quotation_amount", Description: "Quoted amount (plain decimal)"},
		{Name: "quotation_status", Description: "Quotation status"},
		{Name: "quotation_valid_until", Description: "Quotation validity date (YYYY-MM-DD)"},
	},
	CategoryCompany: {
		{Name: "advisor_name", Description: "Name of the responsible advisor"},
		{Name: "company_name", Description: "Agency name"},
		{Name: "company_phone", Description: "Agency phone number"},
		{Name: "company_email", Description: "Agency email address"},
		{Name: "office_address", Description: "Agency office address"},
	},
	CategorySystem: {
		{Name: "current_date", Description: "Today's date (YYYY-MM-DD)"},
		{Name: "current_year", Description: "Current year"},
	},
}

// VariablesByCategory returns the catalogue grouped by category. When filter
// is non-empty only that category is returned (empty map for an unknown one).
func VariablesByCategory(filter string) map[string][]Variable {
	out := make(map[string][]Variable, len(catalogue))
	for category, vars := range catalogue {
		if filter != "" && category != filter {
			continue
		}
		out[category] = append([]Variable(nil), vars...)
	}
	return out
}

// Categories returns all known variable categories, sorted.
func Categories() []string {
	out := make([]string, 0, len(catalogue))
	for category := range catalogue {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// IsKnownVariable reports whether the name is in the catalogue.
func IsKnownVariable(name string) bool {
	for _, vars := range catalogue {
		for _, v := range vars {
			if v.Name == name {
				return true
			}
		}
	}
	return false
}

// IsKnownToken reports whether a template token can ever resolve: a catalogue
// variable, one of its dotted aliases, or a settings.* reference (settings
// keys are operator data, so only the prefix is checked).
func IsKnownToken(name string) bool {
	if IsKnownVariable(name) {
		return true
	}
	if _, ok := dottedAliases[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "settings.")
}

var tokenPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// ExtractTokens returns the distinct token names referenced by a template
// body, in order of first appearance.
func ExtractTokens(body string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
