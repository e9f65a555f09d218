package notification

import (
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// Renderer substitutes {token} placeholders in a template body with values
// resolved from a Context. Rendering is pure and idempotent; unresolved
// tokens pass through unchanged so previews stay legible.
type Renderer struct {
	clock Clock
}

// NewRenderer creates a new Renderer. The clock feeds the system variables
// (current_date, current_year).
func NewRenderer(clock Clock) *Renderer {
	return &Renderer{clock: clock}
}

// Render resolves every token in body against ctx. Resolution order per
// token: direct entity field, dotted path, settings, literal passthrough.
func (r *Renderer) Render(body string, ctx *Context) string {
	if ctx == nil {
		return body
	}
	return tokenPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := r.resolve(name, ctx); ok {
			return value
		}
		return match
	})
}

func (r *Renderer) resolve(name string, ctx *Context) (string, bool) {
	if v, ok := r.directField(name, ctx); ok {
		return v, true
	}
	if v, ok := r.dottedPath(name, ctx); ok {
		return v, true
	}
	return ctx.SettingValue(name)
}

// directField resolves catalogue variable names against the loaded entities.
// Insurance wins over quotation when both could answer the same field.
func (r *Renderer) directField(name string, ctx *Context) (string, bool) {
	switch name {
	case "current_date":
		return r.clock.Now().Format(dateLayout), true
	case "current_year":
		return strconv.Itoa(r.clock.Now().Year()), true
	}

	if c := ctx.Customer; c != nil {
		switch name {
		case "customer_name":
			return c.Name, true
		case "customer_email":
			return c.Email, true
		case "customer_phone":
			return c.Phone, true
		case "customer_address":
			return c.Address, true
		case "customer_birth_date":
			return formatDate(c.BirthDate)
		}
	}

	if ins := ctx.Insurance; ins != nil {
		switch name {
		case "policy_number":
			return ins.PolicyNumber, true
		case "policy_type":
			return ins.PolicyType, true
		case "insurance_company":
			return ins.Company, true
		case "premium_amount":
			return formatAmount(ins.Premium), true
		case "policy_start_date":
			return formatDate(ins.StartDate)
		case "policy_expiry_date":
			return formatDate(ins.ExpiryDate)
		}
	}

	if q := ctx.Quotation; q != nil {
		switch name {
		case "quotation_number":
			return q.Number, true
		case "quotation_amount":
			return formatAmount(q.Amount), true
		case "quotation_status":
			return q.Status, true
		case "quotation_valid_until":
			return formatDate(q.ValidUntil)
		}
	}

	return "", false
}

// dottedAliases maps customer.*, insurance.* and quotation.* paths onto the
// direct field names.
var dottedAliases = map[string]string{
	"customer.name":           "customer_name",
	"customer.email":          "customer_email",
	"customer.phone":          "customer_phone",
	"customer.address":        "customer_address",
	"customer.birth_date":     "customer_birth_date",
	"insurance.policy_number": "policy_number",
	"insurance.policy_type":   "policy_type",
	"insurance.company":       "insurance_company",
	"insurance.premium":       "premium_amount",
	"insurance.start_date":    "policy_start_date",
	"insurance.expiry_date":   "policy_expiry_date",
	"quotation.number":        "quotation_number",
	"quotation.amount":        "quotation_amount",
	"quotation.status":        "quotation_status",
	"quotation.valid_until":   "quotation_valid_until",
}

func (r *Renderer) dottedPath(name string, ctx *Context) (string, bool) {
	mapped, ok := dottedAliases[name]
	if !ok {
		return "", false
	}
	return r.directField(mapped, ctx)
}

// formatDate renders dates as YYYY-MM-DD so renders are deterministic.
func formatDate(t *time.Time) (string, bool) {
	if t == nil {
		return "", false
	}
	return t.Format(dateLayout), true
}

// formatAmount renders currency as a plain two-decimal value.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
