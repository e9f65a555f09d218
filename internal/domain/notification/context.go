package notification

import (
	"context"
	"strings"

	"notivio/internal/common"
)

// Context aggregates the business data one render call may reference.
// Transient: built per target, used once, discarded. When both an insurance
// and a quotation are loaded, the insurance is authoritative for conflicting
// fields.
type Context struct {
	Customer  *Customer
	Insurance *Insurance
	Quotation *Quotation

	// Settings is the flattened settings snapshot, keyed category → key →
	// value with the category prefix stripped from each key.
	Settings map[string]map[string]string
}

// ContextSource is the closed set of ways a Context can be built. Dispatch is
// a type switch, never runtime name resolution.
type ContextSource interface {
	isContextSource()
}

// FromCustomer builds a context around a customer, optionally loading one of
// their policies.
type FromCustomer struct {
	CustomerID  string
	InsuranceID string
}

// FromInsurance builds a context around a policy; the owning customer is
// loaded automatically.
type FromInsurance struct {
	InsuranceID string
}

// FromQuotation builds a context around a quotation; the owning customer is
// loaded automatically.
type FromQuotation struct {
	QuotationID string
}

// Sample builds a preview context from one real customer chosen at random.
type Sample struct{}

func (FromCustomer) isContextSource()  {}
func (FromInsurance) isContextSource() {}
func (FromQuotation) isContextSource() {}
func (Sample) isContextSource()        {}

// ContextBuilder assembles render contexts from the entity source.
type ContextBuilder struct {
	entities EntitySource
}

// NewContextBuilder creates a new ContextBuilder.
func NewContextBuilder(entities EntitySource) *ContextBuilder {
	return &ContextBuilder{entities: entities}
}

// Build loads the entities named by the source plus a settings snapshot.
// Read-only; fails with NotFoundError when a referenced id does not exist.
func (b *ContextBuilder) Build(ctx context.Context, src ContextSource) (*Context, error) {
	out := &Context{}

	switch s := src.(type) {
	case FromCustomer:
		customer, err := b.entities.CustomerByID(ctx, s.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, common.NewNotFoundError("customer", s.CustomerID)
		}
		out.Customer = customer

		if s.InsuranceID != "" {
			ins, err := b.entities.InsuranceByID(ctx, s.InsuranceID)
			if err != nil {
				return nil, err
			}
			if ins == nil {
				return nil, common.NewNotFoundError("insurance", s.InsuranceID)
			}
			out.Insurance = ins
		}

	case FromInsurance:
		ins, err := b.entities.InsuranceByID(ctx, s.InsuranceID)
		if err != nil {
			return nil, err
		}
		if ins == nil {
			return nil, common.NewNotFoundError("insurance", s.InsuranceID)
		}
		out.Insurance = ins

		customer, err := b.entities.CustomerByID(ctx, ins.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, common.NewNotFoundError("customer", ins.CustomerID)
		}
		out.Customer = customer

	case FromQuotation:
		quote, err := b.entities.QuotationByID(ctx, s.QuotationID)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			return nil, common.NewNotFoundError("quotation", s.QuotationID)
		}
		out.Quotation = quote

		customer, err := b.entities.CustomerByID(ctx, quote.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, common.NewNotFoundError("customer", quote.CustomerID)
		}
		out.Customer = customer

	case Sample:
		customer, err := b.entities.RandomCustomer(ctx)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, common.NewNotFoundError("customer", "sample")
		}
		out.Customer = customer
	}

	settings, err := b.entities.Settings(ctx)
	if err != nil {
		return nil, err
	}
	out.Settings = FlattenSettings(settings)

	return out, nil
}

// SettingsOnly builds a context with no entities loaded — used when a send
// references no customer but the body may still use settings and system
// variables.
func (b *ContextBuilder) SettingsOnly(ctx context.Context) (*Context, error) {
	settings, err := b.entities.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return &Context{Settings: FlattenSettings(settings)}, nil
}

// FlattenSettings groups settings by category and strips the category prefix
// from each key, so company_advisor_name becomes advisor_name under company.
func FlattenSettings(settings []Setting) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, s := range settings {
		group, ok := out[s.Category]
		if !ok {
			group = make(map[string]string)
			out[s.Category] = group
		}
		key := strings.TrimPrefix(s.Key, s.Category+"_")
		group[key] = s.Value
	}
	return out
}

// SettingValue looks up a flattened setting. Accepts the category.key form;
// a bare key matches when exactly one category defines it.
func (c *Context) SettingValue(name string) (string, bool) {
	if c.Settings == nil {
		return "", false
	}

	if category, key, ok := strings.Cut(name, "."); ok {
		if group, ok := c.Settings[category]; ok {
			if v, ok := group[key]; ok {
				return v, true
			}
		}
		return "", false
	}

	var found string
	var hits int
	for _, group := range c.Settings {
		if v, ok := group[name]; ok {
			found = v
			hits++
		}
	}
	if hits == 1 {
		return found, true
	}
	return "", false
}
