package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"notivio/internal/domain/campaign"
	"notivio/internal/domain/notification"

	supa "github.com/supabase-community/supabase-go"
)

const (
	customersTable  = "customers"
	insurancesTable = "insurances"
	quotationsTable = "quotations"
	settingsTable   = "app_settings"
	leadsTable      = "leads"
)

const sampleWindow = 50

var (
	_ notification.EntitySource = (*SupabaseEntities)(nil)
	_ campaign.TargetExpander   = (*SupabaseEntities)(nil)
)

// SupabaseEntities reads CRM records (customers, insurances, quotations,
// settings, leads) from the Supabase project. Read-only.
type SupabaseEntities struct {
	client *supa.Client
}

// NewSupabaseEntities creates a new Supabase-backed entity source.
func NewSupabaseEntities(client *supa.Client) *SupabaseEntities {
	return &SupabaseEntities{client: client}
}

func (s *SupabaseEntities) one(table, id string, out any) (bool, error) {
	data, _, err := s.client.From(table).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return false, fmt.Errorf("fetching from %s: %w", table, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false, fmt.Errorf("parsing %s row: %w", table, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw[0], out); err != nil {
		return false, fmt.Errorf("parsing %s row: %w", table, err)
	}
	return true, nil
}

// CustomerByID retrieves one customer. Returns nil, nil when absent.
func (s *SupabaseEntities) CustomerByID(ctx context.Context, id string) (*notification.Customer, error) {
	var c notification.Customer
	found, err := s.one(customersTable, id, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// InsuranceByID retrieves one insurance policy. Returns nil, nil when absent.
func (s *SupabaseEntities) InsuranceByID(ctx context.Context, id string) (*notification.Insurance, error) {
	var ins notification.Insurance
	found, err := s.one(insurancesTable, id, &ins)
	if err != nil || !found {
		return nil, err
	}
	return &ins, nil
}

// QuotationByID retrieves one quotation. Returns nil, nil when absent.
func (s *SupabaseEntities) QuotationByID(ctx context.Context, id string) (*notification.Quotation, error) {
	var q notification.Quotation
	found, err := s.one(quotationsTable, id, &q)
	if err != nil || !found {
		return nil, err
	}
	return &q, nil
}

// RandomCustomer picks one real customer for previews. PostgREST has no
// order-by-random, so it samples within the most recent window.
func (s *SupabaseEntities) RandomCustomer(ctx context.Context) (*notification.Customer, error) {
	data, _, err := s.client.From(customersTable).
		Select("*", "exact", false).
		Range(0, sampleWindow-1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("sampling customers: %w", err)
	}

	var customers []notification.Customer
	if err := json.Unmarshal(data, &customers); err != nil {
		return nil, fmt.Errorf("parsing customers: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}

	return &customers[rand.Intn(len(customers))], nil
}

// Settings returns the full settings table as stored.
func (s *SupabaseEntities) Settings(ctx context.Context) ([]notification.Setting, error) {
	data, _, err := s.client.From(settingsTable).Select("*", "exact", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}

	var settings []notification.Setting
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

// Expand turns campaign target criteria into concrete leads: the union of an
// explicit id list and a named segment, deduplicated by lead id.
func (s *SupabaseEntities) Expand(ctx context.Context, criteria campaign.TargetCriteria) ([]notification.Lead, error) {
	seen := make(map[string]bool)
	var leads []notification.Lead

	appendLeads := func(batch []notification.Lead) {
		for _, lead := range batch {
			if seen[lead.ID] {
				continue
			}
			seen[lead.ID] = true
			leads = append(leads, lead)
		}
	}

	if len(criteria.LeadIDs) > 0 {
		data, _, err := s.client.From(leadsTable).
			Select("*", "exact", false).
			In("id", criteria.LeadIDs).
			Execute()
		if err != nil {
			return nil, fmt.Errorf("expanding lead ids: %w", err)
		}

		var batch []notification.Lead
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parsing leads: %w", err)
		}
		appendLeads(batch)
	}

	if criteria.Segment != "" {
		data, _, err := s.client.From(leadsTable).
			Select("*", "exact", false).
			Eq("segment", criteria.Segment).
			Execute()
		if err != nil {
			return nil, fmt.Errorf("expanding segment %s: %w", criteria.Segment, err)
		}

		var batch []notification.Lead
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parsing leads: %w", err)
		}
		appendLeads(batch)
	}

	return leads, nil
}
