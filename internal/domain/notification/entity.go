package notification

import (
	"context"
	"time"
)

// Customer is the CRM record a template may reference.
type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Address   string     `json:"address"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// Insurance is an active policy belonging to a customer.
type Insurance struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id"`
	PolicyNumber string     `json:"policy_number"`
	PolicyType   string     `json:"policy_type"`
	Company      string     `json:"company"`
	Premium      float64    `json:"premium"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// Quotation is a priced offer that has not (yet) become a policy.
type Quotation struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Number     string     `json:"number"`
	Amount     float64    `json:"amount"`
	Status     string     `json:"status"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Setting is one structured configuration value. Keys carry their category as
// a prefix in storage (e.g. company_advisor_name in category company).
type Setting struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Lead is one concrete campaign recipient produced by expanding target
// criteria.
type Lead struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// EntitySource exposes CRM records by id. Read-only; implementations live in
// infra/entities.
type EntitySource interface {
	CustomerByID(ctx context.Context, id string) (*Customer, error)
	InsuranceByID(ctx context.Context, id string) (*Insurance, error)
	QuotationByID(ctx context.Context, id string) (*Quotation, error)

	// RandomCustomer picks one real customer for template previews. Previews
	// never use synthetic data.
	RandomCustomer(ctx context.Context) (*Customer, error)

	// Settings returns the full settings table as stored.
	Settings(ctx context.Context) ([]Setting, error)
}
