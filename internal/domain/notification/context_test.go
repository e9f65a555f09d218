package notification

import (
	"context"
	"testing"

	"notivio/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromCustomer(t *testing.T) {
	entities := newFakeEntities()
	entities.customers["cust-1"] = &Customer{ID: "cust-1", Name: "Maria Rossi"}
	entities.insurances["ins-1"] = &Insurance{ID: "ins-1", CustomerID: "cust-1", PolicyNumber: "POL-1"}

	b := NewContextBuilder(entities)

	out, err := b.Build(context.Background(), FromCustomer{CustomerID: "cust-1", InsuranceID: "ins-1"})
	require.NoError(t, err)
	assert.Equal(t, "Maria Rossi", out.Customer.Name)
	assert.Equal(t, "POL-1", out.Insurance.PolicyNumber)
	assert.Nil(t, out.Quotation)
}

func TestBuildFromInsuranceLoadsOwner(t *testing.T) {
	entities := newFakeEntities()
	entities.customers["cust-1"] = &Customer{ID: "cust-1", Name: "Maria Rossi"}
	entities.insurances["ins-1"] = &Insurance{ID: "ins-1", CustomerID: "cust-1"}

	b := NewContextBuilder(entities)

	out, err := b.Build(context.Background(), FromInsurance{InsuranceID: "ins-1"})
	require.NoError(t, err)
	assert.Equal(t, "cust-1", out.Customer.ID)
	assert.Equal(t, "ins-1", out.Insurance.ID)
}

func TestBuildFromQuotationLoadsOwner(t *testing.T) {
	entities := newFakeEntities()
	entities.customers["cust-1"] = &Customer{ID: "cust-1"}
	entities.quotations["quo-1"] = &Quotation{ID: "quo-1", CustomerID: "cust-1", Number: "Q-1"}

	b := NewContextBuilder(entities)

	out, err := b.Build(context.Background(), FromQuotation{QuotationID: "quo-1"})
	require.NoError(t, err)
	assert.Equal(t, "Q-1", out.Quotation.Number)
	assert.Equal(t, "cust-1", out.Customer.ID)
}

func TestBuildUnknownIDIsNotFound(t *testing.T) {
	b := NewContextBuilder(newFakeEntities())

	_, err := b.Build(context.Background(), FromCustomer{CustomerID: "nope"})
	var notFound *common.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "customer", notFound.Resource)
}

func TestBuildSampleUsesRealCustomer(t *testing.T) {
	entities := newFakeEntities()
	entities.random = &Customer{ID: "cust-9", Name: "Random Customer"}

	b := NewContextBuilder(entities)

	out, err := b.Build(context.Background(), Sample{})
	require.NoError(t, err)
	assert.Equal(t, "cust-9", out.Customer.ID)
}

func TestSettingsOnly(t *testing.T) {
	entities := newFakeEntities()
	entities.settings = []Setting{
		{Category: "company", Key: "company_advisor_name", Value: "Luca"},
	}

	b := NewContextBuilder(entities)

	out, err := b.SettingsOnly(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Customer)

	v, ok := out.SettingValue("company.advisor_name")
	require.True(t, ok)
	assert.Equal(t, "Luca", v)
}

func TestFlattenSettingsStripsCategoryPrefix(t *testing.T) {
	flat := FlattenSettings([]Setting{
		{Category: "company", Key: "company_advisor_name", Value: "Luca"},
		{Category: "company", Key: "phone", Value: "+39 02 1234"},
		{Category: "system", Key: "system_locale", Value: "it-IT"},
	})

	assert.Equal(t, "Luca", flat["company"]["advisor_name"])
	assert.Equal(t, "+39 02 1234", flat["company"]["phone"])
	assert.Equal(t, "it-IT", flat["system"]["locale"])
}

func TestSettingValueAmbiguousBareKey(t *testing.T) {
	c := &Context{Settings: map[string]map[string]string{
		"company": {"name": "Assicura"},
		"system":  {"name": "notivio"},
	}}

	_, ok := c.SettingValue("name")
	assert.False(t, ok)

	v, ok := c.SettingValue("system.name")
	require.True(t, ok)
	assert.Equal(t, "notivio", v)
}
