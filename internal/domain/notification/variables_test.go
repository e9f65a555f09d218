package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTokens(t *testing.T) {
	body := "Ciao {customer_name}, polizza {policy_number} di {customer_name}, rif {insurance.premium}."
	assert.Equal(t, []string{"customer_name", "policy_number", "insurance.premium"}, ExtractTokens(body))
}

func TestExtractTokensNone(t *testing.T) {
	assert.Empty(t, ExtractTokens("no placeholders here"))
}

func TestExtractTokensIgnoresMalformed(t *testing.T) {
	assert.Empty(t, ExtractTokens("open {customer_name and {bad token}"))
}

func TestCategoriesAreSorted(t *testing.T) {
	assert.Equal(t, []string{"company", "customer", "insurance", "quotation", "system"}, Categories())
}

func TestVariablesByCategoryFilter(t *testing.T) {
	all := VariablesByCategory("")
	assert.Len(t, all, 5)

	only := VariablesByCategory("system")
	assert.Len(t, only, 1)
	assert.Len(t, only["system"], 2)

	assert.Empty(t, VariablesByCategory("bogus"))
}

func TestIsKnownVariable(t *testing.T) {
	assert.True(t, IsKnownVariable("customer_name"))
	assert.True(t, IsKnownVariable("current_date"))
	assert.False(t, IsKnownVariable("customer.name"))
	assert.False(t, IsKnownVariable("nonsense"))
}

func TestIsKnownToken(t *testing.T) {
	assert.True(t, IsKnownToken("customer_name"))
	assert.True(t, IsKnownToken("customer.name"))
	assert.True(t, IsKnownToken("insurance.premium"))
	assert.True(t, IsKnownToken("settings.agency_name"))
	assert.False(t, IsKnownToken("custmer_nmae"))
	assert.False(t, IsKnownToken("customer.shoe_size"))
}
