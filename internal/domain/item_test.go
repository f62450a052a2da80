package domain_test

import (
	"math"
	"testing"

	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	id      int64
	title   string
	price   domain.Money
	weight  int64
	taxRate decimal.Decimal
}

func (p product) BuyableIdentifier(domain.Options) domain.ItemID { return domain.IntID(p.id) }
func (p product) BuyableDescription(domain.Options) *string { return &p.title }
func (p product) BuyablePrice(domain.Options) domain.Money { return p.price }
func (p product) BuyableWeight(domain.Options) int64 { return p.weight }
func (p product) BuyableTaxRate(domain.Options) decimal.Decimal { return p.taxRate }

func TestFromBuyable(t *testing.T) {
	p := product{
		id:      1,
		title:   "Some item",
		price:   mustMoney(t, "10.00", "USD"),
		weight:  550,
		taxRate: decimal.RequireFromString("0.21"),
	}

	item, err := domain.FromBuyable(p, 2, domain.Options{"size": "XL", "color": "red"})
	require.NoError(t, err)

	assert.Equal(t, "07d5da5550494c62daf9993cf954303f", item.RowID())
	assert.Equal(t, domain.IntID(1), item.ID())
	assert.Equal(t, "Some item", item.Name())
	assert.Equal(t, 2, item.Quantity())
	assert.Equal(t, "10.00", item.Price().String())
	assert.Equal(t, int64(550), item.Weight())
	assert.True(t, item.TaxRate().Equal(decimal.RequireFromString("0.21")))
	assert.Equal(t, domain.DiscountRate, item.Discount().Kind())
	assert.True(t, item.Discount().Rate().IsZero())
}

func TestFromBuyable_Nil(t *testing.T) {
	_, err := domain.FromBuyable(nil, 1, nil)
	require.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestFromAttributes(t *testing.T) {
	item, err := domain.FromAttributes(map[string]any{
		"id":            "sku-42",
		"name":          "T-shirt",
		"qty":           3,
		"price":         mustMoney(t, "19.99", "USD"),
		"weight":        int64(200),
		"options":       map[string]string{"size": "M"},
		"tax_rate":      "0.2",
		"discount_rate": "0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "da1c7bbaf870d68d6f520d61c044ea71", item.RowID())
	assert.Equal(t, 3, item.Quantity())
	assert.Equal(t, int64(200), item.Weight())
	assert.True(t, item.TaxRate().Equal(decimal.RequireFromString("0.2")))
	assert.True(t, item.Discount().Equal(domain.RateDiscount(decimal.RequireFromString("0.1"))))
}

func TestFromAttributes_Errors(t *testing.T) {
	usd := mustMoney(t, "1.00", "USD")

	tests := []struct {
		name      string
		attrs     map[string]any
		wantError error
	}{
		{
			name:      "missing id",
			attrs:     map[string]any{"price": usd},
			wantError: domain.ErrInvalidIdentifier,
		},
		{
			name:      "zero quantity",
			attrs:     map[string]any{"id": 1, "price": usd, "qty": 0},
			wantError: domain.ErrInvalidQuantity,
		},
		{
			name:      "negative weight",
			attrs:     map[string]any{"id": 1, "price": usd, "weight": -1},
			wantError: domain.ErrInvalidWeight,
		},
		{
			name:      "NaN option",
			attrs:     map[string]any{"id": 1, "price": usd, "options": map[string]any{"ratio": math.NaN()}},
			wantError: domain.ErrUnserializableOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.FromAttributes(tt.attrs)
			require.ErrorIs(t, err, tt.wantError)
		})
	}

	_, err := domain.FromAttributes(map[string]any{"id": 1, "price": "1.00"})
	require.EqualError(t, err, "attribute[price] must be Money, got string")
}

func TestNewCartItem_Quantity(t *testing.T) {
	usd := mustMoney(t, "1.00", "USD")

	_, err := domain.NewCartItem(domain.IntID(1), "x", usd, 0, 0, nil)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	item, err := domain.NewCartItem(domain.IntID(1), "x", usd, 1, 0, nil)
	require.NoError(t, err)

	require.ErrorIs(t, item.SetQuantity(-2), domain.ErrInvalidQuantity)
	require.NoError(t, item.SetQuantity(7))
	assert.Equal(t, 7, item.Quantity())
}

func TestCartItem_CloneIsDeep(t *testing.T) {
	item := mustItem(t, domain.IntID(1), "1.00", 1, domain.Options{"extras": map[string]any{"gift": true}})
	item.Associate(domain.Reference{Type: "product", ID: "1"})

	clone := item.Clone()
	clone.Associate(domain.Reference{Type: "bundle", ID: "2"})
	clone.Options()["extras"].(map[string]any)["gift"] = false

	ref, ok := item.Association()
	require.True(t, ok)
	assert.Equal(t, "product", ref.Type)

	extras, _ := item.Options().Get("extras")
	assert.Equal(t, true, extras.(map[string]any)["gift"])
}

func TestPatchFromAttributes(t *testing.T) {
	patch, err := domain.PatchFromAttributes(map[string]any{
		"name": "renamed",
		"qty":  4,
	})
	require.NoError(t, err)

	require.NotNil(t, patch.Name)
	assert.Equal(t, "renamed", *patch.Name)
	require.NotNil(t, patch.Quantity)
	assert.Equal(t, 4, *patch.Quantity)
	assert.Nil(t, patch.ID)
	assert.Nil(t, patch.Price)

	_, err = domain.PatchFromAttributes(map[string]any{"name": 5})
	require.EqualError(t, err, "attribute[name] must be string, got int")
}
