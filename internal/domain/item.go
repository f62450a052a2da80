package domain

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
)

// Reference points at the external entity a line item was built from.
// The cart stores it and never resolves it.
type Reference struct {
	Type string
	ID   string
}

// Buyable is anything that can describe itself as a line item.
type Buyable interface {
	BuyableIdentifier(opts Options) ItemID
	BuyableDescription(opts Options) *string
	BuyablePrice(opts Options) Money
	BuyableWeight(opts Options) int64
	BuyableTaxRate(opts Options) decimal.Decimal
}

type CartItem struct {
	rowID       string
	id          ItemID
	name        string
	quantity    int
	price       Money
	weight      int64
	options     Options
	discount    Discount
	taxRate     decimal.Decimal
	association *Reference
	instance    string
}

func NewCartItem(id ItemID, name string, price Money, qty int, weight int64, opts Options) (*CartItem, error) {
	if id.IsZero() {
		return nil, ErrInvalidIdentifier
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	if weight < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWeight, weight)
	}

	opts = opts.Clone()
	rowID, err := DeriveRowID(id, opts)
	if err != nil {
		return nil, fmt.Errorf("DeriveRowID: %w", err)
	}

	return &CartItem{
		rowID:    rowID,
		id:       id,
		name:     name,
		quantity: qty,
		price:    price,
		weight:   weight,
		options:  opts,
	}, nil
}

// FromBuyable builds an item from the five Buyable accessors and nothing else.
func FromBuyable(b Buyable, qty int, opts Options) (*CartItem, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: buyable is nil", ErrInvalidIdentifier)
	}
	opts = opts.Clone()

	var name string
	if desc := b.BuyableDescription(opts); desc != nil {
		name = *desc
	}

	item, err := NewCartItem(b.BuyableIdentifier(opts), name, b.BuyablePrice(opts), qty, b.BuyableWeight(opts), opts)
	if err != nil {
		return nil, err
	}
	item.taxRate = b.BuyableTaxRate(opts)
	return item, nil
}

// FromAttributes builds an item from a generic attribute map. Recognised keys:
// id, name, qty, price, weight, options, tax_rate, discount_rate, discount.
func FromAttributes(attrs map[string]any) (*CartItem, error) {
	id, err := ParseItemID(attrs["id"])
	if err != nil {
		return nil, fmt.Errorf("attribute[id]: %w", err)
	}

	name, _ := attrs["name"].(string)

	price, ok := attrs["price"].(Money)
	if !ok {
		return nil, fmt.Errorf("attribute[price] must be Money, got %T", attrs["price"])
	}

	qty := 1
	if raw, present := attrs["qty"]; present {
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute[qty]: %w", err)
		}
		qty = int(n)
	}

	var weight int64
	if raw, present := attrs["weight"]; present {
		if weight, err = toInt64(raw); err != nil {
			return nil, fmt.Errorf("attribute[weight]: %w", err)
		}
	}

	opts, err := toOptions(attrs["options"])
	if err != nil {
		return nil, fmt.Errorf("attribute[options]: %w", err)
	}

	item, err := NewCartItem(id, name, price, qty, weight, opts)
	if err != nil {
		return nil, err
	}

	if raw, present := attrs["tax_rate"]; present {
		if item.taxRate, err = toDecimal(raw); err != nil {
			return nil, fmt.Errorf("attribute[tax_rate]: %w", err)
		}
	}

	switch d := attrs["discount"].(type) {
	case nil:
	case Discount:
		item.discount = d
	default:
		return nil, fmt.Errorf("attribute[discount] must be Discount, got %T", d)
	}

	if raw, present := attrs["discount_rate"]; present {
		rate, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute[discount_rate]: %w", err)
		}
		item.discount = RateDiscount(rate)
	}

	return item, nil
}

func (i CartItem) RowID() string { return i.rowID }
func (i CartItem) ID() ItemID { return i.id }
func (i CartItem) Name() string { return i.name }
func (i CartItem) Quantity() int { return i.quantity }
func (i CartItem) Price() Money { return i.price }
func (i CartItem) Weight() int64 { return i.weight }
func (i CartItem) Options() Options { return i.options.Clone() }
func (i CartItem) Discount() Discount { return i.discount }
func (i CartItem) TaxRate() decimal.Decimal { return i.taxRate }
func (i CartItem) Instance() string { return i.instance }

func (i CartItem) Association() (Reference, bool) {
	if i.association == nil {
		return Reference{}, false
	}
	return *i.association, true
}

func (i *CartItem) SetQuantity(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	i.quantity = qty
	return nil
}

func (i *CartItem) SetDiscount(d Discount) {
	i.discount = d
}

func (i *CartItem) SetTaxRate(rate decimal.Decimal) {
	i.taxRate = rate
}

func (i *CartItem) SetInstance(instance string) {
	i.instance = instance
}

func (i *CartItem) Associate(ref Reference) {
	i.association = &ref
}

func (i CartItem) Clone() *CartItem {
	out := i
	out.options = i.options.Clone()
	if i.association != nil {
		ref := *i.association
		out.association = &ref
	}
	return &out
}

// ItemPatch describes an in-place update. Nil fields are left untouched.
// A quantity of zero or less removes the item from the cart.
type ItemPatch struct {
	ID       *ItemID
	Name     *string
	Quantity *int
	Price    *Money
	Weight   *int64
	Options  Options
}

func QuantityPatch(qty int) ItemPatch {
	return ItemPatch{Quantity: &qty}
}

// PatchFromBuyable refreshes identifier, name and price from b, evaluated
// against the item's current options.
func PatchFromBuyable(b Buyable, opts Options) ItemPatch {
	id := b.BuyableIdentifier(opts)
	price := b.BuyablePrice(opts)
	var name string
	if desc := b.BuyableDescription(opts); desc != nil {
		name = *desc
	}
	return ItemPatch{ID: &id, Name: &name, Price: &price}
}

// PatchFromAttributes reads id, name, qty, price, weight and options.
func PatchFromAttributes(attrs map[string]any) (ItemPatch, error) {
	var patch ItemPatch

	if raw, ok := attrs["id"]; ok {
		id, err := ParseItemID(raw)
		if err != nil {
			return ItemPatch{}, fmt.Errorf("attribute[id]: %w", err)
		}
		patch.ID = &id
	}
	if raw, ok := attrs["name"]; ok {
		name, ok := raw.(string)
		if !ok {
			return ItemPatch{}, fmt.Errorf("attribute[name] must be string, got %T", raw)
		}
		patch.Name = &name
	}
	if raw, ok := attrs["qty"]; ok {
		n, err := toInt64(raw)
		if err != nil {
			return ItemPatch{}, fmt.Errorf("attribute[qty]: %w", err)
		}
		qty := int(n)
		patch.Quantity = &qty
	}
	if raw, ok := attrs["price"]; ok {
		price, ok := raw.(Money)
		if !ok {
			return ItemPatch{}, fmt.Errorf("attribute[price] must be Money, got %T", raw)
		}
		patch.Price = &price
	}
	if raw, ok := attrs["weight"]; ok {
		w, err := toInt64(raw)
		if err != nil {
			return ItemPatch{}, fmt.Errorf("attribute[weight]: %w", err)
		}
		patch.Weight = &w
	}
	if raw, ok := attrs["options"]; ok {
		opts, err := toOptions(raw)
		if err != nil {
			return ItemPatch{}, fmt.Errorf("attribute[options]: %w", err)
		}
		patch.Options = opts
	}

	return patch, nil
}

// apply returns a patched copy with a recomputed row id.
func (i CartItem) apply(patch ItemPatch) (*CartItem, error) {
	out := i.Clone()

	if patch.ID != nil {
		if patch.ID.IsZero() {
			return nil, ErrInvalidIdentifier
		}
		out.id = *patch.ID
	}
	if patch.Name != nil {
		out.name = *patch.Name
	}
	if patch.Quantity != nil {
		out.quantity = *patch.Quantity
	}
	if patch.Price != nil {
		out.price = *patch.Price
	}
	if patch.Weight != nil {
		if *patch.Weight < 0 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidWeight, *patch.Weight)
		}
		out.weight = *patch.Weight
	}
	if patch.Options != nil {
		out.options = patch.Options.Clone()
	}

	rowID, err := DeriveRowID(out.id, out.options)
	if err != nil {
		return nil, fmt.Errorf("DeriveRowID: %w", err)
	}
	out.rowID = rowID

	return out, nil
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int, int8, int16, int32, int64:
		return reflect.ValueOf(val).Int(), nil
	case uint, uint8, uint16, uint32:
		return int64(reflect.ValueOf(val).Uint()), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case string:
		return decimal.NewFromString(val)
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int, int8, int16, int32, int64:
		return decimal.NewFromInt(reflect.ValueOf(val).Int()), nil
	default:
		return decimal.Zero, fmt.Errorf("expected a decimal, got %T", v)
	}
}

func toOptions(v any) (Options, error) {
	switch val := v.(type) {
	case nil:
		return Options{}, nil
	case Options:
		return val, nil
	case map[string]any:
		return Options(val), nil
	case map[string]string:
		opts := make(Options, len(val))
		for k, s := range val {
			opts[k] = s
		}
		return opts, nil
	default:
		return nil, fmt.Errorf("expected a map, got %T", v)
	}
}
