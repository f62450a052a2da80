package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Version is the record schema written by this package.
const Version = 1

const (
	IDKindInt    = "int"
	IDKindString = "string"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported record version")
	ErrRowIDMismatch      = errors.New("stored row id does not match its item")
)

// Item is the persisted form of one line item. Fields are mapped one by one so
// a stored cart never depends on the in-memory layout of domain.CartItem.
type Item struct {
	RowID       string          `json:"row_id"`
	ID          string          `json:"id"`
	IDKind      string          `json:"id_kind"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	PriceMinor  int64           `json:"price_minor"`
	Currency    string          `json:"currency"`
	Weight      int64           `json:"weight"`
	Options     map[string]any  `json:"options"`
	Discount    Discount        `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Association *Association    `json:"association,omitempty"`
}

type Discount struct {
	Kind        string          `json:"kind"`
	Rate        decimal.Decimal `json:"rate"`
	AmountMinor int64           `json:"amount_minor"`
}

type Association struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// StoredCart is one persisted cart, addressed by (Instance, Identifier).
type StoredCart struct {
	Version    int       `json:"version"`
	Instance   string    `json:"instance"`
	Identifier string    `json:"identifier"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func FromItem(item domain.CartItem) Item {
	id := item.ID()
	kind := IDKindString
	if id.IsInt() {
		kind = IDKindInt
	}

	out := Item{
		RowID:      item.RowID(),
		ID:         id.String(),
		IDKind:     kind,
		Name:       item.Name(),
		Quantity:   item.Quantity(),
		PriceMinor: item.Price().MinorUnits(),
		Currency:   item.Price().Currency().String(),
		Weight:     item.Weight(),
		Options:    encodeOptions(item.Options()),
		TaxRate:    item.TaxRate(),
	}

	d := item.Discount()
	out.Discount = Discount{Kind: d.Kind().String(), Rate: d.Rate()}
	if amount, ok := d.Amount(); ok {
		out.Discount.AmountMinor = amount.MinorUnits()
	}

	if ref, ok := item.Association(); ok {
		out.Association = &Association{Type: ref.Type, ID: ref.ID}
	}

	return out
}

// ToDomain rebuilds the line item and checks that the stored row id still
// matches the one derived from id and options.
func (i Item) ToDomain() (*domain.CartItem, error) {
	cur, err := currency.ParseISO(i.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency[%s] is not valid: %w", i.Currency, err)
	}

	id, err := i.itemID()
	if err != nil {
		return nil, err
	}

	opts, err := normalizeOptions(i.Options)
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}

	item, err := domain.NewCartItem(id, i.Name, domain.NewMoneyFromMinor(i.PriceMinor, cur), i.Quantity, i.Weight, opts)
	if err != nil {
		return nil, fmt.Errorf("domain.NewCartItem: %w", err)
	}
	if i.RowID != "" && i.RowID != item.RowID() {
		return nil, fmt.Errorf("%w: stored %s, derived %s", ErrRowIDMismatch, i.RowID, item.RowID())
	}

	kind, err := domain.ParseDiscountKind(i.Discount.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case domain.DiscountFixed:
		item.SetDiscount(domain.FixedDiscount(domain.NewMoneyFromMinor(i.Discount.AmountMinor, cur)))
	default:
		item.SetDiscount(domain.RateDiscount(i.Discount.Rate))
	}

	item.SetTaxRate(i.TaxRate)

	if i.Association != nil {
		item.Associate(domain.Reference{Type: i.Association.Type, ID: i.Association.ID})
	}

	return item, nil
}

func (i Item) itemID() (domain.ItemID, error) {
	switch i.IDKind {
	case IDKindInt:
		n, err := json.Number(i.ID).Int64()
		if err != nil {
			return domain.ItemID{}, fmt.Errorf("id[%s] is not an integer: %w", i.ID, err)
		}
		return domain.IntID(n), nil
	case IDKindString, "":
		return domain.ParseItemID(i.ID)
	default:
		return domain.ItemID{}, fmt.Errorf("id kind[%s] is not valid", i.IDKind)
	}
}

func FromItems(items []domain.CartItem) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// ToDomainItems converts the records in order.
func ToDomainItems(items []Item) ([]domain.CartItem, error) {
	out := make([]domain.CartItem, 0, len(items))
	for idx, rec := range items {
		item, err := rec.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", idx, err)
		}
		out = append(out, *item)
	}
	return out, nil
}

// FromCart snapshots the cart content under identifier.
func FromCart(identifier string, cart *domain.Cart, now time.Time) StoredCart {
	return StoredCart{
		Version:    Version,
		Instance:   cart.Instance(),
		Identifier: identifier,
		Items:      FromItems(cart.Content()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func Marshal(sc StoredCart) ([]byte, error) {
	if sc.Version == 0 {
		sc.Version = Version
	}
	if len(sc.Items) > 0 {
		items := make([]Item, len(sc.Items))
		for i, item := range sc.Items {
			item.Options = encodeOptions(item.Options)
			items[i] = item
		}
		sc.Items = items
	}
	return json.Marshal(sc)
}

func Unmarshal(data []byte) (StoredCart, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var sc StoredCart
	if err := dec.Decode(&sc); err != nil {
		return StoredCart{}, fmt.Errorf("dec.Decode: %w", err)
	}
	if sc.Version != Version {
		return StoredCart{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, sc.Version)
	}
	return sc, nil
}

// MarshalOptions encodes an options map for a JSON column.
func MarshalOptions(opts map[string]any) ([]byte, error) {
	if opts == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(encodeOptions(opts))
}

// UnmarshalOptions decodes a JSON column, keeping integers as int64 and
// numbers written with a fraction or exponent as float64.
func UnmarshalOptions(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var opts map[string]any
	if err := dec.Decode(&opts); err != nil {
		return nil, fmt.Errorf("dec.Decode: %w", err)
	}

	normalized, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// encodeOptions turns float values into json.Number so that integral floats
// keep a fractional part on the wire and decode back as float64.
func encodeOptions(opts domain.Options) map[string]any {
	if opts == nil {
		return nil
	}
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case float32:
		return encodeFloat(float64(val))
	case float64:
		return encodeFloat(val)
	case domain.Options:
		return encodeOptions(val)
	case map[string]any:
		return encodeOptions(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = encodeValue(elem)
		}
		return out
	default:
		return v
	}
}

func encodeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

func normalizeOptions(opts map[string]any) (domain.Options, error) {
	out := make(domain.Options, len(opts))
	for k, v := range opts {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("option[%s]: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnserializableOption, val)
		}
		return f, nil
	case float32:
		return float64(val), nil
	case map[string]any:
		m, err := normalizeOptions(val)
		if err != nil {
			return nil, err
		}
		return map[string]any(m), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			nv, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
