package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const DefaultInstance = "default"

// ModelRegistry tells the cart which association types exist.
type ModelRegistry interface {
	Knows(typeName string) bool
}

// ModelSet is a fixed ModelRegistry.
type ModelSet map[string]struct{}

func NewModelSet(types ...string) ModelSet {
	set := make(ModelSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func (s ModelSet) Knows(typeName string) bool {
	_, ok := s[typeName]
	return ok
}

// AddOptions control whether an added item keeps its own rates or takes the
// cart's global defaults.
type AddOptions struct {
	KeepDiscount bool
	KeepTax      bool
}

// Cart is an ordered set of line items keyed by row id. It is not safe for
// concurrent use; callers own one cart per logical operation.
type Cart struct {
	instance     string
	currency     currency.Unit
	calc         Calculator
	models       ModelRegistry
	order        []string
	items        map[string]*CartItem
	discountRate decimal.Decimal
	taxRate      decimal.Decimal
	createdAt    *time.Time
	updatedAt    *time.Time
}

type CartOption func(*Cart)

func WithInstance(instance string) CartOption {
	return func(c *Cart) {
		if instance != "" {
			c.instance = instance
		}
	}
}

func WithCalculator(calc Calculator) CartOption {
	return func(c *Cart) {
		c.calc = calc
	}
}

func WithGlobalTax(rate decimal.Decimal) CartOption {
	return func(c *Cart) {
		c.taxRate = rate
	}
}

func WithGlobalDiscount(rate decimal.Decimal) CartOption {
	return func(c *Cart) {
		c.discountRate = rate
	}
}

func WithModels(models ModelRegistry) CartOption {
	return func(c *Cart) {
		c.models = models
	}
}

func WithTimestamps(createdAt, updatedAt time.Time) CartOption {
	return func(c *Cart) {
		c.SetTimestamps(createdAt, updatedAt)
	}
}

func NewCart(cur currency.Unit, opts ...CartOption) (*Cart, error) {
	c := &Cart{
		instance: DefaultInstance,
		currency: cur,
		calc:     DefaultCalculator{},
		items:    map[string]*CartItem{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.calc == nil {
		return nil, fmt.Errorf("%w: calculator is nil", ErrInvalidCalculator)
	}
	return c, nil
}

func (c *Cart) Instance() string { return c.instance }
func (c *Cart) Currency() currency.Unit { return c.currency }
func (c *Cart) Calculator() Calculator { return c.calc }
func (c *Cart) GlobalDiscount() decimal.Decimal { return c.discountRate }
func (c *Cart) GlobalTax() decimal.Decimal { return c.taxRate }

// CreatedAt is set only once the cart has been restored from or written to storage.
func (c *Cart) CreatedAt() *time.Time { return c.createdAt }
func (c *Cart) UpdatedAt() *time.Time { return c.updatedAt }

func (c *Cart) SetTimestamps(createdAt, updatedAt time.Time) {
	c.createdAt = &createdAt
	c.updatedAt = &updatedAt
}

// Add inserts item, or accumulates its quantity onto an existing row with the
// same row id. The incoming item replaces the stored one in place.
func (c *Cart) Add(item *CartItem, opts AddOptions) (CartItem, error) {
	next := c.Clone()
	added, err := next.add(item, opts)
	if err != nil {
		return CartItem{}, err
	}
	c.swap(next)
	return *added.Clone(), nil
}

// AddMany adds every item in order. Nothing is added if any item fails.
func (c *Cart) AddMany(items []*CartItem, opts AddOptions) ([]CartItem, error) {
	next := c.Clone()
	out := make([]CartItem, 0, len(items))
	for i, item := range items {
		added, err := next.add(item, opts)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		out = append(out, *added.Clone())
	}
	c.swap(next)
	return out, nil
}

// Merge folds Add over items in their original order.
func (c *Cart) Merge(items []CartItem, keepDiscount, keepTax bool) error {
	ptrs := make([]*CartItem, len(items))
	for i := range items {
		ptrs[i] = &items[i]
	}
	_, err := c.AddMany(ptrs, AddOptions{KeepDiscount: keepDiscount, KeepTax: keepTax})
	return err
}

// Put stores item as-is under its row id, replacing any existing entry in
// place. Rates and quantity are not touched. Restoring a stored cart uses it.
func (c *Cart) Put(item CartItem) error {
	if err := c.checkItem(&item); err != nil {
		return err
	}
	stored := item.Clone()
	stored.instance = c.instance
	if _, ok := c.items[stored.rowID]; !ok {
		c.order = append(c.order, stored.rowID)
	}
	c.items[stored.rowID] = stored
	return nil
}

// Update patches the item at rowID. When the patch changes the row id onto
// another existing row, both merge by quantity and the merged row takes the
// updated item's position. A resulting quantity of zero or less removes the
// row; present is false in that case.
func (c *Cart) Update(rowID string, patch ItemPatch) (item CartItem, present bool, err error) {
	current, ok := c.items[rowID]
	if !ok {
		return CartItem{}, false, fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}

	updated, err := current.apply(patch)
	if err != nil {
		return CartItem{}, false, err
	}
	if err := c.checkItem(updated); err != nil {
		return CartItem{}, false, err
	}

	next := c.Clone()
	pos := slices.Index(next.order, rowID)
	next.order = slices.Delete(next.order, pos, pos+1)
	delete(next.items, rowID)

	if existing, ok := next.items[updated.rowID]; ok {
		updated.quantity += existing.quantity
		at := slices.Index(next.order, updated.rowID)
		next.order = slices.Delete(next.order, at, at+1)
		if at < pos {
			pos--
		}
		delete(next.items, updated.rowID)
	}

	if updated.quantity <= 0 {
		c.swap(next)
		return *updated.Clone(), false, nil
	}

	next.order = slices.Insert(next.order, pos, updated.rowID)
	next.items[updated.rowID] = updated
	c.swap(next)
	return *updated.Clone(), true, nil
}

// UpdateFromBuyable refreshes identifier, name and price of the row from b.
func (c *Cart) UpdateFromBuyable(rowID string, b Buyable) (CartItem, bool, error) {
	current, ok := c.items[rowID]
	if !ok {
		return CartItem{}, false, fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	return c.Update(rowID, PatchFromBuyable(b, current.Options()))
}

func (c *Cart) Remove(rowID string) (CartItem, error) {
	item, ok := c.items[rowID]
	if !ok {
		return CartItem{}, fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	c.order = slices.DeleteFunc(c.order, func(id string) bool { return id == rowID })
	delete(c.items, rowID)
	return *item, nil
}

func (c *Cart) Get(rowID string) (CartItem, error) {
	item, ok := c.items[rowID]
	if !ok {
		return CartItem{}, fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	return *item.Clone(), nil
}

func (c *Cart) Has(rowID string) bool {
	_, ok := c.items[rowID]
	return ok
}

// Content returns copies of all items in cart order.
func (c *Cart) Content() []CartItem {
	out := make([]CartItem, 0, len(c.order))
	for _, rowID := range c.order {
		out = append(out, *c.items[rowID].Clone())
	}
	return out
}

func (c *Cart) Search(match func(CartItem) bool) []CartItem {
	var out []CartItem
	for _, item := range c.Content() {
		if match(item) {
			out = append(out, item)
		}
	}
	return out
}

func (c *Cart) Clear() {
	c.order = nil
	c.items = map[string]*CartItem{}
}

func (c *Cart) SetItemDiscount(rowID string, d Discount) error {
	item, ok := c.items[rowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	if amount, fixed := d.Amount(); fixed && amount.Currency() != c.currency {
		return fmt.Errorf("%w: %s discount in a %s cart", ErrCurrencyMismatch, amount.Currency(), c.currency)
	}
	item.discount = d
	return nil
}

func (c *Cart) SetItemTax(rowID string, rate decimal.Decimal) error {
	item, ok := c.items[rowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	item.taxRate = rate
	return nil
}

// SetGlobalDiscount changes the default rate and applies it to every item
// currently in the cart.
func (c *Cart) SetGlobalDiscount(rate decimal.Decimal) {
	c.discountRate = rate
	for _, item := range c.items {
		item.discount = RateDiscount(rate)
	}
}

// SetGlobalTax changes the default tax rate and applies it to every item
// currently in the cart.
func (c *Cart) SetGlobalTax(rate decimal.Decimal) {
	c.taxRate = rate
	for _, item := range c.items {
		item.taxRate = rate
	}
}

func (c *Cart) Associate(rowID string, ref Reference) error {
	item, ok := c.items[rowID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	if ref.Type == "" || (c.models != nil && !c.models.Knows(ref.Type)) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, ref.Type)
	}
	item.association = &ref
	return nil
}

// CountItems is the number of distinct rows.
func (c *Cart) CountItems() int {
	return len(c.order)
}

// Count is the summed quantity of all rows.
func (c *Cart) Count() int {
	var n int
	for _, item := range c.items {
		n += item.quantity
	}
	return n
}

func (c *Cart) Weight() int64 {
	var w int64
	for _, item := range c.items {
		w += item.weight * int64(item.quantity)
	}
	return w
}

func (c *Cart) ItemPricing(rowID string) (Pricing, error) {
	item, ok := c.items[rowID]
	if !ok {
		return Pricing{}, fmt.Errorf("%w: %s", ErrUnknownRowID, rowID)
	}
	return c.price(item)
}

// Totals folds the pricing of every item, starting from zero in the cart currency.
func (c *Cart) Totals() (Pricing, error) {
	sum := zeroPricing(ZeroMoney(c.currency))
	for _, rowID := range c.order {
		p, err := c.price(c.items[rowID])
		if err != nil {
			return Pricing{}, fmt.Errorf("row[%s]: %w", rowID, err)
		}
		if sum, err = sum.add(p); err != nil {
			return Pricing{}, fmt.Errorf("row[%s]: %w", rowID, err)
		}
	}
	return sum, nil
}

func (c *Cart) PriceTotal() (Money, error) {
	p, err := c.Totals()
	return p.LineTotal, err
}

func (c *Cart) Discount() (Money, error) {
	p, err := c.Totals()
	return p.Discount, err
}

func (c *Cart) Subtotal() (Money, error) {
	p, err := c.Totals()
	return p.Subtotal, err
}

func (c *Cart) Tax() (Money, error) {
	p, err := c.Totals()
	return p.Tax, err
}

func (c *Cart) Total() (Money, error) {
	p, err := c.Totals()
	return p.Total, err
}

func (c *Cart) price(item *CartItem) (Pricing, error) {
	if item.price.Currency() != c.currency {
		return Pricing{}, fmt.Errorf("%w: %s item in a %s cart", ErrCurrencyMismatch, item.price.Currency(), c.currency)
	}
	p, err := c.calc.Price(*item)
	if err != nil {
		return Pricing{}, fmt.Errorf("calc.Price: %w", err)
	}
	if err := checkPricing(c.calc, p, c.currency); err != nil {
		return Pricing{}, err
	}
	return p, nil
}

func (c *Cart) add(item *CartItem, opts AddOptions) (*CartItem, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: item is nil", ErrInvalidIdentifier)
	}
	if err := c.checkItem(item); err != nil {
		return nil, err
	}

	added := item.Clone()
	added.instance = c.instance
	if !opts.KeepDiscount {
		added.discount = RateDiscount(c.discountRate)
	}
	if !opts.KeepTax {
		added.taxRate = c.taxRate
	}

	if existing, ok := c.items[added.rowID]; ok {
		added.quantity += existing.quantity
	} else {
		c.order = append(c.order, added.rowID)
	}
	c.items[added.rowID] = added
	return added, nil
}

func (c *Cart) checkItem(item *CartItem) error {
	if item.price.Currency() != c.currency {
		return fmt.Errorf("%w: %s item in a %s cart", ErrCurrencyMismatch, item.price.Currency(), c.currency)
	}
	if amount, fixed := item.discount.Amount(); fixed && amount.Currency() != c.currency {
		return fmt.Errorf("%w: %s discount in a %s cart", ErrCurrencyMismatch, amount.Currency(), c.currency)
	}
	return nil
}

// Clone copies the collection so a failed operation leaves c untouched.
func (c *Cart) Clone() *Cart {
	next := *c
	next.order = slices.Clone(c.order)
	next.items = make(map[string]*CartItem, len(c.items))
	for k, v := range c.items {
		next.items[k] = v.Clone()
	}
	return &next
}

func (c *Cart) swap(next *Cart) {
	c.order = next.order
	c.items = next.items
}
