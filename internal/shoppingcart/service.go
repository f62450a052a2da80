package shoppingcart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/logger"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Service runs cart operations against the live session of a CartKey.
// Every mutating call loads the session, applies the change to a rebuilt
// cart and saves it back; a concurrent writer makes Save fail with
// port.ErrSessionConflict.
type Service struct {
	sessions port.SessionStore
	carts    port.CartStore
	notifier port.Notifier
	log      *logger.Logger
	currency currency.Unit
	cartOpts []domain.CartOption
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n port.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCartOptions configures every cart the service builds, e.g. the
// calculator, default tax rate or model registry.
func WithCartOptions(opts ...domain.CartOption) Option {
	return func(s *Service) {
		s.cartOpts = append(s.cartOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// MergeOptions controls how a stored cart is folded into the live one.
type MergeOptions struct {
	KeepDiscount bool
	KeepTax      bool
	// DispatchAdd emits adding/added for every merged item.
	DispatchAdd bool
	// Instance of the stored cart, defaults to domain.DefaultInstance.
	Instance string
}

func NewService(sessions port.SessionStore, carts port.CartStore, cur currency.Unit, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is nil")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart store is nil")
	}

	s := &Service{
		sessions: sessions,
		carts:    carts,
		notifier: nopNotifier{},
		log:      logger.Nop(),
		currency: cur,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	// fail fast on a broken configuration
	if _, err := domain.NewCart(cur, s.cartOpts...); err != nil {
		return nil, fmt.Errorf("domain.NewCart: %w", err)
	}

	return s, nil
}

func (s *Service) Add(ctx context.Context, key port.CartKey, item *domain.CartItem, opts domain.AddOptions) (domain.CartItem, error) {
	var added domain.CartItem

	err := s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		if item == nil {
			return fmt.Errorf("%w: item is nil", domain.ErrInvalidIdentifier)
		}
		if err := s.notify(ctx, key, port.EventAdding, "", item); err != nil {
			return err
		}

		var err error
		added, err = cart.Add(item, opts)
		if err != nil {
			return fmt.Errorf("cart.Add: %w", err)
		}

		s.notifyAfter(ctx, key, port.EventAdded, "", &added)
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	return added, nil
}

// AddMany adds all items or none of them.
func (s *Service) AddMany(ctx context.Context, key port.CartKey, items []*domain.CartItem, opts domain.AddOptions) ([]domain.CartItem, error) {
	var added []domain.CartItem

	err := s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		for _, item := range items {
			if item == nil {
				return fmt.Errorf("%w: item is nil", domain.ErrInvalidIdentifier)
			}
			if err := s.notify(ctx, key, port.EventAdding, "", item); err != nil {
				return err
			}
		}

		var err error
		added, err = cart.AddMany(items, opts)
		if err != nil {
			return fmt.Errorf("cart.AddMany: %w", err)
		}

		for i := range added {
			s.notifyAfter(ctx, key, port.EventAdded, "", &added[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return added, nil
}

// Update patches the row. When the resulting quantity drops to zero or
// below the row is removed and present is false.
func (s *Service) Update(ctx context.Context, key port.CartKey, rowID string, patch domain.ItemPatch) (item domain.CartItem, present bool, err error) {
	err = s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		item, present, err = s.update(ctx, key, cart, rowID, func(cart *domain.Cart) (domain.CartItem, bool, error) {
			return cart.Update(rowID, patch)
		})
		return err
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}

	return item, present, nil
}

func (s *Service) UpdateFromBuyable(ctx context.Context, key port.CartKey, rowID string, b domain.Buyable) (item domain.CartItem, present bool, err error) {
	err = s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		item, present, err = s.update(ctx, key, cart, rowID, func(cart *domain.Cart) (domain.CartItem, bool, error) {
			return cart.UpdateFromBuyable(rowID, b)
		})
		return err
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}

	return item, present, nil
}

// update runs apply on a copy first so the pre-mutation event can tell
// whether the row survives: updating when it does, removing when it does not.
func (s *Service) update(ctx context.Context, key port.CartKey, cart *domain.Cart, rowID string, apply func(*domain.Cart) (domain.CartItem, bool, error)) (domain.CartItem, bool, error) {
	current, err := cart.Get(rowID)
	if err != nil {
		return domain.CartItem{}, false, fmt.Errorf("cart.Get: %w", err)
	}

	_, survives, err := apply(cart.Clone())
	if err != nil {
		return domain.CartItem{}, false, fmt.Errorf("cart.Update: %w", err)
	}

	before := port.EventUpdating
	if !survives {
		before = port.EventRemoving
	}
	if err := s.notify(ctx, key, before, "", &current); err != nil {
		return domain.CartItem{}, false, err
	}

	item, present, err := apply(cart)
	if err != nil {
		return domain.CartItem{}, false, fmt.Errorf("cart.Update: %w", err)
	}

	if present {
		s.notifyAfter(ctx, key, port.EventUpdated, "", &item)
	} else {
		s.notifyAfter(ctx, key, port.EventRemoved, "", &current)
	}

	return item, present, nil
}

func (s *Service) Remove(ctx context.Context, key port.CartKey, rowID string) (domain.CartItem, error) {
	var removed domain.CartItem

	err := s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		current, err := cart.Get(rowID)
		if err != nil {
			return fmt.Errorf("cart.Get: %w", err)
		}
		if err := s.notify(ctx, key, port.EventRemoving, "", &current); err != nil {
			return err
		}

		removed, err = cart.Remove(rowID)
		if err != nil {
			return fmt.Errorf("cart.Remove: %w", err)
		}

		s.notifyAfter(ctx, key, port.EventRemoved, "", &removed)
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	return removed, nil
}

func (s *Service) SetItemDiscount(ctx context.Context, key port.CartKey, rowID string, d domain.Discount) error {
	return s.mutate(ctx, key, func(_ context.Context, _ port.CartKey, cart *domain.Cart) error {
		if err := cart.SetItemDiscount(rowID, d); err != nil {
			return fmt.Errorf("cart.SetItemDiscount: %w", err)
		}
		return nil
	})
}

func (s *Service) SetItemTax(ctx context.Context, key port.CartKey, rowID string, rate decimal.Decimal) error {
	return s.mutate(ctx, key, func(_ context.Context, _ port.CartKey, cart *domain.Cart) error {
		if err := cart.SetItemTax(rowID, rate); err != nil {
			return fmt.Errorf("cart.SetItemTax: %w", err)
		}
		return nil
	})
}

func (s *Service) SetGlobalDiscount(ctx context.Context, key port.CartKey, rate decimal.Decimal) error {
	return s.mutate(ctx, key, func(_ context.Context, _ port.CartKey, cart *domain.Cart) error {
		cart.SetGlobalDiscount(rate)
		return nil
	})
}

func (s *Service) SetGlobalTax(ctx context.Context, key port.CartKey, rate decimal.Decimal) error {
	return s.mutate(ctx, key, func(_ context.Context, _ port.CartKey, cart *domain.Cart) error {
		cart.SetGlobalTax(rate)
		return nil
	})
}

func (s *Service) Associate(ctx context.Context, key port.CartKey, rowID string, ref domain.Reference) error {
	return s.mutate(ctx, key, func(_ context.Context, _ port.CartKey, cart *domain.Cart) error {
		if err := cart.Associate(rowID, ref); err != nil {
			return fmt.Errorf("cart.Associate: %w", err)
		}
		return nil
	})
}

// Cart returns a detached copy of the live cart for reads.
func (s *Service) Cart(ctx context.Context, key port.CartKey) (*domain.Cart, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	_, cart, err := s.load(ctx, key)
	return cart, err
}

func (s *Service) Get(ctx context.Context, key port.CartKey, rowID string) (domain.CartItem, error) {
	cart, err := s.Cart(ctx, key)
	if err != nil {
		return domain.CartItem{}, err
	}
	return cart.Get(rowID)
}

func (s *Service) Content(ctx context.Context, key port.CartKey) ([]domain.CartItem, error) {
	cart, err := s.Cart(ctx, key)
	if err != nil {
		return nil, err
	}
	return cart.Content(), nil
}

func (s *Service) Totals(ctx context.Context, key port.CartKey) (domain.Pricing, error) {
	cart, err := s.Cart(ctx, key)
	if err != nil {
		return domain.Pricing{}, err
	}
	return cart.Totals()
}

// Destroy drops the live session cart.
func (s *Service) Destroy(ctx context.Context, key port.CartKey) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, key); err != nil {
		return fmt.Errorf("sessions.Delete: %w", err)
	}
	return nil
}

// Store persists the live cart under identifier. It fails with
// domain.ErrAlreadyStored when the identifier is taken for the instance.
func (s *Service) Store(ctx context.Context, key port.CartKey, identifier string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	ctx = s.log.WithSession(ctx, key.Session, key.Instance)

	_, cart, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	stored := record.FromCart(identifier, cart, s.now())
	if createdAt := cart.CreatedAt(); createdAt != nil {
		stored.CreatedAt = *createdAt
	}

	if err := s.carts.Insert(ctx, stored); err != nil {
		return fmt.Errorf("carts.Insert: %w", err)
	}

	s.notifyAfter(ctx, key, port.EventStored, identifier, nil)
	return nil
}

// Restore puts the stored cart's items into the live cart and deletes the
// stored record once the session was saved. Nothing happens when no cart is
// stored under identifier.
func (s *Service) Restore(ctx context.Context, key port.CartKey, identifier string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	stored, found, err := s.loadStored(ctx, key.Instance, identifier)
	if err != nil || !found {
		return false, err
	}

	items, err := record.ToDomainItems(stored.Items)
	if err != nil {
		return false, fmt.Errorf("record.ToDomainItems: %w", err)
	}

	err = s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		for _, item := range items {
			if err := cart.Put(item); err != nil {
				return fmt.Errorf("cart.Put: %w", err)
			}
		}
		cart.SetTimestamps(stored.CreatedAt, stored.UpdatedAt)

		s.notifyAfter(ctx, key, port.EventRestored, identifier, nil)
		return nil
	})
	if err != nil {
		return false, err
	}

	if _, err := s.carts.Delete(ctx, key.Instance, identifier); err != nil {
		return true, fmt.Errorf("carts.Delete: %w", err)
	}

	return true, nil
}

// Erase deletes the stored cart. Nothing happens when none is stored.
func (s *Service) Erase(ctx context.Context, key port.CartKey, identifier string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	ctx = s.log.WithSession(ctx, key.Session, key.Instance)

	deleted, err := s.carts.Delete(ctx, key.Instance, identifier)
	if err != nil {
		return false, fmt.Errorf("carts.Delete: %w", err)
	}
	if !deleted {
		return false, nil
	}

	s.notifyAfter(ctx, key, port.EventErased, identifier, nil)
	return true, nil
}

// Merge folds the stored cart into the live one by Add semantics and leaves
// the stored record in place. It reports false when no cart is stored.
func (s *Service) Merge(ctx context.Context, key port.CartKey, identifier string, opts MergeOptions) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	instance := opts.Instance
	if instance == "" {
		instance = domain.DefaultInstance
	}

	stored, found, err := s.loadStored(ctx, instance, identifier)
	if err != nil || !found {
		return false, err
	}

	items, err := record.ToDomainItems(stored.Items)
	if err != nil {
		return false, fmt.Errorf("record.ToDomainItems: %w", err)
	}

	err = s.mutate(ctx, key, func(ctx context.Context, key port.CartKey, cart *domain.Cart) error {
		if opts.DispatchAdd {
			for i := range items {
				if err := s.notify(ctx, key, port.EventAdding, "", &items[i]); err != nil {
					return err
				}
			}
		}

		if err := cart.Merge(items, opts.KeepDiscount, opts.KeepTax); err != nil {
			return fmt.Errorf("cart.Merge: %w", err)
		}

		if opts.DispatchAdd {
			for _, item := range items {
				merged, err := cart.Get(item.RowID())
				if err != nil {
					return fmt.Errorf("cart.Get: %w", err)
				}
				s.notifyAfter(ctx, key, port.EventAdded, "", &merged)
			}
		}

		s.notifyAfter(ctx, key, port.EventMerged, identifier, nil)
		return nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Service) loadStored(ctx context.Context, instance, identifier string) (record.StoredCart, bool, error) {
	stored, err := s.carts.Load(ctx, instance, identifier)
	if errors.Is(err, domain.ErrStoredCartNotFound) {
		return record.StoredCart{}, false, nil
	}
	if err != nil {
		return record.StoredCart{}, false, fmt.Errorf("carts.Load: %w", err)
	}
	return stored, true, nil
}

type mutation func(ctx context.Context, key port.CartKey, cart *domain.Cart) error

// mutate loads the session, applies fn and saves the result. Nothing is
// saved when fn fails.
func (s *Service) mutate(ctx context.Context, key port.CartKey, fn mutation) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	ctx = s.log.WithSession(ctx, key.Session, key.Instance)

	state, cart, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	if err := fn(ctx, key, cart); err != nil {
		return err
	}

	next := port.SessionState{
		Revision:       state.Revision,
		Items:          record.FromItems(cart.Content()),
		GlobalDiscount: cart.GlobalDiscount(),
		GlobalTax:      cart.GlobalTax(),
		CreatedAt:      cart.CreatedAt(),
		UpdatedAt:      cart.UpdatedAt(),
	}
	if err := s.sessions.Save(ctx, key, next); err != nil {
		if errors.Is(err, port.ErrSessionConflict) {
			s.log.Warn(ctx, "session changed concurrently")
		}
		return fmt.Errorf("sessions.Save: %w", err)
	}

	return nil
}

func (s *Service) load(ctx context.Context, key port.CartKey) (port.SessionState, *domain.Cart, error) {
	state, err := s.sessions.Load(ctx, key)
	if err != nil {
		return port.SessionState{}, nil, fmt.Errorf("sessions.Load: %w", err)
	}

	opts := slices.Clone(s.cartOpts)
	opts = append(opts, domain.WithInstance(key.Instance))
	if state.Revision > 0 {
		opts = append(opts,
			domain.WithGlobalDiscount(state.GlobalDiscount),
			domain.WithGlobalTax(state.GlobalTax),
		)
	}

	cart, err := domain.NewCart(s.currency, opts...)
	if err != nil {
		return port.SessionState{}, nil, fmt.Errorf("domain.NewCart: %w", err)
	}

	items, err := record.ToDomainItems(state.Items)
	if err != nil {
		return port.SessionState{}, nil, fmt.Errorf("record.ToDomainItems: %w", err)
	}
	for _, item := range items {
		if err := cart.Put(item); err != nil {
			return port.SessionState{}, nil, fmt.Errorf("cart.Put: %w", err)
		}
	}

	if state.CreatedAt != nil && state.UpdatedAt != nil {
		cart.SetTimestamps(*state.CreatedAt, *state.UpdatedAt)
	}

	return state, cart, nil
}

// notify delivers a pre-mutation event. A failing sink aborts the operation.
func (s *Service) notify(ctx context.Context, key port.CartKey, name, identifier string, item *domain.CartItem) error {
	if err := s.notifier.Notify(ctx, s.newEvent(key, name, identifier, item)); err != nil {
		return fmt.Errorf("notify[%s]: %w", name, err)
	}
	return nil
}

// notifyAfter delivers a post-mutation event. The change already happened,
// so a failing sink is only logged.
func (s *Service) notifyAfter(ctx context.Context, key port.CartKey, name, identifier string, item *domain.CartItem) {
	if err := s.notifier.Notify(ctx, s.newEvent(key, name, identifier, item)); err != nil {
		s.log.Error(s.log.WithField(ctx, "event", name), "notify failed", err)
	}
}

func (s *Service) newEvent(key port.CartKey, name, identifier string, item *domain.CartItem) port.Event {
	event := port.Event{
		ID:         uuid.New(),
		Name:       name,
		Instance:   key.Instance,
		Session:    key.Session,
		Identifier: identifier,
		At:         s.now(),
	}
	if item != nil {
		event.Item = item.Clone()
	}
	return event
}

func normalizeKey(key port.CartKey) (port.CartKey, error) {
	if key.Session == "" {
		return port.CartKey{}, fmt.Errorf("session is empty")
	}
	if key.Instance == "" {
		key.Instance = domain.DefaultInstance
	}
	return key, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, port.Event) error { return nil }
