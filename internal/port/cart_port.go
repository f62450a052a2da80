package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/shopspring/decimal"
)

var ErrSessionConflict = errors.New("session changed concurrently")

// CartStore persists whole carts addressed by (instance, identifier).
// Insert fails with domain.ErrAlreadyStored when the address is taken and
// Load fails with domain.ErrStoredCartNotFound when it is not.
type CartStore interface {
	Exists(ctx context.Context, instance, identifier string) (bool, error)
	Insert(ctx context.Context, cart record.StoredCart) error
	Load(ctx context.Context, instance, identifier string) (record.StoredCart, error)
	Delete(ctx context.Context, instance, identifier string) (bool, error)
}

type CartKey struct {
	Session  string
	Instance string
}

// SessionState is the live cart content of one session. A session that was
// never saved loads as the zero value. Revision is bumped by every Save.
type SessionState struct {
	Revision       int64           `json:"revision"`
	Items          []record.Item   `json:"items"`
	GlobalDiscount decimal.Decimal `json:"global_discount"`
	GlobalTax      decimal.Decimal `json:"global_tax"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// SessionStore holds live carts. Save fails with ErrSessionConflict when the
// state was changed by another writer since it was loaded.
type SessionStore interface {
	Load(ctx context.Context, key CartKey) (SessionState, error)
	Save(ctx context.Context, key CartKey, state SessionState) error
	Delete(ctx context.Context, key CartKey) error
}

const (
	EventAdding   = "adding"
	EventAdded    = "added"
	EventUpdating = "updating"
	EventUpdated  = "updated"
	EventRemoving = "removing"
	EventRemoved  = "removed"
	EventStored   = "stored"
	EventRestored = "restored"
	EventErased   = "erased"
	EventMerged   = "merged"
)

type Event struct {
	ID         uuid.UUID
	Name       string
	Instance   string
	Session    string
	Identifier string
	Item       *domain.CartItem
	At         time.Time
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
