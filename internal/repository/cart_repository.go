package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shoppingcart/internal/db"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/record"
)

const pgUniqueViolation = "23505"

type cartStore struct {
	q    *db.Queries
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) (port.CartStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &cartStore{
		q:    db.New(pool),
		pool: pool,
	}, nil
}

func NewCartStoreWithTx(tx pgx.Tx) port.CartStore {
	return &cartStore{
		q:    db.New(tx),
		pool: nil, // use provided transaction instead
	}
}

func (s *cartStore) Exists(ctx context.Context, instance, identifier string) (bool, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return false, err
	}

	exists, err := s.q.CartExists(ctx, db.CartExistsParams{
		Instance:   instance,
		Identifier: identifier,
	})
	if err != nil {
		return false, fmt.Errorf("q.CartExists: %w", err)
	}

	return exists, nil
}

func (s *cartStore) Insert(ctx context.Context, cart record.StoredCart) error {
	if err := validateAddress(cart.Instance, cart.Identifier); err != nil {
		return err
	}

	_, err := withTx(ctx, s.pool, s.q, func(q *db.Queries) (struct{}, error) {
		inserted, err := q.InsertCart(ctx, db.InsertCartParams{
			Instance:   cart.Instance,
			Identifier: cart.Identifier,
			CreatedAt:  cart.CreatedAt,
			UpdatedAt:  cart.UpdatedAt,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("q.InsertCart: %w", err)
		}
		if inserted == 0 {
			return struct{}{}, fmt.Errorf("%w: %s/%s", domain.ErrAlreadyStored, cart.Instance, cart.Identifier)
		}

		for i, item := range cart.Items {
			params, err := mapItemToInsertParams(cart.Instance, cart.Identifier, i, item)
			if err != nil {
				return struct{}{}, fmt.Errorf("mapItemToInsertParams: %w", err)
			}
			if err := q.InsertCartItem(ctx, params); err != nil {
				return struct{}{}, fmt.Errorf("q.InsertCartItem: %w", err)
			}
		}

		return struct{}{}, nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyStored, cart.Instance, cart.Identifier)
	}

	return err
}

func (s *cartStore) Load(ctx context.Context, instance, identifier string) (record.StoredCart, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return record.StoredCart{}, err
	}

	return withTx(ctx, s.pool, s.q, func(q *db.Queries) (record.StoredCart, error) {
		dbCart, err := q.GetCart(ctx, db.GetCartParams{
			Instance:   instance,
			Identifier: identifier,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return record.StoredCart{}, fmt.Errorf("%w: %s/%s", domain.ErrStoredCartNotFound, instance, identifier)
		}
		if err != nil {
			return record.StoredCart{}, fmt.Errorf("q.GetCart: %w", err)
		}

		dbItems, err := q.GetCartItems(ctx, db.GetCartItemsParams{
			Instance:   instance,
			Identifier: identifier,
		})
		if err != nil {
			return record.StoredCart{}, fmt.Errorf("q.GetCartItems: %w", err)
		}

		items, err := mapGetCartItemsRowsToRecord(dbItems)
		if err != nil {
			return record.StoredCart{}, fmt.Errorf("mapGetCartItemsRowsToRecord: %w", err)
		}

		return record.StoredCart{
			Version:    record.Version,
			Instance:   dbCart.Instance,
			Identifier: dbCart.Identifier,
			Items:      items,
			CreatedAt:  dbCart.CreatedAt,
			UpdatedAt:  dbCart.UpdatedAt,
		}, nil
	})
}

func (s *cartStore) Delete(ctx context.Context, instance, identifier string) (bool, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return false, err
	}

	rowsAffected, err := s.q.DeleteCart(ctx, db.DeleteCartParams{
		Instance:   instance,
		Identifier: identifier,
	})
	if err != nil {
		return false, fmt.Errorf("q.DeleteCart: %w", err)
	}

	return rowsAffected > 0, nil
}

func validateAddress(instance, identifier string) error {
	if instance == "" {
		return fmt.Errorf("instance is empty")
	}
	if identifier == "" {
		return fmt.Errorf("identifier is empty")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func mapItemToInsertParams(instance, identifier string, position int, item record.Item) (db.InsertCartItemParams, error) {
	if position < 0 || position > math.MaxInt32 {
		return db.InsertCartItemParams{}, fmt.Errorf("position[%d] is out of range", position)
	}
	if item.Quantity < math.MinInt32 || item.Quantity > math.MaxInt32 {
		return db.InsertCartItemParams{}, fmt.Errorf("quantity[%d] is out of range", item.Quantity)
	}

	options, err := record.MarshalOptions(item.Options)
	if err != nil {
		return db.InsertCartItemParams{}, fmt.Errorf("record.MarshalOptions: %w", err)
	}

	params := db.InsertCartItemParams{
		Instance:      instance,
		Identifier:    identifier,
		Position:      int32(position),
		RowID:         item.RowID,
		ItemID:        item.ID,
		IDKind:        item.IDKind,
		Name:          item.Name,
		Quantity:      int32(item.Quantity),
		PriceMinor:    item.PriceMinor,
		Currency:      item.Currency,
		Weight:        item.Weight,
		Options:       options,
		DiscountKind:  item.Discount.Kind,
		DiscountRate:  item.Discount.Rate,
		DiscountMinor: item.Discount.AmountMinor,
		TaxRate:       item.TaxRate,
	}
	if item.Association != nil {
		params.AssocType = pgtype.Text{String: item.Association.Type, Valid: true}
		params.AssocID = pgtype.Text{String: item.Association.ID, Valid: true}
	}

	return params, nil
}

func mapGetCartItemsRowToRecord(row db.GetCartItemsRow) (record.Item, error) {
	options, err := record.UnmarshalOptions(row.Options)
	if err != nil {
		return record.Item{}, fmt.Errorf("record.UnmarshalOptions: %w", err)
	}

	item := record.Item{
		RowID:      row.RowID,
		ID:         row.ItemID,
		IDKind:     row.IDKind,
		Name:       row.Name,
		Quantity:   int(row.Quantity),
		PriceMinor: row.PriceMinor,
		Currency:   row.Currency,
		Weight:     row.Weight,
		Options:    options,
		Discount: record.Discount{
			Kind:        row.DiscountKind,
			Rate:        row.DiscountRate,
			AmountMinor: row.DiscountMinor,
		},
		TaxRate: row.TaxRate,
	}
	if row.AssocType.Valid {
		item.Association = &record.Association{Type: row.AssocType.String, ID: row.AssocID.String}
	}

	return item, nil
}

func mapGetCartItemsRowsToRecord(rows []db.GetCartItemsRow) ([]record.Item, error) {
	items := make([]record.Item, 0, len(rows))

	for _, row := range rows {
		item, err := mapGetCartItemsRowToRecord(row)
		if err != nil {
			return nil, fmt.Errorf("mapGetCartItemsRowToRecord: %w", err)
		}

		items = append(items, item)
	}

	return items, nil
}
