package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DefaultCartsTable = "shoppingcart"
	DefaultItemsTable = "shoppingcart_items"
)

// Tables names the two tables a GORM store reads and writes.
type Tables struct {
	Carts string
	Items string
}

func (t Tables) withDefaults() Tables {
	if t.Carts == "" {
		t.Carts = DefaultCartsTable
	}
	if t.Items == "" {
		t.Items = DefaultItemsTable
	}
	return t
}

type gormCart struct {
	Instance   string `gorm:"primaryKey;size:255"`
	Identifier string `gorm:"primaryKey;size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type gormCartItem struct {
	Instance      string `gorm:"primaryKey;size:255"`
	Identifier    string `gorm:"primaryKey;size:255"`
	Position      int    `gorm:"primaryKey;autoIncrement:false"`
	RowID         string `gorm:"size:32;not null"`
	ItemID        string `gorm:"size:255;not null"`
	IDKind        string `gorm:"column:id_kind;size:6;not null"`
	Name          string `gorm:"not null"`
	Quantity      int    `gorm:"not null"`
	PriceMinor    int64  `gorm:"not null"`
	Currency      string `gorm:"size:3;not null"`
	Weight        int64  `gorm:"not null"`
	Options       string `gorm:"not null"`
	DiscountKind  string `gorm:"size:5;not null"`
	DiscountRate  string `gorm:"not null"`
	DiscountMinor int64  `gorm:"not null"`
	TaxRate       string `gorm:"not null"`
	AssocType     *string
	AssocID       *string `gorm:"column:assoc_id"`
}

type gormCartStore struct {
	db     *gorm.DB
	tables Tables
}

// OpenGorm opens a GORM connection for the "sqlite" or "postgres" driver.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "":
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("driver[%s] is not supported", driver)
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}

	return conn, nil
}

func NewGormCartStore(db *gorm.DB, tables Tables) (port.CartStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	return &gormCartStore{
		db:     db,
		tables: tables.withDefaults(),
	}, nil
}

// AutoMigrate creates the store tables. Postgres deployments use the goose
// migrations instead.
func AutoMigrate(ctx context.Context, db *gorm.DB, tables Tables) error {
	tables = tables.withDefaults()

	if err := db.WithContext(ctx).Table(tables.Carts).AutoMigrate(&gormCart{}); err != nil {
		return fmt.Errorf("AutoMigrate[%s]: %w", tables.Carts, err)
	}
	if err := db.WithContext(ctx).Table(tables.Items).AutoMigrate(&gormCartItem{}); err != nil {
		return fmt.Errorf("AutoMigrate[%s]: %w", tables.Items, err)
	}
	return nil
}

func (s *gormCartStore) Exists(ctx context.Context, instance, identifier string) (bool, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return false, err
	}

	return s.exists(s.db.WithContext(ctx), instance, identifier)
}

func (s *gormCartStore) exists(tx *gorm.DB, instance, identifier string) (bool, error) {
	var count int64
	err := tx.Table(s.tables.Carts).
		Where("instance = ? AND identifier = ?", instance, identifier).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count[%s]: %w", s.tables.Carts, err)
	}
	return count > 0, nil
}

func (s *gormCartStore) Insert(ctx context.Context, cart record.StoredCart) error {
	if err := validateAddress(cart.Instance, cart.Identifier); err != nil {
		return err
	}

	rows := make([]gormCartItem, 0, len(cart.Items))
	for i, item := range cart.Items {
		row, err := mapItemToGorm(cart.Instance, cart.Identifier, i, item)
		if err != nil {
			return fmt.Errorf("mapItemToGorm: %w", err)
		}
		rows = append(rows, row)
	}

	err := s.withTx(ctx, func(tx *gorm.DB) error {
		exists, err := s.exists(tx, cart.Instance, cart.Identifier)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyStored, cart.Instance, cart.Identifier)
		}

		header := gormCart{
			Instance:   cart.Instance,
			Identifier: cart.Identifier,
			CreatedAt:  cart.CreatedAt,
			UpdatedAt:  cart.UpdatedAt,
		}
		if err := tx.Table(s.tables.Carts).Create(&header).Error; err != nil {
			return fmt.Errorf("create[%s]: %w", s.tables.Carts, err)
		}
		if len(rows) > 0 {
			if err := tx.Table(s.tables.Items).Create(&rows).Error; err != nil {
				return fmt.Errorf("create[%s]: %w", s.tables.Items, err)
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%s", domain.ErrAlreadyStored, cart.Instance, cart.Identifier)
	}

	return err
}

func (s *gormCartStore) Load(ctx context.Context, instance, identifier string) (record.StoredCart, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return record.StoredCart{}, err
	}

	var (
		header gormCart
		rows   []gormCartItem
	)
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		err := tx.Table(s.tables.Carts).
			Where("instance = ? AND identifier = ?", instance, identifier).
			Take(&header).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s/%s", domain.ErrStoredCartNotFound, instance, identifier)
		}
		if err != nil {
			return fmt.Errorf("take[%s]: %w", s.tables.Carts, err)
		}

		err = tx.Table(s.tables.Items).
			Where("instance = ? AND identifier = ?", instance, identifier).
			Order("position").
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("find[%s]: %w", s.tables.Items, err)
		}
		return nil
	})
	if err != nil {
		return record.StoredCart{}, err
	}

	items := make([]record.Item, 0, len(rows))
	for _, row := range rows {
		item, err := mapGormToItem(row)
		if err != nil {
			return record.StoredCart{}, fmt.Errorf("mapGormToItem: %w", err)
		}
		items = append(items, item)
	}

	return record.StoredCart{
		Version:    record.Version,
		Instance:   header.Instance,
		Identifier: header.Identifier,
		Items:      items,
		CreatedAt:  header.CreatedAt,
		UpdatedAt:  header.UpdatedAt,
	}, nil
}

func (s *gormCartStore) Delete(ctx context.Context, instance, identifier string) (bool, error) {
	if err := validateAddress(instance, identifier); err != nil {
		return false, err
	}

	var deleted int64
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		err := tx.Table(s.tables.Items).
			Where("instance = ? AND identifier = ?", instance, identifier).
			Delete(&gormCartItem{}).Error
		if err != nil {
			return fmt.Errorf("delete[%s]: %w", s.tables.Items, err)
		}

		res := tx.Table(s.tables.Carts).
			Where("instance = ? AND identifier = ?", instance, identifier).
			Delete(&gormCart{})
		if res.Error != nil {
			return fmt.Errorf("delete[%s]: %w", s.tables.Carts, res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}

	return deleted > 0, nil
}

// withTx executes fn inside a transaction, rolling back on error or panic.
func (s *gormCartStore) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return errors.Join(err, fmt.Errorf("tx.Rollback: %w", rbErr))
		}
		return err
	}

	return tx.Commit().Error
}

func mapItemToGorm(instance, identifier string, position int, item record.Item) (gormCartItem, error) {
	options, err := record.MarshalOptions(item.Options)
	if err != nil {
		return gormCartItem{}, fmt.Errorf("record.MarshalOptions: %w", err)
	}

	row := gormCartItem{
		Instance:      instance,
		Identifier:    identifier,
		Position:      position,
		RowID:         item.RowID,
		ItemID:        item.ID,
		IDKind:        item.IDKind,
		Name:          item.Name,
		Quantity:      item.Quantity,
		PriceMinor:    item.PriceMinor,
		Currency:      item.Currency,
		Weight:        item.Weight,
		Options:       string(options),
		DiscountKind:  item.Discount.Kind,
		DiscountRate:  item.Discount.Rate.String(),
		DiscountMinor: item.Discount.AmountMinor,
		TaxRate:       item.TaxRate.String(),
	}
	if item.Association != nil {
		row.AssocType = &item.Association.Type
		row.AssocID = &item.Association.ID
	}

	return row, nil
}

func mapGormToItem(row gormCartItem) (record.Item, error) {
	options, err := record.UnmarshalOptions([]byte(row.Options))
	if err != nil {
		return record.Item{}, fmt.Errorf("record.UnmarshalOptions: %w", err)
	}

	discountRate, err := decimal.NewFromString(row.DiscountRate)
	if err != nil {
		return record.Item{}, fmt.Errorf("discount rate[%s] is not valid: %w", row.DiscountRate, err)
	}

	taxRate, err := decimal.NewFromString(row.TaxRate)
	if err != nil {
		return record.Item{}, fmt.Errorf("tax rate[%s] is not valid: %w", row.TaxRate, err)
	}

	item := record.Item{
		RowID:      row.RowID,
		ID:         row.ItemID,
		IDKind:     row.IDKind,
		Name:       row.Name,
		Quantity:   row.Quantity,
		PriceMinor: row.PriceMinor,
		Currency:   row.Currency,
		Weight:     row.Weight,
		Options:    options,
		Discount: record.Discount{
			Kind:        row.DiscountKind,
			Rate:        discountRate,
			AmountMinor: row.DiscountMinor,
		},
		TaxRate: taxRate,
	}
	if row.AssocType != nil {
		item.Association = &record.Association{Type: *row.AssocType}
		if row.AssocID != nil {
			item.Association.ID = *row.AssocID
		}
	}

	return item, nil
}
