package repository_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/nikolayk812/shoppingcart/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"golang.org/x/text/currency"
	"gorm.io/gorm"
)

type cartStoreSuite struct {
	suite.Suite

	backend   string
	store     port.CartStore
	pool      *pgxpool.Pool
	gormDB    *gorm.DB
	container testcontainers.Container
}

// entry points to run the tests in the suite, once per backend
func TestPostgresCartStoreSuite(t *testing.T) {
	suite.Run(t, &cartStoreSuite{backend: "postgres"})
}

func TestGormCartStoreSuite(t *testing.T) {
	suite.Run(t, &cartStoreSuite{backend: "sqlite"})
}

// before all tests in the suite
func (suite *cartStoreSuite) SetupSuite() {
	ctx := suite.T().Context()

	switch suite.backend {
	case "postgres":
		container, connStr, err := startPostgres(ctx)
		suite.Require().NoError(err)
		suite.container = container

		suite.pool, err = pgxpool.New(ctx, connStr)
		suite.Require().NoError(err)

		suite.store, err = repository.NewCartStore(suite.pool)
		suite.Require().NoError(err)
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", gofakeit.UUID())

		var err error
		suite.gormDB, err = repository.OpenGorm("sqlite", dsn)
		suite.Require().NoError(err)

		sqlDB, err := suite.gormDB.DB()
		suite.Require().NoError(err)
		sqlDB.SetMaxOpenConns(1)

		tables := repository.Tables{Carts: "carts_test", Items: "cart_items_test"}
		suite.Require().NoError(repository.AutoMigrate(ctx, suite.gormDB, tables))

		suite.store, err = repository.NewGormCartStore(suite.gormDB, tables)
		suite.Require().NoError(err)
	}
}

// after all tests in the suite
func (suite *cartStoreSuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
	if suite.gormDB != nil {
		if sqlDB, err := suite.gormDB.DB(); err == nil {
			suite.NoError(sqlDB.Close())
		}
	}
	if suite.container != nil {
		suite.NoError(testcontainers.TerminateContainer(suite.container))
	}
}

func (suite *cartStoreSuite) TestInsertAndLoad() {
	tests := []struct {
		name      string
		cart      record.StoredCart
		wantError string
	}{
		{
			name: "insert cart with items: ok",
			cart: randomStoredCart(suite.T(), 3),
		},
		{
			name: "insert empty cart: ok",
			cart: randomStoredCart(suite.T(), 0),
		},
		{
			name: "insert with empty identifier: error",
			cart: func() record.StoredCart {
				c := randomStoredCart(suite.T(), 1)
				c.Identifier = ""
				return c
			}(),
			wantError: "identifier is empty",
		},
		{
			name: "insert with empty instance: error",
			cart: func() record.StoredCart {
				c := randomStoredCart(suite.T(), 1)
				c.Instance = ""
				return c
			}(),
			wantError: "instance is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			err := suite.store.Insert(ctx, tt.cart)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			loaded, err := suite.store.Load(ctx, tt.cart.Instance, tt.cart.Identifier)
			require.NoError(t, err)

			assertStoredCart(t, tt.cart, loaded)
		})
	}
}

func (suite *cartStoreSuite) TestInsertTwice() {
	t := suite.T()
	ctx := t.Context()

	cart := randomStoredCart(t, 2)
	cart.Instance = domain.DefaultInstance

	require.NoError(t, suite.store.Insert(ctx, cart))

	err := suite.store.Insert(ctx, cart)
	require.ErrorIs(t, err, domain.ErrAlreadyStored)

	deleted, err := suite.store.Delete(ctx, cart.Instance, cart.Identifier)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, suite.store.Insert(ctx, cart))
}

func (suite *cartStoreSuite) TestLoadMissing() {
	t := suite.T()

	_, err := suite.store.Load(t.Context(), domain.DefaultInstance, gofakeit.UUID())
	require.ErrorIs(t, err, domain.ErrStoredCartNotFound)
}

func (suite *cartStoreSuite) TestExistsAndDelete() {
	tests := []struct {
		name        string
		setup       bool
		wantDeleted bool
	}{
		{
			name:        "delete existing cart: ok",
			setup:       true,
			wantDeleted: true,
		},
		{
			name:        "delete missing cart: not found",
			setup:       false,
			wantDeleted: false,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			cart := randomStoredCart(t, 2)
			if tt.setup {
				require.NoError(t, suite.store.Insert(ctx, cart))
			}

			exists, err := suite.store.Exists(ctx, cart.Instance, cart.Identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.setup, exists)

			deleted, err := suite.store.Delete(ctx, cart.Instance, cart.Identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeleted, deleted)

			exists, err = suite.store.Exists(ctx, cart.Instance, cart.Identifier)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func (suite *cartStoreSuite) TestRestoredItemsMatchDomain() {
	t := suite.T()
	ctx := t.Context()

	cart, err := domain.NewCart(currency.USD)
	require.NoError(t, err)

	price, err := domain.ParseMoney("10.00", "USD")
	require.NoError(t, err)
	item, err := domain.NewCartItem(domain.IntID(1), "Some item", price, 2, 550, domain.Options{"size": "XL", "color": "red"})
	require.NoError(t, err)
	_, err = cart.Add(item, domain.AddOptions{})
	require.NoError(t, err)

	stored := record.FromCart(gofakeit.UUID(), cart, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, suite.store.Insert(ctx, stored))

	loaded, err := suite.store.Load(ctx, stored.Instance, stored.Identifier)
	require.NoError(t, err)

	items, err := record.ToDomainItems(loaded.Items)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "07d5da5550494c62daf9993cf954303f", items[0].RowID())
}

func randomStoredCart(t *testing.T, n int) record.StoredCart {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)

	items := make([]record.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, randomItem(t, i))
	}

	return record.StoredCart{
		Version:    record.Version,
		Instance:   gofakeit.RandomString([]string{domain.DefaultInstance, "wishlist"}),
		Identifier: gofakeit.UUID(),
		Items:      items,
		CreatedAt:  now.Add(-time.Hour),
		UpdatedAt:  now,
	}
}

func randomItem(t *testing.T, i int) record.Item {
	t.Helper()

	price := domain.NewMoneyFromMinor(int64(gofakeit.IntRange(1, 100_000)), currency.EUR)

	var id domain.ItemID
	if i%2 == 0 {
		id = domain.IntID(int64(gofakeit.IntRange(1, 1_000_000)))
	} else {
		id = domain.StringID(gofakeit.UUID())
	}

	opts := domain.Options{
		"size":  gofakeit.RandomString([]string{"S", "M", "L"}),
		"color": gofakeit.Color(),
		"pack":  int64(i + 1),
	}

	item, err := domain.NewCartItem(id, gofakeit.ProductName(), price, gofakeit.IntRange(1, 10), int64(gofakeit.IntRange(0, 5000)), opts)
	require.NoError(t, err)

	if i%2 == 0 {
		item.SetDiscount(domain.RateDiscount(decimal.RequireFromString("0.15")))
	} else {
		item.SetDiscount(domain.FixedDiscount(domain.NewMoneyFromMinor(250, currency.EUR)))
		item.Associate(domain.Reference{Type: "product", ID: id.String()})
	}
	item.SetTaxRate(decimal.RequireFromString("0.21"))

	return record.FromItem(*item)
}

func assertStoredCart(t *testing.T, expected, actual record.StoredCart) {
	t.Helper()

	opts := cmp.Options{
		cmp.Comparer(func(x, y decimal.Decimal) bool {
			return x.Equal(y)
		}),
		cmp.Comparer(func(x, y time.Time) bool {
			return x.Equal(y)
		}),
	}

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)
}
