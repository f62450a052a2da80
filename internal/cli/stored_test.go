package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/nikolayk812/shoppingcart/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestStoredCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cart.db")
	t.Setenv("CART_DB_DRIVER", "sqlite")
	t.Setenv("CART_DB_DSN", dsn)

	seedStoredCart(t, dsn, "user-1")

	output, err := execute(t, "stored", "show", "--identifier", "user-1")
	require.NoError(t, err)
	assert.Contains(t, output, "07d5da5550494c62daf9993cf954303f")
	assert.Contains(t, output, "total:       20.00 USD")

	output, err = execute(t, "--format", "json", "stored", "restore", "--identifier", "user-1", "--session", "s-1")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   StoredResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.True(t, resp.Data.Found)
	require.NotNil(t, resp.Data.Quote)
	assert.Equal(t, "20.00", resp.Data.Quote.Total)
	assert.Equal(t, 2, resp.Data.Quote.Count)

	// restore removes the stored record
	_, err = execute(t, "stored", "show", "--identifier", "user-1")
	require.ErrorIs(t, err, domain.ErrStoredCartNotFound)

	output, err = execute(t, "stored", "erase", "--identifier", "user-1")
	require.NoError(t, err)
	assert.Contains(t, output, "no cart stored for default/user-1")

	seedStoredCart(t, dsn, "user-2")

	output, err = execute(t, "stored", "erase", "--identifier", "user-2")
	require.NoError(t, err)
	assert.Contains(t, output, "cart default/user-2: ok")
}

func TestStoredRequiresIdentifier(t *testing.T) {
	t.Setenv("CART_DB_DRIVER", "sqlite")
	t.Setenv("CART_DB_DSN", filepath.Join(t.TempDir(), "cart.db"))

	_, err := execute(t, "stored", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"identifier" not set`)
}

func TestMigrate(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid argument "sideways"`)

	t.Setenv("CART_DB_DRIVER", "sqlite")
	_, err = execute(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate supports postgres only")
}

func seedStoredCart(t *testing.T, dsn, identifier string) {
	t.Helper()
	ctx := t.Context()

	db, err := repository.OpenGorm("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, repository.AutoMigrate(ctx, db, repository.Tables{}))
	store, err := repository.NewGormCartStore(db, repository.Tables{})
	require.NoError(t, err)

	cart, err := domain.NewCart(currency.USD)
	require.NoError(t, err)

	price, err := domain.ParseMoney("10.00", "USD")
	require.NoError(t, err)
	item, err := domain.NewCartItem(domain.IntID(1), "Some item", price, 2, 550, domain.Options{"size": "XL", "color": "red"})
	require.NoError(t, err)
	_, err = cart.Add(item, domain.AddOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, record.FromCart(identifier, cart, time.Now().UTC().Truncate(time.Second))))
}
