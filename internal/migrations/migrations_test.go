package migrations_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/nikolayk812/shoppingcart/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		data, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)

		content := string(data)
		assert.Contains(t, content, "-- +goose Up", name)
		assert.Contains(t, content, "-- +goose Down", name)
	}
}

func TestEmbeddedMigrations_CartTables(t *testing.T) {
	data, err := fs.ReadFile(migrations.FS, "00001_shoppingcart.sql")
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.Contains(content, "PRIMARY KEY (instance, identifier)"))
	assert.True(t, strings.Contains(content, "ON DELETE CASCADE"))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := migrations.Open("")
	require.EqualError(t, err, "dsn is required")
}

func TestRunRequiresDB(t *testing.T) {
	err := migrations.Run(t.Context(), nil, "up")
	require.EqualError(t, err, "db is required")
}
