// Package testhelpers provides utilities for testing dealdesk-engine components.
package testhelpers

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	sqlitestore "github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource/sqlite"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/database"
)

// MigrationsRoot returns the absolute path of the repository's migrations
// directory, independent of the calling test's working directory.
func MigrationsRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// NewSQLiteStore returns an in-memory SQLite store with all migrations
// applied, including the demo seed data. The store is closed on test cleanup.
func NewSQLiteStore(t *testing.T) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.NewStore(context.Background(),
		&sqlitestore.Config{Path: ":memory:"},
		datasource.StoreOptions{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, database.RunMigrations(store, MigrationsRoot(), zap.NewNop()))
	return store
}
