package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	pgstore "github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource/postgres"
	sqlitestore "github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource/sqlite"
)

// RunMigrations applies pending migrations from <migrationsRoot>/<dialect>.
// It is idempotent and safe to call multiple times - only pending migrations
// will be executed.
func RunMigrations(store datasource.Store, migrationsRoot string, logger *zap.Logger) error {
	dialect := store.Dialect()
	dir := filepath.Join(migrationsRoot, string(dialect))

	var (
		driver migratedb.Driver
		// The postgres driver owns a dedicated handle; the sqlite driver
		// shares the store's handle, which must stay open afterwards.
		ownedDB *sql.DB
		err     error
	)

	switch s := store.(type) {
	case *sqlitestore.Store:
		driver, err = migratesqlite.WithInstance(s.DB(), &migratesqlite.Config{})
	case *pgstore.Store:
		ownedDB, err = sql.Open("pgx", s.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to open migration connection: %w", err)
		}
		driver, err = postgres.WithInstance(ownedDB, &postgres.Config{})
	default:
		return fmt.Errorf("migrations not supported for store %T", store)
	}
	if err != nil {
		if ownedDB != nil {
			ownedDB.Close()
		}
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := (&file.File{}).Open("file://" + filepath.ToSlash(dir))
	if err != nil {
		if ownedDB != nil {
			driver.Close()
		}
		return fmt.Errorf("failed to open migrations %s: %w", dir, err)
	}

	m, err := migrate.NewWithInstance("file", src, string(dialect), driver)
	if err != nil {
		src.Close()
		if ownedDB != nil {
			driver.Close()
		}
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("Failed to close migration source", zap.Error(err))
		}
		if ownedDB != nil {
			if err := driver.Close(); err != nil {
				logger.Warn("Failed to close migration database", zap.Error(err))
			}
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("dialect", string(dialect)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("dialect", string(dialect)),
		zap.Uint("version", newVersion))
	return nil
}
