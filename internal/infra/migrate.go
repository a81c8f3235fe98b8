package infra

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending migrations for one store. store names the
// subdirectory under db/migrations; the zero-trust and audit schemas migrate
// independently because they may live on separate instances.
func RunMigrations(dsn, store string, logger *slog.Logger) error {
	migrationDir := filepath.Join(findMigrationRoot(), store)
	sourceURL := fmt.Sprintf("file://%s", migrationDir)

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "store", store, "version", version, "dirty", dirty)

	return nil
}

// findMigrationRoot walks up from cwd looking for db/migrations.
func findMigrationRoot() string {
	dir, _ := os.Getwd()
	for dir != "" && dir != "/" {
		candidate := filepath.Join(dir, "db", "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return "db/migrations"
}
