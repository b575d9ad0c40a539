// Package db opens the database, applies the schema and seeds lookup tables.
package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-workshop/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Models lists every persisted model, lookups first.
func Models() []any {
	return []any{
		// Reference data
		&models.OrderStatus{},
		&models.PaymentMethod{},
		&models.Concept{},
		&models.Insurer{},
		&models.Item{},
		&models.Category{},
		&models.Subcategory{},
		// Parties
		&models.Client{},
		&models.Vehicle{},
		&models.ClientVehicleLink{},
		// Orders
		&models.WorkOrder{},
		&models.OrderLine{},
		&models.LineAttribute{},
		&models.Payment{},
		// Cash
		&models.LedgerMovement{},
		&models.DailyCashbox{},
	}
}

// Migrate runs AutoMigrate for all models. Used in development and tests.
func Migrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

// MigrateSQL applies the embedded SQL migrations with golang-migrate.
// databaseURL must be a postgres:// URL.
func MigrateSQL(databaseURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
