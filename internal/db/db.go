package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-workshop/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

// Open connects with the configured driver. Postgres connections are retried
// to leave the server time to start.
func Open(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Map driver-specific unique violations to gorm.ErrDuplicatedKey.
		TranslateError: true,
	}

	if cfg.Driver == "sqlite" {
		return openSQLite(cfg.Path, gcfg)
	}

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("database connection attempt %d/%d failed, retrying", i+1, connectAttempts)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	log.WithFields(logrus.Fields{
		"host": cfg.Host, "port": cfg.Port, "dbname": cfg.DBName, "user": cfg.User,
	}).Info("connected to database")
	return db, nil
}

// sqlite allows a single writer; one pooled connection keeps transactions
// strictly serialized, which is what the cashbox row lock gives on postgres.
// Foreign keys are enabled on every connection through the DSN.
func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func withForeignKeys(path string) string {
	if strings.Contains(path, "_foreign_keys=") || strings.Contains(path, "_fk=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1"
}
