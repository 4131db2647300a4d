package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/types"
)

type PostgresStore struct {
	cfg config.Store

	gdb *gorm.DB
}

func NewPostgresStore(cfg config.Store) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{cfg: cfg, gdb: gdb}

	if cfg.AutoMigrate {
		if err := store.autoMigrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate credential schema: %w", err)
		}
	}

	return store, nil
}

// NewSQLiteStore backs the same store with SQLite. Used by tests and
// single-host deployments.
func NewSQLiteStore(path string) (*PostgresStore, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	store := &PostgresStore{gdb: gdb}
	if err := store.autoMigrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) autoMigrate() error {
	return s.gdb.AutoMigrate(&types.TenantCredentialRecord{})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
