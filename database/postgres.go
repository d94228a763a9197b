package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConfig holds connection settings for the inventory database.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string

	MaxOpenConns int
	MaxIdleConns int
	// Attempts bounds the connection retry loop. Zero means 10.
	Attempts int
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone,
	)
}

// ConnectPostgres opens the database with a linear backoff retry and migrates
// the given models. It gives up early when ctx is cancelled.
func ConnectPostgres(ctx context.Context, logger *zap.Logger, cfg PostgresConfig, autoMigrateModels ...interface{}) (*gorm.DB, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 10
	}

	var db *gorm.DB
	var err error
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			if sqlDB, poolErr := db.DB(); poolErr == nil {
				sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 25))
				sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}

			logger.Info("Connected to PostgreSQL successfully", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))

			if len(autoMigrateModels) > 0 {
				if err := db.WithContext(ctx).AutoMigrate(autoMigrateModels...); err != nil {
					return nil, fmt.Errorf("AutoMigrate failed: %w", err)
				}
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 2 * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
