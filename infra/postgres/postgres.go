package postgresdb

import (
	"context"
	"fmt"
	"time"

	"github.com/fazamuttaqien/permitting/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database named by POSTGRES_DSN. Every pooled session
// starts with lock_timeout set to LOCK_TIMEOUT so a blocked
// SELECT ... FOR UPDATE fails with 55P03 instead of waiting forever.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if cfg.POSTGRES_DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
	}

	connConfig, err := pgx.ParseConfig(cfg.POSTGRES_DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse POSTGRES_DSN: %w", err)
	}
	connConfig.RuntimeParams["lock_timeout"] = fmt.Sprintf("%d", cfg.LOCK_TIMEOUT.Milliseconds())
	connConfig.RuntimeParams["timezone"] = "UTC"

	sqlDB := stdlib.OpenDB(*connConfig)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	zap.L().Info("Successfully connected to postgres", zap.Duration("lock_timeout", cfg.LOCK_TIMEOUT))
	return db, nil
}
