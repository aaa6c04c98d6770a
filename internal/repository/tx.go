package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// MySQL and Postgres error codes for lock contention.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlDuplicateEntry  = 1062

	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// WithTransaction runs fn inside one transaction bounded by lockTimeout.
// Repositories built from the tx handle share the transaction and must be
// called with the ctx handed to fn. Lock waits, deadlocks and the deadline
// itself come back as retryable conflicts on entity/id.
func WithTransaction(ctx context.Context, db *gorm.DB, lockTimeout time.Duration, entity string, id any, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lockTimeout)
		defer cancel()
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return MapError(entity, id, fmt.Errorf("begin transaction: %w", tx.Error))
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return MapError(entity, id, err)
	}

	if err := tx.Commit().Error; err != nil {
		return MapError(entity, id, fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// MapError turns lock contention into a retryable conflict and leaves every
// other error untouched.
func MapError(entity string, id any, err error) error {
	if err == nil {
		return nil
	}

	var appErr *common.Error
	if errors.As(err, &appErr) {
		return err
	}

	if IsLockError(err) {
		return common.NewRetryableConflict(entity, id, fmt.Errorf("%w: %v", common.ErrLockTimeout, err))
	}

	return err
}

func IsLockError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return true
		}
		return false
	}

	return strings.Contains(err.Error(), "database is locked")
}

func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
