package repository

import (
	"context"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"

	"github.com/shopspring/decimal"
)

// StatusUpdate is a compare-and-set on (status, version). Columns carries the
// extra fields written with the transition, keyed by column name.
type StatusUpdate struct {
	ID      uint64
	From    domain.Status
	To      domain.Status
	Version uint
	Columns map[string]any
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	// FindByID loads the full aggregate: parameters, fees and payments with recorder names.
	FindByID(ctx context.Context, id uint64) (*domain.Application, error)
	// FindByIDForUpdate locks the application row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, id uint64) (*domain.Application, error)
	CompareAndSetStatus(ctx context.Context, update StatusUpdate) error
	ChangePermitType(ctx context.Context, id uint64, version uint, permitTypeID uint) error
	ReplaceFees(ctx context.Context, id uint64, fees []domain.AssessedFee) error
	UpdateFeeAmount(ctx context.Context, id uint64, feeID uint64, amount decimal.Decimal) error
	LockFees(ctx context.Context, id uint64) error
	AppendParameters(ctx context.Context, id uint64, offset int, params []domain.Parameter) error
	Delete(ctx context.Context, id uint64) error
	NextApplicationNumber(ctx context.Context, now time.Time) (string, error)
}

type CatalogRepository interface {
	FindPermitType(ctx context.Context, id uint) (*domain.PermitType, error)
	// ResolveRules returns every rule of the permit type in position order.
	ResolveRules(ctx context.Context, permitTypeID uint) ([]domain.FeeRule, error)
	FindFeesByIDs(ctx context.Context, ids []uint) (map[uint]domain.Fee, error)
	ListFeesByCategory(ctx context.Context, categoryID uint) ([]domain.Fee, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	FindByIdempotencyKey(ctx context.Context, applicationID uint64, key string) (*domain.Payment, error)
	// ListByApplication orders by payment_date then id.
	ListByApplication(ctx context.Context, applicationID uint64) ([]domain.Payment, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	FindByApplication(ctx context.Context, applicationID uint64) ([]domain.AuditEntry, error)
}

type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id uint64) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
}

type EntityRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Entity, error)
}
