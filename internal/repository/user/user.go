package userrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const table = "users"

type userRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// FindByUsername implements UserRepository.
func (u *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, span := u.tracer.Start(ctx, "repository.User.FindByUsername")
	defer span.End()

	return u.findOne(ctx, span, "username = ?", username)
}

// FindByID implements UserRepository.
func (u *userRepository) FindByID(ctx context.Context, id uint64) (*domain.User, error) {
	ctx, span := u.tracer.Start(ctx, "repository.User.FindByID")
	defer span.End()

	return u.findOne(ctx, span, "id = ?", id)
}

func (u *userRepository) findOne(ctx context.Context, span trace.Span, where string, arg any) (*domain.User, error) {
	q := u.ins.Start(ctx, span, "select", table)

	var data model.User
	err := u.db.WithContext(ctx).Where(where, arg).First(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q.Finish(nil, 0, 0)
		return nil, common.NewNotFound("user", arg)
	}

	q.Finish(err, 1, 0)
	if err != nil {
		u.log.Error("Error finding user",
			zap.Any("key", arg),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find user: %w", err)
	}

	return model.UserToEntity(data), nil
}

// FindAll implements UserRepository.
func (u *userRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	ctx, span := u.tracer.Start(ctx, "repository.User.FindAll")
	defer span.End()

	q := u.ins.Start(ctx, span, "select", table)

	var data []model.User
	err := u.db.WithContext(ctx).Order("id ASC").Find(&data).Error

	q.Finish(err, len(data), 0)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]domain.User, len(data))
	for i, d := range data {
		users[i] = *model.UserToEntity(d)
	}
	return users, nil
}

func NewUserRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.UserRepository {
	return &userRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
