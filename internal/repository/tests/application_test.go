package repository_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	paymentrepo "github.com/fazamuttaqien/permitting/internal/repository/payment"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric"
	noop_metric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	noop_trace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ApplicationRepositoryTestSuite struct {
	suite.Suite
	db                    *gorm.DB
	ctx                   context.Context
	applicationRepository repository.ApplicationRepository
	paymentRepository     repository.PaymentRepository

	entity     model.Entity
	permitType model.PermitType
	fee        model.Fee
	cashier    model.User

	meter  metric.Meter
	tracer trace.Tracer
	log    *zap.Logger
}

func (suite *ApplicationRepositoryTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)

	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	suite.Require().NoError(model.AutoMigrate(db))

	suite.db = db
	suite.ctx = context.Background()

	suite.log = zap.NewNop()
	noopTracerProvider := noop_trace.NewTracerProvider()
	suite.tracer = noopTracerProvider.Tracer("test-application-repository-tracer")
	noopMeterProvider := noop_metric.NewMeterProvider()
	suite.meter = noopMeterProvider.Meter("test-application-repository-meter")

	suite.applicationRepository = applicationrepo.NewApplicationRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.paymentRepository = paymentrepo.NewPaymentRepository(suite.db, suite.meter, suite.tracer, suite.log)

	suite.entity = model.Entity{Name: "Perya Amusements", Address: "Poblacion"}
	suite.Require().NoError(db.Create(&suite.entity).Error)

	category := model.FeeCategory{Name: "Business Tax"}
	suite.Require().NoError(db.Create(&category).Error)
	suite.fee = model.Fee{CategoryID: category.ID, Name: "Mayor's Permit Fee", DefaultAmount: decimal.RequireFromString("500")}
	suite.Require().NoError(db.Create(&suite.fee).Error)

	suite.permitType = model.PermitType{Name: "Perya", Active: true}
	suite.Require().NoError(db.Create(&suite.permitType).Error)

	suite.cashier = model.User{Username: "cashier", FullName: "Dan Cashier", PasswordHash: "x", Roles: "Cashier"}
	suite.Require().NoError(db.Create(&suite.cashier).Error)
}

func (suite *ApplicationRepositoryTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	suite.Require().NoError(sqlDB.Close())
}

func (suite *ApplicationRepositoryTestSuite) createApplication(params ...domain.Parameter) *domain.Application {
	app := &domain.Application{
		EntityID:     suite.entity.ID,
		PermitTypeID: suite.permitType.ID,
		Status:       domain.StatusPending,
		CreatorID:    1,
		Parameters:   params,
	}
	suite.Require().NoError(suite.applicationRepository.Create(suite.ctx, app))
	return app
}

func (suite *ApplicationRepositoryTestSuite) TestCreateAndFind() {
	app := suite.createApplication(
		domain.Parameter{Name: "capital", Value: "100000"},
		domain.Parameter{Name: "has_signage", Value: "yes"},
	)

	suite.NotZero(app.ID)
	suite.Equal(uint(1), app.Version)

	found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.StatusPending, found.Status)
	suite.Equal("Perya", found.PermitTypeName)
	suite.Nil(found.ApplicationNumber)
	suite.Equal([]domain.Parameter{
		{Name: "capital", Value: "100000"},
		{Name: "has_signage", Value: "yes"},
	}, found.Parameters)
	suite.Empty(found.AssessedFees)
	suite.Empty(found.Payments)
}

func (suite *ApplicationRepositoryTestSuite) TestFindByID_NotFound() {
	_, err := suite.applicationRepository.FindByID(suite.ctx, 999)
	suite.ErrorIs(err, common.ErrNotFound)
}

func (suite *ApplicationRepositoryTestSuite) TestAppendParameters_KeepsOrder() {
	app := suite.createApplication(domain.Parameter{Name: "capital", Value: "100000"})

	suite.Require().NoError(suite.applicationRepository.AppendParameters(suite.ctx, app.ID, 1, []domain.Parameter{
		{Name: "employees", Value: "4"},
	}))

	found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.Require().Len(found.Parameters, 2)
	suite.Equal("employees", found.Parameters[1].Name)
}

func (suite *ApplicationRepositoryTestSuite) TestReplaceFees() {
	app := suite.createApplication()
	feeID := suite.fee.ID

	first := []domain.AssessedFee{
		{FeeID: &feeID, FeeName: "Mayor's Permit Fee", CategoryName: "Business Tax", AssessedAmount: decimal.RequireFromString("500")},
	}
	suite.Require().NoError(suite.applicationRepository.ReplaceFees(suite.ctx, app.ID, first))

	second := []domain.AssessedFee{
		{FeeID: &feeID, FeeName: "Mayor's Permit Fee", CategoryName: "Business Tax", AssessedAmount: decimal.RequireFromString("750")},
		{FeeName: "Manual Surcharge", CategoryName: "Other", AssessedAmount: decimal.RequireFromString("25.50")},
	}
	suite.Require().NoError(suite.applicationRepository.ReplaceFees(suite.ctx, app.ID, second))
	suite.NotZero(second[0].ID)
	suite.Equal(app.ID, second[1].ApplicationID)

	found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.Require().Len(found.AssessedFees, 2)
	suite.Equal("750.00", found.AssessedFees[0].AssessedAmount.StringFixed(2))
	suite.Equal("Manual Surcharge", found.AssessedFees[1].FeeName)
	suite.True(found.TotalAssessed().Equal(decimal.RequireFromString("775.50")))
}

func (suite *ApplicationRepositoryTestSuite) TestUpdateFeeAmount_LockedFee() {
	app := suite.createApplication()
	fees := []domain.AssessedFee{
		{FeeName: "Mayor's Permit Fee", CategoryName: "Business Tax", AssessedAmount: decimal.RequireFromString("500")},
	}
	suite.Require().NoError(suite.applicationRepository.ReplaceFees(suite.ctx, app.ID, fees))

	suite.Require().NoError(suite.applicationRepository.UpdateFeeAmount(suite.ctx, app.ID, fees[0].ID, decimal.RequireFromString("450")))
	suite.Require().NoError(suite.applicationRepository.LockFees(suite.ctx, app.ID))

	err := suite.applicationRepository.UpdateFeeAmount(suite.ctx, app.ID, fees[0].ID, decimal.RequireFromString("1"))
	suite.ErrorIs(err, common.ErrNotFound)

	found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.True(found.HasLockedFees())
	suite.Equal("450.00", found.AssessedFees[0].AssessedAmount.StringFixed(2))
}

func (suite *ApplicationRepositoryTestSuite) TestCompareAndSetStatus() {
	app := suite.createApplication()
	assessor := uint64(3)

	err := suite.applicationRepository.CompareAndSetStatus(suite.ctx, repository.StatusUpdate{
		ID:      app.ID,
		From:    domain.StatusPending,
		To:      domain.StatusAssessed,
		Version: 1,
		Columns: map[string]any{"assessor_id": assessor},
	})
	suite.Require().NoError(err)

	found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.StatusAssessed, found.Status)
	suite.Equal(uint(2), found.Version)
	suite.Require().NotNil(found.AssessorID)
	suite.Equal(assessor, *found.AssessorID)

	suite.Run("Stale version", func() {
		err := suite.applicationRepository.CompareAndSetStatus(suite.ctx, repository.StatusUpdate{
			ID:      app.ID,
			From:    domain.StatusAssessed,
			To:      domain.StatusPendingApproval,
			Version: 1,
		})
		suite.ErrorIs(err, common.ErrConflict)
		suite.ErrorIs(err, common.ErrStaleWrite)
		suite.True(common.IsRetryable(err))
	})
}

func (suite *ApplicationRepositoryTestSuite) TestNextApplicationNumber() {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := suite.applicationRepository.NextApplicationNumber(suite.ctx, now)
	suite.Require().NoError(err)
	second, err := suite.applicationRepository.NextApplicationNumber(suite.ctx, now)
	suite.Require().NoError(err)
	nextYear, err := suite.applicationRepository.NextApplicationNumber(suite.ctx, now.AddDate(1, 0, 0))
	suite.Require().NoError(err)

	suite.Equal("2026-000001", first)
	suite.Equal("2026-000002", second)
	suite.Equal("2027-000001", nextYear)
}

func (suite *ApplicationRepositoryTestSuite) TestDelete() {
	app := suite.createApplication(domain.Parameter{Name: "capital", Value: "1"})
	suite.Require().NoError(suite.applicationRepository.ReplaceFees(suite.ctx, app.ID, []domain.AssessedFee{
		{FeeName: "Mayor's Permit Fee", CategoryName: "Business Tax", AssessedAmount: decimal.RequireFromString("500")},
	}))

	suite.Require().NoError(suite.applicationRepository.Delete(suite.ctx, app.ID))

	_, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
	suite.ErrorIs(err, common.ErrNotFound)
	suite.ErrorIs(suite.applicationRepository.Delete(suite.ctx, app.ID), common.ErrNotFound)

	var orphans int64
	suite.Require().NoError(suite.db.Model(&model.AssessedFee{}).Where("application_id = ?", app.ID).Count(&orphans).Error)
	suite.Zero(orphans)
}

func (suite *ApplicationRepositoryTestSuite) TestPayments() {
	app := suite.createApplication()
	key := "till-7-0001"

	late := &domain.Payment{
		ApplicationID:     app.ID,
		OfficialReceiptNo: "OR-0002",
		PaymentDate:       time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount:            decimal.RequireFromString("150"),
		RecordedBy:        suite.cashier.ID,
	}
	early := &domain.Payment{
		ApplicationID:     app.ID,
		OfficialReceiptNo: "OR-0001",
		PaymentDate:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Amount:            decimal.RequireFromString("500"),
		RecordedBy:        suite.cashier.ID,
		IdempotencyKey:    &key,
	}
	suite.Require().NoError(suite.paymentRepository.Create(suite.ctx, late))
	suite.Require().NoError(suite.paymentRepository.Create(suite.ctx, early))

	suite.Run("Ordered by payment date", func() {
		payments, err := suite.paymentRepository.ListByApplication(suite.ctx, app.ID)
		suite.Require().NoError(err)
		suite.Require().Len(payments, 2)
		suite.Equal("OR-0001", payments[0].OfficialReceiptNo)
		suite.Equal("Dan Cashier", payments[0].RecordedByName)
	})

	suite.Run("Idempotency key lookup", func() {
		found, err := suite.paymentRepository.FindByIdempotencyKey(suite.ctx, app.ID, key)
		suite.Require().NoError(err)
		suite.Equal(early.ID, found.ID)

		_, err = suite.paymentRepository.FindByIdempotencyKey(suite.ctx, app.ID, "unknown")
		suite.ErrorIs(err, common.ErrNotFound)
	})

	suite.Run("Duplicate idempotency key", func() {
		dup := *early
		dup.ID = 0
		err := suite.paymentRepository.Create(suite.ctx, &dup)
		suite.ErrorIs(err, common.ErrConflict)
	})

	suite.Run("Aggregate carries payments", func() {
		found, err := suite.applicationRepository.FindByID(suite.ctx, app.ID)
		suite.Require().NoError(err)
		suite.True(found.TotalCollected().Equal(decimal.RequireFromString("650")))
	})
}

func TestApplicationRepositorySuite(t *testing.T) {
	suite.Run(t, new(ApplicationRepositoryTestSuite))
}

func newMockApplicationRepository(t *testing.T) (repository.ApplicationRepository, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	return applicationrepo.NewApplicationRepository(
		db,
		noop_metric.NewMeterProvider().Meter("test"),
		noop_trace.NewTracerProvider().Tracer("test"),
		zap.NewNop(),
	), mock
}

func TestFindByIDForUpdate_LockWaitTimeout(t *testing.T) {
	repo, mock := newMockApplicationRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `applications` WHERE id = \\?.*FOR UPDATE").
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"})

	_, err := repo.FindByIDForUpdate(context.Background(), 42)

	assert.ErrorIs(t, err, common.ErrConflict)
	assert.ErrorIs(t, err, common.ErrLockTimeout)
	assert.True(t, common.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetStatus_ZeroRows(t *testing.T) {
	repo, mock := newMockApplicationRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `applications` SET") + ".*" +
		regexp.QuoteMeta("WHERE id = ? AND status = ? AND version = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompareAndSetStatus(context.Background(), repository.StatusUpdate{
		ID:      42,
		From:    domain.StatusApproved,
		To:      domain.StatusPaid,
		Version: 3,
	})

	assert.ErrorIs(t, err, common.ErrStaleWrite)
	assert.True(t, common.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatApplicationNumber(t *testing.T) {
	assert.Equal(t, "2026-000042", applicationrepo.FormatApplicationNumber(2026, 42))
	assert.Equal(t, "2026-1234567", applicationrepo.FormatApplicationNumber(2026, 1234567))
}
