package service_test

import (
	"context"
	"fmt"
	"mime/multipart"
	"sync"
	"time"

	"github.com/fazamuttaqien/permitting/internal/audit"
	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	auditrepo "github.com/fazamuttaqien/permitting/internal/repository/audit"
	catalogrepo "github.com/fazamuttaqien/permitting/internal/repository/catalog"
	entityrepo "github.com/fazamuttaqien/permitting/internal/repository/entity"
	paymentrepo "github.com/fazamuttaqien/permitting/internal/repository/payment"
	userrepo "github.com/fazamuttaqien/permitting/internal/repository/user"
	"github.com/fazamuttaqien/permitting/internal/service"
	applicationsrv "github.com/fazamuttaqien/permitting/internal/service/application"
	assessmentsrv "github.com/fazamuttaqien/permitting/internal/service/assessment"
	paymentsrv "github.com/fazamuttaqien/permitting/internal/service/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric"
	noop_metric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	noop_trace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Seeded user ids.
const (
	superAdminID uint64 = iota + 1
	creatorID
	assessorID
	approverID
	cashierID
	otherCreatorID
)

var fixedNow = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

type sentNotification struct {
	Recipients []uint64
	Event      domain.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []uint64, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipients: recipients, Event: event})
}

func (n *recordingNotifier) byType(eventType domain.EventType) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []sentNotification
	for _, s := range n.sent {
		if s.Event.Type == eventType {
			out = append(out, s)
		}
	}
	return out
}

type fakeDocumentStore struct {
	uploads []string
}

func (f *fakeDocumentStore) UploadDocument(_ context.Context, file *multipart.FileHeader, applicationNumber string) (string, error) {
	f.uploads = append(f.uploads, file.Filename)
	return fmt.Sprintf("https://docs.example.com/permit_%s.pdf", applicationNumber), nil
}

// ServiceTestSuite gives every test a fresh in-memory database seeded with a
// small catalog and one user per role.
type ServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	ctx context.Context

	applicationRepository repository.ApplicationRepository
	catalogRepository     repository.CatalogRepository
	paymentRepository     repository.PaymentRepository
	auditRepository       repository.AuditRepository
	userRepository        repository.UserRepository
	entityRepository      repository.EntityRepository

	applicationService service.ApplicationService
	assessmentService  service.AssessmentService
	paymentService     service.PaymentService

	notifier  *recordingNotifier
	documents *fakeDocumentStore
	roles     domain.RoleCapabilities
	settings  service.Settings

	entityID         uint64
	peryaTypeID      uint
	capitalTypeID    uint
	emptyTypeID      uint
	retiredTypeID    uint
	signageFeeAmount string

	meter  metric.Meter
	tracer trace.Tracer
	log    *zap.Logger
}

func (suite *ServiceTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)

	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	suite.Require().NoError(model.AutoMigrate(db))

	suite.db = db
	suite.ctx = context.Background()

	suite.log = zap.NewNop()
	noopTracerProvider := noop_trace.NewTracerProvider()
	suite.tracer = noopTracerProvider.Tracer("test-service-tracer")
	noopMeterProvider := noop_metric.NewMeterProvider()
	suite.meter = noopMeterProvider.Meter("test-service-meter")

	suite.roles, err = domain.ParseRoleCapabilities(domain.DefaultRoleCapabilities)
	suite.Require().NoError(err)

	suite.seed()
	suite.build(decimal.Zero)
}

func (suite *ServiceTestSuite) TearDownTest() {
	if suite.db != nil {
		sqlDB, err := suite.db.DB()
		suite.Require().NoError(err)
		suite.Require().NoError(sqlDB.Close())
	}
}

// build wires the services; tolerance is the payment tolerance under test.
func (suite *ServiceTestSuite) build(tolerance decimal.Decimal) {
	suite.applicationRepository = applicationrepo.NewApplicationRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.catalogRepository = catalogrepo.NewCatalogRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.paymentRepository = paymentrepo.NewPaymentRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.auditRepository = auditrepo.NewAuditRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.userRepository = userrepo.NewUserRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.entityRepository = entityrepo.NewEntityRepository(suite.db, suite.meter, suite.tracer, suite.log)

	suite.notifier = &recordingNotifier{}
	suite.documents = &fakeDocumentStore{}
	suite.settings = service.Settings{
		LockTimeout:      5 * time.Second,
		PaymentTolerance: tolerance,
		Now:              func() time.Time { return fixedNow },
	}

	effects := &service.Effects{
		Audit:    audit.NewRecorder(suite.auditRepository, suite.log),
		Notifier: suite.notifier,
		Users:    suite.userRepository,
		Roles:    suite.roles,
		Log:      suite.log,
	}

	suite.applicationService = applicationsrv.NewApplicationService(
		suite.db, suite.applicationRepository, suite.catalogRepository, suite.entityRepository,
		suite.documents, effects, suite.settings, suite.meter, suite.tracer, suite.log,
	)
	suite.assessmentService = assessmentsrv.NewAssessmentService(
		suite.db, suite.applicationRepository, effects, suite.settings, suite.meter, suite.tracer, suite.log,
	)
	suite.paymentService = paymentsrv.NewPaymentService(
		suite.db, suite.applicationRepository, suite.paymentRepository,
		effects, suite.settings, suite.meter, suite.tracer, suite.log,
	)
}

func (suite *ServiceTestSuite) seed() {
	users := []model.User{
		{ID: superAdminID, Username: "root", FullName: "Super Admin", PasswordHash: "x", Roles: "SuperAdmin"},
		{ID: creatorID, Username: "clerk", FullName: "Ana Clerk", PasswordHash: "x", Roles: "Application Creator"},
		{ID: assessorID, Username: "assessor", FullName: "Ben Assessor", PasswordHash: "x", Roles: "Assessor"},
		{ID: approverID, Username: "mayor", FullName: "Carla Approver", PasswordHash: "x", Roles: "Approver"},
		{ID: cashierID, Username: "cashier", FullName: "Dan Cashier", PasswordHash: "x", Roles: "Cashier"},
		{ID: otherCreatorID, Username: "clerk2", FullName: "Eve Clerk", PasswordHash: "x", Roles: "Application Creator"},
	}
	suite.Require().NoError(suite.db.Create(&users).Error)

	entity := model.Entity{Name: "Perya Amusements", Address: "Town Plaza"}
	suite.Require().NoError(suite.db.Create(&entity).Error)
	suite.entityID = entity.ID

	business := model.FeeCategory{Name: "Business Tax"}
	regulatory := model.FeeCategory{Name: "Regulatory Fees"}
	suite.Require().NoError(suite.db.Create(&business).Error)
	suite.Require().NoError(suite.db.Create(&regulatory).Error)

	mayors := model.Fee{CategoryID: business.ID, Name: "Mayor's Permit Fee", DefaultAmount: decimal.RequireFromString("500.00")}
	sanitary := model.Fee{CategoryID: regulatory.ID, Name: "Sanitary Inspection Fee", DefaultAmount: decimal.RequireFromString("150.00")}
	signage := model.Fee{CategoryID: regulatory.ID, Name: "Signage Fee", DefaultAmount: decimal.RequireFromString("100.00")}
	capital := model.Fee{CategoryID: business.ID, Name: "Capital Tax", DefaultAmount: decimal.Zero}
	for _, fee := range []*model.Fee{&mayors, &sanitary, &signage, &capital} {
		suite.Require().NoError(suite.db.Create(fee).Error)
	}
	suite.signageFeeAmount = "100.00"

	perya := model.PermitType{Name: "Perya", Active: true}
	capitalType := model.PermitType{Name: "Retail Store", Active: true}
	empty := model.PermitType{Name: "Unconfigured", Active: true}
	retired := model.PermitType{Name: "Cockpit Arena", Active: true}
	for _, pt := range []*model.PermitType{&perya, &capitalType, &empty, &retired} {
		suite.Require().NoError(suite.db.Create(pt).Error)
	}
	// active has a database default, so false must be written explicitly
	suite.Require().NoError(suite.db.Model(&retired).Update("active", false).Error)

	suite.peryaTypeID = perya.ID
	suite.capitalTypeID = capitalType.ID
	suite.emptyTypeID = empty.ID
	suite.retiredTypeID = retired.ID

	attr, value := "has_signage", "yes"
	rules := []model.PermitTypeRule{
		{PermitTypeID: perya.ID, FeeID: mayors.ID, Position: 1},
		{PermitTypeID: perya.ID, FeeID: sanitary.ID, Position: 2},
		{PermitTypeID: perya.ID, FeeID: signage.ID, AttributeName: &attr, AttributeValue: &value, Position: 3},
		{PermitTypeID: capitalType.ID, FeeID: mayors.ID, Position: 1},
		{
			PermitTypeID: capitalType.ID,
			FeeID:        capital.ID,
			Formula:      datatypes.JSON(`{"type":"rate","param":"capital","rate":"0.005","min":"100"}`),
			Position:     2,
		},
	}
	suite.Require().NoError(suite.db.Create(&rules).Error)
}

func (suite *ServiceTestSuite) caller(id uint64) domain.Caller {
	var user model.User
	suite.Require().NoError(suite.db.First(&user, id).Error)
	return suite.roles.Caller(id, model.SplitRoles(user.Roles))
}

func (suite *ServiceTestSuite) createPerya(params ...dto.ParameterRequest) *domain.Application {
	app, err := suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
		EntityID:     suite.entityID,
		PermitTypeID: suite.peryaTypeID,
		Parameters:   params,
	})
	suite.Require().NoError(err)
	return app
}

func (suite *ServiceTestSuite) assessedPerya() *domain.Application {
	app := suite.createPerya()
	app, err := suite.assessmentService.Assess(suite.ctx, suite.caller(assessorID), app.ID, dto.AssessRequest{})
	suite.Require().NoError(err)
	return app
}

func (suite *ServiceTestSuite) pendingApprovalPerya() *domain.Application {
	app := suite.assessedPerya()
	app, err := suite.applicationService.Submit(suite.ctx, suite.caller(assessorID), app.ID)
	suite.Require().NoError(err)
	return app
}

func (suite *ServiceTestSuite) approvedPerya() *domain.Application {
	app := suite.pendingApprovalPerya()
	app, err := suite.applicationService.Approve(suite.ctx, suite.caller(approverID), app.ID)
	suite.Require().NoError(err)
	return app
}

func (suite *ServiceTestSuite) paidPerya() *domain.Application {
	app := suite.approvedPerya()
	_, err := suite.paymentService.RecordPayment(suite.ctx, suite.caller(cashierID), app.ID, payment("OR-1000", "650.00"))
	suite.Require().NoError(err)

	app, err = suite.applicationService.Get(suite.ctx, app.ID)
	suite.Require().NoError(err)
	suite.Require().Equal(domain.StatusPaid, app.Status)
	return app
}

// zeroFees corrects every assessed fee of app to 0.00.
func (suite *ServiceTestSuite) zeroFees(app *domain.Application) {
	for _, f := range app.AssessedFees {
		_, err := suite.assessmentService.UpdateFeeAmount(suite.ctx, suite.caller(approverID), app.ID, f.ID,
			dto.UpdateFeeAmountRequest{Amount: "0.00"})
		suite.Require().NoError(err)
	}
}

func (suite *ServiceTestSuite) auditActions(applicationID uint64) []string {
	entries, err := suite.auditRepository.FindByApplication(suite.ctx, applicationID)
	suite.Require().NoError(err)

	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.ActionCode
	}
	return actions
}

func payment(receipt, amount string) dto.RecordPaymentRequest {
	return dto.RecordPaymentRequest{
		OfficialReceiptNo: receipt,
		PaymentDate:       "2026-03-02",
		Amount:            amount,
	}
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}
