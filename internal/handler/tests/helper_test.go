package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	applicationhandler "github.com/fazamuttaqien/permitting/internal/handler/application"
	assessmenthandler "github.com/fazamuttaqien/permitting/internal/handler/assessment"
	paymenthandler "github.com/fazamuttaqien/permitting/internal/handler/payment"
	private_handler "github.com/fazamuttaqien/permitting/internal/handler/private"
	"github.com/fazamuttaqien/permitting/middleware"
	"github.com/fazamuttaqien/permitting/presenter"
	"github.com/fazamuttaqien/permitting/router"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	noop_metric "go.opentelemetry.io/otel/metric/noop"
	noop_trace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const testJWTSecret = "test-permitting-secret-key"

type HandlerTestSuite struct {
	suite.Suite
	app   *fiber.App
	store *session.Store

	mockPrivateService     *MockPrivateService
	mockApplicationService *MockApplicationService
	mockAssessmentService  *MockAssessmentService
	mockPaymentService     *MockPaymentService
}

func (suite *HandlerTestSuite) SetupTest() {
	suite.mockPrivateService = &MockPrivateService{}
	suite.mockApplicationService = &MockApplicationService{}
	suite.mockAssessmentService = &MockAssessmentService{}
	suite.mockPaymentService = &MockPaymentService{}
	suite.store = session.New(session.Config{KeyLookup: "cookie:test-permitting-session"})

	log := zap.NewNop()
	meter := noop_metric.NewMeterProvider().Meter("test-handler-meter")
	tracer := noop_trace.NewTracerProvider().Tracer("test-handler-tracer")

	p := presenter.Presenter{
		PrivatePresenter:     private_handler.NewPrivateHandler(suite.mockPrivateService, suite.store, false, meter, tracer, log),
		ApplicationPresenter: applicationhandler.NewApplicationHandler(suite.mockApplicationService, meter, tracer, log),
		AssessmentPresenter:  assessmenthandler.NewAssessmentHandler(suite.mockAssessmentService, meter, tracer, log),
		PaymentPresenter:     paymenthandler.NewPaymentHandler(suite.mockPaymentService, meter, tracer, log),
	}

	roles, err := domain.ParseRoleCapabilities(domain.DefaultRoleCapabilities)
	suite.Require().NoError(err)

	suite.app = fiber.New()
	router.RegisterRoutes(
		suite.app.Group("/api/v1"),
		p,
		middleware.NewJWTAuthMiddleware(testJWTSecret, roles),
		middleware.NewCustomCSRFMiddleware(suite.store),
	)
}

func (suite *HandlerTestSuite) signToken(userID uint64, roles ...string) *http.Cookie {
	claims := &domain.JwtCustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	suite.Require().NoError(err)
	return &http.Cookie{Name: middleware.AuthCookie, Value: signed}
}

// authenticate returns a CSRF token and the cookies a logged-in browser would send.
func (suite *HandlerTestSuite) authenticate(userID uint64, roles ...string) (string, []*http.Cookie) {
	jwtCookie := suite.signToken(userID, roles...)

	csrfReq := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	csrfReq.AddCookie(jwtCookie)
	csrfResp, err := suite.app.Test(csrfReq)
	suite.Require().NoError(err)
	defer csrfResp.Body.Close()

	var csrfBody map[string]string
	suite.Require().NoError(json.NewDecoder(csrfResp.Body).Decode(&csrfBody))
	csrfToken := csrfBody["csrf_token"]
	suite.Require().NotEmpty(csrfToken)

	return csrfToken, append([]*http.Cookie{jwtCookie}, csrfResp.Cookies()...)
}

func (suite *HandlerTestSuite) do(req *http.Request) (*http.Response, map[string]any) {
	resp, err := suite.app.Test(req, -1)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	body := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		suite.Require().NoError(json.Unmarshal(raw, &body))
	}
	return resp, body
}

func createJSONRequestWithAuth(t *testing.T, csrfToken string, cookies []*http.Cookie, method, url string, body map[string]any) *http.Request {
	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		assert.NoError(t, err, "Failed to marshal request body")
		reader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		req.Header.Set(middleware.CSRFHeader, csrfToken)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func createMultipartRequestWithAuth(t *testing.T, csrfToken string, cookies []*http.Cookie, url, field, filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(middleware.CSRFHeader, csrfToken)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func sampleApplication(status domain.Status) *domain.Application {
	number := "2026-000001"
	return &domain.Application{
		ID:                42,
		ApplicationNumber: &number,
		EntityID:          7,
		PermitTypeID:      3,
		PermitTypeName:    "Perya",
		Status:            status,
		CreatorID:         2,
		CreatedAt:         time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Parameters:        []domain.Parameter{{Name: "has_signage", Value: "yes"}},
		AssessedFees: []domain.AssessedFee{
			{ID: 1, ApplicationID: 42, FeeName: "Mayor's Permit Fee", CategoryName: "Business Tax", AssessedAmount: decimal.RequireFromString("500")},
			{ID: 2, ApplicationID: 42, FeeName: "Sanitary Inspection Fee", CategoryName: "Regulatory Fees", AssessedAmount: decimal.RequireFromString("150")},
		},
	}
}
