package handler_test

import (
	"net/http"
	"testing"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type AssessmentHandlerTestSuite struct {
	HandlerTestSuite
}

func (suite *AssessmentHandlerTestSuite) TestAssess() {
	csrfToken, cookies := suite.authenticate(3, "Assessor")

	suite.Run("Success - Without a body", func() {
		suite.mockAssessmentService.MockApplication = sampleApplication(domain.StatusAssessed)
		suite.mockAssessmentService.MockError = nil

		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPost, "/api/v1/applications/42/assess", nil)
		resp, got := suite.do(req)

		suite.Equal(http.StatusOK, resp.StatusCode)
		suite.Equal("ASSESSED", got["status"])
		suite.Len(got["assessed_fees"], 2)
		suite.Empty(suite.mockAssessmentService.LastAssess.ExtraParameters)
	})

	suite.Run("Success - Extra parameters are forwarded", func() {
		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPost, "/api/v1/applications/42/assess",
			map[string]any{"extra_parameters": []map[string]any{{"name": "has_signage", "value": "yes"}}})
		resp, _ := suite.do(req)

		suite.Equal(http.StatusOK, resp.StatusCode)
		suite.Require().Len(suite.mockAssessmentService.LastAssess.ExtraParameters, 1)
		suite.Equal("has_signage", suite.mockAssessmentService.LastAssess.ExtraParameters[0].Name)
	})

	suite.Run("Failure - Extra parameter without a name", func() {
		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPost, "/api/v1/applications/42/assess",
			map[string]any{"extra_parameters": []map[string]any{{"value": "yes"}}})
		resp, _ := suite.do(req)

		suite.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	suite.Run("Failure - No rules resolve", func() {
		suite.mockAssessmentService.MockError = common.NewValidation("application", uint64(42), "no fee rules resolve for permit type 3")

		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPost, "/api/v1/applications/42/assess", nil)
		resp, _ := suite.do(req)

		suite.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (suite *AssessmentHandlerTestSuite) TestUpdateFeeAmount() {
	csrfToken, cookies := suite.authenticate(3, "Assessor")

	suite.Run("Success - Fee corrected", func() {
		suite.mockAssessmentService.MockFee = &domain.AssessedFee{
			ID: 2, ApplicationID: 42, FeeName: "Sanitary Inspection Fee", AssessedAmount: decimal.RequireFromString("175.5"),
		}
		suite.mockAssessmentService.MockError = nil

		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPut, "/api/v1/applications/42/fees/2",
			map[string]any{"amount": "175.50"})
		resp, got := suite.do(req)

		suite.Equal(http.StatusOK, resp.StatusCode)
		suite.Equal("175.50", got["assessed_amount"])
		suite.Equal(uint64(2), suite.mockAssessmentService.LastFeeID)
		suite.Equal("175.50", suite.mockAssessmentService.LastAmount)
	})

	suite.Run("Failure - Fees locked", func() {
		suite.mockAssessmentService.MockError = common.NewConflict("application", uint64(42), "fees are locked")

		req := createJSONRequestWithAuth(suite.T(), csrfToken, cookies, http.MethodPut, "/api/v1/applications/42/fees/2",
			map[string]any{"amount": "10.00"})
		resp, _ := suite.do(req)

		suite.Equal(http.StatusConflict, resp.StatusCode)
	})

	suite.Run("Failure - Cashier is refused before the service", func() {
		suite.mockAssessmentService.LastFeeID = 0
		csrf, cashier := suite.authenticate(5, "Cashier")

		req := createJSONRequestWithAuth(suite.T(), csrf, cashier, http.MethodPut, "/api/v1/applications/42/fees/2",
			map[string]any{"amount": "10.00"})
		resp, _ := suite.do(req)

		suite.Equal(http.StatusForbidden, resp.StatusCode)
		suite.Zero(suite.mockAssessmentService.LastFeeID)
	})
}

func TestAssessmentHandlerSuite(t *testing.T) {
	suite.Run(t, new(AssessmentHandlerTestSuite))
}
