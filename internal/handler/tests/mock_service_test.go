package handler_test

import (
	"context"
	"mime/multipart"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
)

type MockPrivateService struct {
	MockLoginResult *dto.LoginResponse
	MockError       error
}

func (m *MockPrivateService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockLoginResult, nil
}

type MockApplicationService struct {
	MockApplication *domain.Application
	MockError       error

	LastCaller     domain.Caller
	LastID         uint64
	LastReject     dto.RejectRequest
	LastIssue      dto.IssueRequest
	LastDocument   *multipart.FileHeader
	LastOperation  string
	LastCreate     dto.CreateApplicationRequest
	LastPermitType dto.ChangePermitTypeRequest
}

func (m *MockApplicationService) result(op string, caller domain.Caller, id uint64) (*domain.Application, error) {
	m.LastOperation = op
	m.LastCaller = caller
	m.LastID = id
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockApplication, nil
}

func (m *MockApplicationService) Create(ctx context.Context, caller domain.Caller, req dto.CreateApplicationRequest) (*domain.Application, error) {
	m.LastCreate = req
	return m.result("create", caller, 0)
}

func (m *MockApplicationService) Get(ctx context.Context, id uint64) (*domain.Application, error) {
	return m.result("get", domain.Caller{}, id)
}

func (m *MockApplicationService) Delete(ctx context.Context, caller domain.Caller, id uint64) error {
	_, err := m.result("delete", caller, id)
	return err
}

func (m *MockApplicationService) ChangePermitType(ctx context.Context, caller domain.Caller, id uint64, req dto.ChangePermitTypeRequest) (*domain.Application, error) {
	m.LastPermitType = req
	return m.result("change_permit_type", caller, id)
}

func (m *MockApplicationService) Submit(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	return m.result("submit", caller, id)
}

func (m *MockApplicationService) Approve(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	return m.result("approve", caller, id)
}

func (m *MockApplicationService) Reject(ctx context.Context, caller domain.Caller, id uint64, req dto.RejectRequest) (*domain.Application, error) {
	m.LastReject = req
	return m.result("reject", caller, id)
}

func (m *MockApplicationService) Issue(ctx context.Context, caller domain.Caller, id uint64, req dto.IssueRequest, document *multipart.FileHeader) (*domain.Application, error) {
	m.LastIssue = req
	m.LastDocument = document
	return m.result("issue", caller, id)
}

func (m *MockApplicationService) Release(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	return m.result("release", caller, id)
}

type MockAssessmentService struct {
	MockApplication *domain.Application
	MockFee         *domain.AssessedFee
	MockError       error

	LastAssess dto.AssessRequest
	LastFeeID  uint64
	LastAmount string
}

func (m *MockAssessmentService) Assess(ctx context.Context, caller domain.Caller, id uint64, req dto.AssessRequest) (*domain.Application, error) {
	m.LastAssess = req
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockApplication, nil
}

func (m *MockAssessmentService) UpdateFeeAmount(ctx context.Context, caller domain.Caller, id uint64, feeID uint64, req dto.UpdateFeeAmountRequest) (*domain.AssessedFee, error) {
	m.LastFeeID = feeID
	m.LastAmount = req.Amount
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockFee, nil
}

type MockPaymentService struct {
	MockPayment  *domain.Payment
	MockPayments []domain.Payment
	MockBalance  *domain.Balance
	MockError    error

	LastRequest dto.RecordPaymentRequest
}

func (m *MockPaymentService) RecordPayment(ctx context.Context, caller domain.Caller, id uint64, req dto.RecordPaymentRequest) (*domain.Payment, error) {
	m.LastRequest = req
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayment, nil
}

func (m *MockPaymentService) ListPayments(ctx context.Context, id uint64) ([]domain.Payment, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayments, nil
}

func (m *MockPaymentService) OutstandingBalance(ctx context.Context, caller domain.Caller, id uint64) (*domain.Balance, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockBalance, nil
}
