package service

import (
	"context"
	"mime/multipart"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
)

type PrivateService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
}

type ApplicationService interface {
	Create(ctx context.Context, caller domain.Caller, req dto.CreateApplicationRequest) (*domain.Application, error)
	Get(ctx context.Context, id uint64) (*domain.Application, error)
	Delete(ctx context.Context, caller domain.Caller, id uint64) error
	ChangePermitType(ctx context.Context, caller domain.Caller, id uint64, req dto.ChangePermitTypeRequest) (*domain.Application, error)
	Submit(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error)
	Approve(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error)
	Reject(ctx context.Context, caller domain.Caller, id uint64, req dto.RejectRequest) (*domain.Application, error)
	// Issue stores document, or req.DocumentURL when document is nil, as the permit document.
	Issue(ctx context.Context, caller domain.Caller, id uint64, req dto.IssueRequest, document *multipart.FileHeader) (*domain.Application, error)
	Release(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error)
}

type AssessmentService interface {
	Assess(ctx context.Context, caller domain.Caller, id uint64, req dto.AssessRequest) (*domain.Application, error)
	UpdateFeeAmount(ctx context.Context, caller domain.Caller, id uint64, feeID uint64, req dto.UpdateFeeAmountRequest) (*domain.AssessedFee, error)
}

type PaymentService interface {
	RecordPayment(ctx context.Context, caller domain.Caller, id uint64, req dto.RecordPaymentRequest) (*domain.Payment, error)
	ListPayments(ctx context.Context, id uint64) ([]domain.Payment, error)
	OutstandingBalance(ctx context.Context, caller domain.Caller, id uint64) (*domain.Balance, error)
}

// DocumentStore keeps issued permit documents and returns their URL.
type DocumentStore interface {
	UploadDocument(ctx context.Context, file *multipart.FileHeader, applicationNumber string) (string, error)
}
