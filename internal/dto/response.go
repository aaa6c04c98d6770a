package dto

import (
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/pkg/money"
)

type LoginResponse struct {
	Token string `json:"token"`
}

type ParameterResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type AssessedFeeResponse struct {
	ID             uint64 `json:"id"`
	FeeID          *uint  `json:"fee_id"`
	FeeName        string `json:"fee_name"`
	CategoryName   string `json:"category_name"`
	AssessedAmount string `json:"assessed_amount"`
	Locked         bool   `json:"locked"`
}

type PaymentResponse struct {
	ID                uint64    `json:"id"`
	ApplicationID     uint64    `json:"application_id"`
	OfficialReceiptNo string    `json:"official_receipt_no"`
	PaymentDate       string    `json:"payment_date"`
	Amount            string    `json:"amount"`
	Address           *string   `json:"address,omitempty"`
	RecordedBy        uint64    `json:"recorded_by"`
	RecordedByName    string    `json:"recorded_by_name"`
	IdempotencyKey    *string   `json:"idempotency_key,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type BalanceResponse struct {
	Total       string `json:"total"`
	Collected   string `json:"collected"`
	Outstanding string `json:"outstanding"`
	Overpaid    string `json:"overpaid"`
}

type ApplicationResponse struct {
	ID                uint64                `json:"id"`
	ApplicationNumber *string               `json:"application_number"`
	EntityID          uint64                `json:"entity_id"`
	PermitTypeID      uint                  `json:"permit_type_id"`
	PermitTypeName    string                `json:"permit_type_name"`
	Status            domain.Status         `json:"status"`
	CreatorID         uint64                `json:"creator_id"`
	AssessorID        *uint64               `json:"assessor_id"`
	ApproverID        *uint64               `json:"approver_id"`
	RejectionReason   *string               `json:"rejection_reason,omitempty"`
	PermitDocumentURL *string               `json:"permit_document_url,omitempty"`
	ApprovedAt        *time.Time            `json:"approved_at,omitempty"`
	RejectedAt        *time.Time            `json:"rejected_at,omitempty"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
	IssuedAt          *time.Time            `json:"issued_at,omitempty"`
	ReleasedAt        *time.Time            `json:"released_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	Parameters        []ParameterResponse   `json:"parameters"`
	AssessedFees      []AssessedFeeResponse `json:"assessed_fees"`
	Payments          []PaymentResponse     `json:"payments"`
	Balance           BalanceResponse       `json:"balance"`
}

func ToAssessedFeeResponse(f domain.AssessedFee) AssessedFeeResponse {
	return AssessedFeeResponse{
		ID:             f.ID,
		FeeID:          f.FeeID,
		FeeName:        f.FeeName,
		CategoryName:   f.CategoryName,
		AssessedAmount: money.String(f.AssessedAmount),
		Locked:         f.Locked,
	}
}

func ToPaymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                p.ID,
		ApplicationID:     p.ApplicationID,
		OfficialReceiptNo: p.OfficialReceiptNo,
		PaymentDate:       p.PaymentDate.Format(time.DateOnly),
		Amount:            money.String(p.Amount),
		Address:           p.Address,
		RecordedBy:        p.RecordedBy,
		RecordedByName:    p.RecordedByName,
		IdempotencyKey:    p.IdempotencyKey,
		CreatedAt:         p.CreatedAt,
	}
}

func ToPaymentResponses(payments []domain.Payment) []PaymentResponse {
	responses := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		responses[i] = ToPaymentResponse(p)
	}
	return responses
}

func ToBalanceResponse(b domain.Balance) BalanceResponse {
	return BalanceResponse{
		Total:       money.String(b.Total),
		Collected:   money.String(b.Collected),
		Outstanding: money.String(b.Outstanding),
		Overpaid:    money.String(b.Overpaid),
	}
}

func ToApplicationResponse(app *domain.Application) ApplicationResponse {
	params := make([]ParameterResponse, len(app.Parameters))
	for i, p := range app.Parameters {
		params[i] = ParameterResponse{Name: p.Name, Value: p.Value}
	}

	fees := make([]AssessedFeeResponse, len(app.AssessedFees))
	for i, f := range app.AssessedFees {
		fees[i] = ToAssessedFeeResponse(f)
	}

	return ApplicationResponse{
		ID:                app.ID,
		ApplicationNumber: app.ApplicationNumber,
		EntityID:          app.EntityID,
		PermitTypeID:      app.PermitTypeID,
		PermitTypeName:    app.PermitTypeName,
		Status:            app.Status,
		CreatorID:         app.CreatorID,
		AssessorID:        app.AssessorID,
		ApproverID:        app.ApproverID,
		RejectionReason:   app.RejectionReason,
		PermitDocumentURL: app.PermitDocumentURL,
		ApprovedAt:        app.ApprovedAt,
		RejectedAt:        app.RejectedAt,
		PaidAt:            app.PaidAt,
		IssuedAt:          app.IssuedAt,
		ReleasedAt:        app.ReleasedAt,
		CreatedAt:         app.CreatedAt,
		Parameters:        params,
		AssessedFees:      fees,
		Payments:          ToPaymentResponses(app.Payments),
		Balance:           ToBalanceResponse(app.Balance()),
	}
}

func ToParameters(params []ParameterRequest) []domain.Parameter {
	out := make([]domain.Parameter, len(params))
	for i, p := range params {
		out[i] = domain.Parameter{Name: p.Name, Value: p.Value}
	}
	return out
}
