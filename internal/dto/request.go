package dto

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ParameterRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Value string `json:"value" validate:"max=255"`
}

type CreateApplicationRequest struct {
	EntityID     uint64             `json:"entity_id" validate:"required"`
	PermitTypeID uint               `json:"permit_type_id" validate:"required"`
	Parameters   []ParameterRequest `json:"parameters" validate:"dive"`
}

type ChangePermitTypeRequest struct {
	PermitTypeID uint `json:"permit_type_id" validate:"required"`
}

type AssessRequest struct {
	ExtraParameters []ParameterRequest `json:"extra_parameters" validate:"dive"`
}

// UpdateFeeAmountRequest carries the amount as a decimal string, e.g. "500.00".
type UpdateFeeAmountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type IssueRequest struct {
	DocumentURL string `json:"document_url" form:"document_url" validate:"omitempty,url"`
}

type RecordPaymentRequest struct {
	OfficialReceiptNo string  `json:"official_receipt_no" validate:"required,max=100"`
	PaymentDate       string  `json:"payment_date" validate:"required"`
	Amount            string  `json:"amount" validate:"required"`
	Address           *string `json:"address" validate:"omitempty,max=255"`
	IdempotencyKey    *string `json:"idempotency_key" validate:"omitempty,max=100"`
}
