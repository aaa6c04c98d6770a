package model

import (
	"github.com/fazamuttaqien/permitting/internal/domain"
)

func ApplicationFromEntity(data *domain.Application) Application {
	app := Application{
		ID:                data.ID,
		ApplicationNumber: data.ApplicationNumber,
		EntityID:          data.EntityID,
		PermitTypeID:      data.PermitTypeID,
		Status:            string(data.Status),
		CreatorID:         data.CreatorID,
		AssessorID:        data.AssessorID,
		ApproverID:        data.ApproverID,
		RejectionReason:   data.RejectionReason,
		PermitDocumentURL: data.PermitDocumentURL,
		ApprovedAt:        data.ApprovedAt,
		RejectedAt:        data.RejectedAt,
		PaidAt:            data.PaidAt,
		IssuedAt:          data.IssuedAt,
		ReleasedAt:        data.ReleasedAt,
		Version:           data.Version,
	}
	if app.Version == 0 {
		app.Version = 1
	}
	app.Parameters = ParametersFromEntity(data.ID, data.Parameters)

	return app
}

// ApplicationToEntity maps the row and whatever associations were preloaded.
func ApplicationToEntity(data Application) *domain.Application {
	app := &domain.Application{
		ID:                data.ID,
		ApplicationNumber: data.ApplicationNumber,
		EntityID:          data.EntityID,
		PermitTypeID:      data.PermitTypeID,
		PermitTypeName:    data.PermitType.Name,
		Status:            domain.Status(data.Status),
		CreatorID:         data.CreatorID,
		AssessorID:        data.AssessorID,
		ApproverID:        data.ApproverID,
		RejectionReason:   data.RejectionReason,
		PermitDocumentURL: data.PermitDocumentURL,
		ApprovedAt:        data.ApprovedAt,
		RejectedAt:        data.RejectedAt,
		PaidAt:            data.PaidAt,
		IssuedAt:          data.IssuedAt,
		ReleasedAt:        data.ReleasedAt,
		Version:           data.Version,
		CreatedAt:         data.CreatedAt,
		UpdatedAt:         data.UpdatedAt,
	}

	app.Parameters = make([]domain.Parameter, len(data.Parameters))
	for i, p := range data.Parameters {
		app.Parameters[i] = domain.Parameter{Name: p.ParamName, Value: p.ParamValue}
	}

	app.AssessedFees = AssessedFeesToEntity(data.AssessedFees)
	app.Payments = PaymentsToEntity(data.Payments)

	return app
}

func ParametersFromEntity(applicationID uint64, params []domain.Parameter) []ApplicationParameter {
	rows := make([]ApplicationParameter, len(params))
	for i, p := range params {
		rows[i] = ApplicationParameter{
			ApplicationID: applicationID,
			Position:      i,
			ParamName:     p.Name,
			ParamValue:    p.Value,
		}
	}
	return rows
}

func AssessedFeesFromEntity(applicationID uint64, fees []domain.AssessedFee) []AssessedFee {
	rows := make([]AssessedFee, len(fees))
	for i, f := range fees {
		rows[i] = AssessedFee{
			ApplicationID:  applicationID,
			FeeID:          f.FeeID,
			FeeName:        f.FeeName,
			CategoryName:   f.CategoryName,
			AssessedAmount: f.AssessedAmount,
			Position:       i,
			Locked:         f.Locked,
		}
	}
	return rows
}

func AssessedFeeToEntity(data AssessedFee) domain.AssessedFee {
	return domain.AssessedFee{
		ID:             data.ID,
		ApplicationID:  data.ApplicationID,
		FeeID:          data.FeeID,
		FeeName:        data.FeeName,
		CategoryName:   data.CategoryName,
		AssessedAmount: data.AssessedAmount,
		Locked:         data.Locked,
	}
}

func AssessedFeesToEntity(data []AssessedFee) []domain.AssessedFee {
	responses := make([]domain.AssessedFee, len(data))
	for i, f := range data {
		responses[i] = AssessedFeeToEntity(f)
	}
	return responses
}

func PaymentFromEntity(data *domain.Payment) Payment {
	return Payment{
		ID:                data.ID,
		ApplicationID:     data.ApplicationID,
		OfficialReceiptNo: data.OfficialReceiptNo,
		PaymentDate:       data.PaymentDate,
		Amount:            data.Amount,
		Address:           data.Address,
		RecordedBy:        data.RecordedBy,
		IdempotencyKey:    data.IdempotencyKey,
	}
}

func PaymentToEntity(data Payment) domain.Payment {
	return domain.Payment{
		ID:                data.ID,
		ApplicationID:     data.ApplicationID,
		OfficialReceiptNo: data.OfficialReceiptNo,
		PaymentDate:       data.PaymentDate,
		Amount:            data.Amount,
		Address:           data.Address,
		RecordedBy:        data.RecordedBy,
		RecordedByName:    data.Recorder.FullName,
		IdempotencyKey:    data.IdempotencyKey,
		CreatedAt:         data.CreatedAt,
	}
}

func PaymentsToEntity(data []Payment) []domain.Payment {
	responses := make([]domain.Payment, len(data))
	for i, p := range data {
		responses[i] = PaymentToEntity(p)
	}
	return responses
}
