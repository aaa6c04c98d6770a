package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/money"
)

// ValidateParameters rejects parameters without a name. Values may be empty
// and names may repeat.
func ValidateParameters(entity string, id any, params []domain.Parameter) error {
	for i, p := range params {
		if strings.TrimSpace(p.Name) == "" {
			return common.NewValidation(entity, id, "parameter %d has an empty name", i+1)
		}
	}
	return nil
}

// ActivePermitType reports an unknown or retired permit type as a validation error.
func ActivePermitType(ctx context.Context, catalog repository.CatalogRepository, id uint) error {
	permitType, err := catalog.FindPermitType(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidation("permit_type", id, "permit type does not exist")
		}
		return err
	}
	if !permitType.Active {
		return common.NewValidation("permit_type", id, "permit type %s is not active", permitType.Name)
	}
	return nil
}

// PayableTotal rejects an application whose assessed total is 0.00. Such an
// application could never collect a payment and would stay APPROVED forever.
func PayableTotal(app *domain.Application) error {
	if !money.IsPositive(app.TotalAssessed()) {
		return common.NewValidation("application", app.ID, "total assessed is %s, nothing is payable", money.String(app.TotalAssessed()))
	}
	return nil
}

// AssignNumber allocates the application number on the first write that
// needs one. An assigned number is never replaced.
func AssignNumber(ctx context.Context, apps repository.ApplicationRepository, app *domain.Application, update *repository.StatusUpdate, now time.Time) error {
	if app.ApplicationNumber != nil {
		return nil
	}

	number, err := apps.NextApplicationNumber(ctx, now)
	if err != nil {
		return err
	}
	update.Columns["application_number"] = number
	return nil
}
