// Package assessment computes the assessed fee lines of an application from
// its permit type rules, the fee catalog and the application parameters.
package assessment

import (
	"fmt"
	"strings"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/money"

	"github.com/shopspring/decimal"
)

// Applicable filters rules down to the ones that apply to params: rules
// without an attribute always apply, scoped rules need a matching parameter.
func Applicable(rules []domain.FeeRule, params []domain.Parameter) []domain.FeeRule {
	applicable := make([]domain.FeeRule, 0, len(rules))
	for _, rule := range rules {
		if rule.AttributeName == nil || *rule.AttributeName == "" {
			applicable = append(applicable, rule)
			continue
		}

		want := ""
		if rule.AttributeValue != nil {
			want = *rule.AttributeValue
		}
		for _, p := range params {
			if strings.EqualFold(p.Name, *rule.AttributeName) && strings.EqualFold(strings.TrimSpace(p.Value), want) {
				applicable = append(applicable, rule)
				break
			}
		}
	}
	return applicable
}

// Compute resolves each rule to a fee line. fees must hold every fee
// referenced by rules, keyed by fee id.
func Compute(applicationID uint64, rules []domain.FeeRule, fees map[uint]domain.Fee, params []domain.Parameter) ([]domain.AssessedFee, error) {
	if len(rules) == 0 {
		return nil, common.NewValidation("application", applicationID, "permit type has no assessable fee rules")
	}

	lines := make([]domain.AssessedFee, 0, len(rules))
	for _, rule := range rules {
		fee, ok := fees[rule.FeeID]
		if !ok {
			return nil, common.NewValidation("fee", rule.FeeID, "fee rule %d references a fee missing from the catalog", rule.ID)
		}

		amount, err := Evaluate(rule.Formula, fee.DefaultAmount, params)
		if err != nil {
			return nil, common.NewValidation("fee", fee.ID, "%s: %v", fee.Name, err)
		}

		feeID := fee.ID
		lines = append(lines, domain.AssessedFee{
			ApplicationID:  applicationID,
			FeeID:          &feeID,
			FeeName:        fee.Name,
			CategoryName:   fee.CategoryName,
			AssessedAmount: amount,
		})
	}

	return lines, nil
}

// Evaluate returns the amount of one fee line rounded half up to the cent.
// A nil formula means the catalog default amount.
func Evaluate(formula *domain.Formula, defaultAmount decimal.Decimal, params []domain.Parameter) (decimal.Decimal, error) {
	if formula == nil {
		return checked(money.Round(defaultAmount))
	}

	var amount decimal.Decimal
	switch formula.Type {
	case domain.FormulaFixed:
		if formula.Amount == nil {
			return decimal.Zero, errorf("fixed formula has no amount")
		}
		amount = *formula.Amount

	case domain.FormulaRate:
		if formula.Rate == nil {
			return decimal.Zero, errorf("rate formula has no rate")
		}
		value, err := numericParam(params, formula.Param)
		if err != nil {
			return decimal.Zero, err
		}
		amount = formula.Rate.Mul(value)

	case domain.FormulaPerUnit:
		value, err := numericParam(params, formula.Param)
		if err != nil {
			return decimal.Zero, err
		}
		unit := defaultAmount
		if formula.Amount != nil {
			unit = *formula.Amount
		}
		amount = unit.Mul(value)

	case domain.FormulaTiered:
		value, err := numericParam(params, formula.Param)
		if err != nil {
			return decimal.Zero, err
		}
		tier, ok := pickTier(formula.Tiers, value)
		if !ok {
			return decimal.Zero, errorf("no tier covers %s=%s", formula.Param, value.String())
		}
		amount = tier.Amount

	default:
		return decimal.Zero, errorf("unknown formula type %q", formula.Type)
	}

	if formula.Min != nil && amount.LessThan(*formula.Min) {
		amount = *formula.Min
	}
	if formula.Max != nil && amount.GreaterThan(*formula.Max) {
		amount = *formula.Max
	}

	return checked(money.Round(amount))
}

func pickTier(tiers []domain.Tier, value decimal.Decimal) (domain.Tier, bool) {
	for _, tier := range tiers {
		if tier.UpTo == nil || value.LessThanOrEqual(*tier.UpTo) {
			return tier, true
		}
	}
	return domain.Tier{}, false
}

// numericParam reads the first parameter called name as a decimal.
func numericParam(params []domain.Parameter, name string) (decimal.Decimal, error) {
	if name == "" {
		return decimal.Zero, errorf("formula does not name a parameter")
	}
	for _, p := range params {
		if !strings.EqualFold(p.Name, name) {
			continue
		}
		value, err := money.ParseQuantity(p.Value)
		if err != nil {
			return decimal.Zero, errorf("parameter %q is not numeric: %q", name, p.Value)
		}
		if value.IsNegative() {
			return decimal.Zero, errorf("parameter %q is negative", name)
		}
		return value, nil
	}
	return decimal.Zero, errorf("parameter %q is required", name)
}

// checked rejects amounts that are negative or too large to store.
func checked(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, errorf("computed amount %s is negative", d.StringFixed(money.Scale))
	}
	if !money.Fits(d) {
		return decimal.Zero, errorf("computed amount exceeds the maximum of %s", money.String(money.Max))
	}
	return d, nil
}

func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
