package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fazamuttaqien/permitting/internal/domain"
)

func FeeToEntity(data Fee) domain.Fee {
	return domain.Fee{
		ID:            data.ID,
		CategoryID:    data.CategoryID,
		CategoryName:  data.Category.Name,
		Name:          data.Name,
		DefaultAmount: data.DefaultAmount,
	}
}

func FeesToEntity(data []Fee) []domain.Fee {
	responses := make([]domain.Fee, len(data))
	for i, f := range data {
		responses[i] = FeeToEntity(f)
	}
	return responses
}

func PermitTypeToEntity(data PermitType) *domain.PermitType {
	return &domain.PermitType{
		ID:     data.ID,
		Name:   data.Name,
		Active: data.Active,
	}
}

// RuleToEntity decodes the stored formula. An empty or JSON null formula
// maps to nil.
func RuleToEntity(data PermitTypeRule) (domain.FeeRule, error) {
	rule := domain.FeeRule{
		ID:             data.ID,
		PermitTypeID:   data.PermitTypeID,
		FeeID:          data.FeeID,
		AttributeName:  data.AttributeName,
		AttributeValue: data.AttributeValue,
	}

	raw := strings.TrimSpace(string(data.Formula))
	if raw == "" || raw == "null" {
		return rule, nil
	}

	var formula domain.Formula
	if err := json.Unmarshal(data.Formula, &formula); err != nil {
		return domain.FeeRule{}, fmt.Errorf("permit type rule %d has an invalid formula: %w", data.ID, err)
	}
	rule.Formula = &formula

	return rule, nil
}

func RulesToEntity(data []PermitTypeRule) ([]domain.FeeRule, error) {
	rules := make([]domain.FeeRule, 0, len(data))
	for _, r := range data {
		rule, err := RuleToEntity(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func EntityToEntity(data Entity) *domain.Entity {
	return &domain.Entity{
		ID:      data.ID,
		Name:    data.Name,
		Address: data.Address,
	}
}

func UserToEntity(data User) *domain.User {
	return &domain.User{
		ID:           data.ID,
		Username:     data.Username,
		FullName:     data.FullName,
		PasswordHash: data.PasswordHash,
		Roles:        SplitRoles(data.Roles),
	}
}

func SplitRoles(roles string) []string {
	var out []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func AuditEntryFromEntity(data *domain.AuditEntry) AuditEntry {
	return AuditEntry{
		ActorID:       data.ActorID,
		ApplicationID: data.ApplicationID,
		ActionCode:    data.ActionCode,
		Description:   data.Description,
	}
}

func AuditEntryToEntity(data AuditEntry) domain.AuditEntry {
	return domain.AuditEntry{
		ID:            data.ID,
		ActorID:       data.ActorID,
		ApplicationID: data.ApplicationID,
		ActionCode:    data.ActionCode,
		Description:   data.Description,
		CreatedAt:     data.CreatedAt,
	}
}
