package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/pkg/money"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

type Catalog struct {
	Categories  []CategorySeed   `yaml:"categories"`
	PermitTypes []PermitTypeSeed `yaml:"permit_types"`
	Entities    []EntitySeed     `yaml:"entities"`
	Users       []UserSeed       `yaml:"users"`
}

type CategorySeed struct {
	Name string    `yaml:"name"`
	Fees []FeeSeed `yaml:"fees"`
}

type FeeSeed struct {
	Name          string `yaml:"name"`
	DefaultAmount string `yaml:"default_amount"`

	amount decimal.Decimal
}

type PermitTypeSeed struct {
	Name   string     `yaml:"name"`
	Active *bool      `yaml:"active"`
	Rules  []RuleSeed `yaml:"rules"`
}

func (p PermitTypeSeed) IsActive() bool {
	return p.Active == nil || *p.Active
}

type RuleSeed struct {
	Fee            string         `yaml:"fee"`
	AttributeName  *string        `yaml:"attribute_name"`
	AttributeValue *string        `yaml:"attribute_value"`
	Formula        map[string]any `yaml:"formula"`

	formula datatypes.JSON
}

type EntitySeed struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type UserSeed struct {
	Username string   `yaml:"username"`
	FullName string   `yaml:"full_name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and checks a catalog document. Fee amounts and rule
// formulas are normalized so the seeder can insert them as-is.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	fees := make(map[string]struct{})
	for i := range c.Categories {
		cat := &c.Categories[i]
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("category %d: name is required", i)
		}
		for j := range cat.Fees {
			fee := &cat.Fees[j]
			if _, dup := fees[fee.Name]; dup {
				return nil, fmt.Errorf("fee %q is declared twice", fee.Name)
			}
			amount, err := money.Parse(fee.DefaultAmount)
			if err != nil {
				return nil, fmt.Errorf("fee %q: %w", fee.Name, err)
			}
			if money.IsNegative(amount) {
				return nil, fmt.Errorf("fee %q: default amount is negative", fee.Name)
			}
			fee.amount = amount
			fees[fee.Name] = struct{}{}
		}
	}

	for i := range c.PermitTypes {
		pt := &c.PermitTypes[i]
		for j := range pt.Rules {
			rule := &pt.Rules[j]
			if _, ok := fees[rule.Fee]; !ok {
				return nil, fmt.Errorf("permit type %q: unknown fee %q", pt.Name, rule.Fee)
			}
			if (rule.AttributeName == nil) != (rule.AttributeValue == nil) {
				return nil, fmt.Errorf("permit type %q: rule for %q needs both attribute name and value", pt.Name, rule.Fee)
			}
			if rule.Formula == nil {
				continue
			}
			formula, err := normalizeFormula(rule.Formula)
			if err != nil {
				return nil, fmt.Errorf("permit type %q: rule for %q: %w", pt.Name, rule.Fee, err)
			}
			rule.formula = formula
		}
	}

	for _, u := range c.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("user %q: username and password are required", u.Username)
		}
		if len(u.Roles) == 0 {
			return nil, fmt.Errorf("user %q: at least one role is required", u.Username)
		}
	}

	return &c, nil
}

func normalizeFormula(node map[string]any) (datatypes.JSON, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}

	var f domain.Formula
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("formula: %w", err)
	}

	switch f.Type {
	case domain.FormulaFixed:
	case domain.FormulaRate:
		if f.Param == "" || f.Rate == nil {
			return nil, fmt.Errorf("rate formula needs param and rate")
		}
	case domain.FormulaPerUnit:
		if f.Param == "" {
			return nil, fmt.Errorf("per_unit formula needs param")
		}
	case domain.FormulaTiered:
		if f.Param == "" || len(f.Tiers) == 0 {
			return nil, fmt.Errorf("tiered formula needs param and tiers")
		}
	default:
		return nil, fmt.Errorf("unknown formula type %q", f.Type)
	}

	out, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}
