package main

import (
	"fmt"
	"testing"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, model.AutoMigrate(db))
	return db
}

func TestLoadCatalog_Bundled(t *testing.T) {
	catalog, err := LoadCatalog("../../seeds/catalog.yaml")
	require.NoError(t, err)

	assert.Len(t, catalog.Categories, 2)
	assert.NotEmpty(t, catalog.PermitTypes)
	assert.NotEmpty(t, catalog.Users)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown fee in rule",
			doc: `
permit_types:
  - name: Perya
    rules:
      - fee: Nope
`,
		},
		{
			name: "three fraction digits",
			doc: `
categories:
  - name: Tax
    fees:
      - name: Fee
        default_amount: "1.005"
`,
		},
		{
			name: "attribute name without value",
			doc: `
categories:
  - name: Tax
    fees:
      - name: Fee
        default_amount: "1"
permit_types:
  - name: Perya
    rules:
      - fee: Fee
        attribute_name: has_signage
`,
		},
		{
			name: "unknown formula type",
			doc: `
categories:
  - name: Tax
    fees:
      - name: Fee
        default_amount: "1"
permit_types:
  - name: Perya
    rules:
      - fee: Fee
        formula:
          type: sqrt
`,
		},
		{
			name: "user without roles",
			doc: `
users:
  - username: clerk
    password: secret
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseCatalog_NormalizesFormula(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
categories:
  - name: Tax
    fees:
      - name: Capital Tax
        default_amount: "0"
permit_types:
  - name: Retail
    rules:
      - fee: Capital Tax
        formula:
          type: tiered
          param: floor_area
          tiers:
            - up_to: 50
              amount: "300.00"
            - amount: "1500.00"
`))
	require.NoError(t, err)

	rule := catalog.PermitTypes[0].Rules[0]
	require.NotNil(t, rule.formula)

	fr, err := model.RuleToEntity(model.PermitTypeRule{Formula: rule.formula})
	require.NoError(t, err)
	require.NotNil(t, fr.Formula)
	assert.Equal(t, domain.FormulaTiered, fr.Formula.Type)
	require.Len(t, fr.Formula.Tiers, 2)
	assert.Equal(t, "50", fr.Formula.Tiers[0].UpTo.String())
	assert.Nil(t, fr.Formula.Tiers[1].UpTo)
}

func TestSeed_IsRepeatable(t *testing.T) {
	db := openTestDB(t)
	catalog, err := LoadCatalog("../../seeds/catalog.yaml")
	require.NoError(t, err)

	require.NoError(t, Seed(db, catalog, zap.NewNop()))
	require.NoError(t, Seed(db, catalog, zap.NewNop()))

	var users, fees, rules int64
	require.NoError(t, db.Model(&model.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&model.Fee{}).Count(&fees).Error)
	require.NoError(t, db.Model(&model.PermitTypeRule{}).Count(&rules).Error)
	assert.Equal(t, int64(len(catalog.Users)), users)
	assert.Equal(t, int64(6), fees)

	expectedRules := 0
	for _, pt := range catalog.PermitTypes {
		expectedRules += len(pt.Rules)
	}
	assert.Equal(t, int64(expectedRules), rules)

	var retired model.PermitType
	require.NoError(t, db.Where("name = ?", "Cockpit Arena").First(&retired).Error)
	assert.False(t, retired.Active)

	var clerk model.User
	require.NoError(t, db.Where("username = ?", "clerk").First(&clerk).Error)
	assert.Equal(t, []string{"Application Creator"}, model.SplitRoles(clerk.Roles))
	assert.NotEqual(t, "clerk123", clerk.PasswordHash)
}
