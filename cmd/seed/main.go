// Command seed loads fee categories, permit types, entities and staff users
// from a YAML catalog. Running it twice is harmless.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fazamuttaqien/permitting/config"
	mysqldb "github.com/fazamuttaqien/permitting/infra/mysql"
	postgresdb "github.com/fazamuttaqien/permitting/infra/postgres"
	"github.com/fazamuttaqien/permitting/internal/model"
	catalogrepo "github.com/fazamuttaqien/permitting/internal/repository/catalog"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/money"
	"github.com/fazamuttaqien/permitting/pkg/password"

	"github.com/joho/godotenv"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	path := flag.String("catalog", common.GetEnv("SEED_CATALOG", "seeds/catalog.yaml"), "path to the catalog file")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables", zap.Error(err))
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	catalog, err := LoadCatalog(*path)
	if err != nil {
		log.Fatal("Invalid catalog", zap.String("path", *path), zap.Error(err))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.String("driver", cfg.DB_DRIVER), zap.Error(err))
	}
	defer func() {
		if err := mysqldb.Close(db, context.Background()); err != nil {
			log.Error("Error disconnecting from database", zap.Error(err))
		}
	}()

	if err := model.AutoMigrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return Seed(tx, catalog, log)
	}); err != nil {
		log.Error("Seeding failed", zap.Error(err))
		os.Exit(1)
	}

	report(context.Background(), db, log)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB_DRIVER {
	case "postgres":
		return postgresdb.Connect(cfg)
	default:
		return mysqldb.InitializeDatabase(cfg)
	}
}

// Seed inserts everything in catalog that is not already present. Rules are
// only written for permit types created by this run.
func Seed(db *gorm.DB, catalog *Catalog, log *zap.Logger) error {
	feeIDs := make(map[string]uint)

	for _, c := range catalog.Categories {
		category := model.FeeCategory{Name: c.Name}
		if err := db.Where(model.FeeCategory{Name: c.Name}).FirstOrCreate(&category).Error; err != nil {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}

		for _, f := range c.Fees {
			fee := model.Fee{CategoryID: category.ID, Name: f.Name, DefaultAmount: f.amount}
			if err := db.Where(model.Fee{CategoryID: category.ID, Name: f.Name}).FirstOrCreate(&fee).Error; err != nil {
				return fmt.Errorf("seed fee %q: %w", f.Name, err)
			}
			feeIDs[f.Name] = fee.ID
		}
	}
	log.Info("Fee catalog seeded", zap.Int("fees", len(feeIDs)))

	for _, p := range catalog.PermitTypes {
		var permitType model.PermitType
		result := db.Where(model.PermitType{Name: p.Name}).Attrs(model.PermitType{Active: true}).FirstOrCreate(&permitType)
		if result.Error != nil {
			return fmt.Errorf("seed permit type %q: %w", p.Name, result.Error)
		}

		// Active has a column default, so a false zero value is skipped on insert.
		if permitType.Active != p.IsActive() {
			if err := db.Model(&permitType).Update("active", p.IsActive()).Error; err != nil {
				return fmt.Errorf("set permit type %q active=%t: %w", p.Name, p.IsActive(), err)
			}
		}

		if result.RowsAffected == 0 {
			log.Info("Permit type already exists, rules left untouched", zap.String("permit_type", p.Name))
			continue
		}

		rules := make([]model.PermitTypeRule, 0, len(p.Rules))
		for i, r := range p.Rules {
			rules = append(rules, model.PermitTypeRule{
				PermitTypeID:   permitType.ID,
				FeeID:          feeIDs[r.Fee],
				AttributeName:  r.AttributeName,
				AttributeValue: r.AttributeValue,
				Formula:        r.formula,
				Position:       i,
			})
		}
		if len(rules) > 0 {
			if err := db.Create(&rules).Error; err != nil {
				return fmt.Errorf("seed rules for %q: %w", p.Name, err)
			}
		}
		log.Info("Permit type seeded",
			zap.String("permit_type", p.Name),
			zap.Bool("active", p.IsActive()),
			zap.Int("rules", len(rules)),
		)
	}

	for _, e := range catalog.Entities {
		entity := model.Entity{Name: e.Name, Address: e.Address}
		if err := db.Where(model.Entity{Name: e.Name}).FirstOrCreate(&entity).Error; err != nil {
			return fmt.Errorf("seed entity %q: %w", e.Name, err)
		}
	}

	users := make([]model.User, 0, len(catalog.Users))
	for _, u := range catalog.Users {
		hash, err := password.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("hash password for %q: %w", u.Username, err)
		}
		users = append(users, model.User{
			Username:     u.Username,
			FullName:     u.FullName,
			PasswordHash: hash,
			Roles:        strings.Join(u.Roles, ","),
		})
	}
	if len(users) > 0 {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).Create(&users).Error; err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}
	log.Info("Entities and users seeded", zap.Int("entities", len(catalog.Entities)), zap.Int("users", len(users)))

	return nil
}

// report logs the fee schedule as the service will read it.
func report(ctx context.Context, db *gorm.DB, log *zap.Logger) {
	catalogRepository := catalogrepo.NewCatalogRepository(
		db,
		metricnoop.NewMeterProvider().Meter("seed"),
		tracenoop.NewTracerProvider().Tracer("seed"),
		log,
	)

	var categories []model.FeeCategory
	if err := db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		log.Error("Failed to list fee categories", zap.Error(err))
		return
	}

	for _, category := range categories {
		fees, err := catalogRepository.ListFeesByCategory(ctx, category.ID)
		if err != nil {
			log.Error("Failed to list fees", zap.String("category", category.Name), zap.Error(err))
			continue
		}
		for _, fee := range fees {
			log.Info("Fee",
				zap.String("category", category.Name),
				zap.String("fee", fee.Name),
				zap.String("default_amount", money.String(fee.DefaultAmount)),
			)
		}
	}

	var permitTypes []model.PermitType
	if err := db.WithContext(ctx).Order("name ASC").Find(&permitTypes).Error; err != nil {
		log.Error("Failed to list permit types", zap.Error(err))
		return
	}
	for _, pt := range permitTypes {
		rules, err := catalogRepository.ResolveRules(ctx, pt.ID)
		if err != nil {
			log.Error("Permit type has unreadable rules", zap.String("permit_type", pt.Name), zap.Error(err))
			continue
		}
		log.Info("Permit type", zap.String("name", pt.Name), zap.Bool("active", pt.Active), zap.Int("rules", len(rules)))
	}
}
