package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fazamuttaqien/permitting/config"
	mysqldb "github.com/fazamuttaqien/permitting/infra/mysql"
	postgresdb "github.com/fazamuttaqien/permitting/infra/postgres"
	redisdb "github.com/fazamuttaqien/permitting/infra/redis"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/pkg/cloudinary"
	ratelimiter "github.com/fazamuttaqien/permitting/pkg/rate-limiter"
	"github.com/fazamuttaqien/permitting/pkg/telemetry"
	"github.com/fazamuttaqien/permitting/presenter"
	"github.com/fazamuttaqien/permitting/router"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	slog.Info("Starting application setup...")

	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		slog.Error("No .env file found, using system environment variables", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if cfg.JWT_SECRET_KEY == "" {
		panic("JWT_SECRET_KEY must be set")
	}

	tel, err := telemetry.New(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize monitoring: %v", err))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		zap.L().Error("Failed to initialize database", zap.String("driver", cfg.DB_DRIVER), zap.Error(err))
		os.Exit(1)
	}

	redisCtx, cancelRedis := context.WithTimeout(ctx, time.Minute)
	redisClient, err := redisdb.MonitorRedis(redisCtx, cfg)
	cancelRedis()
	if err != nil {
		zap.L().Error("Failed to connect to Redis", zap.Error(err))
		os.Exit(1)
	}

	if err := model.AutoMigrate(db); err != nil {
		zap.L().Error("Failed to migrate database", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Database migration completed!")

	if cfg.DEVELOPMENT_MODE {
		db = db.Debug()
	}

	if err := mysqldb.Ping(db, ctx); err != nil {
		zap.L().Error("Database ping failed", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Database connection successful!", zap.Any("stats", mysqldb.GetStats(db)))

	var cloud *cld.Cloudinary
	if cfg.CLOUDINARY_CLOUD != "" {
		cloud, err = cloudinary.InitCloudinary(cfg)
		if err != nil {
			zap.L().Error("Failed to initialize Cloudinary service", zap.Error(err))
			os.Exit(1)
		}
	} else {
		zap.L().Warn("CLOUDINARY_CLOUD not set, permit documents must be issued by URL")
	}

	rps := 100.0 / (15 * 60)
	limiter, err := ratelimiter.NewRateLimiter(redisClient, rps, 100, 15*time.Minute)
	if err != nil {
		zap.L().Error("Failed to initialize rate limiter", zap.Error(err))
		os.Exit(1)
	}

	store := session.New(session.Config{
		Expiration:     24 * time.Hour,
		CookieHTTPOnly: true,
		CookieSecure:   !cfg.DEVELOPMENT_MODE,
		CookieSameSite: "Strict",
	})

	presenter := presenter.NewPresenter(db, cloud, redisClient, store, tel, cfg)
	router := router.NewRouter(presenter, db, tel, cfg, limiter, store)

	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.SHUTDOWN_TIMEOUT)
		defer cancelShutdown()

		zap.L().Info("Draining notifications...")
		if err := presenter.Close(shutdownCtx); err != nil {
			zap.L().Error("Error draining notifications", zap.Error(err))
		}

		zap.L().Info("Closing database connection...")
		if err := mysqldb.Close(db, shutdownCtx); err != nil {
			zap.L().Error("Error disconnecting from database", zap.Error(err))
		} else {
			zap.L().Info("Disconnected from database.")
		}

		zap.L().Info("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			zap.L().Error("Error disconnecting from Redis", zap.Error(err))
		} else {
			zap.L().Info("Disconnected from Redis.")
		}

		zap.L().Info("Shutting down monitoring...")
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Error during monitoring shutdown", zap.Error(err))
		} else {
			zap.L().Info("Monitoring shutdown complete.")
		}
	}()

	addr := ":" + cfg.SERVER_PORT

	listenErr := make(chan error, 1)

	go func() {
		zap.L().Info("Server starting", zap.String("address", addr))
		if err := router.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		} else {
			listenErr <- nil
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		zap.L().Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-listenErr:
		if err != nil {
			zap.L().Error("Server listen error", zap.Error(err))
			return
		}
	}

	zap.L().Info("Starting graceful shutdown...")
	shutdownTimeout := 10 * time.Second
	if err := router.ShutdownWithTimeout(shutdownTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			zap.L().Warn("Server shutdown timed out", zap.Duration("timeout", shutdownTimeout))
		} else {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
	} else {
		zap.L().Info("Server gracefully stopped.")
	}

	zap.L().Info("Application shutdown complete.")
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB_DRIVER {
	case "postgres":
		return postgresdb.Connect(cfg)
	default:
		return mysqldb.InitializeDatabase(cfg)
	}
}
