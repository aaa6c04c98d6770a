package privatesrv

import (
	"context"
	"errors"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/password"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tokenTTL    = 72 * time.Hour
	tokenIssuer = "permitting"
)

type privateService struct {
	userRepository repository.UserRepository

	jwtSecret string

	meter        metric.Meter
	tracer       trace.Tracer
	log          *zap.Logger
	ins          *service.Instruments
	loginsFailed metric.Int64Counter
}

// Login implements service.PrivateService.
func (p *privateService) Login(ctx context.Context, data dto.LoginRequest) (*dto.LoginResponse, error) {
	ctx, span := p.tracer.Start(ctx, "service.Private.Login")
	defer span.End()

	span.SetAttributes(attribute.String("user.username", data.Username))
	op := p.ins.Begin(ctx, span, "login")

	resp, userID, err := p.login(ctx, data)
	duration := op.End(err)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			p.loginsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("service", "private")))
			p.log.Warn("Login rejected",
				zap.String("username", data.Username),
				zap.Float64("duration_ms", duration),
				zap.String("trace_id", span.SpanContext().TraceID().String()),
			)
			return nil, err
		}

		p.log.Error("Login failed",
			zap.String("username", data.Username),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, err
	}

	p.log.Info("User logged in",
		zap.Uint64("user_id", userID),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return resp, nil
}

func (p *privateService) login(ctx context.Context, data dto.LoginRequest) (*dto.LoginResponse, uint64, error) {
	user, err := p.userRepository.FindByUsername(ctx, data.Username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, 0, common.ErrInvalidCredentials
		}
		return nil, 0, err
	}

	if !password.CheckPasswordHash(data.Password, user.PasswordHash) {
		return nil, 0, common.ErrInvalidCredentials
	}

	claims := &domain.JwtCustomClaims{
		UserID: user.ID,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(p.jwtSecret))
	if err != nil {
		return nil, 0, err
	}

	return &dto.LoginResponse{Token: signedToken}, user.ID, nil
}

func NewPrivateService(
	jwtSecret string,
	userRepository repository.UserRepository,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.PrivateService {
	loginsFailed, _ := meter.Int64Counter(
		"service.logins.failed",
		metric.WithDescription("Number of rejected logins"),
		metric.WithUnit("{login}"),
	)

	return &privateService{
		userRepository: userRepository,

		jwtSecret: jwtSecret,

		meter:        meter,
		tracer:       tracer,
		log:          log,
		ins:          service.NewInstruments(meter, "private"),
		loginsFailed: loginsFailed,
	}
}
