// Package service holds the use cases behind the HTTP API. AuthService
// handles sign-up, login, token validation, password changes and profile
// updates on top of the configured AuthProvider.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/token"
	"github.com/boddenberg/utility-bills-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

// minPasswordLength matches the GoTrue default.
const minPasswordLength = 6

// AuthService orchestrates authentication flows.
type AuthService struct {
	provider port.AuthProvider
	tokens   *token.Manager
	logger   *zap.Logger
}

// NewAuthService creates a new auth service. tokens verifies the access
// tokens issued by provider.
func NewAuthService(provider port.AuthProvider, tokens *token.Manager, logger *zap.Logger) *AuthService {
	return &AuthService{
		provider: provider,
		tokens:   tokens,
		logger:   logger,
	}
}

// ============================================================
// SignUp: POST /v1/auth/signup
// ============================================================

func (s *AuthService) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.Session, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.SignUp")
	defer span.End()

	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validatePassword("password", req.Password); err != nil {
		return nil, err
	}
	if req.FirstName == "" {
		return nil, &domain.ErrValidation{Field: "firstName", Message: "required"}
	}
	if req.LastName == "" {
		return nil, &domain.ErrValidation{Field: "lastName", Message: "required"}
	}

	session, err := s.provider.SignUp(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	s.logger.Info("user signed up",
		zap.String("user_id", session.User.ID),
		zap.Bool("confirmation_pending", session.AccessToken == ""),
	)
	return session, nil
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "email and password are required"}
	}

	session, err := s.provider.SignIn(ctx, req)
	if err != nil {
		s.logger.Warn("login failed", zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", session.User.ID))
	s.logger.Info("user logged in", zap.String("user_id", session.User.ID))
	return session, nil
}

// ============================================================
// ValidateAccessToken: used by the auth middleware
// ============================================================

// ValidateAccessToken verifies the token signature and expiry and returns
// the user id it was issued for.
func (s *AuthService) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func validateEmail(email string) error {
	if email == "" {
		return &domain.ErrValidation{Field: "email", Message: "required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &domain.ErrValidation{Field: "email", Message: "invalid e-mail address"}
	}
	return nil
}

func validatePassword(field, password string) error {
	if len(password) < minPasswordLength {
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	return nil
}
