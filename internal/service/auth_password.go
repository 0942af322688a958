package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// ChangePassword: PUT /v1/me/password
// ============================================================

// ChangePassword checks the old password by signing in with it, then sets the
// new one on the session's user.
func (s *AuthService) ChangePassword(ctx context.Context, accessToken string, req *domain.ChangePasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	if req.OldPassword == "" {
		return &domain.ErrValidation{Field: "oldPassword", Message: "required"}
	}
	if err := validatePassword("newPassword", req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword != req.ConfirmPassword {
		return &domain.ErrValidation{Field: "confirmPassword", Message: "passwords do not match"}
	}

	user, err := s.provider.GetUser(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	_, err = s.provider.SignIn(ctx, &domain.LoginRequest{Email: user.Email, Password: req.OldPassword})
	var unauthorized *domain.ErrUnauthorized
	if errors.As(err, &unauthorized) {
		s.logger.Warn("change password: wrong current password", zap.String("user_id", user.ID))
		return &domain.ErrValidation{Field: "oldPassword", Message: "current password is incorrect"}
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}

	if _, err := s.provider.UpdateUser(ctx, accessToken, &domain.UserUpdate{Password: req.NewPassword}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// ============================================================
// RequestPasswordReset: POST /v1/auth/password/reset-request
// ============================================================

// RequestPasswordReset asks the provider to e-mail a recovery link. Unknown
// addresses succeed too, so the response does not reveal registered e-mails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req *domain.PasswordResetRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.RequestPasswordReset")
	defer span.End()

	req.Email = strings.TrimSpace(req.Email)
	if err := validateEmail(req.Email); err != nil {
		return err
	}

	if err := s.provider.RequestPasswordReset(ctx, req); err != nil {
		return fmt.Errorf("password reset request: %w", err)
	}
	s.logger.Info("password reset requested")
	return nil
}

// ============================================================
// ResetPassword: POST /v1/auth/password/reset
// ============================================================

// ResetPassword sets a new password using the recovery token from the reset link.
func (s *AuthService) ResetPassword(ctx context.Context, req *domain.PasswordResetConfirm) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	if strings.TrimSpace(req.AccessToken) == "" {
		return &domain.ErrValidation{Field: "accessToken", Message: "required"}
	}
	if err := validatePassword("newPassword", req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword != req.ConfirmPassword {
		return &domain.ErrValidation{Field: "confirmPassword", Message: "passwords do not match"}
	}

	user, err := s.provider.UpdateUser(ctx, req.AccessToken, &domain.UserUpdate{Password: req.NewPassword})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}
