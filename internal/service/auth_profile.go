package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// ============================================================
// Me: GET /v1/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, accessToken string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.provider.GetUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ============================================================
// UpdateProfile: PUT /v1/me
// ============================================================

func (s *AuthService) UpdateProfile(ctx context.Context, accessToken string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.UpdateProfile")
	defer span.End()

	upd := &domain.UserUpdate{
		Email:     strings.TrimSpace(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	if upd.Email == "" && upd.FirstName == "" && upd.LastName == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	if upd.Email != "" {
		if err := validateEmail(upd.Email); err != nil {
			return nil, err
		}
	}

	user, err := s.provider.UpdateUser(ctx, accessToken, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}
