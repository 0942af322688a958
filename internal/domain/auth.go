package domain

import "time"

// ============================================================
// Auth: Request / Response types (matches dashboard API contract)
// ============================================================

// User is the authenticated account as seen by the dashboard.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// SignUpRequest is the body for POST /v1/auth/signup.
type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by a successful login or sign-up.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn"`
	User         *User  `json:"user"`
}

// UpdateProfileRequest is the body for PUT /v1/me.
type UpdateProfileRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ChangePasswordRequest is the body for PUT /v1/me/password.
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// PasswordResetRequest is the body for POST /v1/auth/password/reset-request.
type PasswordResetRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// PasswordResetConfirm is the body for POST /v1/auth/password/reset.
// AccessToken is the recovery token delivered by the reset e-mail link.
type PasswordResetConfirm struct {
	AccessToken     string `json:"accessToken"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UserUpdate is the set of changes sent to the auth provider.
// Empty fields are left untouched.
type UserUpdate struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}
