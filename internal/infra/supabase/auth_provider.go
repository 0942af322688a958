package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"

	"go.uber.org/zap"
)

// ============================================================
// Auth: Supabase GoTrue (implements port.AuthProvider)
// ============================================================

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    string         `json:"created_at"`
}

func (u gotrueUser) toDomain() *domain.User {
	user := &domain.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: metadataString(u.UserMetadata, "first_name"),
		LastName:  metadataString(u.UserMetadata, "last_name"),
	}
	if t, err := time.Parse(time.RFC3339Nano, u.CreatedAt); err == nil {
		user.CreatedAt = t
	}
	return user
}

func metadataString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         *gotrueUser `json:"user"`
}

// gotrueError covers both error shapes GoTrue answers with.
type gotrueError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return "request rejected"
}

// authCall sends a request to /auth/v1. bearer is the user's access token or
// empty for anonymous calls, which then authenticate with the anon key.
func (c *Client) authCall(ctx context.Context, method, path, bearer string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		if reqBody, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}

	var body []byte
	err := c.guarded(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/auth/v1/"+path, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		token := bearer
		if token == "" {
			token = c.apiKey
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		body, err = c.send(req, "auth/"+path)
		return err
	})
	if err != nil {
		return nil, mapAuthError(err)
	}
	return body, nil
}

// mapAuthError turns GoTrue answers into domain errors.
func mapAuthError(err error) error {
	var serr *statusError
	if !errors.As(err, &serr) {
		if resilience.IsBreakerOpen(err) {
			return &domain.ErrCircuitOpen{Service: "supabase/auth"}
		}
		return &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	var ge gotrueError
	_ = json.Unmarshal([]byte(serr.Body), &ge)
	msg := ge.text()

	switch {
	case serr.Status == http.StatusUnauthorized || serr.Status == http.StatusForbidden:
		return &domain.ErrUnauthorized{Message: msg}
	case serr.Status == http.StatusBadRequest && strings.Contains(serr.Path, "grant_type=password"):
		return &domain.ErrUnauthorized{Message: "invalid email or password"}
	case strings.Contains(strings.ToLower(msg), "already registered"), ge.ErrorCode == "user_already_exists", ge.ErrorCode == "email_exists":
		return &domain.ErrConflict{Message: msg}
	case serr.Status == http.StatusTooManyRequests || serr.Status >= 500:
		return &domain.ErrExternalService{Service: "supabase/auth", Err: serr}
	default:
		return &domain.ErrValidation{Field: "auth", Message: msg}
	}
}

// SignUp registers a user. When e-mail confirmation is enabled GoTrue answers
// with the bare user and the session has no access token.
func (c *Client) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	body, err := c.authCall(ctx, http.MethodPost, "signup", "", map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data": map[string]string{
			"first_name": req.FirstName,
			"last_name":  req.LastName,
		},
	})
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("decode signup: %w", err)}
	}
	if sess.User == nil {
		var u gotrueUser
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("decode signup user: %w", err)}
		}
		sess.User = &u
	}

	c.logger.Info("supabase: user signed up", zap.String("user_id", sess.User.ID))
	return &domain.Session{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		User:         sess.User.toDomain(),
	}, nil
}

// SignIn exchanges e-mail and password for a session.
func (c *Client) SignIn(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	body, err := c.authCall(ctx, http.MethodPost, "token?grant_type=password", "", map[string]string{
		"email":    req.Email,
		"password": req.Password,
	})
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil || sess.User == nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("decode session: %v", err)}
	}
	return &domain.Session{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		User:         sess.User.toDomain(),
	}, nil
}

// GetUser returns the user the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()

	body, err := c.authCall(ctx, http.MethodGet, "user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(body)
}

// UpdateUser changes e-mail, password or profile names of the token's user.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, upd *domain.UserUpdate) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()

	payload := map[string]any{}
	if upd.Email != "" {
		payload["email"] = upd.Email
	}
	if upd.Password != "" {
		payload["password"] = upd.Password
	}
	meta := map[string]string{}
	if upd.FirstName != "" {
		meta["first_name"] = upd.FirstName
	}
	if upd.LastName != "" {
		meta["last_name"] = upd.LastName
	}
	if len(meta) > 0 {
		payload["data"] = meta
	}

	body, err := c.authCall(ctx, http.MethodPut, "user", accessToken, payload)
	if err != nil {
		return nil, err
	}
	return decodeUser(body)
}

// RequestPasswordReset makes GoTrue e-mail a recovery link.
func (c *Client) RequestPasswordReset(ctx context.Context, req *domain.PasswordResetRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.RequestPasswordReset")
	defer span.End()

	path := "recover"
	if req.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(req.RedirectTo)
	}
	_, err := c.authCall(ctx, http.MethodPost, path, "", map[string]string{"email": req.Email})
	return err
}

func decodeUser(body []byte) (*domain.User, error) {
	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: fmt.Errorf("decode user: %w", err)}
	}
	return u.toDomain(), nil
}
