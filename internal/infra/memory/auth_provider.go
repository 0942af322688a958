package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user         domain.User
	passwordHash []byte
}

// AuthProvider keeps accounts in memory, hashes passwords with bcrypt and
// issues HS256 tokens through a token.Manager.
type AuthProvider struct {
	mu       sync.RWMutex
	accounts map[string]*account // by user id
	byEmail  map[string]string   // lowercased e-mail -> user id

	tokens *token.Manager
	cost   int
	logger *zap.Logger
}

// NewAuthProvider creates an empty provider. cost is the bcrypt cost;
// values outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewAuthProvider(tokens *token.Manager, cost int, logger *zap.Logger) *AuthProvider {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthProvider{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		tokens:   tokens,
		cost:     cost,
		logger:   logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates the account and returns a signed-in session.
func (p *AuthProvider) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.Session, error) {
	_, span := tracer.Start(ctx, "Memory.SignUp")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cost)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "password", Message: err.Error()}
	}

	email := normalizeEmail(req.Email)

	p.mu.Lock()
	if _, exists := p.byEmail[email]; exists {
		p.mu.Unlock()
		return nil, &domain.ErrConflict{Message: "user already registered"}
	}
	acc := &account{
		user: domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			CreatedAt: time.Now().UTC(),
		},
		passwordHash: hash,
	}
	p.accounts[acc.user.ID] = acc
	p.byEmail[email] = acc.user.ID
	user := acc.user
	p.mu.Unlock()

	return p.session(&user)
}

// SignIn checks the password and returns a session.
func (p *AuthProvider) SignIn(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error) {
	_, span := tracer.Start(ctx, "Memory.SignIn")
	defer span.End()

	p.mu.RLock()
	var acc *account
	if id, ok := p.byEmail[normalizeEmail(req.Email)]; ok {
		acc = p.accounts[id]
	}
	var user domain.User
	var hash []byte
	if acc != nil {
		user, hash = acc.user, acc.passwordHash
	}
	p.mu.RUnlock()

	if acc == nil || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}
	return p.session(&user)
}

// GetUser resolves the token's subject.
func (p *AuthProvider) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	_, span := tracer.Start(ctx, "Memory.GetUser")
	defer span.End()

	claims, err := p.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	acc, ok := p.accounts[claims.Subject]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
	}
	user := acc.user
	return &user, nil
}

// UpdateUser changes the non-empty fields of upd.
func (p *AuthProvider) UpdateUser(ctx context.Context, accessToken string, upd *domain.UserUpdate) (*domain.User, error) {
	_, span := tracer.Start(ctx, "Memory.UpdateUser")
	defer span.End()

	claims, err := p.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	var hash []byte
	if upd.Password != "" {
		if hash, err = bcrypt.GenerateFromPassword([]byte(upd.Password), p.cost); err != nil {
			return nil, &domain.ErrValidation{Field: "password", Message: err.Error()}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[claims.Subject]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "user no longer exists"}
	}

	if upd.Email != "" {
		email := normalizeEmail(upd.Email)
		if owner, taken := p.byEmail[email]; taken && owner != acc.user.ID {
			return nil, &domain.ErrConflict{Message: "email already in use"}
		}
		delete(p.byEmail, acc.user.Email)
		p.byEmail[email] = acc.user.ID
		acc.user.Email = email
	}
	if upd.FirstName != "" {
		acc.user.FirstName = upd.FirstName
	}
	if upd.LastName != "" {
		acc.user.LastName = upd.LastName
	}
	if hash != nil {
		acc.passwordHash = hash
	}

	user := acc.user
	return &user, nil
}

// RequestPasswordReset issues a recovery token for a known e-mail. There is
// no mailer in memory mode, so the token is only logged at debug level.
// Unknown addresses succeed silently.
func (p *AuthProvider) RequestPasswordReset(ctx context.Context, req *domain.PasswordResetRequest) error {
	_, span := tracer.Start(ctx, "Memory.RequestPasswordReset")
	defer span.End()

	p.mu.RLock()
	id, ok := p.byEmail[normalizeEmail(req.Email)]
	p.mu.RUnlock()
	if !ok {
		return nil
	}

	recovery, err := p.tokens.Sign(id, normalizeEmail(req.Email))
	if err != nil {
		return err
	}
	p.logger.Debug("memory auth: recovery token issued",
		zap.String("user_id", id),
		zap.String("redirect_to", req.RedirectTo),
		zap.String("token", recovery),
	)
	return nil
}

func (p *AuthProvider) session(user *domain.User) (*domain.Session, error) {
	access, err := p.tokens.Sign(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &domain.Session{
		AccessToken: access,
		ExpiresIn:   int(p.tokens.TTL().Seconds()),
		User:        user,
	}, nil
}
