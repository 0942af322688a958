// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// BillStore persists bill records. Every operation is scoped to one owner.
// Implemented by the Supabase, Postgres, SQLite and in-memory adapters.
type BillStore interface {
	ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error)
	CreateBill(ctx context.Context, ownerID string, in *domain.BillInput) (*domain.BillRecord, error)
	// UpdateBill returns *domain.ErrNotFound when id is not owned by ownerID.
	UpdateBill(ctx context.Context, ownerID, id string, patch *domain.BillPatch) (*domain.BillRecord, error)
	// LatestBill returns the most recent bill by date, or *domain.ErrNotFound.
	LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error)
	// ExistingBillTypes lists the bill types recorded for a month (0-11) and year.
	ExistingBillTypes(ctx context.Context, ownerID string, month, year int) ([]domain.BillType, error)
	Ping(ctx context.Context) error
}

// NarrativeSummarizer turns a prompt into free text using a hosted model.
// Failures are reported as *domain.ErrUpstream.
type NarrativeSummarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
	Name() string
}

// SummaryProvider produces the narrative for an aggregated window.
type SummaryProvider interface {
	Summarize(ctx context.Context, in *domain.SummaryInput) (*domain.Narrative, error)
	Strategy() domain.SummaryStrategy
}

// AuthProvider manages user accounts and sessions.
type AuthProvider interface {
	SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.Session, error)
	SignIn(ctx context.Context, req *domain.LoginRequest) (*domain.Session, error)
	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
	UpdateUser(ctx context.Context, accessToken string, upd *domain.UserUpdate) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, req *domain.PasswordResetRequest) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
