package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
)

var (
	// ErrNotFound is returned when no member matches the given key.
	ErrNotFound = errors.New("member not found")

	// ErrDuplicateCardNumber is surfaced when the database unique constraint
	// on card_number rejects a write. The constraint is the final authority
	// on uniqueness; callers retry with a fresh number.
	ErrDuplicateCardNumber = errors.New("card number already exists")
)

// MemberFilter describes list queries over the roster.
type MemberFilter struct {
	Search   string // matches first name, last name or personnel number
	Status   string // "", "active", "inactive", "expired", "expiring"
	Sort     string // "name" (default), "created", "valid_until"
	Page     int32
	PageSize int32
	Today    time.Time // reference day for status filters
	WarnDays int
}

// MemberStats is the dashboard aggregate over the roster.
type MemberStats struct {
	Total        int32 `json:"total_members"`
	Active       int32 `json:"active_members"`
	ValidCards   int32 `json:"valid_cards"`
	ExpiringSoon int32 `json:"expiring_soon"`
	ExpiredCards int32 `json:"expired_cards"`
}

type MemberRepository interface {
	Create(ctx context.Context, m *domain.Member) error
	GetByID(ctx context.Context, id int64) (*domain.Member, error)
	Update(ctx context.Context, m *domain.Member) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f MemberFilter) ([]domain.Member, int32, error)
	ListAll(ctx context.Context) ([]domain.Member, error)

	CardNumberExists(ctx context.Context, cardNumber string) (bool, error)
	FindByIdentity(ctx context.Context, firstName, lastName string, birthDate time.Time) (*domain.Member, error)

	ListExpiring(ctx context.Context, before time.Time, limit int32) ([]domain.Member, error)
	ListRecent(ctx context.Context, limit int32) ([]domain.Member, error)
	Stats(ctx context.Context, today time.Time, warnDays int) (*MemberStats, error)
}
