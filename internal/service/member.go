package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/imaging"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
	"github.com/MLeprich/mitgliederverwaltung/internal/storage"
)

var (
	// ErrCardNumberConflict is returned when card number generation keeps
	// colliding after the bounded number of retries.
	ErrCardNumberConflict = errors.New("could not generate a unique card number")

	// ErrNoPhoto is returned when a member has no stored photo.
	ErrNoPhoto = errors.New("member has no photo")
)

const (
	// cardNumberAttempts bounds the retry loop around the database unique
	// constraint. The number space holds 900000 values, so collisions are
	// rare and one retry almost always suffices.
	cardNumberAttempts = 5
	cardNumberBackoff  = 50 * time.Millisecond

	dashboardRecentCount   = 5
	dashboardExpiringCount = 10
)

type memberService struct {
	repo     repository.MemberRepository
	photos   storage.PhotoStore
	policy   domain.AgePolicy
	warnDays int
}

func NewMemberService(repo repository.MemberRepository, photos storage.PhotoStore, policy domain.AgePolicy, warnDays int) MemberService {
	if warnDays <= 0 {
		warnDays = domain.DefaultExpiryWarnDays
	}
	return &memberService{repo: repo, photos: photos, policy: policy, warnDays: warnDays}
}

func (s *memberService) Create(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	if m.MemberType == "" {
		m.MemberType = domain.MemberTypeFF
	}
	if err := m.Validate(time.Now(), s.policy); err != nil {
		return nil, err
	}
	m.ApplyValidityWindow()

	if m.CardNumber != "" {
		// Operator-supplied number: a conflict is terminal, not retried.
		if err := s.repo.Create(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	for attempt := 1; attempt <= cardNumberAttempts; attempt++ {
		candidate, err := s.drawCardNumber(ctx, m.CardNumberPrefix)
		if err != nil {
			return nil, err
		}
		m.CardNumber = candidate

		err = s.repo.Create(ctx, m)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCardNumber) {
			return nil, err
		}
		// Lost the race against a concurrent creation; the constraint is the
		// final authority, so redraw and try again.
		logger.Warn("Card number conflict, retrying", "card_number", candidate, "attempt", attempt)
		m.CardNumber = ""
		time.Sleep(time.Duration(attempt) * cardNumberBackoff)
	}
	return nil, ErrCardNumberConflict
}

// drawCardNumber draws a prefixed 6-digit number that is free at the time of
// the check. The check is advisory; the database constraint decides.
func (s *memberService) drawCardNumber(ctx context.Context, prefix string) (string, error) {
	var candidate string
	for i := 0; i < cardNumberAttempts; i++ {
		candidate = prefix + strconv.Itoa(100000+rand.Intn(900000))
		exists, err := s.repo.CardNumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check card number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	// Every draw was taken; hand the last one to the constraint anyway.
	return candidate, nil
}

func (s *memberService) Get(ctx context.Context, id int64) (*domain.Member, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *memberService) Update(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	existing, err := s.repo.GetByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	// Card number and creation timestamp are immutable; the photo reference
	// changes only through AttachPhoto.
	m.CardNumber = existing.CardNumber
	m.CreatedAt = existing.CreatedAt
	m.PhotoPath = existing.PhotoPath

	if m.MemberType == "" {
		m.MemberType = existing.MemberType
	}
	if err := m.Validate(time.Now(), s.policy); err != nil {
		return nil, err
	}
	m.ApplyValidityWindow()

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *memberService) Delete(ctx context.Context, id int64) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if m.PhotoPath != "" {
		if err := s.photos.Remove(m.PhotoPath); err != nil {
			logger.Warn("Failed to remove photo of deleted member", "member_id", id, "error", err)
		}
	}
	return nil
}

func (s *memberService) Deactivate(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.IsActive = false
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *memberService) List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, int32, error) {
	if f.Today.IsZero() {
		f.Today = time.Now()
	}
	if f.WarnDays <= 0 {
		f.WarnDays = s.warnDays
	}
	return s.repo.List(ctx, f)
}

func (s *memberService) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := time.Now()
	stats, err := s.repo.Stats(ctx, today, s.warnDays)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListRecent(ctx, dashboardRecentCount)
	if err != nil {
		return nil, err
	}
	expiring, err := s.repo.ListExpiring(ctx, today.AddDate(0, 0, s.warnDays), dashboardExpiringCount)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Stats: stats, RecentMembers: recent, ExpiringMembers: expiring}, nil
}

func (s *memberService) AttachPhoto(ctx context.Context, id int64, raw []byte) (*domain.Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := imaging.Validate(raw); err != nil {
		return nil, err
	}
	normalized, err := imaging.Normalize(raw)
	if err != nil {
		// The stored photo reference stays untouched on processing errors.
		return nil, err
	}

	ref, err := s.photos.Save(m.ID, normalized)
	if err != nil {
		return nil, err
	}

	previous := m.PhotoPath
	m.PhotoPath = ref
	if err := s.repo.Update(ctx, m); err != nil {
		if rmErr := s.photos.Remove(ref); rmErr != nil {
			logger.Warn("Failed to clean up orphaned photo", "ref", ref, "error", rmErr)
		}
		return nil, err
	}
	if previous != "" {
		if err := s.photos.Remove(previous); err != nil {
			logger.Warn("Failed to remove replaced photo", "ref", previous, "error", err)
		}
	}
	return m, nil
}

func (s *memberService) Photo(ctx context.Context, id int64) (io.ReadCloser, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.PhotoPath == "" {
		return nil, ErrNoPhoto
	}
	return s.photos.Open(m.PhotoPath)
}
