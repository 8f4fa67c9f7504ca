package service

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"

	"github.com/stretchr/testify/mock"
)

// MockMemberRepo
type MockMemberRepo struct {
	mock.Mock
}

func (m *MockMemberRepo) Create(ctx context.Context, member *domain.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}
func (m *MockMemberRepo) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberRepo) Update(ctx context.Context, member *domain.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}
func (m *MockMemberRepo) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMemberRepo) List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, int32, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Member), args.Get(1).(int32), args.Error(2)
}
func (m *MockMemberRepo) ListAll(ctx context.Context) ([]domain.Member, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Member), args.Error(1)
}
func (m *MockMemberRepo) CardNumberExists(ctx context.Context, cardNumber string) (bool, error) {
	args := m.Called(ctx, cardNumber)
	return args.Bool(0), args.Error(1)
}
func (m *MockMemberRepo) FindByIdentity(ctx context.Context, firstName, lastName string, birthDate time.Time) (*domain.Member, error) {
	args := m.Called(ctx, firstName, lastName, birthDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberRepo) ListExpiring(ctx context.Context, before time.Time, limit int32) ([]domain.Member, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]domain.Member), args.Error(1)
}
func (m *MockMemberRepo) ListRecent(ctx context.Context, limit int32) ([]domain.Member, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Member), args.Error(1)
}
func (m *MockMemberRepo) Stats(ctx context.Context, today time.Time, warnDays int) (*repository.MemberStats, error) {
	args := m.Called(ctx, today, warnDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.MemberStats), args.Error(1)
}

// MockPhotoStore
type MockPhotoStore struct {
	mock.Mock
}

func (m *MockPhotoStore) Save(memberID int64, data []byte) (string, error) {
	args := m.Called(memberID, data)
	return args.String(0), args.Error(1)
}
func (m *MockPhotoStore) Open(ref string) (io.ReadCloser, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}
func (m *MockPhotoStore) Remove(ref string) error {
	args := m.Called(ref)
	return args.Error(0)
}

// MockMemberService
type MockMemberService struct {
	mock.Mock
}

func (m *MockMemberService) Create(ctx context.Context, member *domain.Member) (*domain.Member, error) {
	args := m.Called(ctx, member)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberService) Get(ctx context.Context, id int64) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberService) Update(ctx context.Context, member *domain.Member) (*domain.Member, error) {
	args := m.Called(ctx, member)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockMemberService) Deactivate(ctx context.Context, id int64) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberService) List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, int32, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Member), args.Get(1).(int32), args.Error(2)
}
func (m *MockMemberService) Dashboard(ctx context.Context) (*Dashboard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Dashboard), args.Error(1)
}
func (m *MockMemberService) AttachPhoto(ctx context.Context, id int64, raw []byte) (*domain.Member, error) {
	args := m.Called(ctx, id, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}
func (m *MockMemberService) Photo(ctx context.Context, id int64) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func readCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
