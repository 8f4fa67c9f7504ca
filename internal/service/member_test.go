package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"testing"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testPolicy = domain.AgePolicy{Min: 16, Max: 100}

func testMember() *domain.Member {
	return &domain.Member{
		FirstName:  "Max",
		LastName:   "Mustermann",
		BirthDate:  time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC),
		MemberType: domain.MemberTypeFF,
		IsActive:   true,
	}
}

func TestMemberService_Create(t *testing.T) {
	ctx := context.Background()
	cardNumberPattern := regexp.MustCompile(`^FF[1-9]\d{5}$`)

	t.Run("GeneratesCardNumber", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("CardNumberExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
		repo.On("Create", ctx, mock.MatchedBy(func(m *domain.Member) bool {
			return cardNumberPattern.MatchString(m.CardNumber)
		})).Return(nil).Once()

		m := testMember()
		m.CardNumberPrefix = "FF"
		created, err := svc.Create(ctx, m)
		assert.NoError(t, err)
		assert.Regexp(t, cardNumberPattern, created.CardNumber)
		repo.AssertExpectations(t)
	})

	t.Run("OperatorSuppliedNumberNotRetried", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateCardNumber).Once()

		m := testMember()
		m.CardNumber = "123456"
		_, err := svc.Create(ctx, m)
		assert.ErrorIs(t, err, repository.ErrDuplicateCardNumber)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "CardNumberExists", mock.Anything, mock.Anything)
	})

	t.Run("RetriesOnConstraintViolation", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("CardNumberExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Times(3)
		repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateCardNumber).Twice()
		repo.On("Create", ctx, mock.Anything).Return(nil).Once()

		created, err := svc.Create(ctx, testMember())
		assert.NoError(t, err)
		assert.NotEmpty(t, created.CardNumber)
		repo.AssertExpectations(t)
	})

	t.Run("GivesUpAfterBoundedRetries", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("CardNumberExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
		repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateCardNumber)

		_, err := svc.Create(ctx, testMember())
		assert.ErrorIs(t, err, ErrCardNumberConflict)
		repo.AssertNumberOfCalls(t, "Create", 5)
	})

	t.Run("DefaultsMemberType", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("CardNumberExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
		repo.On("Create", ctx, mock.Anything).Return(nil).Once()

		m := testMember()
		m.MemberType = ""
		created, err := svc.Create(ctx, m)
		assert.NoError(t, err)
		assert.Equal(t, domain.MemberTypeFF, created.MemberType)
	})

	t.Run("AppliesValidityWindow", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("CardNumberExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
		repo.On("Create", ctx, mock.Anything).Return(nil).Once()

		issued := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
		m := testMember()
		m.IssuedDate = &issued
		created, err := svc.Create(ctx, m)
		assert.NoError(t, err)
		assert.NotNil(t, created.ValidUntil)
		assert.Equal(t, issued.AddDate(0, 0, domain.LongValidityDays), *created.ValidUntil)
	})

	t.Run("RejectsInvalidMember", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		m := testMember()
		m.FirstName = ""
		_, err := svc.Create(ctx, m)
		var vErr *domain.ValidationError
		assert.ErrorAs(t, err, &vErr)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestMemberService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("PreservesImmutableFields", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		created := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
		existing := testMember()
		existing.ID = 7
		existing.CardNumber = "654321"
		existing.CreatedAt = created
		existing.PhotoPath = "7_abc.jpg"

		repo.On("GetByID", ctx, int64(7)).Return(existing, nil).Once()
		repo.On("Update", ctx, mock.MatchedBy(func(m *domain.Member) bool {
			return m.CardNumber == "654321" && m.CreatedAt.Equal(created) && m.PhotoPath == "7_abc.jpg"
		})).Return(nil).Once()

		update := testMember()
		update.ID = 7
		update.CardNumber = "999999" // must be ignored
		update.LastName = "Musterfrau"

		updated, err := svc.Update(ctx, update)
		assert.NoError(t, err)
		assert.Equal(t, "654321", updated.CardNumber)
		assert.Equal(t, "Musterfrau", updated.LastName)
		repo.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, nil, testPolicy, 30)

		repo.On("GetByID", ctx, int64(99)).Return(nil, repository.ErrNotFound).Once()

		update := testMember()
		update.ID = 99
		_, err := svc.Update(ctx, update)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestMemberService_Deactivate(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	svc := NewMemberService(repo, nil, testPolicy, 30)

	existing := testMember()
	existing.ID = 3
	repo.On("GetByID", ctx, int64(3)).Return(existing, nil).Once()
	repo.On("Update", ctx, mock.MatchedBy(func(m *domain.Member) bool {
		return !m.IsActive
	})).Return(nil).Once()

	m, err := svc.Deactivate(ctx, 3)
	assert.NoError(t, err)
	assert.False(t, m.IsActive)
	repo.AssertExpectations(t)
}

func TestMemberService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	photos := new(MockPhotoStore)
	svc := NewMemberService(repo, photos, testPolicy, 30)

	existing := testMember()
	existing.ID = 4
	existing.PhotoPath = "4_abc.jpg"
	repo.On("GetByID", ctx, int64(4)).Return(existing, nil).Once()
	repo.On("Delete", ctx, int64(4)).Return(nil).Once()
	photos.On("Remove", "4_abc.jpg").Return(nil).Once()

	assert.NoError(t, svc.Delete(ctx, 4))
	repo.AssertExpectations(t)
	photos.AssertExpectations(t)
}

func TestMemberService_Dashboard(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	svc := NewMemberService(repo, nil, testPolicy, 30)

	stats := &repository.MemberStats{Total: 12, Active: 10}
	repo.On("Stats", ctx, mock.Anything, 30).Return(stats, nil).Once()
	repo.On("ListRecent", ctx, int32(5)).Return([]domain.Member{*testMember()}, nil).Once()
	repo.On("ListExpiring", ctx, mock.Anything, int32(10)).Return([]domain.Member{}, nil).Once()

	d, err := svc.Dashboard(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(12), d.Stats.Total)
	assert.Len(t, d.RecentMembers, 1)
	repo.AssertExpectations(t)
}

// testPhoto renders a decodable portrait PNG above the minimum resolution.
func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 450))
	for y := 0; y < 450; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return buf.Bytes()
}

func TestMemberService_AttachPhoto(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplacesPreviousPhoto", func(t *testing.T) {
		repo := new(MockMemberRepo)
		photos := new(MockPhotoStore)
		svc := NewMemberService(repo, photos, testPolicy, 30)

		existing := testMember()
		existing.ID = 5
		existing.PhotoPath = "5_old.jpg"
		repo.On("GetByID", ctx, int64(5)).Return(existing, nil).Once()
		photos.On("Save", int64(5), mock.Anything).Return("5_new.jpg", nil).Once()
		repo.On("Update", ctx, mock.MatchedBy(func(m *domain.Member) bool {
			return m.PhotoPath == "5_new.jpg"
		})).Return(nil).Once()
		photos.On("Remove", "5_old.jpg").Return(nil).Once()

		m, err := svc.AttachPhoto(ctx, 5, testPhoto(t))
		assert.NoError(t, err)
		assert.Equal(t, "5_new.jpg", m.PhotoPath)
		repo.AssertExpectations(t)
		photos.AssertExpectations(t)
	})

	t.Run("CleansUpOrphanOnUpdateFailure", func(t *testing.T) {
		repo := new(MockMemberRepo)
		photos := new(MockPhotoStore)
		svc := NewMemberService(repo, photos, testPolicy, 30)

		existing := testMember()
		existing.ID = 6
		repo.On("GetByID", ctx, int64(6)).Return(existing, nil).Once()
		photos.On("Save", int64(6), mock.Anything).Return("6_new.jpg", nil).Once()
		repo.On("Update", ctx, mock.Anything).Return(errors.New("db down")).Once()
		photos.On("Remove", "6_new.jpg").Return(nil).Once()

		_, err := svc.AttachPhoto(ctx, 6, testPhoto(t))
		assert.Error(t, err)
		photos.AssertExpectations(t)
	})

	t.Run("RejectsGarbageUpload", func(t *testing.T) {
		repo := new(MockMemberRepo)
		photos := new(MockPhotoStore)
		svc := NewMemberService(repo, photos, testPolicy, 30)

		existing := testMember()
		existing.ID = 7
		repo.On("GetByID", ctx, int64(7)).Return(existing, nil).Once()

		_, err := svc.AttachPhoto(ctx, 7, []byte("not an image"))
		assert.Error(t, err)
		photos.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestMemberService_Photo(t *testing.T) {
	ctx := context.Background()

	t.Run("NoPhoto", func(t *testing.T) {
		repo := new(MockMemberRepo)
		svc := NewMemberService(repo, new(MockPhotoStore), testPolicy, 30)

		existing := testMember()
		existing.ID = 8
		repo.On("GetByID", ctx, int64(8)).Return(existing, nil).Once()

		_, err := svc.Photo(ctx, 8)
		assert.ErrorIs(t, err, ErrNoPhoto)
	})

	t.Run("StreamsStoredPhoto", func(t *testing.T) {
		repo := new(MockMemberRepo)
		photos := new(MockPhotoStore)
		svc := NewMemberService(repo, photos, testPolicy, 30)

		existing := testMember()
		existing.ID = 9
		existing.PhotoPath = "9_abc.jpg"
		repo.On("GetByID", ctx, int64(9)).Return(existing, nil).Once()
		photos.On("Open", "9_abc.jpg").Return(readCloser([]byte("jpeg-bytes")), nil).Once()

		rc, err := svc.Photo(ctx, 9)
		assert.NoError(t, err)
		defer rc.Close()
	})
}
