package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
	"github.com/MLeprich/mitgliederverwaltung/internal/security"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

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
	return m.Called(ctx, id).Error(0)
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
func (m *MockMemberService) Dashboard(ctx context.Context) (*service.Dashboard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Dashboard), args.Error(1)
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

const testJWTSecret = "test-secret-0123456789abcdef-0123456789"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("geheim"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &config.Config{
		JWT:     config.JWTConfig{Secret: testJWTSecret, AccessTokenExpiry: 60},
		Admin:   config.AdminConfig{Username: "admin", PasswordHash: string(hash)},
		Storage: config.StorageConfig{MaxUploadSizeMB: 10},
		Policy:  config.PolicyConfig{MinAge: 16, MaxAge: 100, ExpiryWarnDays: 30},
	}
}

func testRouter(t *testing.T, members service.MemberService) (http.Handler, string) {
	t.Helper()
	cfg := testConfig(t)
	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	router := NewRouter(RouterDeps{
		Config:  cfg,
		Tokens:  tokens,
		Members: members,
	})
	token, err := tokens.GenerateAccessToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return router, token
}

func decodeResponse(t *testing.T, body *bytes.Buffer) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAuthLogin(t *testing.T) {
	router, _ := testRouter(t, new(MockMemberService))

	t.Run("Success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/auth/login",
			strings.NewReader(`{"username":"admin","password":"geheim"}`))
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec.Body)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]interface{})
		assert.NotEmpty(t, data["token"])
	})

	t.Run("WrongPassword", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/auth/login",
			strings.NewReader(`{"username":"admin","password":"falsch"}`))
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	router, token := testRouter(t, new(MockMemberService))

	t.Run("MissingToken", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members", nil)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members", nil)
		req.Header.Set("Authorization", token)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMemberEndpoints(t *testing.T) {
	issued := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	until := issued.AddDate(0, 0, domain.LongValidityDays)
	created := &domain.Member{
		ID:               1,
		FirstName:        "Max",
		LastName:         "Mustermann",
		BirthDate:        time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC),
		MemberType:       domain.MemberTypeFF,
		CardNumberPrefix: "FF",
		CardNumber:       "123456",
		IssuedDate:       &issued,
		ValidUntil:       &until,
		IsActive:         true,
	}

	t.Run("Create", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		members.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Member) bool {
			return m.FirstName == "Max" && m.MemberType == domain.MemberTypeFF
		})).Return(created, nil).Once()

		body := `{"first_name":"Max","last_name":"Mustermann","birth_date":"1985-06-15",
		          "member_type":"FF","card_number_prefix":"FF","issued_date":"2026-01-01"}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/members", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeResponse(t, rec.Body)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "FF123456", data["full_card_number"])
		assert.Equal(t, "valid", data["card_status"])
		members.AssertExpectations(t)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		members.On("Get", mock.Anything, int64(99)).Return(nil, repository.ErrNotFound).Once()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members/99", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("CreateValidationError", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		members.On("Create", mock.Anything, mock.Anything).
			Return(nil, &domain.ValidationError{Field: "birth_date", Message: "age must be between 16 and 100 years"}).Once()

		body := `{"first_name":"Kind","last_name":"Klein","birth_date":"2020-01-01"}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/members", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ListWithMeta", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		members.On("List", mock.Anything, mock.MatchedBy(func(f repository.MemberFilter) bool {
			return f.Search == "must" && f.Page == 2 && f.PageSize == 10
		})).Return([]domain.Member{*created}, int32(11), nil).Once()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members?search=must&page=2&page_size=10", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec.Body)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, int32(11), resp.Meta.Total)
		assert.Equal(t, int32(2), resp.Meta.TotalPages)
	})

	t.Run("Deactivate", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		deactivated := *created
		deactivated.IsActive = false
		members.On("Deactivate", mock.Anything, int64(1)).Return(&deactivated, nil).Once()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/members/1/deactivate", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec.Body)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, false, data["is_active"])
	})

	t.Run("PhotoNotFound", func(t *testing.T) {
		members := new(MockMemberService)
		router, token := testRouter(t, members)

		members.On("Photo", mock.Anything, int64(1)).Return(nil, service.ErrNoPhoto).Once()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/members/1/photo", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
