package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
)

// apiDateFormat is the wire format for all date fields.
const apiDateFormat = "2006-01-02"

// MemberHandler handles the member CRUD and dashboard endpoints.
type MemberHandler struct {
	members  service.MemberService
	warnDays int
}

func NewMemberHandler(members service.MemberService, warnDays int) *MemberHandler {
	return &MemberHandler{members: members, warnDays: warnDays}
}

// memberRequest is the create/update payload. Dates travel as "YYYY-MM-DD".
type memberRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	BirthDate        string `json:"birth_date"`
	PersonnelNumber  string `json:"personnel_number"`
	MemberType       string `json:"member_type"`
	CardNumberPrefix string `json:"card_number_prefix"`
	CardNumber       string `json:"card_number"`
	IssuedDate       string `json:"issued_date"`
	ValidUntil       string `json:"valid_until"`
	ManualValidity   bool   `json:"manual_validity"`
	IsActive         *bool  `json:"is_active"`
}

// memberResponse mirrors the member record plus derived card state.
type memberResponse struct {
	ID               int64  `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	BirthDate        string `json:"birth_date"`
	Age              int    `json:"age"`
	PersonnelNumber  string `json:"personnel_number,omitempty"`
	MemberType       string `json:"member_type"`
	MemberTypeLabel  string `json:"member_type_label"`
	CardNumberPrefix string `json:"card_number_prefix,omitempty"`
	CardNumber       string `json:"card_number"`
	FullCardNumber   string `json:"full_card_number"`
	IssuedDate       string `json:"issued_date,omitempty"`
	ValidUntil       string `json:"valid_until,omitempty"`
	ManualValidity   bool   `json:"manual_validity"`
	CardStatus       string `json:"card_status"`
	HasPhoto         bool   `json:"has_photo"`
	IsActive         bool   `json:"is_active"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func (h *MemberHandler) toResponse(m *domain.Member) memberResponse {
	now := time.Now()
	return memberResponse{
		ID:               m.ID,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		BirthDate:        m.BirthDate.Format(apiDateFormat),
		Age:              m.Age(now),
		PersonnelNumber:  m.PersonnelNumber,
		MemberType:       string(m.MemberType),
		MemberTypeLabel:  m.MemberType.DisplayName(),
		CardNumberPrefix: m.CardNumberPrefix,
		CardNumber:       m.CardNumber,
		FullCardNumber:   m.FullCardNumber(),
		IssuedDate:       formatAPIDate(m.IssuedDate),
		ValidUntil:       formatAPIDate(m.ValidUntil),
		ManualValidity:   m.ManualValidity,
		CardStatus:       string(m.CardStatus(now, h.warnDays)),
		HasPhoto:         m.PhotoPath != "",
		IsActive:         m.IsActive,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        m.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *MemberHandler) toResponseList(members []domain.Member) []memberResponse {
	out := make([]memberResponse, len(members))
	for i := range members {
		out[i] = h.toResponse(&members[i])
	}
	return out
}

// Create handles POST /api/v1/members
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMember(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	created, err := h.members.Create(r.Context(), m)
	if err != nil {
		h.writeMemberError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(created))
}

// Get handles GET /api/v1/members/{id}
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	m, err := h.members.Get(r.Context(), id)
	if err != nil {
		h.writeMemberError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(m))
}

// Update handles PUT /api/v1/members/{id}
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	m, err := decodeMember(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	m.ID = id

	updated, err := h.members.Update(r.Context(), m)
	if err != nil {
		h.writeMemberError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(updated))
}

// Delete handles DELETE /api/v1/members/{id}
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	if err := h.members.Delete(r.Context(), id); err != nil {
		h.writeMemberError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// Deactivate handles POST /api/v1/members/{id}/deactivate
func (h *MemberHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	m, err := h.members.Deactivate(r.Context(), id)
	if err != nil {
		h.writeMemberError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(m))
}

// List handles GET /api/v1/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.MemberFilter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Sort:     q.Get("sort"),
		Page:     queryInt32(q.Get("page"), 1),
		PageSize: queryInt32(q.Get("page_size"), 25),
	}

	members, total, err := h.members.List(r.Context(), f)
	if err != nil {
		logger.Error("Failed to list members", "error", err)
		internalError(w, "Failed to list members")
		return
	}

	totalPages := total / f.PageSize
	if total%f.PageSize != 0 {
		totalPages++
	}
	writeJSONWithMeta(w, http.StatusOK, h.toResponseList(members), &Meta{
		Page:       int(f.Page),
		PerPage:    int(f.PageSize),
		Total:      total,
		TotalPages: totalPages,
	})
}

// Dashboard handles GET /api/v1/dashboard
func (h *MemberHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.members.Dashboard(r.Context())
	if err != nil {
		logger.Error("Failed to build dashboard", "error", err)
		internalError(w, "Failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":            d.Stats,
		"recent_members":   h.toResponseList(d.RecentMembers),
		"expiring_members": h.toResponseList(d.ExpiringMembers),
	})
}

// writeMemberError maps service errors onto HTTP status codes.
func (h *MemberHandler) writeMemberError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", vErr.Error())
	case errors.Is(err, repository.ErrNotFound):
		notFound(w, "Member not found")
	case errors.Is(err, repository.ErrDuplicateCardNumber), errors.Is(err, service.ErrCardNumberConflict):
		conflict(w, err.Error())
	default:
		logger.Error("Member operation failed", "error", err)
		internalError(w, "Internal server error")
	}
}

func decodeMember(r *http.Request) (*domain.Member, error) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("invalid request body")
	}

	birthDate, err := parseAPIDate(req.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("invalid birth_date: %v", err)
	}
	issued, err := parseOptionalAPIDate(req.IssuedDate)
	if err != nil {
		return nil, fmt.Errorf("invalid issued_date: %v", err)
	}
	validUntil, err := parseOptionalAPIDate(req.ValidUntil)
	if err != nil {
		return nil, fmt.Errorf("invalid valid_until: %v", err)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &domain.Member{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		BirthDate:        birthDate,
		PersonnelNumber:  req.PersonnelNumber,
		MemberType:       domain.MemberType(req.MemberType),
		CardNumberPrefix: req.CardNumberPrefix,
		CardNumber:       req.CardNumber,
		IssuedDate:       issued,
		ValidUntil:       validUntil,
		ManualValidity:   req.ManualValidity,
		IsActive:         active,
	}, nil
}

func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "Invalid member ID")
		return 0, false
	}
	return id, true
}

func parseAPIDate(s string) (time.Time, error) {
	return time.Parse(apiDateFormat, s)
}

func parseOptionalAPIDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(apiDateFormat, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatAPIDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(apiDateFormat)
}

func queryInt32(s string, fallback int32) int32 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n <= 0 {
		return fallback
	}
	return int32(n)
}
