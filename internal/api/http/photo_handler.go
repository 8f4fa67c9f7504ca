package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/MLeprich/mitgliederverwaltung/internal/imaging"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
)

// PhotoHandler handles photo upload and download for a member.
type PhotoHandler struct {
	members       service.MemberService
	render        *MemberHandler
	maxUploadSize int64
}

func NewPhotoHandler(members service.MemberService, render *MemberHandler, maxUploadSizeMB int64) *PhotoHandler {
	return &PhotoHandler{
		members:       members,
		render:        render,
		maxUploadSize: maxUploadSizeMB << 20,
	}
}

// Upload handles POST /api/v1/members/{id}/photo. Expects a multipart form
// with the image in the "photo" field.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		badRequest(w, "Invalid multipart form or file too large")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		badRequest(w, "Missing photo field")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		internalError(w, "Failed to read upload")
		return
	}

	m, err := h.members.AttachPhoto(r.Context(), id, raw)
	if err != nil {
		h.writePhotoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.render.toResponse(m))
}

// Download handles GET /api/v1/members/{id}/photo. Photos are always stored
// as normalized JPEG.
func (h *PhotoHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	photo, err := h.members.Photo(r.Context(), id)
	if err != nil {
		h.writePhotoError(w, err)
		return
	}
	defer photo.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=60")
	io.Copy(w, photo)
}

func (h *PhotoHandler) writePhotoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		notFound(w, "Member not found")
	case errors.Is(err, service.ErrNoPhoto):
		notFound(w, "Member has no photo")
	case errors.Is(err, imaging.ErrTooLarge),
		errors.Is(err, imaging.ErrTooSmall),
		errors.Is(err, imaging.ErrUnsupportedFormat):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_IMAGE", err.Error())
	default:
		logger.Error("Photo operation failed", "error", err)
		internalError(w, "Internal server error")
	}
}
