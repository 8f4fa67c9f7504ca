package http

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/security"
)

// AuthHandler handles the admin login endpoint. The roster tool is operated
// by a single administrative account configured in the server config.
type AuthHandler struct {
	admin  config.AdminConfig
	tokens security.TokenManager
}

func NewAuthHandler(admin config.AdminConfig, tokens security.TokenManager) *AuthHandler {
	return &AuthHandler{admin: admin, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		logger.Warn("Failed login attempt", "username", req.Username)
		unauthorized(w, "Invalid credentials")
		return
	}

	token, err := h.tokens.GenerateAccessToken(req.Username)
	if err != nil {
		logger.Error("Failed to sign access token", "error", err)
		internalError(w, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: req.Username})
}
