package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
)

// SessionIssuer 用管理员账号密码换取会话 token。
type SessionIssuer interface {
	Login(username, password string) (string, time.Time, error)
}

type AuthHandler struct {
	issuer SessionIssuer
}

func NewAuthHandler(issuer SessionIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	token, expires, err := h.issuer.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}
