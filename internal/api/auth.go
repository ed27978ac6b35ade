package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/store"
)

// errBadCredentials is returned by checkCredentials for an unknown party, a
// removed party or a wrong password.
var errBadCredentials = errors.New("invalid credentials")

// AuthHandler issues and revokes session tokens.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	Policy    *auth.Policy
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the token and what the party may do.
type loginResponse struct {
	Token        string      `json:"token"`
	User         model.User  `json:"user"`
	Role         model.Role  `json:"role"`
	Capabilities [][2]string `json:"capabilities"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// checkCredentials verifies that user is a live party with the given password.
func checkCredentials(user *model.User, password string) error {
	if user == nil || user.DeletedAt != nil {
		return errBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return errBadCredentials
	}
	return nil
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	party, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		slog.Error("looking up party", "username", req.Username, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := checkCredentials(party, req.Password); err != nil {
		slog.Warn("login refused", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, party.ID, party.Username, party.Role)
	if err != nil {
		slog.Error("signing token", "party_id", party.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	caps := h.Policy.Capabilities(party.Role)
	slog.Info("party logged in", "user", party.Username, "role", party.Role, "capabilities", len(caps))
	jsonResponse(w, http.StatusOK, loginResponse{
		Token:        token,
		User:         *party,
		Role:         party.Role,
		Capabilities: caps,
	})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	party, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		slog.Error("looking up party", "party_id", claims.UserID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := checkCredentials(party, req.CurrentPassword); err != nil {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, party.ID, string(hash)); err != nil {
		slog.Error("storing password", "party_id", party.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	slog.Info("party changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired anyway.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expiresAt); err != nil {
		slog.Error("revoking token", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	slog.Info("party logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}
