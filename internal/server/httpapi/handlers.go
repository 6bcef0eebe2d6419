package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 16

type handler struct {
	auth   Authenticator
	logger logging.Logger
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshPayload struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.UserName, Role: u.Role.String()}
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) Register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	user, err := h.auth.Register(r.Context(), payload.Username, payload.Password)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	h.logger.Info(r.Context(), "Registered", "user_id", user.ID, "role", user.Role.String())
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	pair, err := h.auth.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), payload.UserID, payload.RefreshToken)
	if err != nil {
		h.writeError(w, r, "refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Me returns the caller's own profile.
func (h *handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	user, err := h.auth.GetUser(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// GetUser looks up any user by id. Mounted behind RequireCapability.
func (h *handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get_user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
