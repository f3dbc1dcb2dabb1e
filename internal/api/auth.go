package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/halvard-dev/storefront/internal/auth"
	"github.com/halvard-dev/storefront/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email", "A valid email address is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Invalid password", "Password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	u, err := a.opts.Store.Users.Create(r.Context(), req.Email, hash, req.Name, auth.RoleCustomer)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "Email already registered", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	token, err := a.opts.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: u})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	u, err := a.opts.Store.Users.ByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		a.authFailure("unknown_user")
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		a.authFailure("bad_password")
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	token, err := a.opts.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	u, err := a.opts.Store.Users.ByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Account no longer exists")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
