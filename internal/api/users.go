package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/halvard-dev/storefront/internal/store"
)

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	u, err := a.opts.Store.Users.ByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	var req updateProfileRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Invalid profile", "Name must not be empty")
		return
	}

	u, err := a.opts.Store.Users.UpdateProfile(r.Context(), id, req.Name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
