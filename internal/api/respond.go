package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/halvard-dev/storefront/internal/log"
)

// errorBody is the JSON error shape shared by every API response,
// including the pipeline-level 404 and 500 fallbacks.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errMsg, detail string) {
	writeJSON(w, status, errorBody{Error: errMsg, Message: detail})
}

// NotFound is the catch-all for unmatched routes and methods. Shape and
// wording match what API clients already parse.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found",
		fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
}

// serverError logs err and writes the environment-sensitive 500 body.
func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).Error(r.Context(), err, "api request failed")

	detail := "An unexpected error occurred"
	if a.opts.ExposeErrors {
		detail = err.Error()
	}
	writeError(w, http.StatusInternalServerError, "Internal server error", detail)
}

// decodeJSON reads a JSON body into dst with the request-level size cap
// already applied by the MaxBody middleware. Oversized bodies map to
// 413, anything malformed to 400. Returns false after writing the
// error response.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	// trailing garbage after the object is also malformed
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body", "unexpected data after JSON body")
		return false
	}
	return true
}
