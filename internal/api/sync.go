package api

import (
	"net/http"
	"time"

	"github.com/halvard-dev/storefront/internal/store"
)

type syncResponse struct {
	Products []store.Product `json:"products"`
	Orders   []store.Order   `json:"orders"`
	SyncedAt time.Time       `json:"synced_at"`
}

// handleSync returns catalog and order changes since the client's last
// checkpoint. With no ?since the full data set is returned.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since parameter", "since must be RFC 3339")
			return
		}
	}

	products, err := a.opts.Store.Products.UpdatedSince(r.Context(), since)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	orders, err := a.opts.Store.Orders.UpdatedSince(r.Context(), userID, since)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	resp := syncResponse{
		Products: products,
		Orders:   orders,
		SyncedAt: time.Now().UTC(),
	}
	if resp.Products == nil {
		resp.Products = []store.Product{}
	}
	if resp.Orders == nil {
		resp.Orders = []store.Order{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncAckRequest struct {
	SyncedAt time.Time `json:"synced_at"`
}

type syncAckResponse struct {
	Acknowledged bool      `json:"acknowledged"`
	SyncedAt     time.Time `json:"synced_at"`
	ServerTime   time.Time `json:"server_time"`
}

// handleSyncAck records the checkpoint a client reports having applied, so a
// reinstalled client can resume from its last known-good state.
func (a *API) handleSyncAck(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	var req syncAckRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if req.SyncedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "Invalid synced_at", "synced_at must be RFC 3339")
		return
	}
	if err := a.opts.Store.TouchSync(r.Context(), userID, req.SyncedAt); err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncAckResponse{
		Acknowledged: true,
		SyncedAt:     req.SyncedAt.UTC(),
		ServerTime:   time.Now().UTC(),
	})
}
