package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/halvard-dev/storefront/internal/store"
)

// handleAdminStats backs the dashboard summary tiles.
func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.opts.Store.Counts(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.opts.Store.Orders.List(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

var validOrderStatus = map[string]bool{
	store.OrderPending:   true,
	store.OrderPaid:      true,
	store.OrderShipped:   true,
	store.OrderCancelled: true,
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleAdminOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if !validOrderStatus[req.Status] {
		writeError(w, http.StatusBadRequest, "Invalid status",
			"Status must be one of pending, paid, shipped, cancelled")
		return
	}

	o, err := a.opts.Store.Orders.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Order not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.opts.Store.Users.List(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	ImageURL    string `json:"image_url"`
	InStock     bool   `json:"in_stock"`
}

func (pr *productRequest) validate(w http.ResponseWriter) bool {
	if strings.TrimSpace(pr.Name) == "" {
		writeError(w, http.StatusBadRequest, "Invalid product", "Name must not be empty")
		return false
	}
	if pr.PriceCents < 0 {
		writeError(w, http.StatusBadRequest, "Invalid product", "Price must not be negative")
		return false
	}
	return true
}

func (a *API) handleAdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	p, err := a.opts.Store.Products.Create(r.Context(), store.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		ImageURL:    req.ImageURL,
		InStock:     req.InStock,
	})
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleAdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}

	var req productRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	p, err := a.opts.Store.Products.Update(r.Context(), store.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		ImageURL:    req.ImageURL,
		InStock:     req.InStock,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}

	err := a.opts.Store.Products.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
