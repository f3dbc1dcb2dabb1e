package api

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/halvard-dev/storefront/internal/auth"
	"github.com/halvard-dev/storefront/internal/store"
)

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type createOrderRequest struct {
	Email string             `json:"email"`
	Items []orderItemRequest `json:"items"`
}

// handleCreateOrder accepts both guest and signed-in checkouts. Prices
// are read from the catalog at order time, never from the client.
func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid order", "Order must contain at least one item")
		return
	}

	order := store.Order{Email: req.Email}

	if claims := a.optionalAuth(r); claims != nil {
		id, err := claims.UserID()
		if err == nil {
			order.UserID = &id
			if u, err := a.opts.Store.Users.ByID(r.Context(), id); err == nil && order.Email == "" {
				order.Email = u.Email
			}
		}
	}

	if _, err := mail.ParseAddress(order.Email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email", "A contact email is required for the order")
		return
	}

	var total int64
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid order", "Item quantity must be positive")
			return
		}
		p, err := a.opts.Store.Products.ByID(r.Context(), item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "Invalid order", "Unknown product in order")
			return
		}
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if !p.InStock {
			writeError(w, http.StatusConflict, "Out of stock", p.Name+" is not available")
			return
		}
		order.Items = append(order.Items, store.OrderItem{
			ProductID:  p.ID,
			Quantity:   item.Quantity,
			PriceCents: p.PriceCents,
		})
		total += p.PriceCents * item.Quantity
	}
	order.TotalCents = total

	created, err := a.opts.Store.Orders.Create(r.Context(), order)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if a.opts.Metrics != nil {
		a.opts.Metrics.IncOrderCreated()
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleMyOrders returns the caller's own orders.
func (a *API) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	orders, err := a.opts.Store.Orders.ByUser(r.Context(), id)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// handleGetOrder fetches one order. Guests may look up an order by its
// unguessable UUID (the confirmation-page flow); signed-in users may
// only read their own unless they are admins.
func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := a.opts.Store.Orders.ByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Order not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if o.UserID != nil {
		claims := a.optionalAuth(r)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "This order belongs to an account")
			return
		}
		callerID, err := claims.UserID()
		if err != nil || (callerID != *o.UserID && claims.Role != auth.RoleAdmin) {
			writeError(w, http.StatusForbidden, "Forbidden", "")
			return
		}
	}

	writeJSON(w, http.StatusOK, o)
}
