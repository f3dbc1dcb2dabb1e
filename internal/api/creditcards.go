package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/halvard-dev/storefront/internal/store"
)

func (a *API) handleListCards(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	cards, err := a.opts.Store.CreditCards.ByUser(r.Context(), id)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	if cards == nil {
		cards = []store.CreditCard{}
	}
	writeJSON(w, http.StatusOK, cards)
}

type saveCardRequest struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// handleSaveCard keeps only the display remainder of the card. The full
// number is validated, reduced to last4 plus brand, and dropped.
func (a *API) handleSaveCard(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	var req saveCardRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	pan := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, req.Number)
	if !isDigits(pan) || len(pan) < 12 || len(pan) > 19 {
		writeError(w, http.StatusBadRequest, "Invalid card", "Card number must be 12-19 digits")
		return
	}
	if req.ExpMonth < 1 || req.ExpMonth > 12 {
		writeError(w, http.StatusBadRequest, "Invalid card", "Expiry month must be 1-12")
		return
	}
	now := time.Now()
	if req.ExpYear < now.Year() || (req.ExpYear == now.Year() && req.ExpMonth < int(now.Month())) {
		writeError(w, http.StatusBadRequest, "Invalid card", "Card is expired")
		return
	}

	card, err := a.opts.Store.CreditCards.Save(r.Context(), store.CreditCard{
		UserID:   userID,
		Last4:    pan[len(pan)-4:],
		Brand:    cardBrand(pan),
		ExpMonth: req.ExpMonth,
		ExpYear:  req.ExpYear,
	})
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (a *API) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token subject")
		return
	}

	cardID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	err = a.opts.Store.CreditCards.Delete(r.Context(), userID, cardID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Card not found", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// cardBrand classifies by issuer prefix; unrecognized prefixes are
// stored as "unknown" rather than rejected.
func cardBrand(pan string) string {
	switch {
	case strings.HasPrefix(pan, "4"):
		return "visa"
	case strings.HasPrefix(pan, "5"):
		return "mastercard"
	case strings.HasPrefix(pan, "34"), strings.HasPrefix(pan, "37"):
		return "amex"
	case strings.HasPrefix(pan, "6"):
		return "discover"
	default:
		return "unknown"
	}
}
