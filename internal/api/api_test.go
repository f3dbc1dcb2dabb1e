package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard-dev/storefront/internal/apkstore"
	"github.com/halvard-dev/storefront/internal/auth"
	"github.com/halvard-dev/storefront/internal/store"
)

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	store  *store.Store
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := auth.NewTokenIssuer("test-secret-please-rotate", "storefront-test", time.Hour)
	require.NoError(t, err)

	opts := Options{Store: st, Tokens: tokens, ExposeErrors: true}
	if mutate != nil {
		mutate(&opts)
	}
	a, err := New(opts)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", a.RegisterRoutes)
	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{t: t, srv: srv, store: st, tokens: tokens}
}

func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(e.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) register(email, password string) authResponse {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": password, "name": "Test User",
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	return decode[authResponse](e.t, resp)
}

func (e *testEnv) adminToken() string {
	e.t.Helper()
	hash, err := auth.HashPassword("admin-password")
	require.NoError(e.t, err)
	u, err := e.store.Users.Create(context.Background(), "admin@example.com", hash, "Admin", auth.RoleAdmin)
	require.NoError(e.t, err)
	token, err := e.tokens.Issue(u.ID, u.Role)
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) seedProduct(name string, priceCents int64) store.Product {
	e.t.Helper()
	p, err := e.store.Products.Create(context.Background(), store.Product{
		Name: name, PriceCents: priceCents, InStock: true,
	})
	require.NoError(e.t, err)
	return p
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	reg := env.register("alice@example.com", "correct horse battery")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.Equal(t, auth.RoleCustomer, reg.User.Role)

	resp := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[authResponse](t, resp)

	resp = env.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[store.User](t, resp)
	assert.Equal(t, reg.User.ID, me.ID)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "long enough here", "name": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bob@example.com", "password": "short", "name": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register("carol@example.com", "first-password!")

	resp := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Carol@Example.com", "password": "second-password!", "name": "x",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginUniformFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register("dave@example.com", "real-password!!")

	for _, creds := range []map[string]string{
		{"email": "nobody@example.com", "password": "whatever-123"},
		{"email": "dave@example.com", "password": "wrong-password"},
	} {
		resp := env.do(http.MethodPost, "/api/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, "Invalid credentials", body.Error)
	}
}

func TestProducts(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]store.Product](t, resp))

	p := env.seedProduct("Mug", 1250)

	resp = env.do(http.MethodGet, fmt.Sprintf("/api/products/%d", p.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Product](t, resp)
	assert.Equal(t, "Mug", got.Name)
	assert.Equal(t, int64(1250), got.PriceCents)

	resp = env.do(http.MethodGet, "/api/products/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGuestOrderUsesCatalogPrices(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct("Poster", 900)

	resp := env.do(http.MethodPost, "/api/orders", "", map[string]any{
		"email": "guest@example.com",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	o := decode[store.Order](t, resp)

	assert.Equal(t, int64(2700), o.TotalCents)
	assert.Nil(t, o.UserID)
	assert.Equal(t, store.OrderPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(900), o.Items[0].PriceCents)

	// guests can revisit the confirmation by UUID
	resp = env.do(http.MethodGet, "/api/orders/"+o.ID, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct("Pin", 100)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"no items", map[string]any{"email": "g@example.com", "items": []map[string]any{}}, http.StatusBadRequest},
		{"no email", map[string]any{"items": []map[string]any{{"product_id": p.ID, "quantity": 1}}}, http.StatusBadRequest},
		{"unknown product", map[string]any{"email": "g@example.com", "items": []map[string]any{{"product_id": 999, "quantity": 1}}}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"email": "g@example.com", "items": []map[string]any{{"product_id": p.ID, "quantity": 0}}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, "/api/orders", "", tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestOrderOutOfStock(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.store.Products.Create(context.Background(), store.Product{
		Name: "Sold Out", PriceCents: 500, InStock: false,
	})
	require.NoError(t, err)

	resp := env.do(http.MethodPost, "/api/orders", "", map[string]any{
		"email": "g@example.com",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUserOrdersAreOwned(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct("Shirt", 2000)

	alice := env.register("alice@example.com", "password-alice")
	bob := env.register("bob@example.com", "password-bobbob")

	resp := env.do(http.MethodPost, "/api/orders", alice.Token, map[string]any{
		"items": []map[string]any{{"product_id": p.ID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	o := decode[store.Order](t, resp)
	require.NotNil(t, o.UserID)
	assert.Equal(t, alice.User.ID, *o.UserID)
	// email filled in from the account
	assert.Equal(t, "alice@example.com", o.Email)

	resp = env.do(http.MethodGet, "/api/orders", alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.Order](t, resp), 1)

	resp = env.do(http.MethodGet, "/api/orders", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]store.Order](t, resp))

	// an account-owned order is hidden from other users and guests
	resp = env.do(http.MethodGet, "/api/orders/"+o.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(http.MethodGet, "/api/orders/"+o.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	u := env.register("erin@example.com", "erin-password!")

	resp := env.do(http.MethodGet, "/api/users/me", u.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodPut, "/api/users/me", u.Token, map[string]string{"name": "Erin Updated"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.User](t, resp)
	assert.Equal(t, "Erin Updated", got.Name)

	resp = env.do(http.MethodPut, "/api/users/me", u.Token, map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreditCards(t *testing.T) {
	env := newTestEnv(t)
	u := env.register("frank@example.com", "frank-password")

	resp := env.do(http.MethodPost, "/api/creditcards", u.Token, map[string]any{
		"number": "4242 4242 4242 4242", "exp_month": 12, "exp_year": time.Now().Year() + 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	card := decode[store.CreditCard](t, resp)
	assert.Equal(t, "4242", card.Last4)
	assert.Equal(t, "visa", card.Brand)

	resp = env.do(http.MethodGet, "/api/creditcards", u.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cards := decode[[]store.CreditCard](t, resp)
	require.Len(t, cards, 1)
	// the full number never comes back
	raw, err := json.Marshal(cards[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "4242424242424242")

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/creditcards/%d", card.ID), u.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/creditcards/%d", card.ID), u.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreditCardValidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.register("grace@example.com", "grace-password")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"letters in number", map[string]any{"number": "4242abcd42424242", "exp_month": 1, "exp_year": 2030}},
		{"too short", map[string]any{"number": "4242", "exp_month": 1, "exp_year": 2030}},
		{"bad month", map[string]any{"number": "4242424242424242", "exp_month": 13, "exp_year": 2030}},
		{"expired", map[string]any{"number": "4242424242424242", "exp_month": 1, "exp_year": 2020}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, "/api/creditcards", u.Token, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCardBrand(t *testing.T) {
	for pan, want := range map[string]string{
		"4242424242424242": "visa",
		"5555555555554444": "mastercard",
		"341111111111111":  "amex",
		"371111111111111":  "amex",
		"6011000000000004": "discover",
		"9999999999999999": "unknown",
	} {
		assert.Equal(t, want, cardBrand(pan), pan)
	}
}

func TestCardsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register("owner@example.com", "owner-password")
	other := env.register("other@example.com", "other-password")

	resp := env.do(http.MethodPost, "/api/creditcards", owner.Token, map[string]any{
		"number": "5555555555554444", "exp_month": 6, "exp_year": time.Now().Year() + 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	card := decode[store.CreditCard](t, resp)

	resp = env.do(http.MethodGet, "/api/creditcards", other.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]store.CreditCard](t, resp))

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/creditcards/%d", card.ID), other.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)
	u := env.register("henry@example.com", "henry-password")
	p := env.seedProduct("Sticker", 300)

	resp := env.do(http.MethodPost, "/api/orders", u.Token, map[string]any{
		"items": []map[string]any{{"product_id": p.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/sync", u.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode[syncResponse](t, resp)
	assert.Len(t, full.Products, 1)
	assert.Len(t, full.Orders, 1)
	assert.False(t, full.SyncedAt.IsZero())

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp = env.do(http.MethodGet, "/api/sync?since="+future, u.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decode[syncResponse](t, resp)
	assert.Empty(t, empty.Products)
	assert.Empty(t, empty.Orders)

	resp = env.do(http.MethodGet, "/api/sync?since=yesterday", u.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/sync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSyncAck(t *testing.T) {
	env := newTestEnv(t)
	u := env.register("iris@example.com", "iris-password")

	checkpoint := time.Now().UTC().Truncate(time.Second)
	resp := env.do(http.MethodPost, "/api/sync", u.Token, map[string]any{
		"synced_at": checkpoint.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ack := decode[syncAckResponse](t, resp)
	assert.True(t, ack.Acknowledged)
	assert.True(t, ack.SyncedAt.Equal(checkpoint))
	assert.False(t, ack.ServerTime.IsZero())

	resp = env.do(http.MethodPost, "/api/sync", u.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodPost, "/api/sync", "", map[string]any{
		"synced_at": checkpoint.Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	customer := env.register("ivy@example.com", "ivy-password-1")

	resp := env.do(http.MethodGet, "/api/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/admin/orders", customer.Token, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "Admin access required", body.Message)
}

func TestAdminProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()

	resp := env.do(http.MethodPost, "/api/admin/products", admin, map[string]any{
		"name": "Hat", "description": "warm", "price_cents": 1500, "image_url": "", "in_stock": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[store.Product](t, resp)

	resp = env.do(http.MethodPut, fmt.Sprintf("/api/admin/products/%d", p.ID), admin, map[string]any{
		"name": "Winter Hat", "description": "warm", "price_cents": 1800, "image_url": "", "in_stock": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[store.Product](t, resp)
	assert.Equal(t, "Winter Hat", updated.Name)
	assert.False(t, updated.InStock)

	resp = env.do(http.MethodPost, "/api/admin/products", admin, map[string]any{
		"name": "", "description": "", "price_cents": 100, "image_url": "", "in_stock": true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/admin/products/%d", p.ID), admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/api/admin/products/%d", p.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()
	p := env.seedProduct("Lamp", 4500)

	resp := env.do(http.MethodPost, "/api/orders", "", map[string]any{
		"email": "g@example.com",
		"items": []map[string]any{{"product_id": p.ID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	o := decode[store.Order](t, resp)

	resp = env.do(http.MethodPut, "/api/admin/orders/"+o.ID+"/status", admin, map[string]string{"status": "shipped"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.OrderShipped, decode[store.Order](t, resp).Status)

	resp = env.do(http.MethodPut, "/api/admin/orders/"+o.ID+"/status", admin, map[string]string{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodPut, "/api/admin/orders/missing/status", admin, map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/admin/orders", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.Order](t, resp), 1)

	resp = env.do(http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]store.User](t, resp))
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()
	env.register("stats-user@example.com", "stats-password")
	env.seedProduct("Thing", 100)

	resp := env.do(http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	counts := decode[store.Counts](t, resp)
	assert.Equal(t, int64(2), counts.Users) // admin + registered customer
	assert.Equal(t, int64(1), counts.Products)
	assert.Equal(t, int64(0), counts.Orders)
}

func TestAPKUnconfigured(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/apk/latest", "/api/apk/version"} {
		resp := env.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, "APK not available", body.Error)
	}
}

func TestAPKVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "launcher-v2.apk"), []byte("apk-bytes"), 0o644))

	apks, err := apkstore.New(context.Background(), apkstore.Options{Dir: dir})
	require.NoError(t, err)

	env := newTestEnvWith(t, func(opts *Options) { opts.APK = apks })

	resp := env.do(http.MethodGet, "/api/apk/version", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[apkVersionResponse](t, resp)
	assert.Equal(t, "launcher-v2.apk", v.Name)
	assert.Equal(t, int64(len("apk-bytes")), v.Size)
	assert.Equal(t, apkstore.SourceLocal, v.Source)
	assert.False(t, v.ModifiedAt.IsZero())

	resp = env.do(http.MethodGet, "/api/apk/latest", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.android.package-archive", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "apk-bytes", string(raw))
}

func TestNotFoundShape(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		resp := env.do(method, "/api/no-such-route", "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
		body := decode[errorBody](t, resp)
		assert.Equal(t, "Route not found", body.Error)
		assert.Equal(t, fmt.Sprintf("Cannot %s /api/no-such-route", method), body.Message)
	}
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/auth/login", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
