package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/fjod/go_cart/storefront/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "tok-1"

// fakeAPI is a minimal storefront API backed by in-memory state.
type fakeAPI struct {
	mu          sync.RWMutex
	stock       map[string]int // product id -> quantity
	canOrder    *bool
	revoked     bool
	signups     []map[string]any
	profiles    []map[string]any
	orders      int
	orderStatus int
}

func (f *fakeAPI) setStock(id string, qty int) {
	f.configure(func(f *fakeAPI) { f.stock[id] = qty })
}

func (f *fakeAPI) configure(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) read(fn func(f *fakeAPI)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api")
	if path != "/login" && path != "/signup" && (r.Header.Get("Token") != testToken || f.revoked) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
		return
	}

	switch path {
	case "/login":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"data":{"token":%q,"user":{"_id":"u1","email":"buyer@example.com"}}}`, testToken))
	case "/getUserData":
		user := map[string]any{"_id": "u1", "email": "buyer@example.com", "first_name": "Ann"}
		if f.canOrder != nil {
			user["can_order"] = *f.canOrder
		}
		payload := map[string]any{"user": user}
		payload["shipping_address"] = map[string]string{"address_1": "1 Main St", "city": "Austin", "postcode": "73301"}
		data, _ := json.Marshal(map[string]any{"data": map[string]any{"data": payload}})
		writeJSON(w, http.StatusOK, string(data))
	case "/products/by-sub-category":
		var items []map[string]any
		for id, qty := range f.stock {
			items = append(items, map[string]any{"_id": id, "quantity": qty, "price": 10})
		}
		data, _ := json.Marshal(map[string]any{"data": map[string]any{
			"items":      items,
			"pagination": map[string]int{"current_page": 1, "last_page": 1},
		}})
		writeJSON(w, http.StatusOK, string(data))
	case "/signup":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.signups = append(f.signups, body)
		writeJSON(w, http.StatusOK, `{"message":"ok"}`)
	case "/profile/update":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.profiles = append(f.profiles, body)
		writeJSON(w, http.StatusOK, `{"message":"ok"}`)
	case "/orders/create":
		_, _ = io.Copy(io.Discard, r.Body)
		if f.orderStatus != 0 {
			writeJSON(w, f.orderStatus, `{"message":"Order service down"}`)
			return
		}
		f.orders++
		writeJSON(w, http.StatusOK, `{"status":"success","message":"Order created","data":{"_id":"o1"}}`)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type fixture struct {
	api     *fakeAPI
	backend *store.MemoryBackend
	store   *store.Store
	deps    Deps
}

func setupFixture(t *testing.T) *fixture {
	fake := &fakeAPI{stock: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := api.New(api.Options{
		BaseURL:        srv.URL + "/api",
		Timeout:        5 * time.Second,
		BreakerTimeout: time.Minute,
		HTTPClient:     srv.Client(),
	})
	require.NoError(t, err)

	backend := store.NewMemoryBackend()
	st := store.New(backend, zap.NewNop())
	return &fixture{
		api:     fake,
		backend: backend,
		store:   st,
		deps: Deps{
			Store: st,
			API:   client,
		},
	}
}

func (fx *fixture) session(t *testing.T, id string) *Session {
	s := New(id, fx.deps)
	s.Init(context.Background())
	t.Cleanup(s.Teardown)
	return s
}

func product(id string, price float64) domain.LineItem {
	return domain.LineItem{
		ID:                 id,
		Name:               "Product " + id,
		Price:              domain.Price(price),
		SKU:                "SKU-" + id,
		WarehenceProductID: 42,
		SubCategoryID:      "sub-1",
	}
}

func TestSession_MergeScenario(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()

	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 2))
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 3))

	items := s.Cart().Snapshot().Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, "50.00", checkout.FormatMoney(s.Cart().Total()))

	stored := fx.store.LoadCart(ctx, "s1")
	assert.Equal(t, 5, stored.Count())
}

func TestSession_StockConflictResolvedByUpdate(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)

	fx.api.setStock("P1", 2)
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 4))

	state, err := s.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "Only 2 available", state.Errors[0].Message)
	assert.Equal(t, 2, state.Errors[0].Available)

	gate := s.Gate()
	assert.False(t, gate.Allowed)
	assert.Equal(t, checkout.ReasonStockConflict, gate.Reason)

	require.NoError(t, s.Cart().UpdateQuantity(ctx, "P1", 2))
	state, err = s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Errors)
	assert.True(t, s.Gate().Allowed)
}

func TestSession_RemovingItemDropsItsStockError(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)

	fx.api.setStock("P1", 0)
	fx.api.setStock("P2", 10)
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 1))
	require.NoError(t, s.Cart().AddItem(ctx, product("P2", 5), 1))
	state, err := s.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, inventory.MessageOutOfStock, state.Errors[0].Message)

	require.NoError(t, s.Cart().RemoveItem(ctx, "P1"))

	assert.Empty(t, s.Inventory().State().Errors)
	assert.True(t, s.Gate().Allowed)
}

func TestSession_InitHydratesFromStore(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.SaveCart(ctx, "s1", domain.NewCart(domain.LineItem{ID: "P1", Price: 3, Quantity: 2})))
	require.NoError(t, fx.store.SaveToken(ctx, "s1", testToken))
	require.NoError(t, fx.store.SaveUser(ctx, "s1", &domain.User{ID: "u1", Email: "old@example.com"}))

	s := fx.session(t, "s1")

	assert.Equal(t, 2, s.Cart().Count())
	assert.True(t, s.SignedIn())
	user := s.User()
	require.NotNil(t, user)
	assert.Equal(t, "buyer@example.com", user.Email)
	assert.True(t, user.HasShippingAddress())
}

func TestSession_InitWithRejectedToken(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.SaveToken(ctx, "s1", "stale-token"))
	require.NoError(t, fx.store.SaveUser(ctx, "s1", &domain.User{ID: "u1", Email: "old@example.com"}))

	s := fx.session(t, "s1")

	assert.False(t, s.SignedIn())
	assert.Nil(t, s.User())
	assert.Empty(t, fx.store.LoadToken(ctx, "s1"))
}

func TestSession_ForcedLogoutKeepsCart(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 1))

	fx.api.configure(func(f *fakeAPI) { f.revoked = true })

	_, err = s.RefreshUser(ctx)

	require.ErrorIs(t, err, api.ErrUnauthorized)
	assert.False(t, s.SignedIn())
	assert.Nil(t, s.User())
	assert.Empty(t, fx.store.LoadToken(ctx, "s1"))
	assert.Nil(t, fx.store.LoadUser(ctx, "s1"))
	assert.Equal(t, 1, fx.store.LoadCart(ctx, "s1").Count())
}

func TestSession_LoginAndLogout(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	allowed := false
	fx.api.configure(func(f *fakeAPI) { f.canOrder = &allowed })

	user, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.FirstName)
	assert.False(t, user.CanOrder())
	assert.Equal(t, testToken, fx.store.LoadToken(ctx, "s1"))

	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.SignedIn())
	assert.Empty(t, fx.store.LoadToken(ctx, "s1"))

	_, err = s.RefreshUser(ctx)
	require.ErrorIs(t, err, ErrNotSignedIn)
	require.ErrorIs(t, err, api.ErrUnauthorized)
}

func signupRequest() api.SignupRequest {
	return api.SignupRequest{
		FirstName:            "Ann",
		LastName:             "Lee",
		Email:                "ann@example.com",
		Phone:                "555-0100",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
		CompanyName:          "Acme",
		AgreeMinOrder:        true,
		AgreeNoPersonalUse:   true,
		AgreeTerms:           true,
		AgreeNoResell:        true,
		Signature:            "Ann Lee",
	}
}

func TestSession_SignupStampsDate(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	s.now = func() time.Time { return time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Signup(context.Background(), signupRequest()))

	fx.api.read(func(f *fakeAPI) {
		require.Len(t, f.signups, 1)
		assert.Equal(t, "2024-03-09", f.signups[0]["signed_at"])
		assert.Equal(t, "Ann Lee", f.signups[0]["signature"])
	})
}

func TestSession_SignupValidatesBeforeSending(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	req := signupRequest()
	req.PasswordConfirmation = "other"

	err := s.Signup(context.Background(), req)

	require.ErrorIs(t, err, validation.ErrInvalid)
	assert.Contains(t, err.Error(), validation.MsgPasswordMismatch)
	fx.api.read(func(f *fakeAPI) { assert.Empty(t, f.signups) })
}

func TestSession_UpdateProfileWithoutPassword(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)

	_, err = s.UpdateProfile(ctx, api.ProfileUpdate{
		FirstName:       "Ann",
		LastName:        "Lee",
		Email:           "buyer@example.com",
		CurrentPassword: "typed-but-unused",
	})
	require.NoError(t, err)

	fx.api.read(func(f *fakeAPI) {
		require.Len(t, f.profiles, 1)
		assert.NotContains(t, f.profiles[0], "password")
		assert.NotContains(t, f.profiles[0], "current_password")
	})
}

func TestSession_UpdateProfileRequiresSignIn(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")

	_, err := s.UpdateProfile(context.Background(), api.ProfileUpdate{
		FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
	})

	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSession_CheckoutPlacesOrder(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	fx.api.setStock("P1", 10)
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 12.5), 2))

	flow := s.BeginCheckout()
	require.NoError(t, flow.Confirm(ctx))
	_, err = flow.Submit(ctx, &domain.Attachment{Filename: "po.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	assert.Equal(t, checkout.StatePlaced, flow.State())
	fx.api.read(func(f *fakeAPI) { assert.Equal(t, 1, f.orders) })
	assert.True(t, s.Cart().Snapshot().IsEmpty())
	assert.True(t, fx.store.LoadCart(ctx, "s1").IsEmpty())

	assert.Same(t, flow, s.Checkout())
	next := s.BeginCheckout()
	assert.NotSame(t, flow, next)
	assert.Equal(t, checkout.StateReviewing, next.State())
}

func TestSession_CheckoutFailureKeepsCart(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	fx.api.setStock("P1", 10)
	fx.api.configure(func(f *fakeAPI) { f.orderStatus = http.StatusUnprocessableEntity })
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 12.5), 2))

	flow := s.BeginCheckout()
	require.NoError(t, flow.Confirm(ctx))
	_, err = flow.Submit(ctx, &domain.Attachment{Filename: "po.pdf", Data: []byte("%PDF")})

	require.ErrorIs(t, err, checkout.ErrOrderFailed)
	assert.Equal(t, "Order service down", flow.View().Error)
	assert.Equal(t, checkout.StateConfirming, flow.State())
	assert.Equal(t, 2, fx.store.LoadCart(ctx, "s1").Count())
}

func TestSession_AutoReconcile(t *testing.T) {
	fx := setupFixture(t)
	fx.deps.AutoReconcile = true
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	fx.api.setStock("P1", 1)

	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 3))

	assert.Eventually(t, func() bool {
		st := s.Inventory().State()
		return st.Reconciled && !st.Validating && len(st.Errors) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistry_GetAndReload(t *testing.T) {
	fx := setupFixture(t)
	reg := NewRegistry(fx.deps)
	t.Cleanup(reg.Close)
	ctx := context.Background()

	s1, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	again, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Same(t, s1, again)
	assert.Equal(t, 1, reg.Len())

	_, err = reg.Get(ctx, "")
	require.ErrorIs(t, err, ErrInvalidSessionID)

	require.NoError(t, s1.Cart().AddItem(ctx, product("P1", 10), 1))
	// another instance placed the order and cleared the stored cart
	require.NoError(t, fx.store.SaveCart(ctx, "s1", domain.NewCart()))

	require.NoError(t, reg.HandleOrderPlaced(ctx, events.OrderPlaced{SessionID: "s1", EventID: "e1"}))
	assert.True(t, s1.Cart().Snapshot().IsEmpty())

	require.NoError(t, reg.HandleOrderPlaced(ctx, events.OrderPlaced{SessionID: "unknown"}))
	assert.Equal(t, 1, reg.Len())

	reg.Evict("s1")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Closed(t *testing.T) {
	fx := setupFixture(t)
	reg := NewRegistry(fx.deps)
	reg.Close()

	_, err := reg.Get(context.Background(), "s1")
	require.ErrorIs(t, err, ErrRegistryClosed)
}

func TestSession_CartChangeSendsCheckoutBackToReview(t *testing.T) {
	fx := setupFixture(t)
	s := fx.session(t, "s1")
	ctx := context.Background()
	_, err := s.Login(ctx, "buyer@example.com", "secret")
	require.NoError(t, err)
	fx.api.setStock("P1", 2)
	require.NoError(t, s.Cart().AddItem(ctx, product("P1", 10), 2))

	flow := s.BeginCheckout()
	require.NoError(t, flow.Confirm(ctx))
	require.Equal(t, checkout.StateConfirming, flow.State())

	require.NoError(t, s.Cart().UpdateQuantity(ctx, "P1", 50))
	assert.Equal(t, checkout.StateReviewing, flow.State())

	_, err = flow.Submit(ctx, &domain.Attachment{Filename: "po.pdf", Data: []byte("%PDF")})
	require.ErrorIs(t, err, checkout.ErrIllegalTransition)

	err = flow.Confirm(ctx)
	require.ErrorIs(t, err, checkout.ErrCheckoutBlocked)
	assert.Equal(t, checkout.ReasonStockConflict, flow.View().Decision.Reason)
	fx.api.read(func(f *fakeAPI) { assert.Equal(t, 0, f.orders) })
}

func TestRegistry_EvictIdle(t *testing.T) {
	fx := setupFixture(t)
	reg := NewRegistry(fx.deps)
	t.Cleanup(reg.Close)
	ctx := context.Background()

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	idle, err := reg.Get(ctx, "idle")
	require.NoError(t, err)
	require.NoError(t, idle.Cart().AddItem(ctx, product("P1", 10), 1))
	_, err = reg.Get(ctx, "active")
	require.NoError(t, err)

	advance(20 * time.Minute)
	_, err = reg.Get(ctx, "active")
	require.NoError(t, err)
	advance(15 * time.Minute)

	assert.Equal(t, 1, reg.EvictIdle(30*time.Minute))
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Lookup("idle")
	assert.False(t, ok)
	_, err = idle.Reconcile(ctx)
	require.ErrorIs(t, err, inventory.ErrClosed)

	// stored state survives eviction
	again, err := reg.Get(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
	assert.Equal(t, 1, again.Cart().Count())
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	fx := setupFixture(t)
	reg := NewRegistry(fx.deps)
	t.Cleanup(reg.Close)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := reg.Get(ctx, "s1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		reg.Run(ctx, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
