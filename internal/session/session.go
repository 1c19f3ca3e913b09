package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/fjod/go_cart/storefront/internal/validation"
	"go.uber.org/zap"
)

var ErrNotSignedIn = fmt.Errorf("%w: not signed in", api.ErrUnauthorized)

const forcedLogoutTimeout = 5 * time.Second

type Deps struct {
	Store     *store.Store
	API       *api.Client
	Publisher events.Publisher
	Inventory inventory.Options
	// AutoReconcile starts a background reconciliation after every cart
	// change that can introduce a stock conflict.
	AutoReconcile bool
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Session is one shopper: cart, stock state, auth token and profile snapshot,
// all keyed by the session id in the store.
type Session struct {
	id       string
	store    *store.Store
	base     *api.Client
	deps     Deps
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	autoSync bool

	ctx    context.Context
	cancel context.CancelFunc

	cart        *cart.Manager
	tracker     *inventory.Tracker
	unsubscribe func()

	mu     sync.RWMutex
	client *api.Client
	user   *domain.User

	flowMu sync.Mutex
	flow   *checkout.Flow
}

func New(id string, deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	deps.Inventory.Logger = log
	deps.Inventory.Metrics = deps.Metrics
	return &Session{
		id:       id,
		store:    deps.Store,
		base:     deps.API,
		deps:     deps,
		log:      log.With(zap.String("session_id", id)),
		metrics:  deps.Metrics,
		now:      time.Now,
		autoSync: deps.AutoReconcile,
	}
}

// Init hydrates the session from the store and refreshes the user from the
// API. A failed refresh keeps the stored snapshot.
func (s *Session) Init(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.cart = cart.NewManager(ctx, s.store.Carts(s.id), s.log, s.metrics)
	s.tracker = inventory.NewTracker(
		inventory.NewReconciler(stockLookup{s}, s.deps.Inventory),
		func() []domain.LineItem { return s.cart.Snapshot().Items() },
		s.log,
		s.metrics,
	)
	s.unsubscribe = s.cart.Subscribe(s.onCartChange)

	token := s.store.LoadToken(ctx, s.id)
	s.mu.Lock()
	s.client = s.base.WithAuth(token, s.forceLogout)
	s.user = s.store.LoadUser(ctx, s.id)
	s.mu.Unlock()

	if token != "" {
		if _, err := s.RefreshUser(ctx); err != nil {
			s.log.Debug("user refresh on init failed", zap.Error(err))
		}
	}
}

// Teardown cancels background reconciliation and detaches subscriptions. The
// stored state is kept.
func (s *Session) Teardown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.tracker != nil {
		s.tracker.Teardown()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Cart() *cart.Manager           { return s.cart }
func (s *Session) Inventory() *inventory.Tracker { return s.tracker }

// API returns the session's authenticated client view.
func (s *Session) API() *api.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// User returns the cached profile snapshot, nil when signed out.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) SignedIn() bool {
	return s.API().Token() != ""
}

// Reconcile runs a reconciliation pass now.
func (s *Session) Reconcile(ctx context.Context) (inventory.State, error) {
	return s.tracker.Refresh(ctx)
}

// Gate evaluates the checkout gate against the current cart and the last
// applied stock state.
func (s *Session) Gate() checkout.Decision {
	return checkout.CanCheckout(s.cart.Snapshot(), s.tracker.State().Errors, s.User().CanOrder())
}

// Checkout returns the current checkout flow.
func (s *Session) Checkout() *checkout.Flow {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow == nil {
		s.flow = s.newFlow()
	}
	return s.flow
}

// BeginCheckout returns the current flow, or a fresh one when the previous
// order was placed.
func (s *Session) BeginCheckout() *checkout.Flow {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow == nil || s.flow.State().IsTerminal() {
		s.flow = s.newFlow()
	}
	return s.flow
}

func (s *Session) newFlow() *checkout.Flow {
	return checkout.NewFlow(checkout.Deps{
		SessionID: s.id,
		Cart:      s.cart,
		Stock:     s.tracker,
		Accounts:  s,
		Orders:    orderPlacer{s},
		Publisher: s.deps.Publisher,
		Logger:    s.log,
		Metrics:   s.metrics,
	})
}

// Login stores the token and user, then refreshes the user to learn the
// ordering permission and shipping address.
func (s *Session) Login(ctx context.Context, email, password string) (*domain.User, error) {
	res, err := s.base.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveToken(ctx, s.id, res.Token); err != nil {
		return nil, err
	}
	user := res.User
	if err := s.store.SaveUser(ctx, s.id, &user); err != nil {
		s.log.Warn("failed to save user snapshot", zap.Error(err))
	}

	s.mu.Lock()
	s.client = s.base.WithAuth(res.Token, s.forceLogout)
	s.user = &user
	s.mu.Unlock()

	refreshed, err := s.RefreshUser(ctx)
	if err != nil {
		s.log.Debug("user refresh after login failed", zap.Error(err))
		return s.User(), nil
	}
	return refreshed, nil
}

// Logout forgets the token and user. The cart is kept.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.client = s.base.WithAuth("", nil)
	s.user = nil
	s.mu.Unlock()
	return s.store.ClearAuth(ctx, s.id)
}

// forceLogout runs when the API rejects the session token.
func (s *Session) forceLogout() {
	ctx, cancel := context.WithTimeout(context.Background(), forcedLogoutTimeout)
	defer cancel()
	s.log.Info("session token rejected, signing out")
	if err := s.Logout(ctx); err != nil {
		s.log.Warn("forced logout failed to clear stored auth", zap.Error(err))
	}
}

// RefreshUser fetches the current user and stores the snapshot.
func (s *Session) RefreshUser(ctx context.Context) (*domain.User, error) {
	client := s.API()
	if client.Token() == "" {
		return nil, ErrNotSignedIn
	}
	user, err := client.UserData(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveUser(ctx, s.id, user); err != nil {
		s.log.Warn("failed to save user snapshot", zap.Error(err))
	}

	s.mu.Lock()
	// A logout while the request was in flight wins.
	if s.client.Token() == client.Token() {
		s.user = user
	}
	s.mu.Unlock()

	u := *user
	return &u, nil
}

// CurrentUser is the fresh user for checkout.
func (s *Session) CurrentUser(ctx context.Context) (*domain.User, error) {
	return s.RefreshUser(ctx)
}

// Signup validates the form and registers the account. The signature date is
// stamped with today's date.
func (s *Session) Signup(ctx context.Context, req api.SignupRequest) error {
	if err := validation.Signup(validation.SignupForm{
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Email:                req.Email,
		Phone:                req.Phone,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		CompanyName:          req.CompanyName,
		AgreeMinOrder:        req.AgreeMinOrder,
		AgreeNoPersonalUse:   req.AgreeNoPersonalUse,
		AgreeTerms:           req.AgreeTerms,
		AgreeNoResell:        req.AgreeNoResell,
		Signature:            req.Signature,
	}); err != nil {
		return err
	}
	req.SignedAt = s.now().Format(time.DateOnly)
	return s.base.Signup(ctx, req)
}

// UpdateProfile validates and sends the update, then refreshes the user.
func (s *Session) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*domain.User, error) {
	if err := validation.Profile(validation.ProfileForm{
		FirstName:            update.FirstName,
		LastName:             update.LastName,
		Email:                update.Email,
		CurrentPassword:      update.CurrentPassword,
		Password:             update.Password,
		PasswordConfirmation: update.PasswordConfirmation,
	}); err != nil {
		return nil, err
	}

	client := s.API()
	if client.Token() == "" {
		return nil, ErrNotSignedIn
	}
	if update.Password == "" {
		update.CurrentPassword = ""
		update.PasswordConfirmation = ""
	}
	if err := client.UpdateProfile(ctx, update); err != nil {
		return nil, err
	}

	user, err := s.RefreshUser(ctx)
	if err != nil {
		s.log.Debug("user refresh after profile update failed", zap.Error(err))
		return s.User(), nil
	}
	return user, nil
}

// Reload re-reads the cart from the store, e.g. after another instance
// changed it.
func (s *Session) Reload(ctx context.Context) {
	s.cart.Reload(ctx)
}

// onCartChange drops stock errors of removed lines and sends a confirmed
// checkout back to review, since the shopper confirmed a different cart.
func (s *Session) onCartChange(event cart.ChangeEvent) {
	s.tracker.Retain(event.Items)

	s.flowMu.Lock()
	if s.flow != nil {
		s.flow.Invalidate()
	}
	s.flowMu.Unlock()

	if !s.autoSync {
		return
	}
	switch event.Op {
	case cart.OpAdd, cart.OpUpdate, cart.OpLoad:
		if len(event.Items) > 0 {
			s.tracker.RefreshAsync(s.ctx)
		}
	}
}

// stockLookup reads stock through the session's current client view.
type stockLookup struct{ s *Session }

func (l stockLookup) ProductsBySubCategory(ctx context.Context, subCategoryID string, page, perPage int, search string) (*domain.ProductPage, error) {
	return l.s.API().ProductsBySubCategory(ctx, subCategoryID, page, perPage, search)
}

type orderPlacer struct{ s *Session }

func (o orderPlacer) CreateOrder(ctx context.Context, req domain.OrderRequest, attachment *domain.Attachment) (*api.OrderConfirmation, error) {
	client := o.s.API()
	if client.Token() == "" {
		return nil, ErrNotSignedIn
	}
	return client.CreateOrder(ctx, req, attachment)
}

// IsAuthError reports whether err means the shopper has to sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}
