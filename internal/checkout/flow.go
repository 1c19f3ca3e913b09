package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartSource interface {
	Snapshot() *domain.Cart
	Clear(ctx context.Context) error
}

type StockChecker interface {
	Refresh(ctx context.Context) (inventory.State, error)
}

// Accounts returns the signed-in user with fresh ordering permission and
// shipping address.
type Accounts interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}

type OrderPlacer interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest, attachment *domain.Attachment) (*api.OrderConfirmation, error)
}

type Deps struct {
	SessionID string
	Cart      CartSource
	Stock     StockChecker
	Accounts  Accounts
	Orders    OrderPlacer
	Publisher events.Publisher
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// View is the checkout page state.
type View struct {
	State    State    `json:"state"`
	Error    string   `json:"error,omitempty"`
	Decision Decision `json:"gate"`
}

// Flow walks one checkout through Reviewing, Confirming and Placed. Operations
// are serialized; View can be read while one is running.
type Flow struct {
	sessionID string
	cart      CartSource
	stock     StockChecker
	accounts  Accounts
	orders    OrderPlacer
	publisher events.Publisher
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	opMu sync.Mutex

	mu       sync.RWMutex
	state    State
	lastErr  string
	decision Decision
	user     *domain.User
}

func NewFlow(deps Deps) *Flow {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Flow{
		sessionID: deps.SessionID,
		cart:      deps.Cart,
		stock:     deps.Stock,
		accounts:  deps.Accounts,
		orders:    deps.Orders,
		publisher: pub,
		log:       log,
		metrics:   deps.Metrics,
		now:       time.Now,
		state:     StateReviewing,
	}
}

func (f *Flow) View() View {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return View{State: f.state, Error: f.lastErr, Decision: f.decision}
}

func (f *Flow) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Confirm re-checks stock, loads the user and runs the gate. On success the
// flow moves to Confirming; otherwise it stays in Reviewing with the error
// recorded in the view.
func (f *Flow) Confirm(ctx context.Context) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	if err := f.checkTransition(StateConfirming); err != nil {
		return err
	}

	stock, err := f.stock.Refresh(ctx)
	if err != nil {
		return f.fail(&Error{Kind: ErrValidationInProgress, Message: MsgValidating, Err: err})
	}

	user, err := f.accounts.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return f.fail(err)
		}
		return f.fail(&Error{Kind: ErrUserUnavailable, Message: MsgAddressLoadFailed, Err: err})
	}

	decision := CanCheckout(f.cart.Snapshot(), stock.Errors, user.CanOrder())
	f.mu.Lock()
	f.decision = decision
	f.mu.Unlock()
	if !decision.Allowed {
		f.metrics.CheckoutBlocked(string(decision.Reason))
		return f.fail(&GateError{Decision: decision})
	}

	if !user.HasShippingAddress() {
		return f.fail(&Error{Kind: ErrNoShippingAddress, Message: MsgNoShippingAddress})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateConfirming
	f.lastErr = ""
	f.user = user
	return nil
}

// Back returns from Confirming to Reviewing.
func (f *Flow) Back() error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	if err := f.checkTransition(StateReviewing); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateReviewing
	f.lastErr = ""
	return nil
}

// Invalidate sends a Confirming flow back to Reviewing. It does not wait for
// a running operation, so it is safe to call from cart change handlers.
func (f *Flow) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateConfirming {
		f.state = StateReviewing
	}
}

// Submit places the order. Stock and the gate are checked again and a blocked
// gate returns the flow to Reviewing. Any other failure keeps the flow in
// Confirming and the cart untouched. On success the flow is Placed, the cart
// is cleared and an OrderPlaced event is published.
func (f *Flow) Submit(ctx context.Context, attachment *domain.Attachment) (*api.OrderConfirmation, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	if err := f.checkTransition(StatePlaced); err != nil {
		return nil, err
	}

	if attachment == nil || (attachment.Size == 0 && len(attachment.Data) == 0) {
		return nil, f.fail(&Error{Kind: ErrAttachmentRequired, Message: MsgAttachmentRequired})
	}
	doc := *attachment
	if doc.Size == 0 {
		doc.Size = int64(len(doc.Data))
	}
	doc.ContentType = validation.NormalizeContentType(doc.ContentType, doc.Filename)
	if err := validation.Attachment(validation.AttachmentForm{
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Size:        doc.Size,
	}); err != nil {
		msg := err.Error()
		var verr *validation.Error
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		return nil, f.fail(&Error{Kind: ErrInvalidAttachment, Message: msg, Err: err})
	}

	// the cart may have changed since Confirm
	stock, err := f.stock.Refresh(ctx)
	if err != nil {
		return nil, f.fail(&Error{Kind: ErrValidationInProgress, Message: MsgValidating, Err: err})
	}
	cart := f.cart.Snapshot()
	user := f.currentUser()
	decision := CanCheckout(cart, stock.Errors, user.CanOrder())
	if !decision.Allowed {
		f.metrics.CheckoutBlocked(string(decision.Reason))
		f.mu.Lock()
		f.decision = decision
		f.state = StateReviewing
		f.mu.Unlock()
		return nil, f.fail(&GateError{Decision: decision})
	}

	req, err := buildOrder(user, cart)
	if err != nil {
		return nil, f.fail(err)
	}

	conf, err := f.orders.CreateOrder(ctx, req, &doc)
	if err != nil {
		f.log.Warn("order placement failed", zap.String("session_id", f.sessionID), zap.Error(err))
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, f.fail(err)
		}
		msg := MsgOrderFailed
		var apiErr *api.APIError
		if errors.As(err, &apiErr) || errors.Is(err, api.ErrOrderRejected) {
			msg = api.Message(err)
		}
		return nil, f.fail(&Error{Kind: ErrOrderFailed, Message: msg, Err: err})
	}

	f.mu.Lock()
	f.state = StatePlaced
	f.lastErr = ""
	f.mu.Unlock()
	f.metrics.OrderPlaced()

	// The order exists remotely; a failed clear only leaves a stale cart.
	if err := f.cart.Clear(ctx); err != nil {
		f.log.Warn("failed to clear cart after order", zap.String("session_id", f.sessionID), zap.Error(err))
	}
	f.publish(ctx, req, doc.Filename)
	return conf, nil
}

func (f *Flow) publish(ctx context.Context, req domain.OrderRequest, attachment string) {
	event := events.OrderPlaced{
		EventID:    uuid.NewString(),
		SessionID:  f.sessionID,
		UserID:     req.UserID,
		Total:      req.Total,
		Items:      req.Items,
		Attachment: attachment,
		PlacedAt:   f.now().UTC(),
	}
	if err := f.publisher.PublishOrderPlaced(context.WithoutCancel(ctx), event); err != nil {
		f.metrics.PublishFailed()
		f.log.Warn("failed to publish order event",
			zap.String("session_id", f.sessionID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
}

func buildOrder(user *domain.User, cart *domain.Cart) (domain.OrderRequest, error) {
	lines := cart.Items()
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.WarehenceProductID == 0 || line.SKU == "" || line.Quantity < 1 {
			return domain.OrderRequest{}, &Error{Kind: ErrMissingItemData, Message: MsgMissingItemData}
		}
		items = append(items, domain.OrderItem{
			WarehenceProductID: line.WarehenceProductID,
			Quantity:           line.Quantity,
			SKU:                line.SKU,
			Name:               line.Name,
			Price:              line.Price,
		})
	}

	req := domain.OrderRequest{Total: RoundTotal(cart.Total()), Items: items}
	if user != nil {
		req.UserID = user.ID
	}
	return req, nil
}

func (f *Flow) currentUser() *domain.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.user
}

func (f *Flow) checkTransition(next State) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.state.CanTransitionTo(next) {
		return &transitionError{from: f.state, to: next}
	}
	return nil
}

// fail records err's message in the view and returns err.
func (f *Flow) fail(err error) error {
	msg := Message(err)
	if msg == "" {
		msg = api.Message(err)
	}
	f.mu.Lock()
	f.lastErr = msg
	f.mu.Unlock()
	return err
}
