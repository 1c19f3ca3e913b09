package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrSuperseded = errors.New("reconciliation superseded by a newer request")
	ErrClosed     = errors.New("inventory tracker closed")
)

// Checker runs one reconciliation pass.
type Checker interface {
	Reconcile(ctx context.Context, items []domain.LineItem) (Result, error)
}

// State is what readers see. Errors and Snapshot come from the last applied
// pass; Validating is true while a pass is running.
type State struct {
	Validating bool             `json:"validating"`
	Reconciled bool             `json:"reconciled"`
	Snapshot   StockSnapshot    `json:"snapshot"`
	Errors     []InventoryError `json:"errors"`
	Unknown    []string         `json:"unknown,omitempty"`
}

func (s State) clone() State {
	out := s
	out.Errors = append([]InventoryError(nil), s.Errors...)
	out.Unknown = append([]string(nil), s.Unknown...)
	out.Snapshot.Available = make(map[string]int, len(s.Snapshot.Available))
	for k, v := range s.Snapshot.Available {
		out.Snapshot.Available[k] = v
	}
	return out
}

// ErrorFor returns the stock error of one line, if any.
func (s State) ErrorFor(itemID string) (InventoryError, bool) {
	for _, e := range s.Errors {
		if e.ItemID == itemID {
			return e, true
		}
	}
	return InventoryError{}, false
}

// Tracker holds the reconciliation state of one session. The newest Refresh
// always wins: starting one cancels the pass in flight and results of older
// passes are never applied.
type Tracker struct {
	checker Checker
	items   func() []domain.LineItem
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  State
	closed bool
}

func NewTracker(checker Checker, items func() []domain.LineItem, log *zap.Logger, m *metrics.Metrics) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		checker: checker,
		items:   items,
		log:     log,
		metrics: m,
		state:   State{Snapshot: StockSnapshot{Available: map[string]int{}}},
	}
}

// Refresh reconciles the current cart and applies the result. It returns
// ErrSuperseded when a newer Refresh started meanwhile, and ctx's error when
// the pass was abandoned; in both cases the previous result stays in place.
func (t *Tracker) Refresh(ctx context.Context) (State, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return State{}, ErrClosed
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state.Validating = true
	t.mu.Unlock()
	defer cancel()

	start := time.Now()
	result, err := t.checker.Reconcile(runCtx, t.items())

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.ObserveReconcile("canceled", time.Since(start))
		return t.state.clone(), ErrClosed
	}
	if gen != t.gen {
		t.metrics.ObserveReconcile("stale", time.Since(start))
		return t.state.clone(), ErrSuperseded
	}
	t.cancel = nil
	t.state.Validating = false

	if err != nil {
		t.metrics.ObserveReconcile("canceled", time.Since(start))
		return t.state.clone(), err
	}

	t.state = State{
		Reconciled: true,
		Snapshot:   result.Snapshot,
		Errors:     result.Errors,
		Unknown:    result.Unknown,
	}
	t.metrics.ObserveReconcile("applied", time.Since(start))
	return t.state.clone(), nil
}

// RefreshAsync starts a Refresh in the background.
func (t *Tracker) RefreshAsync(ctx context.Context) {
	go func() {
		if _, err := t.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
			t.log.Debug("background reconciliation not applied", zap.Error(err))
		}
	}()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Validating reports whether a pass is in flight.
func (t *Tracker) Validating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Validating
}

// Retain drops errors and stock entries of lines that are no longer in the
// cart. It never adds errors; that needs a Refresh.
func (t *Tracker) Retain(items []domain.LineItem) {
	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.state.Errors[:0:0]
	for _, e := range t.state.Errors {
		if _, ok := present[e.ItemID]; ok {
			kept = append(kept, e)
		}
	}
	t.state.Errors = kept

	for id := range t.state.Snapshot.Available {
		if _, ok := present[id]; !ok {
			delete(t.state.Snapshot.Available, id)
		}
	}
}

// Teardown cancels any pass in flight. Later Refresh calls fail with
// ErrClosed.
func (t *Tracker) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.state.Validating = false
}
