package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"go.uber.org/zap"
)

// Persister loads and saves the full cart of one session.
type Persister interface {
	Load(ctx context.Context) *domain.Cart
	Save(ctx context.Context, cart *domain.Cart) error
}

type Op string

const (
	OpLoad   Op = "load"
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// ChangeEvent is delivered to subscribers after every mutation. Items is a
// copy and may be kept.
type ChangeEvent struct {
	Op     Op
	ItemID string
	Items  []domain.LineItem
	Count  int
	Total  float64
}

// Manager owns the cart of one session. Every mutation is persisted before it
// returns.
type Manager struct {
	mu      sync.Mutex
	cart    *domain.Cart
	store   Persister
	log     *zap.Logger
	metrics *metrics.Metrics

	subMu   sync.Mutex
	subs    map[int]func(ChangeEvent)
	nextSub int
}

// NewManager hydrates the cart from store.
func NewManager(ctx context.Context, store Persister, log *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		cart:    store.Load(ctx),
		store:   store,
		log:     log,
		metrics: m,
		subs:    make(map[int]func(ChangeEvent)),
	}
}

func (m *Manager) AddItem(ctx context.Context, item domain.LineItem, quantity int) error {
	return m.mutate(ctx, OpAdd, item.ID, func(c *domain.Cart) {
		c.AddItem(item, quantity)
	})
}

// UpdateQuantity sets an absolute quantity. Quantities below 1 remove the
// line. Stock is not consulted here.
func (m *Manager) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	op := OpUpdate
	if quantity < 1 {
		op = OpRemove
	}
	return m.mutate(ctx, op, id, func(c *domain.Cart) {
		c.UpdateQuantity(id, quantity)
	})
}

func (m *Manager) RemoveItem(ctx context.Context, id string) error {
	return m.mutate(ctx, OpRemove, id, func(c *domain.Cart) {
		c.RemoveItem(id)
	})
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.mutate(ctx, OpClear, "", func(c *domain.Cart) {
		c.Clear()
	})
}

// Reload replaces the in-memory cart with the persisted one.
func (m *Manager) Reload(ctx context.Context) {
	m.mu.Lock()
	m.cart = m.store.Load(ctx)
	event := m.eventLocked(OpLoad, "")
	m.mu.Unlock()

	m.notify(event)
}

// Snapshot returns a copy of the current cart.
func (m *Manager) Snapshot() *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Clone()
}

func (m *Manager) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Total()
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart.Count()
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn runs on the mutating goroutine after the lock is released.
func (m *Manager) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Manager) mutate(ctx context.Context, op Op, itemID string, apply func(*domain.Cart)) error {
	m.mu.Lock()
	apply(m.cart)
	err := m.store.Save(ctx, m.cart)
	event := m.eventLocked(op, itemID)
	m.mu.Unlock()

	m.metrics.CartMutation(string(op))
	if err != nil {
		// in-memory state is kept; the next mutation rewrites the whole cart
		m.metrics.SaveFailed()
		m.log.Warn("cart save failed", zap.String("op", string(op)), zap.Error(err))
		err = fmt.Errorf("persist cart: %w", err)
	}

	m.notify(event)
	return err
}

func (m *Manager) eventLocked(op Op, itemID string) ChangeEvent {
	return ChangeEvent{
		Op:     op,
		ItemID: itemID,
		Items:  m.cart.Items(),
		Count:  m.cart.Count(),
		Total:  m.cart.Total(),
	}
}

func (m *Manager) notify(event ChangeEvent) {
	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(ChangeEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// ParseQuantity coerces raw user input to a quantity. A leading integer is
// used as is (so "0" and negatives pass through and mean removal on update);
// anything non-numeric becomes 1.
func ParseQuantity(raw string) int {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	s = strings.TrimSpace(s)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 1
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 1
	}
	return n
}
