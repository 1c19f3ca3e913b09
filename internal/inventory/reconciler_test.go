package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	m     sync.RWMutex
	stock map[string][]domain.Product // by subcategory
	fail  map[string]error
	calls map[string]int
	// perPage splits results into pages when > 0
	pageSize int
	// gate blocks lookups until closed, when set
	gate chan struct{}
}

func newMockLookup() *mockLookup {
	return &mockLookup{
		stock: make(map[string][]domain.Product),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (l *mockLookup) set(subID string, products ...domain.Product) {
	l.m.Lock()
	defer l.m.Unlock()
	l.stock[subID] = products
}

func (l *mockLookup) callCount(subID string) int {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.calls[subID]
}

func (l *mockLookup) ProductsBySubCategory(ctx context.Context, subID string, page, perPage int, _ string) (*domain.ProductPage, error) {
	l.m.Lock()
	l.calls[subID]++
	gate := l.gate
	l.m.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.m.RLock()
	defer l.m.RUnlock()
	if err := l.fail[subID]; err != nil {
		return nil, err
	}

	products := l.stock[subID]
	if l.pageSize <= 0 {
		return &domain.ProductPage{Items: products, Pagination: domain.Pagination{CurrentPage: 1, LastPage: 1}}, nil
	}
	last := (len(products) + l.pageSize - 1) / l.pageSize
	start := (page - 1) * l.pageSize
	end := start + l.pageSize
	if end > len(products) {
		end = len(products)
	}
	if start > len(products) {
		start = len(products)
	}
	return &domain.ProductPage{
		Items:      products[start:end],
		Pagination: domain.Pagination{CurrentPage: page, LastPage: last},
	}, nil
}

func line(id, subID string, qty int) domain.LineItem {
	return domain.LineItem{ID: id, Name: id, Price: 10, Quantity: qty, SubCategoryID: subID}
}

func stock(id string, qty int) domain.Product {
	return domain.Product{ID: id, Quantity: qty}
}

func TestReconcile_OutOfStock(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("p1", 0))
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("p1", "s1", 1)})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, InventoryError{ItemID: "p1", Message: "Out of stock", Available: 0}, res.Errors[0])
	assert.Equal(t, 0, res.Snapshot.Available["p1"])
}

func TestReconcile_OnlyNAvailable(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("p1", 3))
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("p1", "s1", 5)})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Only 3 available", res.Errors[0].Message)
	assert.Equal(t, 3, res.Errors[0].Available)
}

func TestReconcile_EnoughStockNoError(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("p1", 3), stock("p2", 10))
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("p1", "s1", 3), line("p2", "s1", 1)})
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	assert.Equal(t, map[string]int{"p1": 3, "p2": 10}, res.Snapshot.Available)
}

func TestReconcile_OneLookupPerSubCategory(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("a", 5), stock("b", 5))
	lookup.set("s2", stock("c", 5))
	r := NewReconciler(lookup, Options{})

	_, err := r.Reconcile(context.Background(), []domain.LineItem{
		line("a", "s1", 1), line("b", "s1", 1), line("c", "s2", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.callCount("s1"))
	assert.Equal(t, 1, lookup.callCount("s2"))
}

func TestReconcile_FailedLookupDegradesToUnknown(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("ok", stock("a", 0))
	lookup.fail["bad"] = errors.New("503")
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{
		line("a", "ok", 1), line("b", "bad", 99), line("c", "", 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "a", res.Errors[0].ItemID)
	assert.ElementsMatch(t, []string{"b", "c"}, res.Unknown)
	assert.Equal(t, []string{"bad"}, res.FailedGroups)
}

func TestReconcile_ItemMissingFromLookupIsUnknown(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("other", 1))
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("p1", "s1", 4)})
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	assert.Equal(t, []string{"p1"}, res.Unknown)
}

func TestReconcile_Paginates(t *testing.T) {
	lookup := newMockLookup()
	lookup.pageSize = 2
	lookup.set("s1", stock("a", 1), stock("b", 1), stock("c", 1), stock("d", 0), stock("e", 1))
	r := NewReconciler(lookup, Options{PerPage: 2})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("d", "s1", 1)})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "d", res.Errors[0].ItemID)
	assert.Equal(t, 3, lookup.callCount("s1"))
}

func TestReconcile_PageLimit(t *testing.T) {
	lookup := newMockLookup()
	lookup.pageSize = 1
	lookup.set("s1", stock("a", 1), stock("b", 1), stock("c", 0))
	r := NewReconciler(lookup, Options{MaxPages: 2})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("c", "s1", 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Unknown)
	assert.Equal(t, 2, lookup.callCount("s1"))
}

func TestReconcile_NegativeStockCountsAsZero(t *testing.T) {
	lookup := newMockLookup()
	lookup.set("s1", stock("p1", -4))
	r := NewReconciler(lookup, Options{})

	res, err := r.Reconcile(context.Background(), []domain.LineItem{line("p1", "s1", 1)})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, MessageOutOfStock, res.Errors[0].Message)
}

func TestReconcile_EmptyCart(t *testing.T) {
	r := NewReconciler(newMockLookup(), Options{})
	res, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	assert.Empty(t, res.Snapshot.Available)
}

func TestReconcile_CanceledContext(t *testing.T) {
	lookup := newMockLookup()
	lookup.gate = make(chan struct{})
	lookup.set("s1", stock("p1", 1))
	r := NewReconciler(lookup, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Reconcile(ctx, []domain.LineItem{line("p1", "s1", 1)})
	require.ErrorIs(t, err, context.Canceled)
	close(lookup.gate)
}

func TestCheck(t *testing.T) {
	_, bad := Check(line("a", "s", 2), 2)
	assert.False(t, bad)

	e, bad := Check(line("a", "s", 3), 2)
	assert.True(t, bad)
	assert.Equal(t, "Only 2 available", e.Message)
}
