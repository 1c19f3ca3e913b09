package store

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingBackend struct {
	*MemoryBackend
	getErr error
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryBackend.Get(ctx, key)
}

func newTestStore() (*Store, *MemoryBackend) {
	b := NewMemoryBackend()
	return New(b, zap.NewNop()), b
}

func TestLoadCart_MissingIsEmpty(t *testing.T) {
	s, _ := newTestStore()
	cart := s.LoadCart(context.Background(), "s1")
	require.NotNil(t, cart)
	assert.True(t, cart.IsEmpty())
}

func TestLoadCart_CorruptIsEmpty(t *testing.T) {
	s, b := newTestStore()
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "cart:s1", []byte(`{not json`)))

	assert.True(t, s.LoadCart(ctx, "s1").IsEmpty())
}

func TestLoadCart_BackendErrorIsEmpty(t *testing.T) {
	s := New(&failingBackend{MemoryBackend: NewMemoryBackend(), getErr: errors.New("disk gone")}, zap.NewNop())
	assert.True(t, s.LoadCart(context.Background(), "s1").IsEmpty())
}

func TestSaveThenLoadCart(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	cart := domain.NewCart()
	cart.AddItem(domain.LineItem{ID: "p1", Name: "Widget", Price: 4.5, SubCategoryID: "sub"}, 2)
	require.NoError(t, s.Carts("s1").Save(ctx, cart))

	loaded := s.Carts("s1").Load(ctx)
	assert.Equal(t, cart.Items(), loaded.Items())
	assert.True(t, s.LoadCart(ctx, "other").IsEmpty())
}

func TestCorruptCartDoesNotAffectToken(t *testing.T) {
	s, b := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.SaveToken(ctx, "s1", "secret"))
	require.NoError(t, b.Set(ctx, "cart:s1", []byte(`"garbage"`)))

	assert.True(t, s.LoadCart(ctx, "s1").IsEmpty())
	assert.Equal(t, "secret", s.LoadToken(ctx, "s1"))
}

func TestUserSnapshot(t *testing.T) {
	s, b := newTestStore()
	ctx := context.Background()
	assert.Nil(t, s.LoadUser(ctx, "s1"))

	allowed := false
	require.NoError(t, s.SaveUser(ctx, "s1", &domain.User{ID: "u1", Email: "a@b.c", OrderPermission: &allowed}))
	user := s.LoadUser(ctx, "s1")
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.False(t, user.CanOrder())

	require.NoError(t, b.Set(ctx, "user:s1", []byte(`[`)))
	assert.Nil(t, s.LoadUser(ctx, "s1"))
}

func TestClearAuthKeepsCart(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	cart := domain.NewCart(domain.LineItem{ID: "p1", Quantity: 1})
	require.NoError(t, s.SaveCart(ctx, "s1", cart))
	require.NoError(t, s.SaveToken(ctx, "s1", "tok"))
	require.NoError(t, s.SaveUser(ctx, "s1", &domain.User{ID: "u1"}))

	require.NoError(t, s.ClearAuth(ctx, "s1"))
	assert.Empty(t, s.LoadToken(ctx, "s1"))
	assert.Nil(t, s.LoadUser(ctx, "s1"))
	assert.Equal(t, 1, s.LoadCart(ctx, "s1").Len())
}
