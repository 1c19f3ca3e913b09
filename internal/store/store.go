package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("key not found")

// Backend is a byte-oriented key-value store. Get returns ErrNotFound for
// missing keys; Delete of a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store keeps the per-session values (cart, user snapshot, auth token) under
// independent keys so a corrupt value never affects the others.
type Store struct {
	backend Backend
	log     *zap.Logger
}

func New(backend Backend, log *zap.Logger) *Store {
	return &Store{backend: backend, log: log}
}

func cartKey(sessionID string) string  { return fmt.Sprintf("cart:%s", sessionID) }
func userKey(sessionID string) string  { return fmt.Sprintf("user:%s", sessionID) }
func tokenKey(sessionID string) string { return fmt.Sprintf("token:%s", sessionID) }

// LoadCart never fails: a missing, empty or unreadable value yields an empty
// cart. Read errors are logged.
func (s *Store) LoadCart(ctx context.Context, sessionID string) *domain.Cart {
	data, ok := s.read(ctx, cartKey(sessionID))
	if !ok {
		return domain.NewCart()
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		s.log.Warn("discarding unreadable cart", zap.String("session_id", sessionID), zap.Error(err))
		return domain.NewCart()
	}
	return &cart
}

func (s *Store) SaveCart(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.backend.Set(ctx, cartKey(sessionID), data); err != nil {
		return fmt.Errorf("save cart failed: %w", err)
	}
	return nil
}

// LoadUser returns nil when no readable snapshot exists.
func (s *Store) LoadUser(ctx context.Context, sessionID string) *domain.User {
	data, ok := s.read(ctx, userKey(sessionID))
	if !ok {
		return nil
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		s.log.Warn("discarding unreadable user snapshot", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return &user
}

func (s *Store) SaveUser(ctx context.Context, sessionID string, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user failed: %w", err)
	}
	if err := s.backend.Set(ctx, userKey(sessionID), data); err != nil {
		return fmt.Errorf("save user failed: %w", err)
	}
	return nil
}

// LoadToken returns "" when the session has no token.
func (s *Store) LoadToken(ctx context.Context, sessionID string) string {
	data, ok := s.read(ctx, tokenKey(sessionID))
	if !ok {
		return ""
	}
	return string(data)
}

func (s *Store) SaveToken(ctx context.Context, sessionID, token string) error {
	if err := s.backend.Set(ctx, tokenKey(sessionID), []byte(token)); err != nil {
		return fmt.Errorf("save token failed: %w", err)
	}
	return nil
}

// ClearAuth removes the token and user snapshot. The cart is kept.
func (s *Store) ClearAuth(ctx context.Context, sessionID string) error {
	return errors.Join(
		s.backend.Delete(ctx, tokenKey(sessionID)),
		s.backend.Delete(ctx, userKey(sessionID)),
	)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Carts returns the cart persistence view for one session.
func (s *Store) Carts(sessionID string) *CartStore {
	return &CartStore{store: s, sessionID: sessionID}
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("store read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// CartStore binds the cart load/save contract to a session.
type CartStore struct {
	store     *Store
	sessionID string
}

func (c *CartStore) Load(ctx context.Context) *domain.Cart {
	return c.store.LoadCart(ctx, c.sessionID)
}

func (c *CartStore) Save(ctx context.Context, cart *domain.Cart) error {
	return c.store.SaveCart(ctx, c.sessionID, cart)
}
