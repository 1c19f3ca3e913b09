package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const EventTypeOrderPlaced = "OrderPlaced"

// OrderPlaced is emitted after the order service accepted an order.
type OrderPlaced struct {
	EventID    string             `json:"event_id"`
	SessionID  string             `json:"session_id"`
	UserID     string             `json:"user_id"`
	Total      float64            `json:"total"`
	Items      []domain.OrderItem `json:"items"`
	Attachment string             `json:"attachment,omitempty"`
	PlacedAt   time.Time          `json:"placed_at"`
}

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlaced) error
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, OrderPlaced) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

func encode(event OrderPlaced) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", EventTypeOrderPlaced, err)
	}
	return data, nil
}
