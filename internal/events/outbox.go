package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/store"
	"go.uber.org/zap"
)

const outboxKey = "outbox:order_placed"

// Outbox publishes through next and parks events that could not be delivered
// in the store. Run retries parked events until they go through.
type Outbox struct {
	next    Publisher
	backend store.Backend
	log     *zap.Logger
	tick    time.Duration

	mu sync.Mutex
}

func NewOutbox(next Publisher, backend store.Backend, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{next: next, backend: backend, log: log, tick: 5 * time.Second}
}

// PublishOrderPlaced fails only when the event could neither be published nor
// parked.
func (o *Outbox) PublishOrderPlaced(ctx context.Context, event OrderPlaced) error {
	err := o.next.PublishOrderPlaced(ctx, event)
	if err == nil {
		return nil
	}
	o.log.Warn("parking undelivered order event", zap.String("event_id", event.EventID), zap.Error(err))

	o.mu.Lock()
	defer o.mu.Unlock()
	pending, loadErr := o.load(ctx)
	if loadErr != nil {
		return errors.Join(err, loadErr)
	}
	pending = append(pending, event)
	if saveErr := o.save(ctx, pending); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return nil
}

// Pending returns the parked events, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]OrderPlaced, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx)
}

func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processPending publishes parked events in order and stops at the first
// failure so ordering per session is kept.
func (o *Outbox) processPending(ctx context.Context) {
	pending, err := o.Pending(ctx)
	if err != nil {
		o.log.Warn("failed to fetch parked events", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	delivered := make(map[string]struct{}, len(pending))
	for _, event := range pending {
		if err := o.next.PublishOrderPlaced(ctx, event); err != nil {
			o.log.Warn("failed to publish parked event", zap.String("event_id", event.EventID), zap.Error(err))
			break
		}
		delivered[event.EventID] = struct{}{}
	}
	if len(delivered) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// events parked meanwhile are kept
	current, err := o.load(ctx)
	if err != nil {
		o.log.Warn("failed to fetch parked events", zap.Error(err))
		return
	}
	remaining := current[:0]
	for _, event := range current {
		if _, ok := delivered[event.EventID]; !ok {
			remaining = append(remaining, event)
		}
	}
	if err := o.save(ctx, remaining); err != nil {
		o.log.Warn("failed to mark parked events as delivered", zap.Error(err))
	}
}

func (o *Outbox) Close() error {
	return o.next.Close()
}

func (o *Outbox) load(ctx context.Context) ([]OrderPlaced, error) {
	data, err := o.backend.Get(ctx, outboxKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	var events []OrderPlaced
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return events, nil
}

func (o *Outbox) save(ctx context.Context, events []OrderPlaced) error {
	if len(events) == 0 {
		return o.backend.Delete(ctx, outboxKey)
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	return o.backend.Set(ctx, outboxKey, data)
}
