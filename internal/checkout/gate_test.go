package checkout

import (
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/stretchr/testify/assert"
)

func TestCanCheckout(t *testing.T) {
	full := domain.NewCart(domain.LineItem{ID: "A", Price: 10, Quantity: 1})
	conflict := []inventory.InventoryError{{ItemID: "A", Message: inventory.MessageOutOfStock}}

	tests := []struct {
		name     string
		cart     *domain.Cart
		errors   []inventory.InventoryError
		canOrder bool
		allowed  bool
		reason   Reason
	}{
		{"allowed", full, nil, true, true, ReasonNone},
		{"nil cart", nil, nil, true, false, ReasonEmptyCart},
		{"empty cart", domain.NewCart(), nil, true, false, ReasonEmptyCart},
		{"stock conflict", full, conflict, true, false, ReasonStockConflict},
		{"no permission", full, nil, false, false, ReasonNoPermission},
		{"empty cart wins over permission", domain.NewCart(), conflict, false, false, ReasonEmptyCart},
		{"permission wins over stock", full, conflict, false, false, ReasonNoPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanCheckout(tt.cart, tt.errors, tt.canOrder)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if !tt.allowed {
				assert.NotEmpty(t, d.Message)
			}
		})
	}
}

func TestCanCheckout_DistinctMessages(t *testing.T) {
	assert.NotEqual(t, MsgEmptyCart, MsgNoPermission)
	assert.NotEqual(t, MsgNoPermission, MsgStockConflict)
	assert.NotEqual(t, MsgEmptyCart, MsgStockConflict)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateReviewing.CanTransitionTo(StateConfirming))
	assert.False(t, StateReviewing.CanTransitionTo(StatePlaced))
	assert.True(t, StateConfirming.CanTransitionTo(StateReviewing))
	assert.True(t, StateConfirming.CanTransitionTo(StatePlaced))
	assert.False(t, StatePlaced.CanTransitionTo(StateReviewing))
	assert.False(t, StatePlaced.CanTransitionTo(StateConfirming))
	assert.True(t, StatePlaced.IsTerminal())
	assert.False(t, StateConfirming.IsTerminal())
}

func TestRoundTotal(t *testing.T) {
	assert.Equal(t, 0.3, RoundTotal(0.1+0.2))
	assert.Equal(t, 10.01, RoundTotal(10.005))
	assert.Equal(t, 25.0, RoundTotal(25))
	assert.Equal(t, "0.30", FormatMoney(0.1+0.2))
	assert.Equal(t, "7.00", FormatMoney(7))
}
