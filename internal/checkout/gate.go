package checkout

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/inventory"
)

type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmptyCart     Reason = "empty_cart"
	ReasonNoPermission  Reason = "no_permission"
	ReasonStockConflict Reason = "stock_conflict"
)

const (
	MsgEmptyCart     = "Your cart is empty."
	MsgNoPermission  = "Your account does not have ordering permissions. Please contact support to enable checkout."
	MsgStockConflict = "Some items in your cart exceed available stock. Please adjust quantities before checking out."
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// CanCheckout allows checkout only for a non-empty cart without stock errors
// and a user allowed to order. When several conditions fail the reported
// reason is, in order: empty cart, permission, stock.
func CanCheckout(cart *domain.Cart, stockErrors []inventory.InventoryError, userCanOrder bool) Decision {
	switch {
	case cart == nil || cart.IsEmpty():
		return Decision{Reason: ReasonEmptyCart, Message: MsgEmptyCart}
	case !userCanOrder:
		return Decision{Reason: ReasonNoPermission, Message: MsgNoPermission}
	case len(stockErrors) > 0:
		return Decision{Reason: ReasonStockConflict, Message: MsgStockConflict}
	}
	return Decision{Allowed: true}
}
