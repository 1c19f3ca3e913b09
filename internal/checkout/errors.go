package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition    = errors.New("illegal transition of checkout state")
	ErrCheckoutBlocked      = errors.New("checkout blocked")
	ErrNoShippingAddress    = errors.New("no shipping address")
	ErrUserUnavailable      = errors.New("user data unavailable")
	ErrValidationInProgress = errors.New("stock validation in progress")
	ErrAttachmentRequired   = errors.New("attachment required")
	ErrInvalidAttachment    = errors.New("invalid attachment")
	ErrMissingItemData      = errors.New("cart items missing order data")
	ErrOrderFailed          = errors.New("order placement failed")
)

const (
	MsgNoShippingAddress  = "Please add a shipping address in your profile before placing an order."
	MsgAddressLoadFailed  = "Failed to load shipping address. Please try again."
	MsgValidating         = "Stock availability is still being checked. Please try again in a moment."
	MsgAttachmentRequired = "Please upload a purchase order or invoice document"
	MsgMissingItemData    = "Some cart items are missing required information. Please refresh your cart."
	MsgOrderFailed        = "Failed to place order. Please try again."
)

// Error is a checkout failure with the message shown to the shopper. It
// matches its Kind sentinel and the underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// GateError carries the gate decision that refused checkout.
type GateError struct {
	Decision Decision
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCheckoutBlocked, e.Decision.Reason)
}

func (e *GateError) Is(target error) bool {
	return target == ErrCheckoutBlocked
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrIllegalTransition, e.from, e.to)
}

func (e *transitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Message returns the shopper-facing text of a checkout error, or "" when err
// carries none.
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Decision.Message
	}
	return ""
}
