package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/inventory"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/go-chi/chi/v5"
)

type AddItemRequestDTO struct {
	Item domain.LineItem `json:"item"`
	// Quantity is coerced: non-numeric input counts as 1.
	Quantity json.RawMessage `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity json.RawMessage `json:"quantity"`
}

type LineItemView struct {
	domain.LineItem
	Subtotal   string                    `json:"subtotal"`
	StockError *inventory.InventoryError `json:"stock_error,omitempty"`
}

// UnmarshalJSON decodes the view fields next to the embedded line item,
// whose own decoder would otherwise drop them.
func (v *LineItemView) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &v.LineItem); err != nil {
		return err
	}
	var extra struct {
		Subtotal   string                    `json:"subtotal"`
		StockError *inventory.InventoryError `json:"stock_error"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	v.Subtotal = extra.Subtotal
	v.StockError = extra.StockError
	return nil
}

type CartView struct {
	Items        []LineItemView    `json:"items"`
	Count        int               `json:"count"`
	Total        float64           `json:"total"`
	DisplayTotal string            `json:"display_total"`
	Inventory    inventory.State   `json:"inventory"`
	Gate         checkout.Decision `json:"gate"`
}

func (h *Handler) cartView(s *session.Session) CartView {
	c := s.Cart().Snapshot()
	stock := s.Inventory().State()

	items := make([]LineItemView, 0, c.Len())
	for _, item := range c.Items() {
		view := LineItemView{
			LineItem: item,
			Subtotal: checkout.FormatMoney(item.Subtotal()),
		}
		view.Images = make([]string, 0, len(item.Images))
		for _, img := range item.Images {
			view.Images = append(view.Images, domain.ImageURL(h.storageURL, img))
		}
		if e, ok := stock.ErrorFor(item.ID); ok {
			view.StockError = &e
		}
		items = append(items, view)
	}

	return CartView{
		Items:        items,
		Count:        c.Count(),
		Total:        c.Total(),
		DisplayTotal: checkout.FormatMoney(c.Total()),
		Inventory:    stock,
		Gate:         checkout.CanCheckout(c, stock.Errors, s.User().CanOrder()),
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Item.ID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_item", "item._id is required")
		return
	}

	quantity := 1
	if len(req.Quantity) > 0 {
		quantity = cart.ParseQuantity(string(req.Quantity))
	}

	if err := s.Cart().AddItem(ctx, req.Item, quantity); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, h.cartView(s))
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if err := s.Cart().UpdateQuantity(ctx, itemID, cart.ParseQuantity(string(req.Quantity))); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Cart().RemoveItem(ctx, chi.URLParam(r, "item_id")); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(s))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Cart().Clear(ctx); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(s))
}

// Reconcile checks the cart against live stock. A pass replaced by a newer
// one answers 202 with the state as it is.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	_, err := s.Reconcile(ctx)
	switch {
	case errors.Is(err, inventory.ErrSuperseded):
		h.respondJSON(w, http.StatusAccepted, h.cartView(s))
	case err != nil:
		h.handleError(w, err)
	default:
		h.respondJSON(w, http.StatusOK, h.cartView(s))
	}
}
