package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/validation"
)

const attachmentField = "attachment"

type OrderPlacedDTO struct {
	Message  string        `json:"message"`
	Checkout checkout.View `json:"checkout"`
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, s.Checkout().View())
}

func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	flow := s.BeginCheckout()
	if err := flow.Confirm(ctx); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow.View())
}

func (h *Handler) BackCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	flow := s.Checkout()
	if err := flow.Back(); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow.View())
}

// SubmitOrder expects multipart/form-data with the purchase order document in
// the "attachment" field.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	attachment, err := readAttachment(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	flow := s.Checkout()
	conf, err := flow.Submit(ctx, attachment)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, OrderPlacedDTO{Message: conf.Message, Checkout: flow.View()})
}

// readAttachment returns nil when the request carries no attachment.
func readAttachment(r *http.Request) (*domain.Attachment, error) {
	if err := r.ParseMultipartForm(validation.MaxAttachmentSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	file, header, err := r.FormFile(attachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// one byte over the limit is enough for validation to reject it
	data, err := io.ReadAll(io.LimitReader(file, validation.MaxAttachmentSize+1))
	if err != nil {
		return nil, err
	}
	return &domain.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}, nil
}
