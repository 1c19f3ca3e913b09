package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var ErrOrderRejected = errors.New("order rejected")

// RejectedError is a 2xx answer that did not confirm the order.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrOrderRejected, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}

type OrderConfirmation struct {
	Message string
	Data    json.RawMessage
}

// CreateOrder posts the order as multipart form data with the attachment.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest, attachment *domain.Attachment) (*OrderConfirmation, error) {
	body, contentType, err := encodeOrder(req, attachment)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := c.do(ctx, "create_order", http.MethodPost, "/orders/create", body, contentType, &env); err != nil {
		return nil, err
	}

	status, _ := env.Status.(string)
	hasData := len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null"))
	if !hasData && status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "Failed to create order"
		}
		return nil, &RejectedError{Message: msg}
	}
	return &OrderConfirmation{Message: env.Message, Data: env.Data}, nil
}

func encodeOrder(req domain.OrderRequest, attachment *domain.Attachment) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"user_id", req.UserID},
		{"total", strconv.FormatFloat(req.Total, 'f', -1, 64)},
	}
	for i, item := range req.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		fields = append(fields,
			[2]string{prefix + "[warehence_product_id]", strconv.FormatInt(item.WarehenceProductID, 10)},
			[2]string{prefix + "[quantity]", strconv.Itoa(item.Quantity)},
			[2]string{prefix + "[sku]", item.SKU},
		)
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("encode order field %s: %w", f[0], err)
		}
	}

	if attachment != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, attachment.Filename))
		header.Set("Content-Type", attachment.ContentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("encode attachment: %w", err)
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, "", fmt.Errorf("encode attachment: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encode order: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Orders returns one page of the account's order history.
func (c *Client) Orders(ctx context.Context, page, perPage int) (*domain.OrderPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var env envelope
	if err := c.getJSON(ctx, "orders", "/orders", query, &env); err != nil {
		return nil, err
	}

	var result domain.OrderPage
	if _, err := firstOrSelf(env.Data, &result); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return &result, nil
}
