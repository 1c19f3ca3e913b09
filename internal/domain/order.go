package domain

type OrderItem struct {
	WarehenceProductID int64  `json:"warehence_product_id"`
	Quantity           int    `json:"quantity"`
	SKU                string `json:"sku"`
	Name               string `json:"name,omitempty"`
	Price              Price  `json:"price,omitempty"`
}

// OrderRequest is the payload for order creation. Total is already rounded to
// two decimals.
type OrderRequest struct {
	UserID string
	Total  float64
	Items  []OrderItem
}

type Order struct {
	ID        string      `json:"_id"`
	Number    string      `json:"order_number,omitempty"`
	Status    string      `json:"status"`
	Total     Price       `json:"total"`
	Items     []OrderItem `json:"items"`
	CreatedAt string      `json:"created_at"`
}

type OrderPage struct {
	Items      []Order    `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Attachment is a supporting document uploaded with an order.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}
