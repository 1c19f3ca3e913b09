package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Price is a unit price as sent by the catalog API. The API is inconsistent
// about number vs string, so decoding is lenient: anything that does not parse
// as a finite number becomes 0.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*p = 0
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p = 0
		return nil
	}
	*p = Price(v)
	*p = Price(p.Value())
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value())
}

// Value returns the price as float64, with NaN and ±Inf mapped to 0.
func (p Price) Value() float64 {
	v := float64(p)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// LineItem is one product variant and its requested quantity.
type LineItem struct {
	ID                 string   `json:"_id"`
	Name               string   `json:"name"`
	Price              Price    `json:"price"`
	Quantity           int      `json:"quantity"`
	SKU                string   `json:"sku,omitempty"`
	WarehenceProductID int64    `json:"warehence_product_id,omitempty"`
	SubCategoryID      string   `json:"sub_category_id,omitempty"`
	SubCategoryName    string   `json:"sub_category_name,omitempty"`
	CategoryName       string   `json:"category_name,omitempty"`
	BrandName          string   `json:"brand_name,omitempty"`
	Images             []string `json:"images,omitempty"`
}

// Subtotal is price * quantity, unrounded.
func (i LineItem) Subtotal() float64 {
	return i.Price.Value() * float64(i.Quantity)
}

// Cart is an ordered list of line items with an id index. Order is kept for
// display only; totals do not depend on it.
type Cart struct {
	items []LineItem
	index map[string]int
}

func NewCart(items ...LineItem) *Cart {
	c := &Cart{index: make(map[string]int)}
	for _, item := range items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		c.AddItem(item, item.Quantity)
	}
	return c
}

// AddItem merges quantity into an existing line with the same id, or appends
// a new line. Quantities below 1 are treated as 1.
func (c *Cart) AddItem(item LineItem, quantity int) {
	c.ensureIndex()
	if quantity < 1 {
		quantity = 1
	}

	if i, ok := c.index[item.ID]; ok {
		c.items[i].Quantity += quantity
		return
	}

	item.Quantity = quantity
	item.Images = append([]string(nil), item.Images...)
	c.index[item.ID] = len(c.items)
	c.items = append(c.items, item)
}

// UpdateQuantity sets the absolute quantity of a line. A quantity below 1
// removes the line. Unknown ids are ignored.
func (c *Cart) UpdateQuantity(id string, quantity int) {
	if quantity < 1 {
		c.RemoveItem(id)
		return
	}
	c.ensureIndex()
	if i, ok := c.index[id]; ok {
		c.items[i].Quantity = quantity
	}
}

func (c *Cart) RemoveItem(id string) {
	c.ensureIndex()
	i, ok := c.index[id]
	if !ok {
		return
	}

	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ID] = j
	}
}

func (c *Cart) Clear() {
	c.items = nil
	c.index = make(map[string]int)
}

// Total sums price*quantity over all lines. It is not rounded; round only
// when rendering.
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}

// Count is the sum of all quantities.
func (c *Cart) Count() int {
	var count int
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

func (c *Cart) Get(id string) (LineItem, bool) {
	c.ensureIndex()
	i, ok := c.index[id]
	if !ok {
		return LineItem{}, false
	}
	return c.items[i], true
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Clone() *Cart {
	return NewCart(c.items...)
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON reads a JSON array of line items. Lines without an id or with a
// quantity below 1 are dropped and duplicate ids are merged.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*c = *NewCart(items...)
	return nil
}

func (c *Cart) ensureIndex() {
	if c.index == nil {
		c.index = make(map[string]int, len(c.items))
		for i, item := range c.items {
			c.index[item.ID] = i
		}
	}
}
