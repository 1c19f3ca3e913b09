package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// lenientInt decodes an integer sent as a number or a numeric string.
// Fractions are truncated and anything else decodes to 0.
type lenientInt int64

func (n *lenientInt) UnmarshalJSON(data []byte) error {
	*n = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = lenientInt(v)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt64 {
		return nil
	}
	*n = lenientInt(math.Trunc(v))
	return nil
}

// UnmarshalJSON accepts quantity and warehence_product_id as numbers or
// numeric strings.
func (i *LineItem) UnmarshalJSON(data []byte) error {
	type plain LineItem
	aux := struct {
		*plain
		Quantity           lenientInt `json:"quantity"`
		WarehenceProductID lenientInt `json:"warehence_product_id"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.Quantity = int(aux.Quantity)
	i.WarehenceProductID = int64(aux.WarehenceProductID)
	return nil
}

// UnmarshalJSON accepts quantity and warehence_product_id as numbers or
// numeric strings, so one odd product does not fail a whole page.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		Quantity           lenientInt `json:"quantity"`
		WarehenceProductID lenientInt `json:"warehence_product_id"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Quantity = int(aux.Quantity)
	p.WarehenceProductID = int64(aux.WarehenceProductID)
	return nil
}
