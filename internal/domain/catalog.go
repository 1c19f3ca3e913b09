package domain

import "strings"

type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// HasNext reports whether a later page exists.
func (p Pagination) HasNext() bool {
	return p.CurrentPage > 0 && p.CurrentPage < p.LastPage
}

type SubCategory struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Category struct {
	ID            string        `json:"_id"`
	Name          string        `json:"name"`
	SubCategories []SubCategory `json:"sub_categories"`
}

type Brand struct {
	ID         string     `json:"_id"`
	Name       string     `json:"name"`
	Logo       string     `json:"logo,omitempty"`
	Categories []Category `json:"categories"`
}

// Product is a catalog entry. Quantity is the stock on hand, not a cart amount.
type Product struct {
	ID                 string       `json:"_id"`
	Name               string       `json:"name"`
	Price              Price        `json:"price"`
	Quantity           int          `json:"quantity"`
	SKU                string       `json:"sku,omitempty"`
	WarehenceProductID int64        `json:"warehence_product_id,omitempty"`
	SubCategoryID      string       `json:"sub_category_id,omitempty"`
	SubCategory        *SubCategory `json:"sub_category,omitempty"`
	CategoryName       string       `json:"category_name,omitempty"`
	BrandName          string       `json:"brand_name,omitempty"`
	Images             []string     `json:"images,omitempty"`
}

type ProductPage struct {
	Items      []Product  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type BrandPage struct {
	Items      []Brand    `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// LineItem builds a cart line for the product with the given quantity.
func (p Product) LineItem(quantity int) LineItem {
	item := LineItem{
		ID:                 p.ID,
		Name:               p.Name,
		Price:              p.Price,
		Quantity:           quantity,
		SKU:                p.SKU,
		WarehenceProductID: p.WarehenceProductID,
		SubCategoryID:      p.SubCategoryID,
		CategoryName:       p.CategoryName,
		BrandName:          p.BrandName,
		Images:             append([]string(nil), p.Images...),
	}
	if p.SubCategory != nil {
		if item.SubCategoryID == "" {
			item.SubCategoryID = p.SubCategory.ID
		}
		item.SubCategoryName = p.SubCategory.Name
	}
	return item
}

type Country struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type State struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// ImageURL resolves an image path against the storage base URL. Absolute URLs
// are returned unchanged and an empty path yields "".
func ImageURL(storageURL, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimRight(storageURL, "/") + "/" + strings.TrimLeft(path, "/")
}
