package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Brands returns one page of brands with their categories and subcategories.
func (c *Client) Brands(ctx context.Context, page, perPage int) (*domain.BrandPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var env envelope
	if err := c.getJSON(ctx, "brands", "/brands/category/subcategory", query, &env); err != nil {
		return nil, err
	}

	var result domain.BrandPage
	if _, err := firstOrSelf(env.Data, &result); err != nil {
		return nil, fmt.Errorf("decode brands: %w", err)
	}
	return &result, nil
}

// ProductsBySubCategory returns one page of products, stock included. An
// empty search is not sent.
func (c *Client) ProductsBySubCategory(ctx context.Context, subCategoryID string, page, perPage int, search string) (*domain.ProductPage, error) {
	query := url.Values{}
	query.Set("sub_category_id", subCategoryID)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if search != "" {
		query.Set("search", search)
	}

	var env envelope
	if err := c.getJSON(ctx, "products_by_sub_category", "/products/by-sub-category", query, &env); err != nil {
		return nil, err
	}

	var result domain.ProductPage
	if _, err := firstOrSelf(env.Data, &result); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return &result, nil
}
