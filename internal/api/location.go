package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func (c *Client) Countries(ctx context.Context) ([]domain.Country, error) {
	var resp struct {
		Data struct {
			Countries []domain.Country `json:"countries"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "countries", "/countries", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Countries, nil
}

// States lists the states of the country with the given ISO2 code.
func (c *Client) States(ctx context.Context, iso2, search string) ([]domain.State, error) {
	if iso2 == "" {
		return nil, fmt.Errorf("states: country code is required")
	}
	query := url.Values{}
	query.Set("iso2", iso2)
	if search != "" {
		query.Set("search", search)
	}

	var resp struct {
		Data struct {
			States []domain.State `json:"states"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "states", "/countries/states", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data.States, nil
}
