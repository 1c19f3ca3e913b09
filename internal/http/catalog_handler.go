package http

import (
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// pageParams reads page and per_page, falling back to 1 and 20.
func pageParams(r *http.Request) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	page, perPage := pageParams(r)
	brands, err := s.API().Brands(ctx, page, perPage)
	if err != nil {
		h.handleError(w, err)
		return
	}
	for i := range brands.Items {
		brands.Items[i].Logo = domain.ImageURL(h.storageURL, brands.Items[i].Logo)
	}
	h.respondJSON(w, http.StatusOK, brands)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	page, perPage := pageParams(r)
	products, err := s.API().ProductsBySubCategory(ctx, chi.URLParam(r, "sub_category_id"), page, perPage, r.URL.Query().Get("search"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	for i := range products.Items {
		images := products.Items[i].Images
		for j := range images {
			images[j] = domain.ImageURL(h.storageURL, images[j])
		}
	}
	h.respondJSON(w, http.StatusOK, products)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	page, perPage := pageParams(r)
	orders, err := s.API().Orders(ctx, page, perPage)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	countries, err := s.API().Countries(ctx)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, countries)
}

func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	states, err := s.API().States(ctx, chi.URLParam(r, "iso2"), r.URL.Query().Get("search"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, states)
}
