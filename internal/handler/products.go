package handler

import (
	"net/http"

	"cartsync/internal/catalog"
)

type productsResponse struct {
	Currency  catalog.Currency  `json:"currency"`
	Warehouse string            `json:"warehouse,omitempty"`
	Products  []catalog.Product `json:"products"`
}

// handleListProducts returns the merged catalog.
// GET /products
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.products.All()
	if products == nil {
		products = []catalog.Product{}
	}
	h.writeJSON(w, http.StatusOK, productsResponse{
		Currency:  h.products.Currency(),
		Warehouse: h.products.Warehouse(),
		Products:  products,
	})
}

// handleSearchProducts matches products on every query parameter.
// GET /products/search?key=value&...
func (h *Handler) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	fields := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	h.writeJSON(w, http.StatusOK, h.products.SearchFields(fields))
}
