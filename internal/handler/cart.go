package handler

import (
	"log/slog"
	"net/http"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/reconcile"
)

type addItemsRequest struct {
	Items []reconcile.AddItem `json:"items"`
}

type adjustItemsRequest struct {
	Items []reconcile.AdjustItem `json:"items"`
}

type removeItemsRequest struct {
	IDs []string `json:"ids"`
}

type shippingLockRequest struct {
	CountryCode string `json:"countryCode"`
}

type optionRequest struct {
	SKUOptionID string         `json:"skuOptionId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Quantity    int            `json:"quantity,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

func (o optionRequest) attributes() gateway.LineItemOptionAttributes {
	return gateway.LineItemOptionAttributes{Name: o.Name, Quantity: o.Quantity, Options: o.Options}
}

// handleGetCart returns the local cart snapshot without a remote call.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c := h.cart.Cart()
	if c == nil {
		h.writeError(w, model.NewCartUnusableError("", "session not resolved"))
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleRefreshCart re-reads the cart from the platform.
// POST /cart/refresh
func (h *Handler) handleRefreshCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart.Refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleAddItems adds quantities to the cart.
// POST /cart/items
func (h *Handler) handleAddItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding to cart", slog.Int("items", len(req.Items)))

	c, err := h.cart.Add(ctx, req.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleAdjustItems sets absolute line item quantities.
// PATCH /cart/items
func (h *Handler) handleAdjustItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adjustItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adjusting cart", slog.Int("items", len(req.Items)))

	c, err := h.cart.Adjust(ctx, req.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleRemoveItems deletes line items.
// POST /cart/items/remove
func (h *Handler) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req removeItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "removing from cart", slog.Int("items", len(req.IDs)))

	c, err := h.cart.Remove(ctx, req.IDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleSetMetadata merges order metadata. The body is the metadata object.
// PATCH /cart/metadata
func (h *Handler) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	var metadata map[string]any
	if err := decodeJSON(r, &metadata); err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.cart.SetMetadata(r.Context(), metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleLockShipping restricts shipping to one country.
// PATCH /cart/shipping-lock
func (h *Handler) handleLockShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingLockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.cart.LockShippingCountry(r.Context(), req.CountryCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleAddOption attaches an option (gift wrap, engraving) to a sku line.
// POST /cart/items/{id}/options
func (h *Handler) handleAddOption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineItemID := r.PathValue("id")

	var req optionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding line item option",
		slog.String("line_item_id", lineItemID),
		slog.String("sku_option_id", req.SKUOptionID),
	)

	c, err := h.cart.AddOption(ctx, lineItemID, req.SKUOptionID, req.attributes())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleUpdateOption changes an existing line item option.
// PATCH /cart/options/{id}
func (h *Handler) handleUpdateOption(w http.ResponseWriter, r *http.Request) {
	var req optionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.cart.UpdateOption(r.Context(), r.PathValue("id"), req.attributes())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}
