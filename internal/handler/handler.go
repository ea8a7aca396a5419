// Package handler provides the HTTP surface of the cart service: REST, SSE and MCP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"cartsync/internal/catalog"
	"cartsync/internal/events"
	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/reconcile"
)

// Cart is the session surface the handlers drive.
type Cart interface {
	Cart() *model.Cart
	Refresh(ctx context.Context) (*model.Cart, error)
	Add(ctx context.Context, items []reconcile.AddItem) (*model.Cart, error)
	Adjust(ctx context.Context, items []reconcile.AdjustItem) (*model.Cart, error)
	Remove(ctx context.Context, ids []string) (*model.Cart, error)
	SetMetadata(ctx context.Context, metadata map[string]any) (*model.Cart, error)
	LockShippingCountry(ctx context.Context, countryCode string) (*model.Cart, error)
	AddOption(ctx context.Context, lineItemID, skuOptionID string, attrs gateway.LineItemOptionAttributes) (*model.Cart, error)
	UpdateOption(ctx context.Context, optionID string, attrs gateway.LineItemOptionAttributes) (*model.Cart, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cart     Cart
	products *catalog.Catalog
	events   *events.Bus
	logger   *slog.Logger
}

// New creates a new Handler.
func New(cart Cart, products *catalog.Catalog, bus *events.Bus, logger *slog.Logger) *Handler {
	return &Handler{
		cart:     cart,
		products: products,
		events:   bus,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/refresh", h.handleRefreshCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItems)
	mux.HandleFunc("PATCH /cart/items", h.handleAdjustItems)
	mux.HandleFunc("POST /cart/items/remove", h.handleRemoveItems)
	mux.HandleFunc("PATCH /cart/metadata", h.handleSetMetadata)
	mux.HandleFunc("PATCH /cart/shipping-lock", h.handleLockShipping)
	mux.HandleFunc("POST /cart/items/{id}/options", h.handleAddOption)
	mux.HandleFunc("PATCH /cart/options/{id}", h.handleUpdateOption)

	// Catalog
	mux.HandleFunc("GET /products", h.handleListProducts)
	mux.HandleFunc("GET /products/search", h.handleSearchProducts)

	// Change notifications
	mux.HandleFunc("GET /events", h.handleEvents)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(apiErr.RetryAfter.Seconds())))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
