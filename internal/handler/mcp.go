// MCP transport handler using the official MCP Go SDK.
// Exposes cart and catalog operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cartsync/internal/model"
	"cartsync/internal/reconcile"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart tool.
type GetCartInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"re-read the cart from the platform first"`
}

// AddToCartInput is the input schema for add_to_cart tool.
type AddToCartInput struct {
	Items []ItemInput `json:"items" jsonschema:"SKUs to add; quantities add to what is already in the cart"`
}

// ItemInput is one SKU and quantity.
type ItemInput struct {
	SKU      string `json:"sku" jsonschema:"SKU code"`
	Quantity int    `json:"quantity" jsonschema:"quantity, at least 1"`
}

// AdjustCartInput is the input schema for adjust_cart tool.
type AdjustCartInput struct {
	Items []LineItemInput `json:"items" jsonschema:"line items and their new absolute quantities"`
}

// LineItemInput addresses an existing line item.
type LineItemInput struct {
	ID       string `json:"id" jsonschema:"line item ID"`
	Quantity int    `json:"quantity" jsonschema:"new quantity, at least 1"`
}

// RemoveFromCartInput is the input schema for remove_from_cart tool.
type RemoveFromCartInput struct {
	IDs []string `json:"ids" jsonschema:"line item IDs to remove"`
}

// SearchProductsInput is the input schema for search_products tool.
type SearchProductsInput struct {
	Fields map[string]string `json:"fields" jsonschema:"field values every match must have, e.g. {\"category\":\"shirts\"}"`
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartsync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart. Search the catalog for SKUs, then add, adjust or remove cart lines.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart with line items and totals.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add SKUs to the cart. Adding a SKU already in the cart increases its quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "adjust_cart",
		Description: "Set line items to exact quantities.",
	}, h.mcpAdjustCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove line items from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_products",
		Description: "Find catalog products whose fields equal all given values.",
	}, h.mcpSearchProducts)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, any, error) {
	if input.Refresh {
		c, err := h.cart.Refresh(ctx)
		if err != nil {
			return nil, nil, h.mcpError(err)
		}
		return nil, c, nil
	}

	c := h.cart.Cart()
	if c == nil {
		return nil, nil, h.mcpError(model.NewCartUnusableError("", "session not resolved"))
	}
	return nil, c, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, any, error) {
	items := make([]reconcile.AddItem, len(input.Items))
	for i, it := range input.Items {
		items[i] = reconcile.AddItem{SKU: it.SKU, Quantity: it.Quantity}
	}

	c, err := h.cart.Add(ctx, items)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, c, nil
}

func (h *Handler) mcpAdjustCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AdjustCartInput,
) (*mcp.CallToolResult, any, error) {
	items := make([]reconcile.AdjustItem, len(input.Items))
	for i, it := range input.Items {
		items[i] = reconcile.AdjustItem{ID: it.ID, Quantity: it.Quantity}
	}

	c, err := h.cart.Adjust(ctx, items)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, c, nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, any, error) {
	c, err := h.cart.Remove(ctx, input.IDs)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, c, nil
}

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchProductsInput,
) (*mcp.CallToolResult, any, error) {
	return nil, h.products.SearchFields(input.Fields), nil
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", slog.String("error", err.Error()))
	return fmt.Errorf("internal error")
}
