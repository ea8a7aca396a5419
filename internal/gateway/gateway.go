// Package gateway defines the typed operations against the remote commerce
// API's order and line item resources.
package gateway

import (
	"context"

	"cartsync/internal/model"
)

// Gateway abstracts order and line item persistence.
//
// Implementations attach a fresh bearer credential to every remote call and
// return carts in the normalized local shape. Order-level responses always
// embed line items.
type Gateway interface {
	// CreateOrder creates a new order scoped to rels.Market.
	CreateOrder(ctx context.Context, attrs OrderAttributes, rels OrderRelationships) (*model.Cart, error)

	// ReadOrder returns the order with its line items.
	// Absent orders fail with model.ErrNotFound, malformed ones with model.ErrCartUnusable.
	ReadOrder(ctx context.Context, id string) (*model.Cart, error)

	// UpdateOrder patches order-level attributes (metadata, shipping lock).
	UpdateOrder(ctx context.Context, id string, attrs OrderAttributes) (*model.Cart, error)

	CreateLineItem(ctx context.Context, orderID string, attrs LineItemAttributes) (*model.LineItem, error)
	UpdateLineItem(ctx context.Context, id string, attrs LineItemAttributes) (*model.LineItem, error)
	DeleteLineItem(ctx context.Context, id string) error

	// CreateLineItemOption attaches a priced option (gift wrap, engraving) to a line item.
	CreateLineItemOption(ctx context.Context, lineItemID, skuOptionID string, attrs LineItemOptionAttributes) (*model.LineItemOption, error)
	UpdateLineItemOption(ctx context.Context, id string, attrs LineItemOptionAttributes) (*model.LineItemOption, error)
}

// OrderAttributes are the writable order attributes, in wire naming.
type OrderAttributes struct {
	Metadata                map[string]any `json:"metadata,omitempty"`
	ShippingCountryCodeLock string         `json:"shipping_country_code_lock,omitempty"`
}

// OrderRelationships links a new order to its market.
type OrderRelationships struct {
	Market string
}

// LineItemAttributes are the writable line item attributes.
// A zero Quantity is omitted from the request.
type LineItemAttributes struct {
	SKUCode  string         `json:"sku_code,omitempty"`
	Quantity int            `json:"quantity,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LineItemOptionAttributes are the writable line item option attributes.
type LineItemOptionAttributes struct {
	Name     string         `json:"name,omitempty"`
	Quantity int            `json:"quantity,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// DefaultCartMetadata is attached to every newly created cart.
func DefaultCartMetadata() map[string]any {
	return map[string]any{
		"gift_box": false,
		"preorder": false,
		"comment":  "",
	}
}
