// Package model defines the local cart, credential and catalog-facing data
// structures shared by the gateway, the cart session and the host surface.
package model

import "time"

// CartStatus is the lifecycle status reported by the remote order resource.
type CartStatus string

const (
	StatusDraft     CartStatus = "draft"
	StatusPending   CartStatus = "pending"
	StatusPlaced    CartStatus = "placed"
	StatusApproved  CartStatus = "approved"
	StatusCancelled CartStatus = "cancelled"
	StatusEditing   CartStatus = "editing"
)

// IsActive reports whether a cart in this status can still be mutated.
// Anything outside draft/pending is terminal and must be replaced.
func (s CartStatus) IsActive() bool {
	return s == StatusDraft || s == StatusPending
}

// ItemTypeSKU is the line item type that participates in quantity reconciliation.
const ItemTypeSKU = "skus"

// Cart is the flat client-side shape of a remote order.
// Field names follow the local camelCase convention; the gateway renames
// snake_case wire attributes at the boundary.
type Cart struct {
	ID                      string         `json:"id"`
	Token                   string         `json:"token,omitempty"`
	Status                  CartStatus     `json:"status"`
	CurrencyCode            string         `json:"currencyCode,omitempty"`
	CheckoutURL             string         `json:"checkoutUrl,omitempty"`
	ShippingCountryCodeLock string         `json:"shippingCountryCodeLock,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	Totals
	LineItems []LineItem `json:"lineItems"`
}

// Totals pairs float and minor-unit amounts as returned by the remote API.
type Totals struct {
	SubtotalAmountFloat       float64 `json:"subtotalAmountFloat"`
	SubtotalAmountCents       int64   `json:"subtotalAmountCents"`
	ShippingAmountFloat       float64 `json:"shippingAmountFloat"`
	ShippingAmountCents       int64   `json:"shippingAmountCents"`
	TotalTaxAmountFloat       float64 `json:"totalTaxAmountFloat"`
	TotalTaxAmountCents       int64   `json:"totalTaxAmountCents"`
	TotalAmountFloat          float64 `json:"totalAmountFloat"`
	TotalAmountCents          int64   `json:"totalAmountCents"`
	TotalAmountWithTaxesFloat float64 `json:"totalAmountWithTaxesFloat"`
}

// LineItem is one entry of a cart. SKU is only set for ItemTypeSKU entries.
type LineItem struct {
	ID               string         `json:"id"`
	SKU              string         `json:"sku,omitempty"`
	ItemType         string         `json:"itemType"`
	Name             string         `json:"name,omitempty"`
	Quantity         int            `json:"quantity"`
	UnitAmountCents  int64          `json:"unitAmountCents"`
	TotalAmountCents int64          `json:"totalAmountCents"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// IsSKU reports whether the item is addressable by add/adjust/remove.
func (li LineItem) IsSKU() bool {
	return li.ItemType == ItemTypeSKU
}

// LineItemOption is a priced option attached to a line item (gift wrap, engraving).
type LineItemOption struct {
	ID               string         `json:"id"`
	Name             string         `json:"name,omitempty"`
	Quantity         int            `json:"quantity"`
	Options          map[string]any `json:"options,omitempty"`
	UnitAmountCents  int64          `json:"unitAmountCents"`
	TotalAmountCents int64          `json:"totalAmountCents"`
}

// SKUItems returns the sku-typed line items, in cart order.
// Fees, shipments and discounts stay in LineItems for display only.
func (c *Cart) SKUItems() []LineItem {
	if c == nil {
		return nil
	}
	items := make([]LineItem, 0, len(c.LineItems))
	for _, li := range c.LineItems {
		if li.IsSKU() {
			items = append(items, li)
		}
	}
	return items
}

// Clone returns a deep-enough copy for handing out snapshots: the line item
// slice is copied so callers cannot mutate the authoritative cart.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.LineItems = append([]LineItem(nil), c.LineItems...)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Credential is a bearer token with an absolute expiry.
// Replaced, never mutated, when refreshed.
type Credential struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ExpiresWithin reports whether fewer than d remain before the credential expires.
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	return c.ExpiresAt.Sub(now) < d
}
