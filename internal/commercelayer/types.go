package commercelayer

import "encoding/json"

// =============================================================================
// JSON:API WIRE TYPES
// =============================================================================
//
// Commerce Layer speaks JSON:API (application/vnd.api+json). Responses are
// documents with a primary resource in "data", related resources in
// "included", and relationships pointing from one to the other by type/id.
//
// The attribute structs below are the allow-list: only fields named here are
// decoded, everything else on the wire is dropped.
// =============================================================================

const (
	typeOrders          = "orders"
	typeLineItems       = "line_items"
	typeLineItemOptions = "line_item_options"
	typeMarkets         = "markets"
	typeSKUOptions      = "sku_options"
)

// document is a response document.
type document struct {
	Data     json.RawMessage `json:"data"`
	Included []resource      `json:"included,omitempty"`
	Errors   []errorObject   `json:"errors,omitempty"`
}

// resource is a resource object in a response.
type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
}

// relationship holds linkage data: a single identifier, an array, or null.
type relationship struct {
	Data json.RawMessage `json:"data"`
}

// identifier is a resource identifier object.
type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// errorObject is one entry of a JSON:API errors array.
type errorObject struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
	Status string `json:"status"`
	Source *struct {
		Pointer string `json:"pointer"`
	} `json:"source,omitempty"`
}

// requestDocument is the body of POST and PATCH requests.
type requestDocument struct {
	Data requestResource `json:"data"`
}

type requestResource struct {
	ID            string                     `json:"id,omitempty"`
	Type          string                     `json:"type"`
	Attributes    any                        `json:"attributes"`
	Relationships map[string]requestRelation `json:"relationships,omitempty"`
}

type requestRelation struct {
	Data identifier `json:"data"`
}

// === Allow-listed attributes ===

type orderAttributes struct {
	Status                    string         `json:"status"`
	Token                     string         `json:"token"`
	CurrencyCode              string         `json:"currency_code"`
	CheckoutURL               string         `json:"checkout_url"`
	ShippingCountryCodeLock   string         `json:"shipping_country_code_lock"`
	Metadata                  map[string]any `json:"metadata"`
	SubtotalAmountFloat       float64        `json:"subtotal_amount_float"`
	SubtotalAmountCents       int64          `json:"subtotal_amount_cents"`
	ShippingAmountFloat       float64        `json:"shipping_amount_float"`
	ShippingAmountCents       int64          `json:"shipping_amount_cents"`
	TotalTaxAmountFloat       float64        `json:"total_tax_amount_float"`
	TotalTaxAmountCents       int64          `json:"total_tax_amount_cents"`
	TotalAmountFloat          float64        `json:"total_amount_float"`
	TotalAmountCents          int64          `json:"total_amount_cents"`
	TotalAmountWithTaxesFloat float64        `json:"total_amount_with_taxes_float"`
}

type lineItemAttributes struct {
	SKUCode          string         `json:"sku_code"`
	ItemType         string         `json:"item_type"`
	Name             string         `json:"name"`
	Quantity         int            `json:"quantity"`
	UnitAmountCents  int64          `json:"unit_amount_cents"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	ImageURL         string         `json:"image_url"`
	Metadata         map[string]any `json:"metadata"`
}

type lineItemOptionAttributes struct {
	Name             string         `json:"name"`
	Quantity         int            `json:"quantity"`
	Options          map[string]any `json:"options"`
	UnitAmountCents  int64          `json:"unit_amount_cents"`
	TotalAmountCents int64          `json:"total_amount_cents"`
}
