package commercelayer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cartsync/internal/model"
)

// primary decodes the document's primary resource and checks its type.
func primary(doc *document, wantType string) (*resource, error) {
	data := bytes.TrimSpace(doc.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("document has no data")
	}
	var r resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding primary resource: %w", err)
	}
	if r.Type != wantType {
		return nil, fmt.Errorf("primary resource type %q, want %q", r.Type, wantType)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("primary resource has no id")
	}
	return &r, nil
}

// toCart normalizes an order document into the local cart shape.
// Anything structurally wrong with the document makes the cart unusable.
func toCart(doc *document, requestedID string) (*model.Cart, error) {
	r, err := primary(doc, typeOrders)
	if err != nil {
		return nil, model.NewCartUnusableError(requestedID, err.Error())
	}

	var attrs orderAttributes
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, model.NewCartUnusableError(r.ID, "malformed attributes: "+err.Error())
		}
	}

	items, err := orderLineItems(r, doc.Included)
	if err != nil {
		return nil, model.NewCartUnusableError(r.ID, err.Error())
	}

	return &model.Cart{
		ID:                      r.ID,
		Token:                   attrs.Token,
		Status:                  model.CartStatus(attrs.Status),
		CurrencyCode:            attrs.CurrencyCode,
		CheckoutURL:             attrs.CheckoutURL,
		ShippingCountryCodeLock: attrs.ShippingCountryCodeLock,
		Metadata:                attrs.Metadata,
		Totals: model.Totals{
			SubtotalAmountFloat:       attrs.SubtotalAmountFloat,
			SubtotalAmountCents:       attrs.SubtotalAmountCents,
			ShippingAmountFloat:       attrs.ShippingAmountFloat,
			ShippingAmountCents:       attrs.ShippingAmountCents,
			TotalTaxAmountFloat:       attrs.TotalTaxAmountFloat,
			TotalTaxAmountCents:       attrs.TotalTaxAmountCents,
			TotalAmountFloat:          attrs.TotalAmountFloat,
			TotalAmountCents:          attrs.TotalAmountCents,
			TotalAmountWithTaxesFloat: attrs.TotalAmountWithTaxesFloat,
		},
		LineItems: items,
	}, nil
}

// orderLineItems resolves relationships.line_items against included, keeping
// the relationship order. Without linkage every included line item is used.
func orderLineItems(order *resource, included []resource) ([]model.LineItem, error) {
	byID := make(map[string]resource, len(included))
	var fallback []resource
	for _, inc := range included {
		if inc.Type == typeLineItems {
			byID[inc.ID] = inc
			fallback = append(fallback, inc)
		}
	}

	ordered := fallback
	if rel, ok := order.Relationships[typeLineItems]; ok && len(rel.Data) > 0 && !bytes.Equal(bytes.TrimSpace(rel.Data), []byte("null")) {
		var ids []identifier
		if err := json.Unmarshal(rel.Data, &ids); err != nil {
			return nil, fmt.Errorf("decoding line_items linkage: %w", err)
		}
		ordered = make([]resource, 0, len(ids))
		for _, id := range ids {
			if inc, ok := byID[id.ID]; ok {
				ordered = append(ordered, inc)
			}
		}
	}

	items := make([]model.LineItem, 0, len(ordered))
	for _, r := range ordered {
		li, err := toLineItem(&r)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, nil
}

// toLineItem renames sku_code to SKU for sku-typed items only.
func toLineItem(r *resource) (model.LineItem, error) {
	var attrs lineItemAttributes
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return model.LineItem{}, fmt.Errorf("decoding line item %s: %w", r.ID, err)
		}
	}

	li := model.LineItem{
		ID:               r.ID,
		ItemType:         attrs.ItemType,
		Name:             attrs.Name,
		Quantity:         attrs.Quantity,
		UnitAmountCents:  attrs.UnitAmountCents,
		TotalAmountCents: attrs.TotalAmountCents,
		ImageURL:         attrs.ImageURL,
		Metadata:         attrs.Metadata,
	}
	if li.IsSKU() {
		li.SKU = attrs.SKUCode
	}
	return li, nil
}

func lineItemFromDocument(doc *document) (*model.LineItem, error) {
	r, err := primary(doc, typeLineItems)
	if err != nil {
		return nil, fmt.Errorf("parsing line item response: %w", err)
	}
	li, err := toLineItem(r)
	if err != nil {
		return nil, err
	}
	return &li, nil
}

func optionFromDocument(doc *document) (*model.LineItemOption, error) {
	r, err := primary(doc, typeLineItemOptions)
	if err != nil {
		return nil, fmt.Errorf("parsing line item option response: %w", err)
	}
	var attrs lineItemOptionAttributes
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decoding line item option %s: %w", r.ID, err)
		}
	}
	return &model.LineItemOption{
		ID:               r.ID,
		Name:             attrs.Name,
		Quantity:         attrs.Quantity,
		Options:          attrs.Options,
		UnitAmountCents:  attrs.UnitAmountCents,
		TotalAmountCents: attrs.TotalAmountCents,
	}, nil
}
