// Package catalog joins the product, price list and inventory feeds into one
// read-only product model and searches it.
//
// Feed records are open-ended: only the fields the join and the search need
// are typed, everything else is kept in Attributes and written back out flat.
package catalog

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"cartsync/internal/model"
)

// Product is one catalog entry with its merged variants.
type Product struct {
	ID         string
	Name       string
	Slug       string
	Status     string
	Category   string
	Attributes map[string]any
	Variants   []Variant
}

// Variant is one purchasable SKU of a product. Price and Stock are nil when
// the price list or inventory has no entry for the SKU.
type Variant struct {
	SKU        string
	Name       string
	Attributes map[string]any
	Price      *PriceEntry
	Stock      *InventoryEntry
}

// PriceEntry is one record of the price list feed.
type PriceEntry struct {
	SKU    string
	Fields map[string]any
}

// InventoryEntry is one record of the inventory feed.
type InventoryEntry struct {
	SKU    string
	Fields map[string]any
}

// Currency is the price list currency.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// Catalog is the merged product read model. It is immutable once built.
type Catalog struct {
	products  []Product
	currency  Currency
	warehouse string
}

// New builds a catalog from already merged products.
func New(products []Product, currency Currency, warehouse string) *Catalog {
	return &Catalog{products: products, currency: currency, warehouse: warehouse}
}

// All returns every product. The slice is a copy; products must not be mutated.
func (c *Catalog) All() []Product {
	return append([]Product(nil), c.products...)
}

// Currency returns the price list currency.
func (c *Catalog) Currency() Currency { return c.currency }

// Warehouse returns the inventory warehouse name.
func (c *Catalog) Warehouse() string { return c.warehouse }

// Prices returns the unit price in cents of every variant that has one.
func (c *Catalog) Prices() map[string]int64 {
	prices := make(map[string]int64)
	for _, p := range c.products {
		for _, v := range p.Variants {
			if cents, ok := v.Price.AmountCents(); ok {
				prices[v.SKU] = cents
			}
		}
	}
	return prices
}

// Field reads a product field by its feed name. Typed fields come first, then
// Attributes, which also hold typed names whose feed value was not a scalar.
func (p *Product) Field(key string) (any, bool) {
	var typed string
	switch key {
	case "id":
		typed = p.ID
	case "name":
		typed = p.Name
	case "slug":
		typed = p.Slug
	case "status":
		typed = p.Status
	case "category":
		typed = p.Category
	}
	if typed != "" {
		return typed, true
	}
	v, ok := p.Attributes[key]
	return v, ok
}

// AmountCents returns the price in minor units. It reads amountCents or
// amount_cents, then amount or price in major units (number or string).
func (p *PriceEntry) AmountCents() (int64, bool) {
	if p == nil {
		return 0, false
	}
	for _, key := range []string{"amountCents", "amount_cents"} {
		if f, ok := p.Fields[key].(float64); ok {
			return int64(f), true
		}
	}
	for _, key := range []string{"amount", "price"} {
		switch v := p.Fields[key].(type) {
		case float64:
			return model.ToCents(v), true
		case string:
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				return model.ParseCents(v), true
			}
		}
	}
	return 0, false
}

// Quantity returns the stock level when the entry carries one.
func (e *InventoryEntry) Quantity() (int, bool) {
	if e == nil {
		return 0, false
	}
	for _, key := range []string{"quantity", "stock", "available"} {
		if f, ok := e.Fields[key].(float64); ok {
			return int(f), true
		}
	}
	return 0, false
}

// === JSON ===

// splitObject decodes an object, moves the named scalar fields into dst and
// returns the remaining fields. A named field holding an object, array or
// boolean stays among the remaining fields, except sku which must be scalar.
func splitObject(data []byte, dst map[string]*string, keep ...string) (map[string]any, map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	kept := make(map[string]json.RawMessage, len(keep))
	for _, k := range keep {
		if v, ok := raw[k]; ok {
			kept[k] = v
			delete(raw, k)
		}
	}

	for k, ptr := range dst {
		v, ok := raw[k]
		if !ok {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			if k == "sku" {
				return nil, nil, fmt.Errorf("field %q: want a string or number, got %s", k, v)
			}
			continue
		}
		*ptr = s
		delete(raw, k)
	}

	rest := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", k, err)
		}
		rest[k] = val
	}
	return rest, kept, nil
}

// scalarString reads a JSON string, number or null as a string.
func scalarString(v json.RawMessage) (string, bool) {
	var s *string
	if err := json.Unmarshal(v, &s); err == nil {
		if s == nil {
			return "", true
		}
		return *s, true
	}
	// Numeric ids are common in feeds.
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// joinObject writes attrs plus the typed fields as one flat object.
func joinObject(attrs map[string]any, typed map[string]any) ([]byte, error) {
	out := make(map[string]any, len(attrs)+len(typed))
	maps.Copy(out, attrs)
	for k, v := range typed {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var out Product
	rest, kept, err := splitObject(data, map[string]*string{
		"id": &out.ID, "name": &out.Name, "slug": &out.Slug, "status": &out.Status, "category": &out.Category,
	}, "variants")
	if err != nil {
		return fmt.Errorf("decoding product: %w", err)
	}
	if v, ok := kept["variants"]; ok {
		if err := json.Unmarshal(v, &out.Variants); err != nil {
			return fmt.Errorf("decoding product %s variants: %w", out.ID, err)
		}
	}
	out.Attributes = rest
	*p = out
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	variants := p.Variants
	if variants == nil {
		variants = []Variant{}
	}
	return joinObject(p.Attributes, map[string]any{
		"id": p.ID, "name": p.Name, "slug": p.Slug, "status": p.Status, "category": p.Category,
		"variants": variants,
	})
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	var out Variant
	rest, _, err := splitObject(data, map[string]*string{"sku": &out.SKU, "name": &out.Name})
	if err != nil {
		return fmt.Errorf("decoding variant: %w", err)
	}
	// price and stock are produced by the merge, never read from the feed.
	delete(rest, "price")
	delete(rest, "stock")
	out.Attributes = rest
	*v = out
	return nil
}

func (v Variant) MarshalJSON() ([]byte, error) {
	typed := map[string]any{"sku": v.SKU, "name": v.Name}
	if v.Price != nil {
		typed["price"] = v.Price
	}
	if v.Stock != nil {
		typed["stock"] = v.Stock
	}
	return joinObject(v.Attributes, typed)
}

func (e *PriceEntry) UnmarshalJSON(data []byte) error {
	var out PriceEntry
	rest, _, err := splitObject(data, map[string]*string{"sku": &out.SKU})
	if err != nil {
		return fmt.Errorf("decoding price entry: %w", err)
	}
	out.Fields = rest
	*e = out
	return nil
}

func (e PriceEntry) MarshalJSON() ([]byte, error) {
	return joinObject(e.Fields, map[string]any{"sku": e.SKU})
}

func (e *InventoryEntry) UnmarshalJSON(data []byte) error {
	var out InventoryEntry
	rest, _, err := splitObject(data, map[string]*string{"sku": &out.SKU})
	if err != nil {
		return fmt.Errorf("decoding inventory entry: %w", err)
	}
	out.Fields = rest
	*e = out
	return nil
}

func (e InventoryEntry) MarshalJSON() ([]byte, error) {
	return joinObject(e.Fields, map[string]any{"sku": e.SKU})
}
