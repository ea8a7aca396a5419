// Package reconcile turns cart intents into the line item mutations needed to
// reach them, and runs those mutations as a concurrent batch.
//
// Planning is pure: the caller passes the current sku line items and the
// requested changes, and gets back a Plan. Execution lives in batch.go.
package reconcile

import (
	"errors"
	"fmt"

	"cartsync/internal/model"
)

// AddItem requests quantity more units of a SKU.
type AddItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// AdjustItem sets a line item to an absolute quantity.
type AdjustItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Plan describes the mutations for an add intent.
type Plan struct {
	Updates []Update // SKUs already in the cart
	Creates []Create // SKUs not yet in the cart
}

// Update raises the quantity of an existing line item.
type Update struct {
	LineItemID  string
	SKU         string
	OldQuantity int
	NewQuantity int
}

// Create adds a new line item.
type Create struct {
	SKU      string
	Quantity int
}

// IsEmpty returns true if the plan issues no mutations.
func (p *Plan) IsEmpty() bool {
	return len(p.Updates) == 0 && len(p.Creates) == 0
}

// Coalesce merges repeated SKUs by summing their quantities. The result keeps
// first-seen order.
func Coalesce(items []AddItem) []AddItem {
	index := make(map[string]int, len(items))
	out := make([]AddItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.SKU]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.SKU] = len(out)
		out = append(out, item)
	}
	return out
}

// PlanAdd partitions desired against the current sku line items.
//
// Add is additive: a SKU already in the cart is updated to existing +
// requested, a new SKU is created with the requested quantity. SKU is the
// identity here, not the line item id. When the cart holds the same SKU
// twice the first line wins. Non-sku items in current are ignored.
func PlanAdd(current []model.LineItem, desired []AddItem) *Plan {
	plan := &Plan{}

	bySKU := make(map[string]model.LineItem, len(current))
	for _, li := range current {
		if !li.IsSKU() || li.SKU == "" {
			continue
		}
		if _, seen := bySKU[li.SKU]; !seen {
			bySKU[li.SKU] = li
		}
	}

	for _, item := range Coalesce(desired) {
		if existing, ok := bySKU[item.SKU]; ok {
			plan.Updates = append(plan.Updates, Update{
				LineItemID:  existing.ID,
				SKU:         item.SKU,
				OldQuantity: existing.Quantity,
				NewQuantity: existing.Quantity + item.Quantity,
			})
			continue
		}
		plan.Creates = append(plan.Creates, Create{
			SKU:      item.SKU,
			Quantity: item.Quantity,
		})
	}

	return plan
}

// ValidateAdd rejects empty SKUs and non-positive quantities.
func ValidateAdd(items []AddItem) error {
	if len(items) == 0 {
		return model.NewValidationError("items", "at least one item is required")
	}
	var errs []error
	for i, item := range items {
		if item.SKU == "" {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("items[%d].sku", i), "is required"))
		}
		if item.Quantity < 1 {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be at least 1"))
		}
	}
	return firstOrJoin(errs)
}

// ValidateAdjust rejects empty ids and non-positive quantities.
// Removing an item goes through remove, not a zero quantity.
func ValidateAdjust(items []AdjustItem) error {
	if len(items) == 0 {
		return model.NewValidationError("items", "at least one item is required")
	}
	var errs []error
	for i, item := range items {
		if item.ID == "" {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("items[%d].id", i), "is required"))
		}
		if item.Quantity < 1 {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be at least 1"))
		}
	}
	return firstOrJoin(errs)
}

// ValidateRemove rejects an empty list and empty ids.
func ValidateRemove(ids []string) error {
	if len(ids) == 0 {
		return model.NewValidationError("ids", "at least one id is required")
	}
	var errs []error
	for i, id := range ids {
		if id == "" {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("ids[%d]", i), "is required"))
		}
	}
	return firstOrJoin(errs)
}

// firstOrJoin keeps a single validation error as *model.APIError so the
// handler can map it directly.
func firstOrJoin(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
