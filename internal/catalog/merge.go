package catalog

// Merge attaches the first matching price and inventory entry to every
// variant. A SKU missing from a feed leaves that field nil.
//
// Matching is a linear scan in feed order, so a SKU listed twice resolves to
// its first entry. Inputs are not modified.
func Merge(products []Product, prices []PriceEntry, inventory []InventoryEntry) []Product {
	merged := make([]Product, len(products))
	for i, p := range products {
		variants := make([]Variant, len(p.Variants))
		for j, v := range p.Variants {
			v.Price = findPrice(prices, v.SKU)
			v.Stock = findStock(inventory, v.SKU)
			variants[j] = v
		}
		p.Variants = variants
		merged[i] = p
	}
	return merged
}

func findPrice(prices []PriceEntry, sku string) *PriceEntry {
	for i := range prices {
		if prices[i].SKU == sku {
			entry := prices[i]
			return &entry
		}
	}
	return nil
}

func findStock(inventory []InventoryEntry, sku string) *InventoryEntry {
	for i := range inventory {
		if inventory[i].SKU == sku {
			entry := inventory[i]
			return &entry
		}
	}
	return nil
}
