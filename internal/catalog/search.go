package catalog

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Predicate decides whether a product matches.
type Predicate func(p *Product) bool

// Eq matches products whose field key equals want. A string want also
// matches numeric and boolean fields by their canonical text, so query
// string values can be used directly.
func Eq(key string, want any) Predicate {
	return func(p *Product) bool {
		got, ok := p.Field(key)
		if !ok {
			return false
		}
		return equal(got, want)
	}
}

// All matches when every predicate matches. Evaluation stops at the first
// rejection.
func All(preds ...Predicate) Predicate {
	return func(p *Product) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

func equal(got, want any) bool {
	switch w := want.(type) {
	case string:
		switch g := got.(type) {
		case string:
			return g == w
		case float64:
			return strconv.FormatFloat(g, 'f', -1, 64) == w
		case bool:
			return strconv.FormatBool(g) == w
		}
	case int:
		g, ok := got.(float64)
		return ok && g == float64(w)
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}
	return false
}

// Result is a search outcome: exactly one product, or a list of any other
// length (including zero).
type Result struct {
	one  *Product
	many []Product
}

// One wraps a single match.
func One(p Product) Result { return Result{one: &p} }

// Many wraps zero or several matches.
func Many(ps []Product) Result {
	if ps == nil {
		ps = []Product{}
	}
	return Result{many: ps}
}

// Product returns the match when the result is One.
func (r Result) Product() (Product, bool) {
	if r.one == nil {
		return Product{}, false
	}
	return *r.one, true
}

// Products returns every match regardless of the variant.
func (r Result) Products() []Product {
	if r.one != nil {
		return []Product{*r.one}
	}
	return r.many
}

// IsOne reports whether exactly one product matched.
func (r Result) IsOne() bool { return r.one != nil }

// MarshalJSON writes {"match":"one","product":…} or {"match":"many","products":[…]}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.one != nil {
		return json.Marshal(struct {
			Match   string   `json:"match"`
			Product *Product `json:"product"`
		}{"one", r.one})
	}
	products := r.many
	if products == nil {
		products = []Product{}
	}
	return json.Marshal(struct {
		Match    string    `json:"match"`
		Products []Product `json:"products"`
	}{"many", products})
}

// Search returns the products matching every predicate.
func (c *Catalog) Search(preds ...Predicate) Result {
	match := All(preds...)
	var found []Product
	for i := range c.products {
		if match(&c.products[i]) {
			found = append(found, c.products[i])
		}
	}
	if len(found) == 1 {
		return One(found[0])
	}
	return Many(found)
}

// SearchFields is Search with one Eq per entry, applied in key order.
func (c *Catalog) SearchFields(params map[string]string) Result {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, Eq(k, params[k]))
	}
	return c.Search(preds...)
}
