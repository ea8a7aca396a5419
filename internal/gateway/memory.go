package gateway

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"cartsync/internal/model"
)

// Memory is an in-process Gateway. It backs the "memory" platform for local
// development and stands in for the remote API in tests.
type Memory struct {
	currency string
	prices   map[string]int64 // sku -> unit amount in cents

	mu      sync.Mutex
	orders  map[string]*memOrder
	items   map[string]*memItem
	options map[string]*memOption

	// Counters for observing traffic in tests.
	OrdersCreated atomic.Int32
	OrderReads    atomic.Int32
}

type memOrder struct {
	cart    model.Cart // LineItems unused; assembled on read
	market  string
	itemIDs []string
}

type memItem struct {
	orderID string
	item    model.LineItem
}

type memOption struct {
	lineItemID  string
	skuOptionID string
	option      model.LineItemOption
}

// NewMemory creates an empty in-process gateway. prices may be nil; unknown
// SKUs are priced at zero.
func NewMemory(currency string, prices map[string]int64) *Memory {
	if prices == nil {
		prices = map[string]int64{}
	}
	return &Memory{
		currency: currency,
		prices:   prices,
		orders:   make(map[string]*memOrder),
		items:    make(map[string]*memItem),
		options:  make(map[string]*memOption),
	}
}

// SetCurrency sets the currency reported on orders created afterwards.
func (m *Memory) SetCurrency(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currency = code
}

// SetPrice sets the unit price used for new and updated line items.
func (m *Memory) SetPrice(sku string, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[sku] = cents
}

// SetStatus forces an order into the given status, e.g. to simulate a placed order.
func (m *Memory) SetStatus(orderID string, status model.CartStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return model.NewNotFoundError("order")
	}
	o.cart.Status = status
	return nil
}

// AppendLineItem stores li as-is on the order. Used to seed non-sku items
// such as shipments or fees.
func (m *Memory) AppendLineItem(orderID string, li model.LineItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return "", model.NewNotFoundError("order")
	}
	if li.ID == "" {
		li.ID = newID("li")
	}
	m.items[li.ID] = &memItem{orderID: orderID, item: li}
	o.itemIDs = append(o.itemIDs, li.ID)
	return li.ID, nil
}

// CreateOrder implements Gateway.
func (m *Memory) CreateOrder(ctx context.Context, attrs OrderAttributes, rels OrderRelationships) (*model.Cart, error) {
	if rels.Market == "" {
		return nil, model.NewValidationError("market", "relationship is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := newID("ord")
	o := &memOrder{
		market: rels.Market,
		cart: model.Cart{
			ID:                      id,
			Token:                   uuid.NewString(),
			Status:                  model.StatusDraft,
			CurrencyCode:            m.currency,
			CheckoutURL:             "/checkout/" + id,
			ShippingCountryCodeLock: attrs.ShippingCountryCodeLock,
			Metadata:                maps.Clone(attrs.Metadata),
		},
	}
	m.orders[id] = o
	m.OrdersCreated.Add(1)
	return m.assembleLocked(o), nil
}

// ReadOrder implements Gateway.
func (m *Memory) ReadOrder(ctx context.Context, id string) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrderReads.Add(1)

	o, ok := m.orders[id]
	if !ok {
		return nil, model.NewNotFoundError("order")
	}
	return m.assembleLocked(o), nil
}

// UpdateOrder implements Gateway. Metadata keys are merged into the existing map.
func (m *Memory) UpdateOrder(ctx context.Context, id string, attrs OrderAttributes) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, model.NewNotFoundError("order")
	}
	if err := checkMutable(o); err != nil {
		return nil, err
	}
	if attrs.Metadata != nil {
		if o.cart.Metadata == nil {
			o.cart.Metadata = make(map[string]any, len(attrs.Metadata))
		}
		maps.Copy(o.cart.Metadata, attrs.Metadata)
	}
	if attrs.ShippingCountryCodeLock != "" {
		o.cart.ShippingCountryCodeLock = attrs.ShippingCountryCodeLock
	}
	return m.assembleLocked(o), nil
}

// CreateLineItem implements Gateway.
func (m *Memory) CreateLineItem(ctx context.Context, orderID string, attrs LineItemAttributes) (*model.LineItem, error) {
	if attrs.SKUCode == "" {
		return nil, model.NewValidationError("sku_code", "is required")
	}
	if attrs.Quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be greater than 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, model.NewNotFoundError("order")
	}
	if err := checkMutable(o); err != nil {
		return nil, err
	}

	unit := m.prices[attrs.SKUCode]
	li := model.LineItem{
		ID:               newID("li"),
		SKU:              attrs.SKUCode,
		ItemType:         model.ItemTypeSKU,
		Name:             attrs.SKUCode,
		Quantity:         attrs.Quantity,
		UnitAmountCents:  unit,
		TotalAmountCents: unit * int64(attrs.Quantity),
		Metadata:         maps.Clone(attrs.Metadata),
	}
	m.items[li.ID] = &memItem{orderID: orderID, item: li}
	o.itemIDs = append(o.itemIDs, li.ID)

	out := li
	return &out, nil
}

// UpdateLineItem implements Gateway.
func (m *Memory) UpdateLineItem(ctx context.Context, id string, attrs LineItemAttributes) (*model.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, model.NewNotFoundError("line item")
	}
	if err := checkMutable(m.orders[it.orderID]); err != nil {
		return nil, err
	}
	if attrs.Quantity != 0 {
		if attrs.Quantity < 0 {
			return nil, model.NewValidationError("quantity", "must be greater than 0")
		}
		it.item.Quantity = attrs.Quantity
		it.item.TotalAmountCents = it.item.UnitAmountCents * int64(attrs.Quantity)
	}
	if attrs.Metadata != nil {
		it.item.Metadata = maps.Clone(attrs.Metadata)
	}

	out := it.item
	return &out, nil
}

// DeleteLineItem implements Gateway.
func (m *Memory) DeleteLineItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return model.NewNotFoundError("line item")
	}
	o := m.orders[it.orderID]
	if err := checkMutable(o); err != nil {
		return err
	}
	delete(m.items, id)
	for i, itemID := range o.itemIDs {
		if itemID == id {
			o.itemIDs = append(o.itemIDs[:i], o.itemIDs[i+1:]...)
			break
		}
	}
	for optID, opt := range m.options {
		if opt.lineItemID == id {
			delete(m.options, optID)
		}
	}
	return nil
}

// CreateLineItemOption implements Gateway.
func (m *Memory) CreateLineItemOption(ctx context.Context, lineItemID, skuOptionID string, attrs LineItemOptionAttributes) (*model.LineItemOption, error) {
	if skuOptionID == "" {
		return nil, model.NewValidationError("sku_option", "relationship is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[lineItemID]
	if !ok {
		return nil, model.NewNotFoundError("line item")
	}
	if err := checkMutable(m.orders[it.orderID]); err != nil {
		return nil, err
	}

	qty := attrs.Quantity
	if qty == 0 {
		qty = 1
	}
	opt := model.LineItemOption{
		ID:       newID("lio"),
		Name:     attrs.Name,
		Quantity: qty,
		Options:  maps.Clone(attrs.Options),
	}
	m.options[opt.ID] = &memOption{lineItemID: lineItemID, skuOptionID: skuOptionID, option: opt}

	out := opt
	return &out, nil
}

// UpdateLineItemOption implements Gateway.
func (m *Memory) UpdateLineItemOption(ctx context.Context, id string, attrs LineItemOptionAttributes) (*model.LineItemOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opt, ok := m.options[id]
	if !ok {
		return nil, model.NewNotFoundError("line item option")
	}
	if attrs.Name != "" {
		opt.option.Name = attrs.Name
	}
	if attrs.Quantity != 0 {
		opt.option.Quantity = attrs.Quantity
	}
	if attrs.Options != nil {
		opt.option.Options = maps.Clone(attrs.Options)
	}

	out := opt.option
	return &out, nil
}

// assembleLocked builds the normalized cart for o. Totals are recomputed from
// the line items; tax and shipping are always zero.
func (m *Memory) assembleLocked(o *memOrder) *model.Cart {
	cart := o.cart
	cart.Metadata = maps.Clone(o.cart.Metadata)
	cart.LineItems = make([]model.LineItem, 0, len(o.itemIDs))

	var subtotal int64
	for _, id := range o.itemIDs {
		li := m.items[id].item
		li.Metadata = maps.Clone(li.Metadata)
		cart.LineItems = append(cart.LineItems, li)
		subtotal += li.TotalAmountCents
	}

	cart.Totals = model.Totals{
		SubtotalAmountCents:       subtotal,
		SubtotalAmountFloat:       model.FromCents(subtotal),
		TotalAmountCents:          subtotal,
		TotalAmountFloat:          model.FromCents(subtotal),
		TotalAmountWithTaxesFloat: model.FromCents(subtotal),
	}
	return &cart
}

func checkMutable(o *memOrder) error {
	if !o.cart.Status.IsActive() {
		return model.NewValidationError("order", fmt.Sprintf("status %s does not allow changes", o.cart.Status))
	}
	return nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

// Verify Memory implements Gateway interface at compile time.
var _ Gateway = (*Memory)(nil)
