package gateway

import (
	"context"

	"cartsync/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	CreateOrderFunc          func(ctx context.Context, attrs OrderAttributes, rels OrderRelationships) (*model.Cart, error)
	ReadOrderFunc            func(ctx context.Context, id string) (*model.Cart, error)
	UpdateOrderFunc          func(ctx context.Context, id string, attrs OrderAttributes) (*model.Cart, error)
	CreateLineItemFunc       func(ctx context.Context, orderID string, attrs LineItemAttributes) (*model.LineItem, error)
	UpdateLineItemFunc       func(ctx context.Context, id string, attrs LineItemAttributes) (*model.LineItem, error)
	DeleteLineItemFunc       func(ctx context.Context, id string) error
	CreateLineItemOptionFunc func(ctx context.Context, lineItemID, skuOptionID string, attrs LineItemOptionAttributes) (*model.LineItemOption, error)
	UpdateLineItemOptionFunc func(ctx context.Context, id string, attrs LineItemOptionAttributes) (*model.LineItemOption, error)
}

// CreateOrder calls the configured CreateOrderFunc or returns an error.
func (m *Mock) CreateOrder(ctx context.Context, attrs OrderAttributes, rels OrderRelationships) (*model.Cart, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, attrs, rels)
	}
	return nil, model.NewInternalError(nil)
}

// ReadOrder calls the configured ReadOrderFunc or returns an error.
func (m *Mock) ReadOrder(ctx context.Context, id string) (*model.Cart, error) {
	if m.ReadOrderFunc != nil {
		return m.ReadOrderFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("order")
}

// UpdateOrder calls the configured UpdateOrderFunc or returns an error.
func (m *Mock) UpdateOrder(ctx context.Context, id string, attrs OrderAttributes) (*model.Cart, error) {
	if m.UpdateOrderFunc != nil {
		return m.UpdateOrderFunc(ctx, id, attrs)
	}
	return nil, model.NewNotFoundError("order")
}

// CreateLineItem calls the configured CreateLineItemFunc or returns an error.
func (m *Mock) CreateLineItem(ctx context.Context, orderID string, attrs LineItemAttributes) (*model.LineItem, error) {
	if m.CreateLineItemFunc != nil {
		return m.CreateLineItemFunc(ctx, orderID, attrs)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateLineItem calls the configured UpdateLineItemFunc or returns an error.
func (m *Mock) UpdateLineItem(ctx context.Context, id string, attrs LineItemAttributes) (*model.LineItem, error) {
	if m.UpdateLineItemFunc != nil {
		return m.UpdateLineItemFunc(ctx, id, attrs)
	}
	return nil, model.NewNotFoundError("line item")
}

// DeleteLineItem calls the configured DeleteLineItemFunc or returns an error.
func (m *Mock) DeleteLineItem(ctx context.Context, id string) error {
	if m.DeleteLineItemFunc != nil {
		return m.DeleteLineItemFunc(ctx, id)
	}
	return model.NewNotFoundError("line item")
}

// CreateLineItemOption calls the configured CreateLineItemOptionFunc or returns an error.
func (m *Mock) CreateLineItemOption(ctx context.Context, lineItemID, skuOptionID string, attrs LineItemOptionAttributes) (*model.LineItemOption, error) {
	if m.CreateLineItemOptionFunc != nil {
		return m.CreateLineItemOptionFunc(ctx, lineItemID, skuOptionID, attrs)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateLineItemOption calls the configured UpdateLineItemOptionFunc or returns an error.
func (m *Mock) UpdateLineItemOption(ctx context.Context, id string, attrs LineItemOptionAttributes) (*model.LineItemOption, error) {
	if m.UpdateLineItemOptionFunc != nil {
		return m.UpdateLineItemOptionFunc(ctx, id, attrs)
	}
	return nil, model.NewNotFoundError("line item option")
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
