// Package cart owns the authoritative client-side cart and keeps it in sync
// with the remote order.
//
// The remote order is the system of record. Every mutation is followed by a
// full re-read and the local cart is replaced wholesale; nothing is patched in
// memory.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cartsync/internal/events"
	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/reconcile"
	"cartsync/internal/store"
)

// IdentifierTTL is how long the active cart id is remembered.
const IdentifierTTL = 14 * 24 * time.Hour

// State is the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateReady
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TokenSource yields a credential that is fresh at the time of the call.
type TokenSource interface {
	Token(ctx context.Context) (*model.Credential, error)
}

// Scope identifies the storefront a cart belongs to.
type Scope struct {
	ProjectName  string
	Market       string
	ShippingCode string
}

// Key is the store name of the cart id for this scope.
func (s Scope) Key() string {
	return fmt.Sprintf("%s_cart_%s_%s", s.ProjectName, s.Market, s.ShippingCode)
}

// Deps are the collaborators of a Session.
type Deps struct {
	Gateway gateway.Gateway
	Tokens  TokenSource
	Store   store.Store
	Events  *events.Bus
	Logger  *slog.Logger
}

// Session is the single cart of one host instance.
type Session struct {
	id     string
	scope  Scope
	gw     gateway.Gateway
	tokens TokenSource
	store  store.Store
	bus    *events.Bus
	logger *slog.Logger

	// opMu serializes operations; stateMu guards cart and state for readers.
	opMu    sync.Mutex
	stateMu sync.RWMutex
	cart    *model.Cart
	state   State
}

// NewSession creates an unresolved session. Call Resolve before use.
func NewSession(scope Scope, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := deps.Events
	if bus == nil {
		bus = events.New()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		scope:  scope,
		gw:     deps.Gateway,
		tokens: deps.Tokens,
		store:  deps.Store,
		bus:    bus,
		logger: logger.With(slog.String("session_id", id)),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Events returns the bus cart changes are emitted on.
func (s *Session) Events() *events.Bus { return s.bus }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Cart returns a snapshot of the authoritative cart, or nil before Resolve.
func (s *Session) Cart() *model.Cart {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.cart.Clone()
}

// SetCart replaces the authoritative cart and emits cart/updated.
// Subscribers receive their own copy.
func (s *Session) SetCart(c *model.Cart) {
	s.stateMu.Lock()
	s.cart = c
	if c != nil && !c.Status.IsActive() {
		s.state = StateTerminal
	} else if s.state != StateResolving {
		s.state = StateReady
	}
	s.stateMu.Unlock()

	s.bus.Emit(events.CartUpdated, c.Clone())
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Session) current() *model.Cart {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.cart
}

// Fetch reads the cart by id and makes it authoritative.
func (s *Session) Fetch(ctx context.Context, id string) (*model.Cart, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	return s.fetchLocked(ctx, id)
}

// Refresh re-reads the current cart.
func (s *Session) Refresh(ctx context.Context) (*model.Cart, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cur, err := s.requireCart()
	if err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	return s.fetchLocked(ctx, cur.ID)
}

func (s *Session) fetchLocked(ctx context.Context, id string) (*model.Cart, error) {
	c, err := s.gw.ReadOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching cart %s: %w", id, err)
	}
	s.SetCart(c)
	return c.Clone(), nil
}

// CreateCart creates a new remote cart, remembers its id and makes it
// authoritative.
func (s *Session) CreateCart(ctx context.Context) (*model.Cart, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	c, err := s.createLocked(ctx)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *Session) createLocked(ctx context.Context) (*model.Cart, error) {
	c, err := s.gw.CreateOrder(ctx,
		gateway.OrderAttributes{Metadata: gateway.DefaultCartMetadata()},
		gateway.OrderRelationships{Market: s.scope.Market},
	)
	if err != nil {
		return nil, fmt.Errorf("creating cart: %w", err)
	}

	if err := s.store.Set(ctx, s.scope.Key(), c.ID, IdentifierTTL); err != nil {
		// The cart is usable for this session; it will not survive a restart.
		s.logger.WarnContext(ctx, "failed to persist cart id",
			slog.String("cart_id", c.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart created", slog.String("cart_id", c.ID))
	s.SetCart(c)
	return c, nil
}

// Resolve finds the cart to use at startup: the remembered one when it is
// still active, otherwise a new one. It emits cart/init once on success.
//
// An unreadable or terminal remembered cart is replaced silently. Auth and
// creation failures are returned.
func (s *Session) Resolve(ctx context.Context) (*model.Cart, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setState(StateResolving)
	c, err := s.resolveLocked(ctx)
	if err != nil {
		s.setState(StateUninitialized)
		return nil, err
	}
	s.setState(StateReady)
	s.bus.Emit(events.CartInit, nil)
	return c.Clone(), nil
}

func (s *Session) resolveLocked(ctx context.Context) (*model.Cart, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	key := s.scope.Key()
	cartID, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "cart id lookup failed, starting a new cart",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		ok = false
	}

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	if !ok || cartID == "" {
		created, err := s.createLocked(ctx)
		if err != nil {
			return nil, err
		}
		cartID = created.ID
	}

	c, err := s.gw.ReadOrder(ctx, cartID)
	switch {
	case errors.Is(err, model.ErrAuthFailure):
		return nil, fmt.Errorf("fetching cart %s: %w", cartID, err)
	case err != nil:
		s.logger.InfoContext(ctx, "stored cart unusable, replacing",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
		return s.replaceLocked(ctx)
	}

	if !c.Status.IsActive() {
		s.logger.InfoContext(ctx, "stored cart is terminal, replacing",
			slog.String("cart_id", c.ID),
			slog.String("status", string(c.Status)),
		)
		return s.replaceLocked(ctx)
	}
	s.SetCart(c)
	return c, nil
}

// replaceLocked forgets the remembered id and starts a new cart.
func (s *Session) replaceLocked(ctx context.Context) (*model.Cart, error) {
	if err := s.store.Remove(ctx, s.scope.Key()); err != nil {
		s.logger.WarnContext(ctx, "failed to forget cart id", slog.String("error", err.Error()))
	}
	return s.createLocked(ctx)
}

// usableLocked returns the current cart, replacing it first when it is
// terminal. replaced reports whether a new cart was started.
func (s *Session) usableLocked(ctx context.Context) (c *model.Cart, replaced bool, err error) {
	cur, err := s.requireCart()
	if err != nil {
		return nil, false, err
	}
	if cur.Status.IsActive() {
		return cur, false, nil
	}
	s.logger.InfoContext(ctx, "cart is terminal, replacing",
		slog.String("cart_id", cur.ID),
		slog.String("status", string(cur.Status)),
	)
	c, err = s.replaceLocked(ctx)
	return c, true, err
}

func (s *Session) requireCart() (*model.Cart, error) {
	cur := s.current()
	if cur == nil {
		return nil, model.NewCartUnusableError("", "session has no cart, resolve it first")
	}
	return cur, nil
}

func (s *Session) authenticate(ctx context.Context) error {
	if _, err := s.tokens.Token(ctx); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// Add adds quantities of SKUs. Quantities accumulate: adding a SKU already
// in the cart raises its quantity by the requested amount.
func (s *Session) Add(ctx context.Context, items []reconcile.AddItem) (*model.Cart, error) {
	if err := reconcile.ValidateAdd(items); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, _, err := s.usableLocked(ctx)
	if err != nil {
		return nil, err
	}

	plan := reconcile.PlanAdd(cur.SKUItems(), items)
	calls := make([]reconcile.Call, 0, len(plan.Updates)+len(plan.Creates))
	for _, u := range plan.Updates {
		calls = append(calls, reconcile.Call{
			Key: "update " + u.LineItemID,
			Do: func(ctx context.Context) error {
				_, err := s.gw.UpdateLineItem(ctx, u.LineItemID, gateway.LineItemAttributes{Quantity: u.NewQuantity})
				return err
			},
		})
	}
	for _, c := range plan.Creates {
		calls = append(calls, reconcile.Call{
			Key: "create " + c.SKU,
			Do: func(ctx context.Context) error {
				_, err := s.gw.CreateLineItem(ctx, cur.ID, gateway.LineItemAttributes{SKUCode: c.SKU, Quantity: c.Quantity})
				return err
			},
		})
	}

	s.logger.DebugContext(ctx, "adding items",
		slog.String("cart_id", cur.ID),
		slog.Int("updates", len(plan.Updates)),
		slog.Int("creates", len(plan.Creates)),
	)
	return s.mutateLocked(ctx, cur.ID, "add", calls)
}

// Adjust sets line items to absolute quantities.
func (s *Session) Adjust(ctx context.Context, items []reconcile.AdjustItem) (*model.Cart, error) {
	if err := reconcile.ValidateAdjust(items); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, err := s.activeLocked(ctx)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		if err := requireSKULine(cur, fmt.Sprintf("items[%d].id", i), item.ID); err != nil {
			return nil, err
		}
	}

	calls := make([]reconcile.Call, 0, len(items))
	for _, item := range items {
		calls = append(calls, reconcile.Call{
			Key: "update " + item.ID,
			Do: func(ctx context.Context) error {
				_, err := s.gw.UpdateLineItem(ctx, item.ID, gateway.LineItemAttributes{Quantity: item.Quantity})
				return err
			},
		})
	}
	return s.mutateLocked(ctx, cur.ID, "adjust", calls)
}

// Remove deletes line items by id.
func (s *Session) Remove(ctx context.Context, ids []string) (*model.Cart, error) {
	if err := reconcile.ValidateRemove(ids); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, err := s.activeLocked(ctx)
	if err != nil {
		return nil, err
	}

	for i, id := range ids {
		if err := requireSKULine(cur, fmt.Sprintf("ids[%d]", i), id); err != nil {
			return nil, err
		}
	}

	calls := make([]reconcile.Call, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, reconcile.Call{
			Key: "delete " + id,
			Do: func(ctx context.Context) error {
				return s.gw.DeleteLineItem(ctx, id)
			},
		})
	}
	return s.mutateLocked(ctx, cur.ID, "remove", calls)
}

// requireSKULine rejects ids that are not sku line items of c. Shipments,
// fees and discounts are listed on the cart but cannot be changed.
func requireSKULine(c *model.Cart, field, id string) error {
	for _, li := range c.SKUItems() {
		if li.ID == id {
			return nil
		}
	}
	return model.NewValidationError(field, "is not a sku line item")
}

// activeLocked is usableLocked for operations addressing existing line ids:
// after a replacement those ids are gone, so the caller gets an error along
// with the fresh cart already in place.
func (s *Session) activeLocked(ctx context.Context) (*model.Cart, error) {
	cur, replaced, err := s.usableLocked(ctx)
	if err != nil {
		return nil, err
	}
	if replaced {
		return nil, model.NewCartUnusableError(s.current().ID, "previous cart was closed, line items no longer exist")
	}
	return cur, nil
}

// mutateLocked runs a batch and re-reads the cart. A failed batch skips the
// re-read, leaving the local cart as it was.
func (s *Session) mutateLocked(ctx context.Context, cartID, op string, calls []reconcile.Call) (*model.Cart, error) {
	res := reconcile.Run(ctx, calls)
	if err := res.Err(); err != nil {
		s.logger.WarnContext(ctx, "cart batch failed",
			slog.String("op", op),
			slog.String("cart_id", cartID),
			slog.Int("failed", len(res.Failed())),
			slog.Int("calls", len(calls)),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.fetchLocked(ctx, cartID)
}

// SetMetadata merges order-level metadata (gift box, comment...) and re-reads.
func (s *Session) SetMetadata(ctx context.Context, metadata map[string]any) (*model.Cart, error) {
	if len(metadata) == 0 {
		return nil, model.NewValidationError("metadata", "at least one key is required")
	}
	return s.updateOrder(ctx, gateway.OrderAttributes{Metadata: metadata})
}

// LockShippingCountry restricts shipping to one country code and re-reads.
func (s *Session) LockShippingCountry(ctx context.Context, countryCode string) (*model.Cart, error) {
	if countryCode == "" {
		return nil, model.NewValidationError("shipping_country_code_lock", "is required")
	}
	return s.updateOrder(ctx, gateway.OrderAttributes{ShippingCountryCodeLock: countryCode})
}

func (s *Session) updateOrder(ctx context.Context, attrs gateway.OrderAttributes) (*model.Cart, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, _, err := s.usableLocked(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.gw.UpdateOrder(ctx, cur.ID, attrs); err != nil {
		return nil, fmt.Errorf("updating cart %s: %w", cur.ID, err)
	}
	return s.fetchLocked(ctx, cur.ID)
}

// AddOption attaches a priced option to a line item and re-reads.
func (s *Session) AddOption(ctx context.Context, lineItemID, skuOptionID string, attrs gateway.LineItemOptionAttributes) (*model.Cart, error) {
	if lineItemID == "" || skuOptionID == "" {
		return nil, model.NewValidationError("option", "line item id and sku option id are required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, err := s.activeLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireSKULine(cur, "line item id", lineItemID); err != nil {
		return nil, err
	}
	if _, err := s.gw.CreateLineItemOption(ctx, lineItemID, skuOptionID, attrs); err != nil {
		return nil, fmt.Errorf("adding option to %s: %w", lineItemID, err)
	}
	return s.fetchLocked(ctx, cur.ID)
}

// UpdateOption changes a line item option and re-reads.
func (s *Session) UpdateOption(ctx context.Context, optionID string, attrs gateway.LineItemOptionAttributes) (*model.Cart, error) {
	if optionID == "" {
		return nil, model.NewValidationError("option id", "is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	cur, err := s.activeLocked(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.gw.UpdateLineItemOption(ctx, optionID, attrs); err != nil {
		return nil, fmt.Errorf("updating option %s: %w", optionID, err)
	}
	return s.fetchLocked(ctx, cur.ID)
}
