// Package commercelayer implements gateway.Gateway against the Commerce Layer
// JSON:API.
package commercelayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
)

// =============================================================================
// COMMERCE LAYER API CLIENT
// =============================================================================
//
// Every call asks the token source for a credential right before the request
// is built, so an expiring token is refreshed in time.
//
// Order responses always include line items (?include=line_items) so a single
// round trip yields the whole cart.
// =============================================================================

const (
	mediaType = "application/vnd.api+json"
	userAgent = "cartsync/1.0"

	pathOrders          = "/orders"
	pathLineItems       = "/line_items"
	pathLineItemOptions = "/line_item_options"

	orderIncludes = "?include=line_items"

	serviceName = "Commerce Layer"
)

// TokenSource yields a bearer credential that is fresh at the time of the call.
type TokenSource interface {
	Token(ctx context.Context) (*model.Credential, error)
}

// Client is the Commerce Layer API HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string // {endpoint}/api
	tokens     TokenSource
}

// NewClient creates a client for the organization at endpoint
// (e.g. "https://acme.commercelayer.io"). httpClient may be nil.
func NewClient(endpoint string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(endpoint, "/") + "/api",
		tokens:     tokens,
	}
}

// === Orders ===

// CreateOrder implements gateway.Gateway.
func (c *Client) CreateOrder(ctx context.Context, attrs gateway.OrderAttributes, rels gateway.OrderRelationships) (*model.Cart, error) {
	body := &requestDocument{Data: requestResource{
		Type:       typeOrders,
		Attributes: attrs,
		Relationships: map[string]requestRelation{
			"market": {Data: identifier{Type: typeMarkets, ID: rels.Market}},
		},
	}}

	req, err := c.newRequest(ctx, http.MethodPost, pathOrders+orderIncludes, body)
	if err != nil {
		return nil, fmt.Errorf("creating order request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return toCart(&doc, "")
}

// ReadOrder implements gateway.Gateway.
func (c *Client) ReadOrder(ctx context.Context, id string) (*model.Cart, error) {
	if id == "" {
		return nil, model.NewCartUnusableError(id, "empty id")
	}
	req, err := c.newRequest(ctx, http.MethodGet, resourcePath(pathOrders, id)+orderIncludes, nil)
	if err != nil {
		return nil, fmt.Errorf("creating read order request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return toCart(&doc, id)
}

// UpdateOrder implements gateway.Gateway.
func (c *Client) UpdateOrder(ctx context.Context, id string, attrs gateway.OrderAttributes) (*model.Cart, error) {
	body := &requestDocument{Data: requestResource{
		ID:         id,
		Type:       typeOrders,
		Attributes: attrs,
	}}

	req, err := c.newRequest(ctx, http.MethodPatch, resourcePath(pathOrders, id)+orderIncludes, body)
	if err != nil {
		return nil, fmt.Errorf("creating update order request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return toCart(&doc, id)
}

// === Line items ===

// CreateLineItem implements gateway.Gateway.
func (c *Client) CreateLineItem(ctx context.Context, orderID string, attrs gateway.LineItemAttributes) (*model.LineItem, error) {
	body := &requestDocument{Data: requestResource{
		Type:       typeLineItems,
		Attributes: attrs,
		Relationships: map[string]requestRelation{
			"order": {Data: identifier{Type: typeOrders, ID: orderID}},
		},
	}}

	req, err := c.newRequest(ctx, http.MethodPost, pathLineItems, body)
	if err != nil {
		return nil, fmt.Errorf("creating line item request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return lineItemFromDocument(&doc)
}

// UpdateLineItem implements gateway.Gateway.
func (c *Client) UpdateLineItem(ctx context.Context, id string, attrs gateway.LineItemAttributes) (*model.LineItem, error) {
	body := &requestDocument{Data: requestResource{
		ID:         id,
		Type:       typeLineItems,
		Attributes: attrs,
	}}

	req, err := c.newRequest(ctx, http.MethodPatch, resourcePath(pathLineItems, id), body)
	if err != nil {
		return nil, fmt.Errorf("creating update line item request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return lineItemFromDocument(&doc)
}

// DeleteLineItem implements gateway.Gateway.
func (c *Client) DeleteLineItem(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, resourcePath(pathLineItems, id), nil)
	if err != nil {
		return fmt.Errorf("creating delete line item request: %w", err)
	}
	return c.do(req, nil)
}

// === Line item options ===

// CreateLineItemOption implements gateway.Gateway.
func (c *Client) CreateLineItemOption(ctx context.Context, lineItemID, skuOptionID string, attrs gateway.LineItemOptionAttributes) (*model.LineItemOption, error) {
	body := &requestDocument{Data: requestResource{
		Type:       typeLineItemOptions,
		Attributes: attrs,
		Relationships: map[string]requestRelation{
			"line_item":  {Data: identifier{Type: typeLineItems, ID: lineItemID}},
			"sku_option": {Data: identifier{Type: typeSKUOptions, ID: skuOptionID}},
		},
	}}

	req, err := c.newRequest(ctx, http.MethodPost, pathLineItemOptions, body)
	if err != nil {
		return nil, fmt.Errorf("creating line item option request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return optionFromDocument(&doc)
}

// UpdateLineItemOption implements gateway.Gateway.
func (c *Client) UpdateLineItemOption(ctx context.Context, id string, attrs gateway.LineItemOptionAttributes) (*model.LineItemOption, error) {
	body := &requestDocument{Data: requestResource{
		ID:         id,
		Type:       typeLineItemOptions,
		Attributes: attrs,
	}}

	req, err := c.newRequest(ctx, http.MethodPatch, resourcePath(pathLineItemOptions, id), body)
	if err != nil {
		return nil, fmt.Errorf("creating update line item option request: %w", err)
	}

	var doc document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return optionFromDocument(&doc)
}

// === HTTP Helpers ===

// resourcePath addresses one resource. The id is escaped so a malformed id
// cannot change the path or add a query.
func resourcePath(collection, id string) string {
	return collection + "/" + url.PathEscape(id)
}

// newRequest creates a JSON:API request carrying a fresh bearer token.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", mediaType)
	if body != nil {
		req.Header.Set("Content-Type", mediaType)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	return req, nil
}

// do executes the request and decodes the response document.
func (c *Client) do(req *http.Request, result *document) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, resp.Header, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

// parseError converts Commerce Layer error documents to model.APIError.
func parseError(statusCode int, header http.Header, body []byte) error {
	var doc document
	json.Unmarshal(body, &doc) // Best effort parse

	msg := ""
	field := "request"
	if len(doc.Errors) > 0 {
		e := doc.Errors[0]
		msg = e.Detail
		if msg == "" {
			msg = e.Title
		}
		if e.Source != nil && e.Source.Pointer != "" {
			field = strings.TrimPrefix(e.Source.Pointer, "/data/attributes/")
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg == "" {
			msg = "access denied"
		}
		return model.NewAuthError(msg, fmt.Errorf("status %d", statusCode))
	case http.StatusNotFound:
		return model.NewNotFoundError("resource")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName, retryAfter(header))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError(field, msg)
	default:
		return model.NewUpstreamError(serviceName, fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// retryAfter reads the reset hint from a structured RateLimit header
// (limit=100, remaining=0, reset=30) or falls back to Retry-After seconds.
// Returns zero when neither is usable.
func retryAfter(header http.Header) time.Duration {
	if values := header.Values("RateLimit"); len(values) > 0 {
		if dict, err := httpsfv.UnmarshalDictionary(values); err == nil {
			if member, ok := dict.Get("reset"); ok {
				if item, ok := member.(httpsfv.Item); ok {
					if secs, ok := item.Value.(int64); ok && secs >= 0 {
						return time.Duration(secs) * time.Second
					}
				}
			}
		}
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Verify Client implements gateway.Gateway interface at compile time.
var _ gateway.Gateway = (*Client)(nil)
