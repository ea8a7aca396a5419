package commercelayer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (*model.Credential, error) {
	return &model.Credential{AccessToken: string(s), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type failingTokens struct{}

func (failingTokens) Token(ctx context.Context) (*model.Credential, error) {
	return nil, model.NewAuthError("token exchange rejected", nil)
}

// orderDocument is a trimmed response of GET /api/orders/{id}?include=line_items.
const orderDocument = `{
  "data": {
    "id": "ord_1",
    "type": "orders",
    "attributes": {
      "status": "draft",
      "token": "tok",
      "currency_code": "EUR",
      "checkout_url": "https://checkout.example/ord_1",
      "shipping_country_code_lock": "IT",
      "metadata": {"gift_box": false, "comment": ""},
      "subtotal_amount_float": 30.5,
      "subtotal_amount_cents": 3050,
      "shipping_amount_float": 5.0,
      "shipping_amount_cents": 500,
      "total_tax_amount_float": 6.71,
      "total_tax_amount_cents": 671,
      "total_amount_float": 35.5,
      "total_amount_cents": 3550,
      "total_amount_with_taxes_float": 35.5,
      "customer_email": "dropped@example.com"
    },
    "relationships": {
      "line_items": {"data": [
        {"type": "line_items", "id": "li_2"},
        {"type": "line_items", "id": "li_1"},
        {"type": "line_items", "id": "li_3"}
      ]},
      "market": {"data": null}
    }
  },
  "included": [
    {"id": "li_1", "type": "line_items", "attributes": {
      "sku_code": "SKU-A", "item_type": "skus", "name": "Tee", "quantity": 2,
      "unit_amount_cents": 1000, "total_amount_cents": 2000, "image_url": "https://img/a.png"}},
    {"id": "li_2", "type": "line_items", "attributes": {
      "sku_code": "SKU-B", "item_type": "skus", "name": "Cap", "quantity": 1,
      "unit_amount_cents": 1050, "total_amount_cents": 1050}},
    {"id": "li_3", "type": "line_items", "attributes": {
      "sku_code": null, "item_type": "shipments", "name": "Standard", "quantity": 1,
      "unit_amount_cents": 500, "total_amount_cents": 500}},
    {"id": "mkt_1", "type": "markets", "attributes": {"name": "Italy"}}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticTokens("secret"), srv.Client())
}

func TestClient_ReadOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/orders/ord_1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("include"); got != "line_items" {
			t.Errorf("include = %q, want line_items", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != mediaType {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", mediaType)
		w.Write([]byte(orderDocument))
	})

	cart, err := c.ReadOrder(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("ReadOrder() error = %v", err)
	}

	if cart.ID != "ord_1" || cart.Status != model.StatusDraft || cart.CurrencyCode != "EUR" {
		t.Errorf("cart header = %+v", cart)
	}
	if cart.ShippingCountryCodeLock != "IT" || cart.CheckoutURL == "" || cart.Token != "tok" {
		t.Errorf("allow-listed attributes missing: %+v", cart)
	}
	if cart.TotalTaxAmountCents != 671 || cart.TotalAmountWithTaxesFloat != 35.5 || cart.ShippingAmountCents != 500 {
		t.Errorf("totals = %+v", cart.Totals)
	}

	if len(cart.LineItems) != 3 {
		t.Fatalf("len(LineItems) = %d, want 3", len(cart.LineItems))
	}
	wantOrder := []string{"li_2", "li_1", "li_3"}
	for i, id := range wantOrder {
		if cart.LineItems[i].ID != id {
			t.Errorf("LineItems[%d].ID = %q, want %q", i, cart.LineItems[i].ID, id)
		}
	}
	if cart.LineItems[1].SKU != "SKU-A" || cart.LineItems[1].ImageURL != "https://img/a.png" {
		t.Errorf("sku item = %+v", cart.LineItems[1])
	}
	if ship := cart.LineItems[2]; ship.SKU != "" || ship.ItemType != "shipments" || ship.Name != "Standard" {
		t.Errorf("non-sku item = %+v", ship)
	}
	if got := len(cart.SKUItems()); got != 2 {
		t.Errorf("len(SKUItems()) = %d, want 2", got)
	}
}

func TestClient_ReadOrderMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"null data", `{"data": null}`},
		{"no data", `{}`},
		{"wrong type", `{"data": {"id": "x", "type": "skus"}}`},
		{"missing id", `{"data": {"type": "orders"}}`},
		{"bad linkage", `{"data": {"id": "x", "type": "orders", "relationships": {"line_items": {"data": {"bad": true}}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := c.ReadOrder(context.Background(), "x")
			if !errors.Is(err, model.ErrCartUnusable) {
				t.Errorf("ReadOrder() error = %v, want ErrCartUnusable", err)
			}
		})
	}
}

func TestClient_ReadOrderWithoutLinkageUsesIncluded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"o","type":"orders","attributes":{"status":"pending"}},
			"included":[{"id":"a","type":"line_items","attributes":{"item_type":"skus","sku_code":"A","quantity":1}}]}`))
	})
	cart, err := c.ReadOrder(context.Background(), "o")
	if err != nil {
		t.Fatalf("ReadOrder() error = %v", err)
	}
	if len(cart.LineItems) != 1 || cart.LineItems[0].SKU != "A" {
		t.Errorf("LineItems = %+v", cart.LineItems)
	}
}

func TestClient_EscapesResourceIDs(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantPath string
	}{
		{
			name: "read order",
			call: func(c *Client) error {
				_, err := c.ReadOrder(context.Background(), "ord/1?x=y")
				return err
			},
			wantPath: "/api/orders/ord%2F1%3Fx=y",
		},
		{
			name: "delete line item",
			call: func(c *Client) error {
				return c.DeleteLineItem(context.Background(), "../orders/ord_1")
			},
			wantPath: "/api/line_items/..%2Forders%2Ford_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotQuery string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
				w.WriteHeader(http.StatusNotFound)
			})

			tt.call(c)

			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
			if gotQuery != "" && gotQuery != "include=line_items" {
				t.Errorf("query = %q, id leaked into the query", gotQuery)
			}
		})
	}
}

func TestClient_CreateOrderRequest(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != mediaType {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(orderDocument))
	})

	_, err := c.CreateOrder(context.Background(),
		gateway.OrderAttributes{Metadata: gateway.DefaultCartMetadata()},
		gateway.OrderRelationships{Market: "42"})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	data := got["data"].(map[string]any)
	if data["type"] != "orders" {
		t.Errorf("type = %v", data["type"])
	}
	market := data["relationships"].(map[string]any)["market"].(map[string]any)["data"].(map[string]any)
	if market["type"] != "markets" || market["id"] != "42" {
		t.Errorf("market relationship = %v", market)
	}
	attrs := data["attributes"].(map[string]any)
	if len(attrs) != 1 {
		t.Errorf("attributes = %v, want metadata only", attrs)
	}
	meta := attrs["metadata"].(map[string]any)
	if meta["gift_box"] != false || meta["preorder"] != false {
		t.Errorf("metadata = %v", meta)
	}
}

func TestClient_LineItemRequests(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			json.Unmarshal(raw, &body)
		}
		calls = append(calls, call{r.Method, r.URL.Path, body})

		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/line_item_options" || r.URL.Path == "/api/line_item_options/opt_1":
			w.Write([]byte(`{"data":{"id":"opt_1","type":"line_item_options","attributes":{"name":"Wrap","quantity":1,"options":{"color":"red"}}}}`))
		default:
			w.Write([]byte(`{"data":{"id":"li_9","type":"line_items","attributes":{"item_type":"skus","sku_code":"SKU-Z","quantity":3}}}`))
		}
	})
	ctx := context.Background()

	li, err := c.CreateLineItem(ctx, "ord_1", gateway.LineItemAttributes{SKUCode: "SKU-Z", Quantity: 3})
	if err != nil {
		t.Fatalf("CreateLineItem() error = %v", err)
	}
	if li.ID != "li_9" || li.SKU != "SKU-Z" || li.Quantity != 3 {
		t.Errorf("line item = %+v", li)
	}
	if _, err := c.UpdateLineItem(ctx, "li_9", gateway.LineItemAttributes{Quantity: 5}); err != nil {
		t.Fatalf("UpdateLineItem() error = %v", err)
	}
	if err := c.DeleteLineItem(ctx, "li_9"); err != nil {
		t.Fatalf("DeleteLineItem() error = %v", err)
	}
	opt, err := c.CreateLineItemOption(ctx, "li_9", "so_1", gateway.LineItemOptionAttributes{Name: "Wrap", Quantity: 1})
	if err != nil {
		t.Fatalf("CreateLineItemOption() error = %v", err)
	}
	if opt.ID != "opt_1" || opt.Options["color"] != "red" {
		t.Errorf("option = %+v", opt)
	}
	if _, err := c.UpdateLineItemOption(ctx, "opt_1", gateway.LineItemOptionAttributes{Quantity: 2}); err != nil {
		t.Fatalf("UpdateLineItemOption() error = %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodPost, "/api/line_items"},
		{http.MethodPatch, "/api/line_items/li_9"},
		{http.MethodDelete, "/api/line_items/li_9"},
		{http.MethodPost, "/api/line_item_options"},
		{http.MethodPatch, "/api/line_item_options/opt_1"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].path != w.path {
			t.Errorf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].path, w.method, w.path)
		}
	}

	createData := calls[0].body["data"].(map[string]any)
	order := createData["relationships"].(map[string]any)["order"].(map[string]any)["data"].(map[string]any)
	if order["id"] != "ord_1" || order["type"] != "orders" {
		t.Errorf("order relationship = %v", order)
	}
	if attrs := createData["attributes"].(map[string]any); attrs["sku_code"] != "SKU-Z" {
		t.Errorf("create attributes = %v", attrs)
	}

	updateData := calls[1].body["data"].(map[string]any)
	if updateData["id"] != "li_9" {
		t.Errorf("update id = %v", updateData["id"])
	}
	if attrs := updateData["attributes"].(map[string]any); attrs["quantity"] != float64(5) || attrs["sku_code"] != nil {
		t.Errorf("update attributes = %v", attrs)
	}

	optRels := calls[3].body["data"].(map[string]any)["relationships"].(map[string]any)
	if so := optRels["sku_option"].(map[string]any)["data"].(map[string]any); so["id"] != "so_1" || so["type"] != "sku_options" {
		t.Errorf("sku_option relationship = %v", so)
	}
	if lir := optRels["line_item"].(map[string]any)["data"].(map[string]any); lir["id"] != "li_9" {
		t.Errorf("line_item relationship = %v", lir)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		wantErr    error
		wantCode   string
		wantMsg    string
		wantRetry  time.Duration
		wantStatus int
	}{
		{
			name: "unauthorized", status: 401,
			body:    `{"errors":[{"title":"Invalid token","detail":"The access token you provided is invalid."}]}`,
			wantErr: model.ErrAuthFailure, wantCode: "AUTH_FAILURE", wantStatus: 401,
			wantMsg: "The access token you provided is invalid.",
		},
		{name: "forbidden", status: 403, wantErr: model.ErrAuthFailure, wantCode: "AUTH_FAILURE", wantStatus: 401},
		{name: "not found", status: 404, wantErr: model.ErrNotFound, wantCode: "NOT_FOUND", wantStatus: 404},
		{
			name: "unprocessable", status: 422,
			body:    `{"errors":[{"title":"is invalid","detail":"quantity - must be greater than 0","source":{"pointer":"/data/attributes/quantity"}}]}`,
			wantErr: model.ErrInvalidRequest, wantCode: "VALIDATION_ERROR", wantStatus: 400,
			wantMsg: "invalid quantity: quantity - must be greater than 0",
		},
		{
			name: "rate limited structured header", status: 429,
			header:  map[string]string{"RateLimit": "limit=100, remaining=0, reset=12"},
			wantErr: model.ErrRateLimited, wantCode: "RATE_LIMITED", wantStatus: 429, wantRetry: 12 * time.Second,
		},
		{
			name: "rate limited retry-after", status: 429,
			header:  map[string]string{"Retry-After": "7"},
			wantErr: model.ErrRateLimited, wantCode: "RATE_LIMITED", wantStatus: 429, wantRetry: 7 * time.Second,
		},
		{
			name: "rate limited no hint", status: 429,
			header:  map[string]string{"RateLimit": "not a dictionary;;"},
			wantErr: model.ErrRateLimited, wantCode: "RATE_LIMITED", wantStatus: 429,
		},
		{name: "server error", status: 503, wantErr: model.ErrUpstreamError, wantCode: "UPSTREAM_ERROR", wantStatus: 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.ReadOrder(context.Background(), "ord_1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %T is not *model.APIError", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
			}
			if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, tt.wantRetry)
			}
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(srv.URL, staticTokens("secret"), srv.Client())
	srv.Close()

	if err := c.DeleteLineItem(context.Background(), "li_1"); !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("DeleteLineItem() error = %v, want ErrUpstreamError", err)
	}
}

func TestClient_TokenFailureStopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, failingTokens{}, srv.Client())
	if _, err := c.ReadOrder(context.Background(), "ord_1"); !errors.Is(err, model.ErrAuthFailure) {
		t.Errorf("ReadOrder() error = %v, want ErrAuthFailure", err)
	}
	if called {
		t.Error("request was sent without a credential")
	}
}
