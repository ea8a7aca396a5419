package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cartsync/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h := New(&stubCart{}, testCatalog(), nil, testLogger())
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPToolsList(t *testing.T) {
	mux := stubHandler(&stubCart{})
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"get_cart":         false,
		"add_to_cart":      false,
		"adjust_cart":      false,
		"remove_from_cart": false,
		"search_products":  false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPCartTools(t *testing.T) {
	_, mux, _ := testHandler(t)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_to_cart", map[string]any{
		"items": []map[string]any{{"sku": "TEE-S", "quantity": 2}},
	})
	c := toolCart(t, result)
	if len(c.LineItems) != 1 || c.LineItems[0].Quantity != 2 {
		t.Fatalf("after add_to_cart: %+v", c.LineItems)
	}
	lineID := c.LineItems[0].ID

	c = toolCart(t, callTool(t, mux, sessionID, "adjust_cart", map[string]any{
		"items": []map[string]any{{"id": lineID, "quantity": 5}},
	}))
	if c.LineItems[0].Quantity != 5 {
		t.Errorf("after adjust_cart: quantity = %d, want 5", c.LineItems[0].Quantity)
	}

	c = toolCart(t, callTool(t, mux, sessionID, "get_cart", map[string]any{}))
	if c.TotalAmountCents != 7500 {
		t.Errorf("get_cart total = %d, want 7500", c.TotalAmountCents)
	}

	c = toolCart(t, callTool(t, mux, sessionID, "remove_from_cart", map[string]any{
		"ids": []string{lineID},
	}))
	if len(c.LineItems) != 0 {
		t.Errorf("after remove_from_cart: %+v", c.LineItems)
	}
}

func TestMCPAddToCartValidationError(t *testing.T) {
	_, mux, _ := testHandler(t)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_to_cart", map[string]any{
		"items": []map[string]any{{"sku": "TEE-S", "quantity": 0}},
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "VALIDATION_ERROR") {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestMCPSearchProducts(t *testing.T) {
	mux := stubHandler(&stubCart{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "search_products", map[string]any{
		"fields": map[string]string{"category": "hats"},
	})
	if result.IsError || len(result.Content) == 0 {
		t.Fatalf("result = %+v", result)
	}

	var got struct {
		Match   string `json:"match"`
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &got); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Match != "one" || got.Product.ID != "p3" {
		t.Errorf("search = %+v", got)
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) []byte {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body)
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]any{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}

func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(parseSSEResponse(w.Body.String()), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, w.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	return resp
}

func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args any) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

func toolCart(t *testing.T, result callToolResult) model.Cart {
	t.Helper()
	if result.IsError || len(result.Content) == 0 || result.Content[0].Type != "text" {
		t.Fatalf("tool result = %+v", result)
	}
	var c model.Cart
	if err := json.Unmarshal([]byte(result.Content[0].Text), &c); err != nil {
		t.Fatalf("Failed to parse cart from result: %v", err)
	}
	return c
}
