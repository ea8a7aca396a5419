package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cartsync/internal/model"
)

// APIs are the three feed URLs.
type APIs struct {
	Products  string `json:"products"`
	PriceList string `json:"priceList"`
	Inventory string `json:"inventory"`
}

// priceListDocument is the price list feed body.
type priceListDocument struct {
	CurrencyCode   string       `json:"currencyCode"`
	CurrencySymbol string       `json:"currencySymbol"`
	PriceList      []PriceEntry `json:"priceList"`
}

// inventoryDocument is the inventory feed body.
type inventoryDocument struct {
	Warehouse string           `json:"warehouse"`
	Inventory []InventoryEntry `json:"inventory"`
}

// Fetcher downloads the three feeds and merges them.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a fetcher. httpClient may be nil.
func NewFetcher(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{httpClient: httpClient}
}

// Fetch issues the three GETs concurrently. Any failure fails the fetch and
// cancels the remaining requests.
func (f *Fetcher) Fetch(ctx context.Context, apis APIs) (*Catalog, error) {
	var (
		products  []Product
		priceList priceListDocument
		inventory inventoryDocument
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.get(ctx, "products", apis.Products, &products) })
	g.Go(func() error { return f.get(ctx, "price list", apis.PriceList, &priceList) })
	g.Go(func() error { return f.get(ctx, "inventory", apis.Inventory, &inventory) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(products, priceList.PriceList, inventory.Inventory)
	return New(merged, Currency{Code: priceList.CurrencyCode, Symbol: priceList.CurrencySymbol}, inventory.Warehouse), nil
}

func (f *Fetcher) get(ctx context.Context, feed, url string, result any) error {
	if url == "" {
		return model.NewValidationError("apis."+feed, "URL is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", feed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(feed+" feed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(feed+" feed", fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return model.NewUpstreamError(feed+" feed", fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return model.NewUpstreamError(feed+" feed", fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
