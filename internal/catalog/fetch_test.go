package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cartsync/internal/model"
)

func feedServer(t *testing.T, failPath string) (*httptest.Server, APIs) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": "p1", "name": "Tee", "status": "draft", "variants": [{"sku": "TEE-S"}, {"sku": "TEE-M"}]},
			{"id": "p2", "name": "Cap", "status": "published", "variants": [{"sku": "CAP"}]}
		]`))
	})
	mux.HandleFunc("GET /prices", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"currencyCode": "EUR", "currencySymbol": "€", "priceList": [
			{"sku": "TEE-S", "amountCents": 1990},
			{"sku": "CAP", "amountCents": 1200}
		]}`))
	})
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"warehouse": "milan", "inventory": [{"sku": "TEE-S", "quantity": 4}]}`))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == failPath {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, APIs{
		Products:  srv.URL + "/products",
		PriceList: srv.URL + "/prices",
		Inventory: srv.URL + "/inventory",
	}
}

func TestFetcher_Fetch(t *testing.T) {
	srv, apis := feedServer(t, "")

	c, err := NewFetcher(srv.Client()).Fetch(context.Background(), apis)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if c.Currency() != (Currency{Code: "EUR", Symbol: "€"}) {
		t.Errorf("Currency() = %+v", c.Currency())
	}
	if c.Warehouse() != "milan" {
		t.Errorf("Warehouse() = %q", c.Warehouse())
	}

	all := c.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	small, medium := all[0].Variants[0], all[0].Variants[1]
	if cents, _ := small.Price.AmountCents(); cents != 1990 {
		t.Errorf("TEE-S price = %d, want 1990", cents)
	}
	if q, _ := small.Stock.Quantity(); q != 4 {
		t.Errorf("TEE-S stock = %d, want 4", q)
	}
	if medium.Price != nil || medium.Stock != nil {
		t.Errorf("TEE-M should have no price or stock: %+v", medium)
	}

	if p, ok := c.Search(Eq("status", "draft")).Product(); !ok || p.ID != "p1" {
		t.Errorf("search after fetch = %+v, %v", p, ok)
	}
}

func TestFetcher_AnyFeedFailureFailsFetch(t *testing.T) {
	for _, path := range []string{"/products", "/prices", "/inventory"} {
		t.Run(path, func(t *testing.T) {
			srv, apis := feedServer(t, path)
			_, err := NewFetcher(srv.Client()).Fetch(context.Background(), apis)
			if !errors.Is(err, model.ErrUpstreamError) {
				t.Errorf("Fetch() error = %v, want ErrUpstreamError", err)
			}
		})
	}
}

func TestFetcher_MissingURL(t *testing.T) {
	srv, apis := feedServer(t, "")
	apis.Inventory = ""

	_, err := NewFetcher(srv.Client()).Fetch(context.Background(), apis)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Fetch() error = %v, want ErrInvalidRequest", err)
	}
}

func TestFetcher_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	apis := APIs{Products: srv.URL, PriceList: srv.URL, Inventory: srv.URL}
	if _, err := NewFetcher(srv.Client()).Fetch(context.Background(), apis); !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("Fetch() error = %v, want ErrUpstreamError", err)
	}
}
