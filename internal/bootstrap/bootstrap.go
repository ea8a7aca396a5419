// Package bootstrap assembles the commerce capability set from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cartsync/internal/auth"
	"cartsync/internal/cart"
	"cartsync/internal/catalog"
	"cartsync/internal/commercelayer"
	"cartsync/internal/config"
	"cartsync/internal/events"
	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/store"
	"cartsync/internal/store/postgres"
	"cartsync/internal/store/sqlite"
	"cartsync/internal/transport"
)

const httpTimeout = 30 * time.Second

// Commerce is the capability set handed to the host.
type Commerce struct {
	Cart     *cart.Session
	Products *catalog.Catalog
	Events   *events.Bus

	closers []func() error
}

// Close releases the store backend.
func (c *Commerce) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// Deps overrides collaborators that are otherwise built from configuration.
// Every field is optional.
type Deps struct {
	Logger *slog.Logger
	// PlatformClient talks to the commerce API and its token endpoint.
	PlatformClient *http.Client
	// FeedClient downloads the catalog feeds.
	FeedClient *http.Client
	Gateway    gateway.Gateway
	Tokens     cart.TokenSource
	Store      store.Store
}

// Setup validates cfg, wires the platform and resolves the cart. The session
// and the catalog are loaded concurrently; either failing fails Setup.
func Setup(ctx context.Context, cfg *config.Config, deps Deps) (*Commerce, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			logger.ErrorContext(ctx, "missing configuration", slog.Any("missing", cfgErr.Missing))
		}
		return nil, fmt.Errorf("validating config: %w", err)
	}

	commerce := &Commerce{Events: events.New()}

	st := deps.Store
	if st == nil {
		opened, closer, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		st = opened
		commerce.closers = append(commerce.closers, closer)
	}

	feedClient := deps.FeedClient
	if feedClient == nil {
		feedClient = newHTTPClient(false)
	}
	fetcher := catalog.NewFetcher(feedClient)
	apis := catalog.APIs{
		Products:  cfg.APIs.Products,
		PriceList: cfg.APIs.PriceList,
		Inventory: cfg.APIs.Inventory,
	}

	gw, tokens := deps.Gateway, deps.Tokens
	var memory *gateway.Memory
	if gw == nil {
		switch cfg.Platform {
		case config.PlatformCommerceLayer:
			platformClient := deps.PlatformClient
			if platformClient == nil {
				platformClient = newHTTPClient(cfg.ChromeTLS)
			}
			manager := auth.NewManager(auth.NewClientCredentials(auth.Config{
				Endpoint: cfg.Commerce.Endpoint,
				ClientID: cfg.Commerce.ClientID,
				Market:   cfg.Commerce.Market,
				Scope:    cfg.Commerce.Scope,
			}, platformClient))
			gw = commercelayer.NewClient(cfg.Commerce.Endpoint, manager, platformClient)
			if tokens == nil {
				tokens = manager
			}
		case config.PlatformMemory:
			memory = gateway.NewMemory("", nil)
			gw = memory
		}
	}
	if tokens == nil {
		tokens = localTokens()
	}

	session := cart.NewSession(cart.Scope{
		ProjectName:  cfg.Commerce.ProjectName,
		Market:       cfg.Commerce.Market,
		ShippingCode: cfg.Commerce.ShippingCode,
	}, cart.Deps{
		Gateway: gw,
		Tokens:  tokens,
		Store:   st,
		Events:  commerce.Events,
		Logger:  logger,
	})
	commerce.Cart = session

	fail := func(err error) (*Commerce, error) {
		if cerr := commerce.Close(); cerr != nil {
			logger.WarnContext(ctx, "closing store", slog.String("error", cerr.Error()))
		}
		return nil, err
	}

	if memory != nil {
		// The memory platform prices line items from the catalog, so the
		// catalog has to be in place before the cart is touched.
		products, err := fetcher.Fetch(ctx, apis)
		if err != nil {
			return fail(fmt.Errorf("fetching catalog: %w", err))
		}
		memory.SetCurrency(products.Currency().Code)
		for sku, cents := range products.Prices() {
			memory.SetPrice(sku, cents)
		}
		commerce.Products = products
		if _, err := session.Resolve(ctx); err != nil {
			return fail(fmt.Errorf("resolving cart: %w", err))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if _, err := session.Resolve(gctx); err != nil {
				return fmt.Errorf("resolving cart: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			products, err := fetcher.Fetch(gctx, apis)
			if err != nil {
				return fmt.Errorf("fetching catalog: %w", err)
			}
			commerce.Products = products
			return nil
		})
		if err := g.Wait(); err != nil {
			return fail(err)
		}
	}

	c := session.Cart()
	logger.InfoContext(ctx, "commerce ready",
		slog.String("platform", cfg.Platform),
		slog.String("cart_id", c.ID),
		slog.Int("line_items", len(c.LineItems)),
		slog.Int("products", len(commerce.Products.All())),
	)
	return commerce, nil
}

// expiryPurger is implemented by the SQL stores.
type expiryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// openStore opens the backend named by cfg.Driver. SQL backends drop expired
// identifiers once at startup.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, func() error, error) {
	var (
		st     store.Store
		closer func() error
	)
	switch cfg.Driver {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		st, closer = s, s.Close
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		st, closer = s, s.Close
	default:
		return store.NewMemory(), func() error { return nil }, nil
	}

	if p, ok := st.(expiryPurger); ok {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			logger.WarnContext(ctx, "purging expired cart identifiers failed",
				slog.String("driver", cfg.Driver),
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			logger.InfoContext(ctx, "purged expired cart identifiers",
				slog.String("driver", cfg.Driver),
				slog.Int64("removed", n),
			)
		}
	}
	return st, closer, nil
}

func newHTTPClient(chromeTLS bool) *http.Client {
	return transport.NewClient(transport.Options{
		Timeout:   httpTimeout,
		ChromeTLS: chromeTLS,
		Tracing:   true,
	})
}

// localTokens issues a long-lived credential for platforms without auth.
func localTokens() *auth.Manager {
	return auth.NewManager(auth.ExchangeFunc(func(ctx context.Context) (*model.Credential, error) {
		return &model.Credential{
			AccessToken: "local",
			TokenType:   "bearer",
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		}, nil
	}))
}
