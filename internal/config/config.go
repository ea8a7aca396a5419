// Package config handles loading and validation of service configuration.
// Supports a JSON file, plain env vars (development) and Secret Manager (production).
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/caarlos0/env/v11"

	"cartsync/internal/model"
)

// Platforms.
const (
	PlatformCommerceLayer = "commerceLayer"
	PlatformMemory        = "memory"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all service configuration.
type Config struct {
	// Server settings
	Port        string `json:"port" env:"PORT" envDefault:"8080"`
	Environment string `json:"environment" env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `json:"logLevel" env:"LOG_LEVEL" envDefault:"info"`

	// GCP settings (required in production)
	GCPProject string `json:"gcpProject" env:"GCP_PROJECT"`
	SecretID   string `json:"secretId" env:"COMMERCE_SECRET" envDefault:"cartsync-commerce"`

	// Platform selects the remote commerce backend: "commerceLayer" or "memory".
	Platform  string         `json:"platform" env:"PLATFORM"`
	Commerce  CommerceConfig `json:"config" envPrefix:"COMMERCE_"`
	APIs      APIs           `json:"apis" envPrefix:"API_"`
	Store     StoreConfig    `json:"store" envPrefix:"STORE_"`
	ChromeTLS bool           `json:"chromeTLS" env:"CHROME_TLS"`
}

// CommerceConfig authenticates against the platform and scopes the cart.
// In production it is loaded from Secret Manager as JSON.
type CommerceConfig struct {
	ClientID     string `json:"clientId" env:"CLIENT_ID"`
	Endpoint     string `json:"endpoint" env:"ENDPOINT"`
	Market       string `json:"market" env:"MARKET"`
	Scope        string `json:"scope,omitempty" env:"SCOPE"` // defaults to market:{market}
	ShippingCode string `json:"shippingCode" env:"SHIPPING_CODE"`
	ProjectName  string `json:"projectName" env:"PROJECT_NAME"`
}

// APIs are the catalog feed URLs.
type APIs struct {
	Products  string `json:"products" env:"PRODUCTS"`
	PriceList string `json:"priceList" env:"PRICE_LIST"`
	Inventory string `json:"inventory" env:"INVENTORY"`
}

// StoreConfig selects where the cart id is remembered.
type StoreConfig struct {
	Driver string `json:"driver" env:"DRIVER" envDefault:"memory"`
	DSN    string `json:"dsn" env:"DSN"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Returns a *model.ConfigError naming every missing key.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, &model.ConfigError{Missing: []string{"gcpProject"}}
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading commerce config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromFile reads all configuration from a JSON file. Keys absent from
// the file keep their defaults.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON configuration document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config holding only envDefault values.
func defaults() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return &cfg, nil
}

// loadFromSecretManager fetches the commerce block from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Commerce); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// Validate checks every required key and reports all that are missing at once.
func (c *Config) Validate() error {
	var missing []string
	need := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}

	need("platform", c.Platform)
	if c.Commerce == (CommerceConfig{}) {
		missing = append(missing, "config")
	}
	need("config.market", c.Commerce.Market)
	need("config.shippingCode", c.Commerce.ShippingCode)
	need("config.projectName", c.Commerce.ProjectName)
	if c.Platform == PlatformCommerceLayer {
		need("config.clientId", c.Commerce.ClientID)
		need("config.endpoint", c.Commerce.Endpoint)
	}
	need("apis.products", c.APIs.Products)
	need("apis.priceList", c.APIs.PriceList)
	need("apis.inventory", c.APIs.Inventory)
	if c.Store.Driver == StoreSQLite || c.Store.Driver == StorePostgres {
		need("store.dsn", c.Store.DSN)
	}

	if len(missing) > 0 {
		return &model.ConfigError{Missing: missing}
	}

	if c.Platform != PlatformCommerceLayer && c.Platform != PlatformMemory {
		return fmt.Errorf("unsupported platform %q (commerceLayer or memory)", c.Platform)
	}
	if !slices.Contains([]string{StoreMemory, StoreSQLite, StorePostgres}, c.Store.Driver) {
		return fmt.Errorf("unsupported store driver %q (memory, sqlite or postgres)", c.Store.Driver)
	}
	if c.Platform == PlatformCommerceLayer {
		if u, err := url.Parse(c.Commerce.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid config.endpoint %q", c.Commerce.Endpoint)
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
