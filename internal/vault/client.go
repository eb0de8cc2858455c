package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/logging"
)

// InfraSecrets are the infrastructure credentials kept out of config files
type InfraSecrets struct {
	DatabasePassword string `json:"database_password"`
	RedisPassword    string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *InfraSecrets
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// NewMockClient returns a disabled client that serves the given secrets
func NewMockClient(secrets InfraSecrets) *Client {
	return &Client{
		config: config.VaultConfig{Enabled: false},
		cached: &secrets,
	}
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// GetInfraSecrets reads the KV v2 infrastructure secret. Results are cached for
// the life of the client.
func (c *Client) GetInfraSecrets(ctx context.Context) (*InfraSecrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		s := *c.cached
		c.mu.RUnlock()
		return &s, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &InfraSecrets{}, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read infrastructure secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("infrastructure secret not found at %s", c.secretPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	s := &InfraSecrets{
		DatabasePassword: getString(data, "database_password"),
		RedisPassword:    getString(data, "redis_password"),
	}

	c.mu.Lock()
	c.cached = s
	c.mu.Unlock()

	out := *s
	return &out, nil
}

// Apply overlays non-empty secrets onto cfg
func (c *Client) Apply(ctx context.Context, cfg *config.Config) error {
	if !c.config.Enabled && c.cached == nil {
		return nil
	}

	s, err := c.GetInfraSecrets(ctx)
	if err != nil {
		return err
	}

	applied := 0
	if s.DatabasePassword != "" {
		cfg.DatabaseConfig.Password = s.DatabasePassword
		applied++
	}
	if s.RedisPassword != "" {
		cfg.RedisConfig.Password = s.RedisPassword
		applied++
	}
	logging.WithComponent("vault").Info("infrastructure secrets applied", "count", applied)
	return nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path of the infrastructure secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
