package vault

import (
	"context"
	"fmt"

	"kis-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// Credentials are the broker secrets stored in Vault KV v2
type Credentials struct {
	AppKey    string
	AppSecret string
	AccountNo string
}

// Client reads broker credentials from HashiCorp Vault. When Vault is
// disabled the credentials fall through to the values in config.
type Client struct {
	client *api.Client
	cfg    config.VaultConfig
}

// NewClient creates a Vault client, or a passthrough when disabled
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, cfg: cfg}, nil
}

// BrokerCredentials returns the KIS credentials, preferring Vault over
// the config fallback.
func (c *Client) BrokerCredentials(ctx context.Context, fallback config.KISConfig) (*Credentials, error) {
	if !c.cfg.Enabled {
		return &Credentials{
			AppKey:    fallback.AppKey,
			AppSecret: fallback.AppSecret,
			AccountNo: fallback.AccountNo,
		}, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("reading broker credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no broker credentials at %s", c.cfg.Path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	creds := &Credentials{
		AppKey:    getString(data, "app_key"),
		AppSecret: getString(data, "app_secret"),
		AccountNo: getString(data, "account_no"),
	}
	if creds.AccountNo == "" {
		creds.AccountNo = fallback.AccountNo
	}
	if creds.AppKey == "" || creds.AppSecret == "" {
		return nil, fmt.Errorf("broker credentials at %s missing app_key/app_secret", c.cfg.Path)
	}
	return creds, nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.cfg.Enabled {
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

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
