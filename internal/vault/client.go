// Package vault provides the single-operator exchange credentials
// provider, adapted from the teacher's multi-tenant Vault-backed API key
// store down to the one credential pair this engine needs.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config controls how credentials are sourced.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// Credentials is the exchange API key pair served to the engine at
// startup.
type Credentials struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// Provider serves exchange credentials, backed by Vault when enabled or a
// single cached pair otherwise (e.g. injected from environment for local
// runs).
type Provider struct {
	client *api.Client
	cfg    Config

	mu    sync.RWMutex
	cache *Credentials
}

// NewProvider constructs a Provider. When cfg.Enabled is false the
// provider only ever serves whatever is set via SetCredentials, mirroring
// the teacher's no-op fallback for local development.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{cfg: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Provider{client: client, cfg: cfg}, nil
}

// SetCredentials seeds the provider's cache directly, used for local runs
// where Vault is disabled.
func (p *Provider) SetCredentials(c Credentials) {
	p.mu.Lock()
	p.cache = &c
	p.mu.Unlock()
}

// Credentials returns the operator's exchange credentials, fetching from
// Vault on first use and caching thereafter.
func (p *Provider) Credentials(ctx context.Context) (Credentials, error) {
	p.mu.RLock()
	if p.cache != nil {
		defer p.mu.RUnlock()
		return *p.cache, nil
	}
	p.mu.RUnlock()

	if !p.cfg.Enabled {
		return Credentials{}, fmt.Errorf("no credentials set and vault is disabled")
	}

	path := fmt.Sprintf("%s/data/%s", p.cfg.MountPath, p.cfg.SecretPath)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("credentials not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := Credentials{
		APIKey:    asString(data["api_key"]),
		SecretKey: asString(data["secret_key"]),
		Testnet:   asBool(data["is_testnet"]),
	}

	p.mu.Lock()
	p.cache = &creds
	p.mu.Unlock()

	return creds, nil
}

// Health checks Vault's availability when enabled.
func (p *Provider) Health(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}
	health, err := p.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
