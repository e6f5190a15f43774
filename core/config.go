package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTokenTTL matches the validity window Meta advertises for
	// long-lived user tokens.
	DefaultTokenTTL = 60 * 24 * time.Hour

	DefaultGraphVersion = "v23.0"
)

type EncryptionConfig struct {
	Secret string `koanf:"secret" mapstructure:"secret"`
	Mode   string `koanf:"mode" mapstructure:"mode"`
	KeyID  string `koanf:"key_id" mapstructure:"key_id"`
}

type MetaConfig struct {
	ClientID     string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string        `koanf:"client_secret" mapstructure:"client_secret"`
	GraphVersion string        `koanf:"graph_version" mapstructure:"graph_version"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	TokenTTL     time.Duration `koanf:"token_ttl" mapstructure:"token_ttl"`
}

type OAuthConfig struct {
	StateTTL time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
}

type ExpiryConfig struct {
	WarnWindow time.Duration `koanf:"warn_window" mapstructure:"warn_window"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Encryption  EncryptionConfig `koanf:"encryption" mapstructure:"encryption"`
	Meta        MetaConfig       `koanf:"meta" mapstructure:"meta"`
	OAuth       OAuthConfig      `koanf:"oauth" mapstructure:"oauth"`
	Expiry      ExpiryConfig     `koanf:"expiry" mapstructure:"expiry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "autopost",
		Encryption: EncryptionConfig{
			Mode:  "aes-256-cbc",
			KeyID: "app-key",
		},
		Meta: MetaConfig{
			GraphVersion: DefaultGraphVersion,
			TokenTTL:     DefaultTokenTTL,
		},
		OAuth: OAuthConfig{
			StateTTL: 15 * time.Minute,
		},
		Expiry: ExpiryConfig{
			WarnWindow: 7 * 24 * time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Meta.TokenTTL < 0 {
		return fmt.Errorf("core: meta.token_ttl must not be negative")
	}
	return nil
}

// ValidateSecrets is the fail-fast gate for process startup: the sealing
// secret is required configuration with no default. It is checked once
// the layered config is resolved, and skipped only when the host injected
// a ready-made cipher.
func (c Config) ValidateSecrets() error {
	if strings.TrimSpace(c.Encryption.Secret) == "" {
		return fmt.Errorf("core: encryption.secret is required")
	}
	return nil
}

func (c Config) TokenTTL() time.Duration {
	if c.Meta.TokenTTL > 0 {
		return c.Meta.TokenTTL
	}
	return DefaultTokenTTL
}
