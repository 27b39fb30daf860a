package gateway

import (
	"time"

	"github.com/uniedit/checkout/internal/infra/httpclient"
)

const (
	SandboxBaseURL    = "https://api.sandbox.checkout.com"
	ProductionBaseURL = "https://api.checkout.com"
)

// Config is the resolved credential set for one gateway account.
type Config struct {
	Name      string        `mapstructure:"name"`
	BaseURL   string        `mapstructure:"base_url"`
	Sandbox   bool          `mapstructure:"sandbox"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`

	OAuth   OAuthConfig       `mapstructure:"oauth"`
	Breaker BreakerConfig     `mapstructure:"breaker"`
	HTTP    httpclient.Config `mapstructure:"http"`
}

// OAuthConfig enables client-credentials authentication instead of a
// static secret key when ClientID is set.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Enabled reports whether OAuth credentials are configured.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// BreakerConfig configures the circuit breaker around gateway calls.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxHalfOpen      uint32        `mapstructure:"max_half_open"`
	Interval         time.Duration `mapstructure:"interval"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// ResolvedBaseURL returns BaseURL, or the sandbox/production URL.
func (c Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.MaxHalfOpen == 0 {
		c.Breaker.MaxHalfOpen = 1
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = 60 * time.Second
	}
	if c.Breaker.OpenTimeout == 0 {
		c.Breaker.OpenTimeout = 30 * time.Second
	}
	if c.HTTP.ResponseTimeout == 0 {
		c.HTTP.ResponseTimeout = c.Timeout
	}
	return c
}
