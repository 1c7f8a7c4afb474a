package gateway

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                      `yaml:"bind"`
	Prefix          string                      `yaml:"prefix"`
	Auth            AuthConfig                  `yaml:"auth"`
	CORS            CORSConfig                  `yaml:"cors"`
	Webhooks        map[string]WebhookSourceCfg `yaml:"webhooks"`
	MaxBodyBytes    int64                       `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration               `yaml:"read_timeout"`
	WriteTimeout    time.Duration               `yaml:"write_timeout"`
	ShutdownTimeout time.Duration               `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "0.0.0.0:8991"
	}
	if c.Prefix == "" {
		c.Prefix = "/api"
	}
	c.Prefix = "/" + strings.Trim(c.Prefix, "/")
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if c.Prefix == "/" {
		errs = append(errs, errors.New("gateway: prefix must not be the root path"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("gateway: auth.jwt_secret must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication of the control API. With nothing
// set the API is open.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	// JWTSecret enables HS256 bearer JWTs signed by the orchestrator.
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || a.JWTSecret != ""
}

// CORSConfig lists the origins allowed to call the control API. Empty
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebhookSourceCfg holds per-source webhook configuration.
type WebhookSourceCfg struct {
	Secret string `yaml:"secret"`
}
