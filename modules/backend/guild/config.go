package guild

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the backend module configuration.
type Config struct {
	URL       string        `yaml:"url"`
	PublicURL string        `yaml:"public_url"`
	Platform  string        `yaml:"platform"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.PublicURL == "" {
		c.PublicURL = "https://guild.xyz"
	}
	if c.Platform == "" {
		c.Platform = "TELEGRAM"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("guild: url is required")
	}
	for name, raw := range map[string]string{"url": c.URL, "public_url": c.PublicURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("guild: %s must be a valid http/https URL, got %q", name, raw)
		}
	}
	if c.Timeout > 2*time.Minute {
		return fmt.Errorf("guild: timeout must be at most 2m, got %s", c.Timeout)
	}
	return nil
}
