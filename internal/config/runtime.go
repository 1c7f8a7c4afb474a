package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process-level settings that come only from the environment.
type Runtime struct {
	NodeEnv      string `env:"NODE_ENV" envDefault:"development"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"guildbot"`
	ConfigPath   string `env:"GUILDBOT_CONFIG"`
}

// LoadRuntime parses Runtime from the environment.
func LoadRuntime() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	return rt, nil
}

// Production reports whether NODE_ENV selects production behaviour
// (JSON logs).
func (r Runtime) Production() bool {
	return strings.EqualFold(r.NodeEnv, "production")
}

// Level maps LOG_LEVEL to a slog level. Unknown values fall back to info.
func (r Runtime) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(r.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
