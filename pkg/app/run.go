// Package app is the shared entry point of the guildbot binary and its
// system service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/guildbot/internal/config"
	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/obs"
	"github.com/flemzord/guildbot/internal/security"
	"github.com/flemzord/guildbot/modules/bot/telegram"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file. If
	// empty, GUILDBOT_CONFIG and then ResolveConfigPath are tried, and the
	// built-in environment-driven configuration is used when nothing is found.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// EnvFiles are loaded into the environment before anything else.
	// Defaults to ".env".
	EnvFiles []string

	// LogOutput receives the process logs. Defaults to stderr.
	LogOutput io.Writer
}

// Instance is a fully loaded and wired application, ready to Start.
type Instance struct {
	App    *core.App
	Logger *slog.Logger

	shutdownTracing func(context.Context) error
}

// Close flushes telemetry. Call it after App.Stop.
func (i *Instance) Close(ctx context.Context) error {
	if i.shutdownTracing == nil {
		return nil
	}
	return i.shutdownTracing(ctx)
}

// LoadConfig returns the configuration to run with and where it came from.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			cfg, err := config.LoadDefault()
			return cfg, "built-in defaults", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// Build loads the environment and configuration, provisions every module
// and wires membership handling. Nothing is started.
func Build(params RunParams) (*Instance, error) {
	if err := config.LoadDotEnv(params.EnvFiles...); err != nil {
		return nil, err
	}
	rt, err := config.LoadRuntime()
	if err != nil {
		return nil, err
	}

	cfgPath := params.ConfigPath
	if cfgPath == "" {
		cfgPath = rt.ConfigPath
	}
	cfg, source, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	logger := security.NewLogger(out, redactor, security.LoggerOptions{
		Level: rt.Level(),
		JSON:  rt.Production(),
	})
	logger.Info("configuration loaded", "source", source, "version", params.Version)

	shutdownTracing, err := obs.SetupTracing(context.Background(), obs.TracingConfig{
		Endpoint:    rt.OTLPEndpoint,
		ServiceName: rt.ServiceName,
		Version:     params.Version,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, obs.NewMetrics(), dataDir).WithModuleConfigs(cfg.Modules)
	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	if bot, ok := core.ServiceAs[*telegram.Bot](appCtx, telegram.ServiceName); ok {
		redactor.AddLiteral(bot.Token())
	}

	if err := wireMembership(appCtx, logger); err != nil {
		application.Stop()
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	return &Instance{App: application, Logger: logger, shutdownTracing: shutdownTracing}, nil
}

// Run builds and starts the application and blocks until SIGINT or SIGTERM.
func Run(params RunParams) error {
	inst, err := Build(params)
	if err != nil {
		return err
	}
	if err := inst.App.Start(); err != nil {
		_ = inst.Close(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	inst.Logger.Info("shutdown signal received", "signal", sig.String())
	inst.App.Stop()
	if err := inst.Close(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		inst.Logger.Warn("flushing traces failed", "error", err)
	}
	inst.Logger.Info("shutdown complete")
	return nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/guildbot/guildbot.yaml →
// ~/.config/guildbot/guildbot.yaml → ./guildbot.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "guildbot", "guildbot.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "guildbot", "guildbot.yaml"))
	}

	candidates = append(candidates, "guildbot.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/guildbot if set, otherwise ~/.local/share/guildbot.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "guildbot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "guildbot")
}
