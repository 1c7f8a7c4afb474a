package guild

import (
	"fmt"
	"log/slog"

	"github.com/flemzord/guildbot/internal/core"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service registry key under which the Client is published.
const ServiceName = "guild.backend"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Module exposes a Client to the rest of the application.
type Module struct {
	config Config
	client *Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "backend.guild",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("guild: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.client = NewClient(Options{
		BaseURL:   m.config.URL,
		PublicURL: m.config.PublicURL,
		Platform:  m.config.Platform,
		Timeout:   m.config.Timeout,
		Metrics:   ctx.Metrics,
	})
	ctx.RegisterService(ServiceName, m.client)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	m.logger.Info("guild backend configured", "url", m.config.URL, "platform", m.config.Platform)
	return nil
}

// Client returns the provisioned client.
func (m *Module) Client() *Client { return m.client }
