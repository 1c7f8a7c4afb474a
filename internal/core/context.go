package core

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/guildbot/internal/obs"
	"gopkg.in/yaml.v3"
)

// AppContext carries the process-wide resources handed to modules: the
// logger, the metrics registry, the data directory and the service registry.
// Everything it holds is safe for concurrent use.
type AppContext struct {
	Logger  *slog.Logger
	Metrics *obs.Metrics

	// DataDir is where modules keep files (the audit database, for instance).
	DataDir string

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

type serviceRegistry struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewAppContext creates the root context. A nil logger falls back to
// slog.Default and nil metrics to a fresh registry.
func NewAppContext(logger *slog.Logger, metrics *obs.Metrics, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &AppContext{
		Logger:       logger,
		Metrics:      metrics,
		DataDir:      dataDir,
		parentLogger: logger,
		services:     &serviceRegistry{items: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of the context holding the raw module
// configurations keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a context whose logger is tagged with the module ID.
// The service registry is shared with the parent.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.parentLogger.With("module", string(id))
	return &cp
}

// RegisterService exposes a value to other modules under name.
// A later registration under the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService looks up a service registered by another module.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// ServiceAs looks up a service and asserts its type.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// LoadModule instantiates a module by ID and runs Configure, Provision and
// Validate on it when it implements those interfaces.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		node, exists := ctx.moduleConfigs[id]
		if !exists {
			node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		if err := c.Configure(&node); err != nil {
			return nil, fmt.Errorf("configuring module %s: %w", id, err)
		}
	}

	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}

	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}

	return mod, nil
}
