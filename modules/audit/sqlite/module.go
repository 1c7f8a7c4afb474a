package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/cron"
	"gopkg.in/yaml.v3"
)

// ServiceName is the registry key of the decision log.
const ServiceName = "audit.decisions"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the store and the retention schedule.
type Module struct {
	config    Config
	store     *Store
	scheduler *cron.Scheduler
	logger    *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "audit.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("audit: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The database is opened here so the
// enforcer can record decisions from its first event.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if m.config.Path == "" {
		m.config.defaults()
	}
	path := m.config.Path
	if !filepath.IsAbs(path) && ctx.DataDir != "" {
		path = filepath.Join(ctx.DataDir, path)
	}
	store, err := Open(path)
	if err != nil {
		return err
	}
	m.store = store

	m.scheduler = cron.NewScheduler(m.logger)
	err = m.scheduler.RegisterJob(&cron.RetentionJob{
		Store:        store,
		MaxAge:       m.config.Retention,
		Logger:       m.logger,
		Label:        "audit",
		ScheduleExpr: m.config.PruneSchedule,
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	ctx.RegisterService(ServiceName, store)
	m.logger.Info("audit log opened", "path", path, "retention", m.config.Retention)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. Expired records are pruned once at startup
// and then on schedule.
func (m *Module) Start() error {
	m.scheduler.RunNow(context.Background(), "retention:audit")
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	var errs []error
	if m.scheduler != nil {
		errs = append(errs, m.scheduler.Stop(ctx))
	}
	errs = append(errs, m.store.Close())
	return errors.Join(errs...)
}

// Store returns the provisioned store.
func (m *Module) Store() *Store { return m.store }
