// Package gateway serves the HTTP control API the orchestrator calls, plus
// health, metrics and the Telegram webhook intake.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/membership"
	"github.com/flemzord/guildbot/internal/obs"
	"github.com/flemzord/guildbot/internal/tglogin"
	"gopkg.in/yaml.v3"
)

// Service names this module registers or looks up.
const (
	WebhookDispatcherService = "gateway.webhook_dispatcher"
	DecisionLogService       = "audit.decisions"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Control is the membership service behind the control API.
type Control interface {
	Access(ctx context.Context, events []membership.AccessEvent) []membership.AccessOutcome
	Info(ctx context.Context, chatID int64) (membership.GroupInfo, error)
	IsIn(ctx context.Context, chatID int64) membership.IsInResult
	IsMember(ctx context.Context, userID int64, groupIDs []string) []membership.MemberStatus
	User(ctx context.Context, userID int64) (membership.UserInfo, error)
	GroupName(ctx context.Context, chatID int64) (string, error)
	ResolveUser(p tglogin.Payload) membership.ResolvedUser
}

var _ Control = (*membership.Control)(nil)

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	metrics    *obs.Metrics
	server     *http.Server
	dispatcher *WebhookDispatcher
	startedAt  time.Time

	// Resolved lazily at Start() via service registry.
	control   Control
	decisions membership.DecisionLog
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = ctx.Metrics

	secrets := make(map[string]string, len(g.config.Webhooks))
	for source, cfg := range g.config.Webhooks {
		secrets[source] = cfg.Secret
	}
	g.dispatcher = NewWebhookDispatcher(g.logger, secrets, g.config.MaxBodyBytes)
	ctx.RegisterService(WebhookDispatcherService, g.dispatcher)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if c, ok := core.ServiceAs[Control](g.appCtx, membership.ControlServiceName); ok {
		g.control = c
	} else {
		g.logger.Warn("membership control service not found, control API will answer 503")
	}
	if l, ok := core.ServiceAs[membership.DecisionLog](g.appCtx, DecisionLogService); ok {
		g.decisions = l
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("control API has no authentication configured")
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "prefix", g.config.Prefix)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
