package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/obs"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Bot{})
}

// ServiceName is the key the Bot registers itself under.
const ServiceName = "telegram.bot"

// webhookDispatcherService is where the HTTP gateway exposes webhook intake.
const webhookDispatcherService = "gateway.webhook_dispatcher"

// WebhookFunc handles one webhook delivery.
type WebhookFunc = func(ctx context.Context, source string, body []byte, headers http.Header) error

// webhookRegistrar is implemented by the gateway's webhook dispatcher.
type webhookRegistrar interface {
	RegisterFunc(source string, fn WebhookFunc, secret string)
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Bot)(nil)
	_ core.Provisioner  = (*Bot)(nil)
	_ core.Validator    = (*Bot)(nil)
	_ core.Starter      = (*Bot)(nil)
	_ core.Stopper      = (*Bot)(nil)
)

// defaultAdminRights are suggested to admins adding the bot: it needs to
// restrict members and manage invite links.
var defaultAdminRights = ChatAdministratorRights{
	CanManageChat:      true,
	CanDeleteMessages:  true,
	CanRestrictMembers: true,
	CanInviteUsers:     true,
	CanPostMessages:    true,
}

// Bot is the bot.telegram module: it owns the Bot API client and feeds
// updates to the dispatcher by long polling or webhook.
type Bot struct {
	config     Config
	client     *Client
	logger     *slog.Logger
	metrics    *obs.Metrics
	appCtx     *core.AppContext
	dispatcher *Dispatcher

	poller  *Poller
	webhook *WebhookReceiver

	// handlerCtx is the parent of every update handler. It is only
	// cancelled when shutdown runs out of time.
	handlerCtx    context.Context
	cancelHandler context.CancelFunc
}

// ModuleInfo implements core.Module.
func (b *Bot) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "bot.telegram",
		New: func() core.Module { return &Bot{} },
	}
}

// Configure implements core.Configurable.
func (b *Bot) Configure(node *yaml.Node) error {
	if err := node.Decode(&b.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	b.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (b *Bot) Provision(ctx *core.AppContext) error {
	b.appCtx = ctx
	b.logger = ctx.Logger
	b.metrics = ctx.Metrics
	b.client = NewClient(b.config.Token, b.config.APIURL,
		WithRateLimit(b.config.RateLimit, b.config.RateBurst),
		WithMetrics(ctx.Metrics),
	)
	b.dispatcher = NewDispatcher(b.client, b.logger, b.metrics, b.config)
	ctx.RegisterService(ServiceName, b)
	return nil
}

// Validate implements core.Validator.
func (b *Bot) Validate() error {
	return b.config.validate()
}

// Client returns the Bot API client.
func (b *Bot) Client() *Client { return b.client }

// Settings returns the admission settings.
func (b *Bot) Settings() Settings { return b.config.settings() }

// Token returns the bot token, used to verify login widget payloads.
func (b *Bot) Token() string { return b.config.Token }

// Me returns the bot's own user, known after Start.
func (b *Bot) Me() User { return b.dispatcher.botUser() }

// SetHandler installs the membership handler. Call it before Start.
func (b *Bot) SetHandler(h MembershipHandler) { b.dispatcher.SetHandler(h) }

// Start implements core.Starter. It checks the token with getMe, registers
// the command menu, then starts polling or webhook intake.
func (b *Bot) Start() error {
	if b.dispatcher.membership() == nil {
		return errors.New("telegram: membership handler not set, call SetHandler before Start")
	}

	ctx := context.Background()
	user, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	if b.config.BotID != 0 && b.config.BotID != user.ID {
		b.logger.Warn("configured bot_id does not match the token", "bot_id", b.config.BotID, "token_bot_id", user.ID)
	}
	b.dispatcher.setMe(*user)
	b.logger.Info("telegram bot authenticated", "id", user.ID, "username", user.Username)

	b.registerCommands(ctx)

	b.handlerCtx, b.cancelHandler = context.WithCancel(context.Background())

	switch b.config.Mode {
	case "polling":
		if err := b.client.DeleteWebhook(ctx); err != nil {
			b.logger.Warn("telegram: deleteWebhook before polling failed", "error", err)
		}
		b.poller = NewPoller(b.client, func(u Update) {
			b.dispatcher.Go(b.handlerCtx, u)
		}, b.logger, b.config)
		b.poller.Start()
		b.logger.Info("telegram polling started", "timeout", b.config.PollingTimeout)

	case "webhook":
		if b.config.WebhookSecret == "" {
			b.logger.Warn("telegram webhook running without secret_token, " +
				"consider setting webhook_secret for production deployments")
		}
		b.webhook = NewWebhookReceiver(b.dispatcher, b.config.WebhookSecret)
		if err := b.registerWebhook(); err != nil {
			return err
		}
		if err := b.client.SetWebhook(ctx, SetWebhookRequest{
			URL:            b.config.WebhookURL,
			SecretToken:    b.config.WebhookSecret,
			AllowedUpdates: b.config.AllowedUpdates,
		}); err != nil {
			return fmt.Errorf("telegram: setWebhook failed: %w", err)
		}
		b.logger.Info("telegram webhook configured", "url", b.config.WebhookURL)
	}

	return nil
}

func (b *Bot) registerCommands(ctx context.Context) {
	if err := b.client.SetMyCommands(ctx, Commands); err != nil {
		b.logger.Warn("telegram: setMyCommands failed", "error", err)
	}
	for _, forChannels := range []bool{false, true} {
		if err := b.client.SetMyDefaultAdministratorRights(ctx, defaultAdminRights, forChannels); err != nil {
			b.logger.Warn("telegram: setMyDefaultAdministratorRights failed", "for_channels", forChannels, "error", err)
		}
	}
}

// registerWebhook hands the receiver to the gateway's webhook dispatcher.
// Telegram authenticates with its own secret header, so no HMAC secret is
// registered.
func (b *Bot) registerWebhook() error {
	reg, ok := core.ServiceAs[webhookRegistrar](b.appCtx, webhookDispatcherService)
	if !ok {
		return errors.New("telegram: " + webhookDispatcherService + " service not found (is the gateway.http module loaded?)")
	}
	reg.RegisterFunc("telegram", b.webhook.HandleWebhook, "")
	return nil
}

// Stop implements core.Stopper. Polling stops first so no new update is
// picked up; in-flight handlers then get until ctx expires to finish.
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("telegram bot stopping")

	switch b.config.Mode {
	case "polling":
		if b.poller != nil {
			b.poller.Stop()
		}
	case "webhook":
		if err := b.client.DeleteWebhook(ctx); err != nil {
			b.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		b.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("telegram: shutdown deadline reached, cancelling update handlers")
		if b.cancelHandler != nil {
			b.cancelHandler()
		}
		<-done
	}
	if d, ok := b.dispatcher.membership().(drainer); ok {
		d.Drain(ctx)
	}
	if b.cancelHandler != nil {
		b.cancelHandler()
	}
	return nil
}

// drainer is implemented by handlers that run backend calls in the
// background after an update was handled.
type drainer interface {
	Drain(ctx context.Context)
}
