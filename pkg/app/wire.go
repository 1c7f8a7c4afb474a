package app

import (
	"errors"
	"log/slog"

	"github.com/flemzord/guildbot/internal/access"
	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/membership"
	"github.com/flemzord/guildbot/modules/audit/sqlite"
	"github.com/flemzord/guildbot/modules/backend/guild"
	"github.com/flemzord/guildbot/modules/bot/telegram"
)

// wireMembership builds the access oracle, executor and enforcer on top of
// the bot and backend modules, hands the membership handler to the bot and
// publishes the control service for the gateway. Must be called after
// LoadModules and before Start.
func wireMembership(appCtx *core.AppContext, logger *slog.Logger) error {
	bot, ok := core.ServiceAs[*telegram.Bot](appCtx, telegram.ServiceName)
	if !ok {
		return errors.New("wire: bot.telegram module is not loaded")
	}
	backend, ok := core.ServiceAs[*guild.Client](appCtx, guild.ServiceName)
	if !ok {
		return errors.New("wire: backend.guild module is not loaded")
	}
	settings := bot.Settings()
	logger = logger.With("module", "membership")

	exec := membership.NewExecutor(bot.Client(), logger, settings.KickBanDuration)
	oracle := access.NewOracle(backend, exec, logger, appCtx.Metrics)

	// The audit log is optional.
	recorder, hasAudit := core.ServiceAs[membership.Recorder](appCtx, sqlite.ServiceName)

	enforcer := membership.NewEnforcer(membership.EnforcerOptions{
		Oracle:    oracle,
		Executor:  exec,
		Backend:   backend,
		Recorder:  recorder,
		Metrics:   appCtx.Metrics,
		Logger:    logger,
		PublicURL: backend.PublicURL(),
		BotID: func() int64 {
			if id := bot.Me().ID; id != 0 {
				return id
			}
			return settings.BotID
		},
	})
	bot.SetHandler(membership.NewHandler(enforcer, exec, backend, logger, settings.KickOnBlock))

	appCtx.RegisterService(membership.ControlServiceName, membership.NewControl(membership.ControlOptions{
		API:        bot.Client(),
		Executor:   exec,
		Backend:    backend,
		Logger:     logger,
		Token:      bot.Token(),
		UnbanOnAdd: settings.UnbanOnAdd,
	}))

	logger.Info("membership wired",
		"audit_log", hasAudit,
		"kick_on_block", settings.KickOnBlock,
		"unban_on_add", settings.UnbanOnAdd,
	)
	return nil
}
