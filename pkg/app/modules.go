package app

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/guildbot/internal/gateway"
	_ "github.com/flemzord/guildbot/modules/audit/sqlite"
	_ "github.com/flemzord/guildbot/modules/backend/guild"
	_ "github.com/flemzord/guildbot/modules/bot/telegram"
)
