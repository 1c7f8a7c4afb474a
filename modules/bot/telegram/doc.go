// Package telegram implements the Telegram side of guildbot.
//
// It provides:
//
//   - A Bot API client with 429 retry and an outgoing rate limit
//   - Two intake modes: long polling (default) and webhook via the HTTP gateway
//   - An update dispatcher that tags updates by kind, runs each one on its own
//     goroutine and recovers from handler panics
//   - The bot's own commands (/help, /start, /ping, /groupid, /add) and the
//     setup messages sent when it is added to a chat
//
// Membership events (joins, join requests, leaves, blocks) are forwarded to a
// MembershipHandler installed with Bot.SetHandler; the package makes no
// admission decision itself.
//
// The module registers itself as "bot.telegram" via init(). No external
// Telegram library is used; the client speaks the Bot API over net/http.
package telegram
