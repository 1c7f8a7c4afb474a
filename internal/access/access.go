// Package access answers "may this Telegram user be in this chat?" by asking
// the Guild backend, and folds every backend failure into a denial.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/flemzord/guildbot/internal/obs"
	"github.com/flemzord/guildbot/modules/backend/guild"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Query identifies one (user, chat) pair. Both IDs are the Telegram
// numeric IDs rendered as strings, as the backend expects them.
type Query struct {
	PlatformUserID  string
	PlatformGuildID string
}

// Result is the normalized outcome of an access check.
// Granted is true if and only if Roles is non-empty; build values with
// NewResult or Denied to keep that true.
type Result struct {
	Granted       bool
	Roles         []string
	DeclineReason string
}

// NewResult builds a Result from the roles the backend returned.
func NewResult(roles []string) Result {
	return Result{Granted: len(roles) > 0, Roles: slices.Clone(roles)}
}

// Denied builds a Result without access, with an optional user-facing reason.
func Denied(reason string) Result {
	return Result{DeclineReason: reason}
}

// Backend is the part of the Guild backend the oracle reads.
type Backend interface {
	GetUserAccess(ctx context.Context, platformGuildID, platformUserID string) ([]string, error)
	GetGuildInfo(ctx context.Context, platformGuildID string) (guild.Info, error)
}

// ChatTitler resolves a chat's display title.
type ChatTitler interface {
	ChatTitle(ctx context.Context, chatID string) (string, error)
}

// Checker is implemented by Oracle and by test fakes.
type Checker interface {
	CheckAccess(ctx context.Context, q Query) Result
}

// Oracle checks access against the backend.
type Oracle struct {
	backend Backend
	titles  ChatTitler
	logger  *slog.Logger
	metrics *obs.Metrics
	tracer  trace.Tracer
}

var _ Checker = (*Oracle)(nil)

// NewOracle creates an Oracle. titles may be nil, in which case decline
// reasons name the guild instead of the chat.
func NewOracle(backend Backend, titles ChatTitler, logger *slog.Logger, metrics *obs.Metrics) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		backend: backend,
		titles:  titles,
		logger:  logger.With("component", "access"),
		metrics: metrics,
		tracer:  obs.Tracer(),
	}
}

// CheckAccess never returns an error: ambiguous backend failures deny.
func (o *Oracle) CheckAccess(ctx context.Context, q Query) Result {
	ctx, span := o.tracer.Start(ctx, "access.check", trace.WithAttributes(
		attribute.String("guildbot.user_id", q.PlatformUserID),
		attribute.String("guildbot.chat_id", q.PlatformGuildID),
	))
	defer span.End()

	roles, err := o.backend.GetUserAccess(ctx, q.PlatformGuildID, q.PlatformUserID)
	if err == nil {
		res := NewResult(roles)
		span.SetAttributes(attribute.Bool("guildbot.granted", res.Granted), attribute.Int("guildbot.roles", len(res.Roles)))
		if res.Granted {
			o.record("granted")
		} else {
			o.record("denied")
		}
		return res
	}

	span.RecordError(err)
	span.SetAttributes(attribute.Bool("guildbot.granted", false))

	switch {
	case guild.IsGuildNotFound(err):
		o.record("guild_not_found")
		o.logger.Error("no guild is associated with the group", "chat_id", q.PlatformGuildID)
		return Denied("")

	case guild.IsUserNotFound(err):
		o.record("user_not_found")
		return Denied(o.notConnectedReason(ctx, q))

	default:
		o.record("error")
		o.logger.Error("access check failed",
			"chat_id", q.PlatformGuildID,
			"user_id", q.PlatformUserID,
			"error", err,
		)
		return Denied("")
	}
}

// notConnectedReason tells a user whose Telegram account is unknown to Guild
// where to connect it. An empty string means the guild lookup failed.
func (o *Oracle) notConnectedReason(ctx context.Context, q Query) string {
	info, err := o.backend.GetGuildInfo(ctx, q.PlatformGuildID)
	if err != nil {
		o.logger.Error("guild lookup for decline reason failed", "chat_id", q.PlatformGuildID, "error", err)
		return ""
	}

	title := info.Name
	if o.titles != nil {
		if t, err := o.titles.ChatTitle(ctx, q.PlatformGuildID); err == nil && t != "" {
			title = t
		} else if err != nil {
			o.logger.Warn("chat title lookup failed", "chat_id", q.PlatformGuildID, "error", err)
		}
	}

	return NotConnectedMessage(title, info.URL)
}

// NotConnectedMessage is sent to users whose Telegram account is not linked
// to a Guild profile.
func NotConnectedMessage(chatTitle, guildURL string) string {
	return fmt.Sprintf("You have been kicked from the \"%s\" chat. Reason: Your telegram account is not connected with Guild. "+
		"If you would like to join, you can do it here: %s", chatTitle, guildURL)
}

func (o *Oracle) record(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordAccessCheck(outcome)
	}
}
