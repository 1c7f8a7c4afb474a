package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/guildbot/modules/bot/telegram"
)

const kickedPrefix = "You have been kicked from"

// Executor performs the Telegram side effects of a decision. Only the
// primary action (ban, approve, decline) can fail an operation; messages to
// users are best effort.
type Executor struct {
	api         BotAPI
	logger      *slog.Logger
	banDuration time.Duration
	now         func() time.Time
}

// NewExecutor creates an Executor. banDuration is how long a kicked user
// stays banned before they may rejoin.
func NewExecutor(api BotAPI, logger *slog.Logger, banDuration time.Duration) *Executor {
	if banDuration <= 0 {
		banDuration = 30 * time.Second
	}
	return &Executor{api: api, logger: logger, banDuration: banDuration, now: time.Now}
}

// Kick removes the user from the chat with a temporary ban, then tells them
// why. A user who is already gone counts as removed.
func (e *Executor) Kick(ctx context.Context, chatID, userID int64, reason string) KickOutcome {
	log := e.logger.With("chat_id", chatID, "user_id", userID)

	if err := e.api.BanChatMember(ctx, chatID, userID, e.now().Add(e.banDuration)); err != nil {
		if telegram.IsNotMember(err) {
			log.Info("kick skipped, user is not in the chat", "error", err)
			return KickOutcome{Removed: true, ErrorMessage: fmt.Sprintf("user %d is not a member of chat %d", userID, chatID)}
		}
		log.Error("ban failed", "error", err)
		return KickOutcome{Removed: false, ErrorMessage: describe(err)}
	}

	title, err := e.GroupName(ctx, chatID)
	if err != nil {
		log.Warn("could not fetch chat title for kick message", "error", err)
		title = strconv.FormatInt(chatID, 10)
	}

	if err := e.Notify(ctx, userID, kickMessage(title, reason)); err != nil {
		msg := fmt.Sprintf("The bot can't initiate conversation with user %q", strconv.FormatInt(userID, 10))
		log.Warn(msg)
		return KickOutcome{Removed: true, ErrorMessage: msg}
	}
	log.Info("user kicked")
	return KickOutcome{Removed: true}
}

// kickMessage keeps complete kick notices as they are and wraps bare reasons.
func kickMessage(title, reason string) string {
	switch {
	case strings.HasPrefix(reason, kickedPrefix):
		return reason
	case reason == "":
		return fmt.Sprintf("%s the group %s.", kickedPrefix, title)
	default:
		return fmt.Sprintf("%s the group %s. Reason: %s", kickedPrefix, title, reason)
	}
}

// Approve lets a join request through.
func (e *Executor) Approve(ctx context.Context, chatID, userID int64) error {
	if err := e.api.ApproveChatJoinRequest(ctx, chatID, userID); err != nil {
		e.logger.Error("approve join request failed", "chat_id", chatID, "user_id", userID, "error", err)
		return err
	}
	return nil
}

// Decline turns a join request down.
func (e *Executor) Decline(ctx context.Context, chatID, userID int64) error {
	if err := e.api.DeclineChatJoinRequest(ctx, chatID, userID); err != nil {
		e.logger.Error("decline join request failed", "chat_id", chatID, "user_id", userID, "error", err)
		return err
	}
	return nil
}

// Notify sends a plain text DM. Failures are logged as warnings.
func (e *Executor) Notify(ctx context.Context, userID int64, text string) error {
	_, err := e.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:                userID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		e.logger.Warn("direct message failed", "user_id", userID, "error", err)
	}
	return err
}

// Invite creates a join-request-gated invite link.
func (e *Executor) Invite(ctx context.Context, chatID int64) (string, error) {
	link, err := e.api.CreateChatInviteLink(ctx, telegram.CreateChatInviteLinkRequest{
		ChatID:             chatID,
		CreatesJoinRequest: true,
	})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// Unban lifts a ban without touching users who are not banned.
func (e *Executor) Unban(ctx context.Context, chatID, userID int64) error {
	return e.api.UnbanChatMember(ctx, chatID, userID, true)
}

// IsMember reports whether the user is in the chat. Any error reads as no.
func (e *Executor) IsMember(ctx context.Context, chatID, userID int64) bool {
	m, err := e.api.GetChatMember(ctx, chatID, userID)
	if err != nil {
		e.logger.Debug("getChatMember failed", "chat_id", chatID, "user_id", userID, "error", err)
		return false
	}
	return m.Present()
}

// GroupName returns the chat's title.
func (e *Executor) GroupName(ctx context.Context, chatID int64) (string, error) {
	chat, err := e.api.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	return chat.DisplayName(), nil
}

// ChatTitle is GroupName keyed by the string chat id the backend uses.
func (e *Executor) ChatTitle(ctx context.Context, chatID string) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("membership: invalid chat id %q: %w", chatID, err)
	}
	return e.GroupName(ctx, id)
}

// describe returns the Bot API description when there is one.
func describe(err error) string {
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.Description != "" {
		return apiErr.Description
	}
	return err.Error()
}
