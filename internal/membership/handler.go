package membership

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/flemzord/guildbot/modules/bot/telegram"
	"golang.org/x/sync/errgroup"
)

const blockedReason = "You blocked the Guild bot, so it can no longer keep your membership up to date."

// Handler adapts Telegram membership updates to the Enforcer.
type Handler struct {
	enforcer    *Enforcer
	exec        *Executor
	backend     Backend
	logger      *slog.Logger
	kickOnBlock bool
}

var _ telegram.MembershipHandler = (*Handler)(nil)

// NewHandler creates a Handler. With kickOnBlock set, a user who blocks the
// bot is removed from every guild-connected group the backend knows about.
func NewHandler(enforcer *Enforcer, exec *Executor, backend Backend, logger *slog.Logger, kickOnBlock bool) *Handler {
	return &Handler{
		enforcer:    enforcer,
		exec:        exec,
		backend:     backend,
		logger:      logger,
		kickOnBlock: kickOnBlock,
	}
}

// OnMemberJoined implements telegram.MembershipHandler.
func (h *Handler) OnMemberJoined(ctx context.Context, j telegram.MemberJoined) {
	if j.ApprovedByBot {
		h.logger.Debug("join follows an approved request, already admitted", "chat_id", j.Chat.ID, "user_id", j.User.ID)
		return
	}
	ev := Event{
		Kind:      EventNewChatMember,
		ChatID:    j.Chat.ID,
		ChatTitle: j.Chat.DisplayName(),
		ChatType:  j.Chat.Type,
		UserID:    j.User.ID,
		UserName:  userName(j.User),
	}
	if j.Inviter != nil {
		ev.InviterID = j.Inviter.ID
		ev.InviterName = userName(*j.Inviter)
	}
	ev.InviteLink = inviteLink(j.InviteLink)
	h.enforcer.HandleNewChatMember(ctx, ev)
}

// OnJoinRequest implements telegram.MembershipHandler.
func (h *Handler) OnJoinRequest(ctx context.Context, r telegram.ChatJoinRequest) {
	h.enforcer.HandleJoinRequest(ctx, Event{
		Kind:       EventJoinRequest,
		ChatID:     r.Chat.ID,
		ChatTitle:  r.Chat.DisplayName(),
		ChatType:   r.Chat.Type,
		UserID:     r.From.ID,
		UserName:   userName(r.From),
		InviteLink: inviteLink(r.InviteLink),
	})
}

// OnMemberLeft tells the backend the user is gone. The call does not block
// the update.
func (h *Handler) OnMemberLeft(ctx context.Context, chat telegram.Chat, user telegram.User) {
	chatID, userID := strconv.FormatInt(chat.ID, 10), strconv.FormatInt(user.ID, 10)
	h.enforcer.Background(ctx, "removed_from_platform", func(ctx context.Context) error {
		return h.backend.RemovedFromPlatform(ctx, chatID, userID)
	})
}

// OnBotBlocked removes the user from their guild groups when enabled.
func (h *Handler) OnBotBlocked(ctx context.Context, user telegram.User) {
	if !h.kickOnBlock {
		return
	}
	groups, err := h.backend.UserGroups(ctx, strconv.FormatInt(user.ID, 10))
	if err != nil {
		h.logger.Error("fetching user groups failed", "user_id", user.ID, "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, gid := range groups {
		g.Go(func() error {
			chatID, err := strconv.ParseInt(gid, 10, 64)
			if err != nil {
				h.logger.Warn("backend returned a non-numeric group id", "group_id", gid)
				return nil
			}
			out := h.exec.Kick(ctx, chatID, user.ID, blockedReason)
			if !out.Removed {
				h.logger.Error("kick after block failed", "chat_id", chatID, "user_id", user.ID, "error", out.ErrorMessage)
			}
			return nil
		})
	}
	_ = g.Wait()
	h.logger.Info("user removed after blocking the bot", "user_id", user.ID, "groups", len(groups))
}

// Drain waits for background backend calls.
func (h *Handler) Drain(ctx context.Context) { h.enforcer.Drain(ctx) }

func userName(u telegram.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func inviteLink(l *telegram.ChatInviteLink) *InviteLink {
	if l == nil {
		return nil
	}
	return &InviteLink{Link: l.InviteLink, CreatorID: l.Creator.ID}
}
