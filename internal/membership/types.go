// Package membership decides who may stay in a guild-gated Telegram chat and
// carries the decision out: kicks, join request approval, notifications and
// the batch ADD/REMOVE operations of the control API.
package membership

import (
	"context"
	"time"

	"github.com/flemzord/guildbot/modules/backend/guild"
	"github.com/flemzord/guildbot/modules/bot/telegram"
)

// EventKind tags a membership event.
type EventKind string

// Membership event kinds.
const (
	EventNewChatMember EventKind = "new_chat_member"
	EventJoinRequest   EventKind = "join_request"
)

// InviteLink describes the link a member joined through.
type InviteLink struct {
	Link      string
	CreatorID int64
}

// Event is the narrow view of a Telegram update the enforcer works on.
type Event struct {
	Kind        EventKind
	ChatID      int64
	ChatTitle   string
	ChatType    string
	UserID      int64
	UserName    string
	InviterID   int64 // 0 when unknown
	InviterName string
	InviteLink  *InviteLink
}

// DecisionKind is the outcome of an admission check.
type DecisionKind string

// Decision kinds.
const (
	Admit  DecisionKind = "admit"
	Reject DecisionKind = "reject"
	Kick   DecisionKind = "kick"
)

// Decision is produced by the Enforcer for one event.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// KickOutcome reports whether a kick left the user outside the chat.
type KickOutcome struct {
	Removed      bool
	ErrorMessage string
}

// DecisionRecord is what the audit log keeps for one decision.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Event     EventKind `json:"event"`
	ChatID    int64     `json:"chatId"`
	UserID    int64     `json:"userId"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder persists decisions. Failures are logged and never change the
// decision.
type Recorder interface {
	Record(ctx context.Context, rec DecisionRecord) error
}

// DecisionLog lists recently recorded decisions, newest first.
type DecisionLog interface {
	Recent(ctx context.Context, limit int) ([]DecisionRecord, error)
}

// BotAPI is the part of the Telegram client membership needs.
type BotAPI interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetChat(ctx context.Context, chatID int64) (*telegram.Chat, error)
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
	BanChatMember(ctx context.Context, chatID, userID int64, until time.Time) error
	UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	CreateChatInviteLink(ctx context.Context, req telegram.CreateChatInviteLinkRequest) (*telegram.ChatInviteLink, error)
	ApproveChatJoinRequest(ctx context.Context, chatID, userID int64) error
	DeclineChatJoinRequest(ctx context.Context, chatID, userID int64) error
}

// Backend is the part of the Guild backend membership needs.
type Backend interface {
	GetGuildInfo(ctx context.Context, platformGuildID string) (guild.Info, error)
	JoinedPlatform(ctx context.Context, platformGuildID, platformUserID, refID string) error
	RemovedFromPlatform(ctx context.Context, platformGuildID, platformUserID string) error
	UserGroups(ctx context.Context, platformUserID string) ([]string, error)
}

var (
	_ BotAPI  = (*telegram.Client)(nil)
	_ Backend = (*guild.Client)(nil)
)
