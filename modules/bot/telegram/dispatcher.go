package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/flemzord/guildbot/internal/obs"
)

// UpdateKind tags an Update by the field that is set.
type UpdateKind string

// Update kinds the bot handles. Anything else is KindUnknown.
const (
	KindMessage         UpdateKind = "message"
	KindChannelPost     UpdateKind = "channel_post"
	KindChatMember      UpdateKind = "chat_member"
	KindMyChatMember    UpdateKind = "my_chat_member"
	KindChatJoinRequest UpdateKind = "chat_join_request"
	KindUnknown         UpdateKind = "unknown"
)

// Kind reports which variant the update carries.
func (u *Update) Kind() UpdateKind {
	switch {
	case u.Message != nil:
		return KindMessage
	case u.ChannelPost != nil:
		return KindChannelPost
	case u.ChatMember != nil:
		return KindChatMember
	case u.MyChatMember != nil:
		return KindMyChatMember
	case u.ChatJoinRequest != nil:
		return KindChatJoinRequest
	default:
		return KindUnknown
	}
}

// MemberJoined describes a user who just entered a chat.
type MemberJoined struct {
	Chat Chat
	User User
	// Inviter is the user who added the member, nil when they joined alone.
	Inviter    *User
	InviteLink *ChatInviteLink
	// ApprovedByBot marks the join that follows the bot approving the
	// user's join request.
	ApprovedByBot bool
}

// MembershipHandler receives the membership events the bot does not handle
// by itself. Implementations must be safe for concurrent use; every call
// runs on its own goroutine in polling mode.
type MembershipHandler interface {
	OnMemberJoined(ctx context.Context, ev MemberJoined)
	OnJoinRequest(ctx context.Context, req ChatJoinRequest)
	OnMemberLeft(ctx context.Context, chat Chat, user User)
	OnBotBlocked(ctx context.Context, user User)
}

// Dispatcher routes updates to the command, lifecycle and membership
// handlers. Polled updates run concurrently; Wait blocks until they finish.
type Dispatcher struct {
	client  *Client
	logger  *slog.Logger
	metrics *obs.Metrics
	config  Config

	mu      sync.RWMutex
	handler MembershipHandler
	me      User

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A nil metrics disables recording.
func NewDispatcher(client *Client, logger *slog.Logger, metrics *obs.Metrics, config Config) *Dispatcher {
	return &Dispatcher{
		client:  client,
		logger:  logger,
		metrics: metrics,
		config:  config,
	}
}

// SetHandler installs the membership handler. Events arriving before it is
// set are logged and dropped.
func (d *Dispatcher) SetHandler(h MembershipHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Dispatcher) setMe(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.me = u
}

func (d *Dispatcher) botUser() User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.me
}

func (d *Dispatcher) membership() MembershipHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler
}

// Go handles the update on its own goroutine.
func (d *Dispatcher) Go(ctx context.Context, u Update) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Handle(ctx, u)
	}()
}

// Wait blocks until every update started with Go has been handled.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Handle processes one update on the calling goroutine. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, u Update) {
	kind := u.Kind()
	if d.metrics != nil {
		d.metrics.RecordUpdate(string(kind))
		d.metrics.HandlerStarted()
		defer d.metrics.HandlerDone()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("update handler panicked",
				"update_id", u.UpdateID,
				"kind", kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	switch kind {
	case KindMessage:
		d.onMessage(ctx, u.Message)
	case KindChannelPost:
		d.onChannelPost(ctx, u.ChannelPost)
	case KindChatMember:
		d.onChatMember(ctx, u.ChatMember)
	case KindMyChatMember:
		d.onMyChatMember(ctx, u.MyChatMember)
	case KindChatJoinRequest:
		d.onJoinRequest(ctx, u.ChatJoinRequest)
	default:
		d.logger.Debug("skipping update", "update_id", u.UpdateID)
	}
}

// onChatMember turns a member status change into a join or leave. Joins
// come only from here; service messages (new_chat_members) are ignored so a
// user is never checked twice.
func (d *Dispatcher) onChatMember(ctx context.Context, upd *ChatMemberUpdated) {
	user := upd.NewChatMember.User
	botID := d.botUser().ID
	if user.ID == botID {
		return
	}
	h := d.membership()
	if h == nil {
		d.logger.Warn("membership handler not set, dropping chat member update", "chat_id", upd.Chat.ID)
		return
	}

	was, is := upd.OldChatMember.Present(), upd.NewChatMember.Present()
	switch {
	case !was && is && upd.NewChatMember.Status != StatusAdministrator && upd.NewChatMember.Status != StatusCreator:
		ev := MemberJoined{Chat: upd.Chat, User: user, InviteLink: upd.InviteLink}
		switch {
		case botID != 0 && upd.From.ID == botID:
			ev.ApprovedByBot = true
		case upd.From.ID != 0 && upd.From.ID != user.ID:
			inviter := upd.From
			ev.Inviter = &inviter
		}
		h.OnMemberJoined(ctx, ev)
	case was && !is:
		h.OnMemberLeft(ctx, upd.Chat, user)
	}
}

func (d *Dispatcher) onJoinRequest(ctx context.Context, req *ChatJoinRequest) {
	h := d.membership()
	if h == nil {
		d.logger.Warn("membership handler not set, dropping join request", "chat_id", req.Chat.ID)
		return
	}
	h.OnJoinRequest(ctx, *req)
}
