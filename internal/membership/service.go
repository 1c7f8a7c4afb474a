package membership

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flemzord/guildbot/internal/tglogin"
	"github.com/flemzord/guildbot/modules/bot/telegram"
	"golang.org/x/sync/errgroup"
)

// ControlServiceName is the service key of the control API's backing service.
const ControlServiceName = "membership.control"

// Action is what the orchestrator asks for one user.
type Action string

// Access actions.
const (
	ActionAdd    Action = "ADD"
	ActionRemove Action = "REMOVE"
)

// AccessEvent is one item of an access batch.
type AccessEvent struct {
	Action    Action
	UserID    int64
	ChatID    int64
	GuildName string
	Roles     []string
}

// AccessOutcome is the result of one AccessEvent. ErrorMsg is nil on
// success and when no detail is known.
type AccessOutcome struct {
	Success  bool    `json:"success"`
	ErrorMsg *string `json:"errorMsg"`
}

// GroupInfo is returned by Info.
type GroupInfo struct {
	Name   string `json:"name"`
	Invite string `json:"invite,omitempty"`
}

// IsInResult says whether the bot can manage a chat.
type IsInResult struct {
	OK        bool   `json:"ok"`
	GroupName string `json:"groupName,omitempty"`
	GroupIcon string `json:"groupIcon"`
	Message   string `json:"message,omitempty"`
}

// MemberStatus is one entry of an IsMember answer.
type MemberStatus struct {
	GroupID  string `json:"groupId"`
	IsMember bool   `json:"isMember"`
}

// UserInfo describes a Telegram user for the orchestrator.
type UserInfo struct {
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ResolvedUser is the answer to a login widget payload. PlatformUserID is
// nil when the signature does not match.
type ResolvedUser struct {
	PlatformUserID   any `json:"platformUserId"`
	PlatformUserData any `json:"platformUserData"`
}

// Texts returned by IsIn.
const (
	notSupergroupMessage = "This is not a Supergroup!\nPlease convert this group into a Supergroup first!"
	noRightsMessage      = "It seems like our Bot hasn't got the right permissions."
)

// ControlOptions configures a Control.
type ControlOptions struct {
	API        BotAPI
	Executor   *Executor
	Backend    Backend
	Logger     *slog.Logger
	Token      string
	UnbanOnAdd bool
}

// Control backs the HTTP control API.
type Control struct {
	api        BotAPI
	exec       *Executor
	backend    Backend
	logger     *slog.Logger
	token      string
	unbanOnAdd bool
}

// NewControl creates a Control.
func NewControl(opts ControlOptions) *Control {
	return &Control{
		api:        opts.API,
		exec:       opts.Executor,
		backend:    opts.Backend,
		logger:     opts.Logger,
		token:      opts.Token,
		unbanOnAdd: opts.UnbanOnAdd,
	}
}

// Access processes a batch concurrently. Outcomes keep the input order and a
// failing item never fails the batch.
func (c *Control) Access(ctx context.Context, events []AccessEvent) []AccessOutcome {
	out := make([]AccessOutcome, len(events))
	var g errgroup.Group
	g.SetLimit(16)
	for i, ev := range events {
		g.Go(func() error {
			out[i] = c.accessOne(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	c.logger.Debug("access batch done", "items", len(events))
	return out
}

func (c *Control) accessOne(ctx context.Context, ev AccessEvent) AccessOutcome {
	switch ev.Action {
	case ActionAdd:
		if c.unbanOnAdd {
			if err := c.exec.Unban(ctx, ev.ChatID, ev.UserID); err != nil {
				return failed(describe(err))
			}
		}
		return AccessOutcome{Success: c.exec.IsMember(ctx, ev.ChatID, ev.UserID)}

	case ActionRemove:
		var (
			url       string
			groupName string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			info, err := c.backend.GetGuildInfo(gctx, strconv.FormatInt(ev.ChatID, 10))
			url = info.URL
			return err
		})
		g.Go(func() error {
			var err error
			groupName, err = c.exec.GroupName(gctx, ev.ChatID)
			return err
		})
		if err := g.Wait(); err != nil {
			return failed(describe(err))
		}
		out := c.exec.Kick(ctx, ev.ChatID, ev.UserID, RemoveReason(groupName, url))
		res := AccessOutcome{Success: out.Removed}
		if out.ErrorMessage != "" {
			res.ErrorMsg = &out.ErrorMessage
		}
		return res

	default:
		return failed(fmt.Sprintf("unknown action %q", ev.Action))
	}
}

// RemoveReason is the kick notice sent when the orchestrator revokes access.
func RemoveReason(groupName, guildURL string) string {
	return fmt.Sprintf("You have been kicked from the group \"%s\". Reason: Have not fulfilled the requirements, "+
		"disconnected your Telegram account or just left the guild. If you want to check the guild, visit here: %s",
		groupName, guildURL)
}

func failed(msg string) AccessOutcome {
	return AccessOutcome{Success: false, ErrorMsg: &msg}
}

// Info returns the chat's name and a fresh join-request invite link. A
// failed invite leaves Invite empty.
func (c *Control) Info(ctx context.Context, chatID int64) (GroupInfo, error) {
	var info GroupInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, err := c.exec.GroupName(gctx, chatID)
		info.Name = name
		return err
	})
	g.Go(func() error {
		link, err := c.exec.Invite(gctx, chatID)
		if err != nil {
			c.logger.Error("invite link creation failed", "chat_id", chatID, "error", err)
			return nil
		}
		info.Invite = link
		return nil
	})
	if err := g.Wait(); err != nil {
		return GroupInfo{}, err
	}
	return info, nil
}

// IsIn checks that chatID is a supergroup or channel where the bot is an
// administrator, and returns its name and icon.
func (c *Control) IsIn(ctx context.Context, chatID int64) IsInResult {
	me, meErr := c.api.GetMe(ctx)
	chat, err := c.api.GetChat(ctx, chatID)
	if err != nil || meErr != nil {
		username := ""
		if me != nil {
			username = me.Username
		}
		return IsInResult{Message: fmt.Sprintf("You have to add @%s to your Telegram group/channel to continue!", username)}
	}
	if chat.Type != telegram.ChatSupergroup && chat.Type != telegram.ChatChannel {
		return IsInResult{Message: notSupergroupMessage}
	}
	member, err := c.api.GetChatMember(ctx, chatID, me.ID)
	if err != nil || member.Status != telegram.StatusAdministrator {
		return IsInResult{Message: noRightsMessage}
	}

	res := IsInResult{OK: true, GroupName: chat.Title}
	if chat.Photo != nil && chat.Photo.SmallFileID != "" {
		icon, err := c.photo(ctx, chat.Photo.SmallFileID)
		if err != nil {
			c.logger.Warn("group icon download failed", "chat_id", chatID, "error", err)
		}
		res.GroupIcon = icon
	}
	return res
}

// IsMember checks the user's membership in each group.
func (c *Control) IsMember(ctx context.Context, userID int64, groupIDs []string) []MemberStatus {
	out := make([]MemberStatus, len(groupIDs))
	var g errgroup.Group
	for i, gid := range groupIDs {
		g.Go(func() error {
			out[i] = MemberStatus{GroupID: gid}
			chatID, err := strconv.ParseInt(gid, 10, 64)
			if err != nil {
				return nil
			}
			out[i].IsMember = c.exec.IsMember(ctx, chatID, userID)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// User returns the user's username and avatar.
func (c *Control) User(ctx context.Context, userID int64) (UserInfo, error) {
	chat, err := c.api.GetChat(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	info := UserInfo{Username: chat.Username}
	if chat.Photo != nil && chat.Photo.SmallFileID != "" {
		avatar, err := c.photo(ctx, chat.Photo.SmallFileID)
		if err != nil {
			return UserInfo{}, err
		}
		info.Avatar = avatar
	}
	return info, nil
}

// GroupName returns the chat's title.
func (c *Control) GroupName(ctx context.Context, chatID int64) (string, error) {
	return c.exec.GroupName(ctx, chatID)
}

// ResolveUser checks a login widget payload against the bot token.
func (c *Control) ResolveUser(p tglogin.Payload) ResolvedUser {
	if !tglogin.Verify(c.token, p) {
		c.logger.Info("login payload rejected")
		return ResolvedUser{}
	}
	return ResolvedUser{PlatformUserID: p["id"]}
}

// photo downloads a profile picture as a data URL.
func (c *Control) photo(ctx context.Context, fileID string) (string, error) {
	f, err := c.api.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.FilePath == "" {
		return "", errors.New("membership: file has no path")
	}
	data, err := c.api.DownloadFile(ctx, f.FilePath)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
