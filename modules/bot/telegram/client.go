package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flemzord/guildbot/internal/obs"
	"golang.org/x/time/rate"
)

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20
)

// Client is a thin HTTP wrapper around the Telegram Bot API.
// It is safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	metrics *obs.Metrics
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRateLimit caps outgoing calls at perSecond with the given burst.
// A zero or negative rate disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *obs.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new Telegram Bot API client.
func NewClient(token, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON POST request to the given Bot API method and decodes the response.
// It handles 429 rate limiting with Retry-After (max 3 retries, exponential backoff).
func do[T any](ctx context.Context, c *Client, method string, payload any) (result *T, err error) {
	if c.metrics != nil {
		defer func() { c.metrics.RecordTelegramCall(method, err) }()
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var data []byte
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
	}

	backoff := initialBackoff

	for attempt := range maxRetries {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("telegram: %s rate limit wait: %w", method, err)
			}
		}

		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// The raw URL carries the token; keep it out of the message.
			return nil, fmt.Errorf("telegram: %s request failed: %w", method, redactURLError(err))
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			var apiResp APIResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		var apiResp APIResponse[T]
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
		}

		if !apiResp.OK {
			apiErr := &APIError{
				Method:      method,
				Code:        apiResp.ErrorCode,
				Description: apiResp.Description,
			}
			if apiResp.Parameters != nil {
				apiErr.RetryAfter = apiResp.Parameters.RetryAfter
			}
			return nil, apiErr
		}

		return &apiResp.Result, nil
	}

	return nil, fmt.Errorf("telegram: %s: max retries exceeded", method)
}

// urlError strips the request URL from transport errors.
type urlError struct{ err error }

func (e urlError) Error() string { return e.err.Error() }
func (e urlError) Unwrap() error { return e.err }

func redactURLError(err error) error {
	if ue, ok := err.(interface{ Unwrap() error }); ok {
		if inner := ue.Unwrap(); inner != nil {
			return urlError{err: inner}
		}
	}
	return err
}

// GetUpdatesRequest is the request body for the getUpdates method.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhookRequest is the request body for the setWebhook method.
type SetWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
	MaxConnections int      `json:"max_connections,omitempty"`
}

// SendMessageRequest is the request body for the sendMessage method.
type SendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int                   `json:"reply_to_message_id,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMediaRequest is the request body for sendPhoto and sendAnimation.
// Media is a file id or an HTTP URL.
type SendMediaRequest struct {
	ChatID    int64  `json:"chat_id"`
	Media     string `json:"-"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// CreateChatInviteLinkRequest is the request body for createChatInviteLink.
type CreateChatInviteLinkRequest struct {
	ChatID             int64  `json:"chat_id"`
	Name               string `json:"name,omitempty"`
	ExpireDate         int64  `json:"expire_date,omitempty"`
	MemberLimit        int    `json:"member_limit,omitempty"`
	CreatesJoinRequest bool   `json:"creates_join_request,omitempty"`
}

type chatRequest struct {
	ChatID int64 `json:"chat_id"`
}

type chatUserRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

type banChatMemberRequest struct {
	ChatID         int64 `json:"chat_id"`
	UserID         int64 `json:"user_id"`
	UntilDate      int64 `json:"until_date,omitempty"`
	RevokeMessages bool  `json:"revoke_messages,omitempty"`
}

type unbanChatMemberRequest struct {
	ChatID       int64 `json:"chat_id"`
	UserID       int64 `json:"user_id"`
	OnlyIfBanned bool  `json:"only_if_banned,omitempty"`
}

type getFileRequest struct {
	FileID string `json:"file_id"`
}

type setMyCommandsRequest struct {
	Commands []BotCommand `json:"commands"`
}

type setDefaultAdminRightsRequest struct {
	Rights      ChatAdministratorRights `json:"rights"`
	ForChannels bool                    `json:"for_channels,omitempty"`
}

// GetMe returns the bot's user information.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// GetUpdates fetches incoming updates using long polling.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := do[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SetWebhook configures the webhook URL for receiving updates.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := do[bool](ctx, c, "setWebhook", req)
	return err
}

// DeleteWebhook removes the current webhook integration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := do[bool](ctx, c, "deleteWebhook", nil)
	return err
}

// GetChat returns up-to-date information about a chat.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	return do[Chat](ctx, c, "getChat", chatRequest{ChatID: chatID})
}

// GetChatMember returns a user's membership in a chat.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	return do[ChatMember](ctx, c, "getChatMember", chatUserRequest{ChatID: chatID, UserID: userID})
}

// BanChatMember bans a user until the given time. A zero time bans forever.
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	req := banChatMemberRequest{ChatID: chatID, UserID: userID}
	if !until.IsZero() {
		req.UntilDate = until.Unix()
	}
	_, err := do[bool](ctx, c, "banChatMember", req)
	return err
}

// UnbanChatMember lifts a ban. With onlyIfBanned, a present member is left alone.
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error {
	_, err := do[bool](ctx, c, "unbanChatMember", unbanChatMemberRequest{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: onlyIfBanned,
	})
	return err
}

// SendMessage sends a text message to the specified chat.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "sendMessage", req)
}

// SendPhoto sends a photo to the specified chat.
func (c *Client) SendPhoto(ctx context.Context, req SendMediaRequest) (*Message, error) {
	return do[Message](ctx, c, "sendPhoto", mediaPayload("photo", req))
}

// SendAnimation sends a GIF or muted video to the specified chat.
func (c *Client) SendAnimation(ctx context.Context, req SendMediaRequest) (*Message, error) {
	return do[Message](ctx, c, "sendAnimation", mediaPayload("animation", req))
}

func mediaPayload(field string, req SendMediaRequest) map[string]any {
	p := map[string]any{"chat_id": req.ChatID, field: req.Media}
	if req.Caption != "" {
		p["caption"] = req.Caption
	}
	if req.ParseMode != "" {
		p["parse_mode"] = req.ParseMode
	}
	return p
}

// CreateChatInviteLink creates an additional invite link for a chat.
func (c *Client) CreateChatInviteLink(ctx context.Context, req CreateChatInviteLinkRequest) (*ChatInviteLink, error) {
	return do[ChatInviteLink](ctx, c, "createChatInviteLink", req)
}

// ApproveChatJoinRequest lets the user into the chat.
func (c *Client) ApproveChatJoinRequest(ctx context.Context, chatID, userID int64) error {
	_, err := do[bool](ctx, c, "approveChatJoinRequest", chatUserRequest{ChatID: chatID, UserID: userID})
	return err
}

// DeclineChatJoinRequest turns the user's request down.
func (c *Client) DeclineChatJoinRequest(ctx context.Context, chatID, userID int64) error {
	_, err := do[bool](ctx, c, "declineChatJoinRequest", chatUserRequest{ChatID: chatID, UserID: userID})
	return err
}

// SetMyCommands replaces the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	_, err := do[bool](ctx, c, "setMyCommands", setMyCommandsRequest{Commands: commands})
	return err
}

// SetMyDefaultAdministratorRights sets the rights suggested when the bot is
// added as an administrator.
func (c *Client) SetMyDefaultAdministratorRights(ctx context.Context, rights ChatAdministratorRights, forChannels bool) error {
	_, err := do[bool](ctx, c, "setMyDefaultAdministratorRights", setDefaultAdminRightsRequest{
		Rights:      rights,
		ForChannels: forChannels,
	})
	return err
}

// GetFile retrieves basic info about a file and prepares it for downloading.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	return do[File](ctx, c, "getFile", getFileRequest{FileID: fileID})
}

// FileURL returns the download URL for a file path returned by GetFile.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
}

// DownloadFile fetches the content of a file path returned by GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(filePath), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", redactURLError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram: read file: %w", err)
	}
	return data, nil
}
