// Package guild talks to the Guild authorization backend: who has access to
// which chat, which guild a chat belongs to, and join/leave registration.
package guild

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/guildbot/internal/obs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 1 << 20

// Client is a thin HTTP wrapper around the Guild backend API.
// It is safe for concurrent use.
type Client struct {
	baseURL   string
	publicURL string
	platform  string
	http      *http.Client
	metrics   *obs.Metrics
	tracer    trace.Tracer
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	PublicURL string
	Platform  string
	Timeout   time.Duration
	Metrics   *obs.Metrics
}

// NewClient creates a backend client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Platform == "" {
		opts.Platform = "TELEGRAM"
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		platform:  opts.Platform,
		http:      &http.Client{Timeout: opts.Timeout},
		metrics:   opts.Metrics,
		tracer:    obs.Tracer(),
	}
}

// Platform returns the platform name sent to the backend.
func (c *Client) Platform() string { return c.platform }

// do sends one request and decodes a 2xx JSON answer into T. Non-2xx
// answers become *Error. There is no retry: callers decide what an
// unavailable backend means for them.
func do[T any](ctx context.Context, c *Client, op, method, path string, payload any) (result *T, err error) {
	ctx, span := c.tracer.Start(ctx, "guild."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.RecordBackendCall(op, err)
		}
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("guild: marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("guild: create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guild: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("guild: read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, raw)
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("guild: decode %s response: %w", op, err)
	}
	return &out, nil
}

func decodeError(status int, raw []byte) *Error {
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Errors) > 0 && payload.Errors[0].Msg != "" {
		return &Error{Status: status, Message: payload.Errors[0].Msg}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" || len(msg) > 200 {
		msg = http.StatusText(status)
	}
	return &Error{Status: status, Message: msg}
}

// GetUserAccess returns the roles the user holds in the guild bound to the
// given chat. An empty slice means no access.
func (c *Client) GetUserAccess(ctx context.Context, platformGuildID, platformUserID string) ([]string, error) {
	path := fmt.Sprintf("/guild/access/%s/%s/%s",
		url.PathEscape(c.platform), url.PathEscape(platformGuildID), url.PathEscape(platformUserID))
	raw, err := do[json.RawMessage](ctx, c, "user_access", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeRoles(*raw)
}

// GetGuild returns the guild bound to the given chat.
func (c *Client) GetGuild(ctx context.Context, platformGuildID string) (*Guild, error) {
	path := fmt.Sprintf("/guild/platform/%s/%s", url.PathEscape(c.platform), url.PathEscape(platformGuildID))
	return do[Guild](ctx, c, "guild", http.MethodGet, path, nil)
}

// GetGuildInfo returns the guild's name and its public page URL.
func (c *Client) GetGuildInfo(ctx context.Context, platformGuildID string) (Info, error) {
	g, err := c.GetGuild(ctx, platformGuildID)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: g.Name, URL: c.GuildURL(g.URLName)}, nil
}

// GuildURL builds the public page link for a guild's url name.
func (c *Client) GuildURL(urlName string) string {
	return fmt.Sprintf("%s/%s?utm_source=%s", c.publicURL, url.PathEscape(urlName), strings.ToLower(c.platform))
}

// PublicURL is the guild site root, used when no guild is known.
func (c *Client) PublicURL() string { return c.publicURL }

// JoinedPlatform records that the user entered the chat.
func (c *Client) JoinedPlatform(ctx context.Context, platformGuildID, platformUserID, refID string) error {
	_, err := do[json.RawMessage](ctx, c, "joined_platform", http.MethodPost, "/user/joinedPlatform", JoinedPlatformRequest{
		Platform:       c.platform,
		PlatformUserID: platformUserID,
		GroupID:        platformGuildID,
		RefID:          refID,
	})
	return err
}

// RemovedFromPlatform records that the user left the chat.
func (c *Client) RemovedFromPlatform(ctx context.Context, platformGuildID, platformUserID string) error {
	_, err := do[json.RawMessage](ctx, c, "removed_from_platform", http.MethodPost, "/user/removeFromPlatform", RemovedFromPlatformRequest{
		Platform:       c.platform,
		PlatformUserID: platformUserID,
		GroupID:        platformGuildID,
	})
	return err
}

// UserGroups returns the guild-connected chats the user belongs to.
func (c *Client) UserGroups(ctx context.Context, platformUserID string) ([]string, error) {
	path := fmt.Sprintf("/user/platformGroups/%s/%s", url.PathEscape(c.platform), url.PathEscape(platformUserID))
	raw, err := do[[]json.RawMessage](ctx, c, "user_groups", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(*raw))
	for _, item := range *raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			groups = append(groups, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			groups = append(groups, n.String())
		}
	}
	return groups, nil
}
