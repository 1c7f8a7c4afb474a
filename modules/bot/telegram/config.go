package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config holds the bot.telegram module configuration.
type Config struct {
	Token          string   `yaml:"token"`
	BotID          int64    `yaml:"bot_id"`
	Mode           string   `yaml:"mode"`
	PollingTimeout int      `yaml:"polling_timeout"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	AllowedUpdates []string `yaml:"allowed_updates"`
	APIURL         string   `yaml:"api_url"`
	WebsiteURL     string   `yaml:"website_url"`

	// Outgoing calls per second; Telegram allows about 30.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	UnbanOnAdd      bool          `yaml:"unban_on_add"`
	KickOnBlock     bool          `yaml:"kick_on_block"`
	KickBanDuration time.Duration `yaml:"kick_ban_duration"`

	Media MediaConfig `yaml:"media"`
}

// MediaConfig points at the media sent while setting the bot up in a chat.
// Each value is a Telegram file id or an HTTP URL; empty disables it.
type MediaConfig struct {
	AdminGroupVideo   string `yaml:"admin_group_video"`
	AdminChannelVideo string `yaml:"admin_channel_video"`
	ChatIDImage       string `yaml:"chat_id_image"`
}

// Settings is the part of the configuration other packages act on.
type Settings struct {
	BotID           int64
	UnbanOnAdd      bool
	KickOnBlock     bool
	KickBanDuration time.Duration
	WebsiteURL      string
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = "polling"
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "channel_post", "chat_member", "my_chat_member", "chat_join_request"}
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	if c.WebsiteURL == "" {
		c.WebsiteURL = "https://guild.xyz"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 25
	}
	if c.RateBurst == 0 {
		c.RateBurst = 5
	}
	if c.KickBanDuration == 0 {
		c.KickBanDuration = 30 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("telegram: token is required"))
	} else if !tokenPattern.MatchString(c.Token) {
		errs = append(errs, errors.New("telegram: token format invalid (expected <bot_id>:<hash>)"))
	}

	switch c.Mode {
	case "polling":
	case "webhook":
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("telegram: webhook_url is required when mode is \"webhook\""))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", c.Mode))
	}

	for name, raw := range map[string]string{"api_url": c.APIURL, "website_url": c.WebsiteURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("telegram: %s must be a valid http/https URL, got %q", name, raw))
		}
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		errs = append(errs, fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout))
	}
	// Telegram treats bans shorter than 30s as permanent.
	if c.KickBanDuration < 30*time.Second || c.KickBanDuration > 24*time.Hour {
		errs = append(errs, fmt.Errorf("telegram: kick_ban_duration must be 30s-24h, got %s", c.KickBanDuration))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("telegram: rate_limit must not be negative, got %v", c.RateLimit))
	}
	return errors.Join(errs...)
}

func (c *Config) settings() Settings {
	return Settings{
		BotID:           c.BotID,
		UnbanOnAdd:      c.UnbanOnAdd,
		KickOnBlock:     c.KickOnBlock,
		KickBanDuration: c.KickBanDuration,
		WebsiteURL:      c.WebsiteURL,
	}
}
