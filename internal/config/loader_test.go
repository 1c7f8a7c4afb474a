package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("GUILDBOT_TEST_SET", "value")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{"set variable", "a: ${GUILDBOT_TEST_SET}", "a: value", ""},
		{"default used", "a: ${GUILDBOT_TEST_UNSET:-fallback}", "a: fallback", ""},
		{"empty default", "a: ${GUILDBOT_TEST_UNSET:-}", "a: ", ""},
		{"set wins over default", "a: ${GUILDBOT_TEST_SET:-fallback}", "a: value", ""},
		{"unresolved", "a: ${GUILDBOT_TEST_UNSET}", "", "GUILDBOT_TEST_UNSET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("GUILDBOT_TEST_TOKEN", "123:abc")

	path := filepath.Join(t.TempDir(), "guildbot.yaml")
	body := `version: "1"
modules:
  bot.telegram:
    token: ${GUILDBOT_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	node, ok := cfg.Modules["bot.telegram"]
	if !ok {
		t.Fatal("bot.telegram missing")
	}
	var bot struct {
		Token string `yaml:"token"`
	}
	if err := node.Decode(&bot); err != nil {
		t.Fatal(err)
	}
	if bot.Token != "123:abc" {
		t.Errorf("token = %q", bot.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDefault_FromEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BACKEND_URL", "https://api.guild.test")
	t.Setenv("PORT", "9000")
	t.Setenv("UNBAN_AT_ADD_ACCESS", "false")
	t.Setenv("BOT_ID", "0")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q", cfg.Version)
	}

	var gw struct {
		Bind      string `yaml:"bind"`
		APIPrefix string `yaml:"prefix"`
	}
	node := cfg.Modules["gateway.http"]
	if err := node.Decode(&gw); err != nil {
		t.Fatal(err)
	}
	if gw.Bind != "0.0.0.0:9000" || gw.APIPrefix != "/api" {
		t.Errorf("gateway = %+v", gw)
	}

	var bot struct {
		UnbanOnAdd bool  `yaml:"unban_on_add"`
		BotID      int64 `yaml:"bot_id"`
	}
	node = cfg.Modules["bot.telegram"]
	if err := node.Decode(&bot); err != nil {
		t.Fatal(err)
	}
	if bot.UnbanOnAdd || bot.BotID != 0 {
		t.Errorf("bot = %+v", bot)
	}
}

func TestLoadDefault_RequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")
	t.Setenv("BACKEND_URL", "https://api.guild.test")

	_, err := LoadDefault()
	if err == nil || !strings.Contains(err.Error(), "BOT_TOKEN") {
		t.Fatalf("err = %v, want unresolved BOT_TOKEN", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GUILDBOT_DOTENV_TEST=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GUILDBOT_DOTENV_TEST") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("GUILDBOT_DOTENV_TEST"); got != "from-file" {
		t.Errorf("GUILDBOT_DOTENV_TEST = %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestLoadRuntime(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")

	rt, err := LoadRuntime()
	if err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	if !rt.Production() {
		t.Error("expected production")
	}
	if rt.Level() != slog.LevelDebug {
		t.Errorf("level = %v", rt.Level())
	}
	if rt.ServiceName != "guildbot" {
		t.Errorf("service name = %q", rt.ServiceName)
	}

	rt.LogLevel = "loud"
	if rt.Level() != slog.LevelInfo {
		t.Errorf("unknown level should fall back to info, got %v", rt.Level())
	}
}
