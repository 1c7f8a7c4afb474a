package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/guildbot/internal/core"
	"gopkg.in/yaml.v3"
)

const testToken = "123456:ABC-test_token"

func configureBot(t *testing.T, raw string) (*Bot, *core.AppContext) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatal(err)
	}
	b := &Bot{}
	if err := b.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	appCtx := core.NewAppContext(discardLogger(), nil, "")
	if err := b.Provision(appCtx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return b, appCtx
}

// TestLifecycle exercises Configure → Provision → Validate → Start →
// join request → Stop in polling mode against a mock Bot API.
func TestLifecycle(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	served := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		methods = append(methods, method)
		first := !served && method == "getUpdates"
		if first {
			served = true
		}
		mu.Unlock()

		switch method {
		case "getMe":
			writeJSON(t, w, APIResponse[User]{OK: true, Result: User{ID: 123456, IsBot: true, Username: "guild_bot"}})
		case "getUpdates":
			if first {
				writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{
					{UpdateID: 1, ChatJoinRequest: &ChatJoinRequest{Chat: testGroup, From: User{ID: 42}}},
				}})
				return
			}
			writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
			time.Sleep(50 * time.Millisecond)
		default:
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})
		}
	}))
	defer srv.Close()

	b, appCtx := configureBot(t, "token: "+testToken+"\napi_url: "+srv.URL+"\npolling_timeout: 0\n")
	if got, ok := core.ServiceAs[*Bot](appCtx, ServiceName); !ok || got != b {
		t.Fatal("bot not registered as a service")
	}

	if err := b.Start(); err == nil {
		t.Fatal("Start() without a handler should fail")
	}

	h := &recordingHandler{}
	b.SetHandler(h)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if b.Me().Username != "guild_bot" {
		t.Errorf("Me() = %+v", b.Me())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.requests)
		h.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) != 1 {
		t.Fatalf("join requests = %d, want 1", len(h.requests))
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{"setMyCommands": false, "setMyDefaultAdministratorRights": false, "deleteWebhook": false}
	for _, m := range methods {
		if _, ok := want[m]; ok {
			want[m] = true
		}
	}
	for m, seen := range want {
		if !seen {
			t.Errorf("%s was not called at start", m)
		}
	}
}

type fakeRegistrar struct {
	source string
	fn     WebhookFunc
}

func (f *fakeRegistrar) RegisterFunc(source string, fn WebhookFunc, _ string) {
	f.source = source
	f.fn = fn
}

func TestStart_WebhookRegistersWithGateway(t *testing.T) {
	api := newFakeAPI(t)
	b, appCtx := configureBot(t, "token: "+testToken+"\napi_url: "+api.srv.URL+
		"\nmode: webhook\nwebhook_url: https://bot.example.com/webhooks/telegram\nwebhook_secret: s3cret\n")
	reg := &fakeRegistrar{}
	appCtx.RegisterService(webhookDispatcherService, reg)
	h := &recordingHandler{}
	b.SetHandler(h)

	if err := b.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if reg.source != "telegram" || reg.fn == nil {
		t.Fatalf("registrar = %+v", reg)
	}
	set := api.callsTo("setWebhook")
	if len(set) != 1 || set[0].Body["secret_token"] != "s3cret" {
		t.Fatalf("setWebhook calls = %+v", set)
	}

	body, _ := json.Marshal(Update{ChatJoinRequest: &ChatJoinRequest{Chat: testGroup, From: User{ID: 42}}})
	headers := http.Header{}
	headers.Set(secretHeader, "s3cret")
	if err := reg.fn(context.Background(), "telegram", body, headers); err != nil {
		t.Fatalf("webhook delivery: %v", err)
	}
	if len(h.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(h.requests))
	}

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if len(api.callsTo("deleteWebhook")) != 1 {
		t.Error("deleteWebhook not called on stop")
	}
}

func TestStart_WebhookWithoutGatewayFails(t *testing.T) {
	api := newFakeAPI(t)
	b, _ := configureBot(t, "token: "+testToken+"\napi_url: "+api.srv.URL+
		"\nmode: webhook\nwebhook_url: https://bot.example.com/webhooks/telegram\n")
	b.SetHandler(&recordingHandler{})

	if err := b.Start(); err == nil || !strings.Contains(err.Error(), "gateway.http") {
		t.Errorf("Start() error = %v, want missing gateway", err)
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Mode != "polling" || c.PollingTimeout != 30 || c.KickBanDuration != 30*time.Second {
		t.Errorf("defaults = %+v", c)
	}
	want := []string{"message", "channel_post", "chat_member", "my_chat_member", "chat_join_request"}
	if strings.Join(c.AllowedUpdates, ",") != strings.Join(want, ",") {
		t.Errorf("AllowedUpdates = %v", c.AllowedUpdates)
	}
	s := c.settings()
	if s.WebsiteURL != "https://guild.xyz" || s.KickBanDuration != 30*time.Second {
		t.Errorf("settings = %+v", s)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{Token: testToken}, ""},
		{"missing token", Config{}, "token is required"},
		{"bad token", Config{Token: "nope"}, "token format invalid"},
		{"bad mode", Config{Token: testToken, Mode: "push"}, "invalid mode"},
		{"webhook without url", Config{Token: testToken, Mode: "webhook"}, "webhook_url is required"},
		{"bad api url", Config{Token: testToken, APIURL: "ftp://x"}, "api_url"},
		{"polling timeout", Config{Token: testToken, PollingTimeout: 90}, "polling_timeout"},
		{"short ban", Config{Token: testToken, KickBanDuration: time.Second}, "kick_ban_duration"},
		{"negative rate", Config{Token: testToken, RateLimit: -1}, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.defaults()
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigure_DecodesAdmissionSettings(t *testing.T) {
	b, _ := configureBot(t, "token: "+testToken+"\nbot_id: 123456\nunban_on_add: true\nkick_on_block: true\nkick_ban_duration: 1m\n")
	s := b.Settings()
	if !s.UnbanOnAdd || !s.KickOnBlock || s.KickBanDuration != time.Minute || s.BotID != 123456 {
		t.Errorf("settings = %+v", s)
	}
	if b.Token() != testToken {
		t.Errorf("Token() = %q", b.Token())
	}
}
