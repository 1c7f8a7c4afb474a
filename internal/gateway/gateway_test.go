package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/guildbot/internal/core"
	"github.com/flemzord/guildbot/internal/membership"
	"github.com/flemzord/guildbot/internal/obs"
	"github.com/flemzord/guildbot/internal/tglogin"
	"gopkg.in/yaml.v3"
)

// fakeControl answers the control API from canned values and records the
// events it was handed.
type fakeControl struct {
	events   []membership.AccessEvent
	groupIDs []string
	infoErr  error
	userErr  error
}

func (f *fakeControl) Access(_ context.Context, events []membership.AccessEvent) []membership.AccessOutcome {
	f.events = events
	out := make([]membership.AccessOutcome, len(events))
	for i, ev := range events {
		out[i].Success = ev.Action == membership.ActionRemove
	}
	return out
}

func (f *fakeControl) Info(_ context.Context, chatID int64) (membership.GroupInfo, error) {
	if f.infoErr != nil {
		return membership.GroupInfo{}, f.infoErr
	}
	return membership.GroupInfo{Name: "Test Group", Invite: "https://t.me/+invite"}, nil
}

func (f *fakeControl) IsIn(_ context.Context, chatID int64) membership.IsInResult {
	if chatID == 1 {
		return membership.IsInResult{Message: "no"}
	}
	return membership.IsInResult{OK: true, GroupName: "Test Group"}
}

func (f *fakeControl) IsMember(_ context.Context, _ int64, groupIDs []string) []membership.MemberStatus {
	f.groupIDs = groupIDs
	out := make([]membership.MemberStatus, len(groupIDs))
	for i, id := range groupIDs {
		out[i] = membership.MemberStatus{GroupID: id, IsMember: i == 0}
	}
	return out
}

func (f *fakeControl) User(context.Context, int64) (membership.UserInfo, error) {
	if f.userErr != nil {
		return membership.UserInfo{}, f.userErr
	}
	return membership.UserInfo{Username: "alice"}, nil
}

func (f *fakeControl) GroupName(context.Context, int64) (string, error) {
	return "Test Group", nil
}

func (f *fakeControl) ResolveUser(p tglogin.Payload) membership.ResolvedUser {
	return membership.ResolvedUser{PlatformUserID: p["id"], PlatformUserData: nil}
}

// fakeDecisions is an in-memory DecisionLog.
type fakeDecisions struct {
	recs      []membership.DecisionRecord
	lastLimit int
}

func (f *fakeDecisions) Recent(_ context.Context, limit int) ([]membership.DecisionRecord, error) {
	f.lastLimit = limit
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}
	}
	return doc.Content[0]
}

// newTestGateway returns a configured, provisioned gateway with a fake
// control service bound. It is not started.
func newTestGateway(t *testing.T, cfgYAML string) (*Gateway, *fakeControl) {
	t.Helper()
	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, cfgYAML)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(core.NewAppContext(testLogger(), obs.NewMetrics(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	ctl := &fakeControl{}
	g.control = ctl
	return g, ctl
}

func serve(g *Gateway, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rr, req)
	return rr
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Gateway{}).ModuleInfo()
	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want gateway.http", info.ID)
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatal(err)
	}
	c := g.config
	if c.Bind != "0.0.0.0:8991" || c.Prefix != "/api" || c.MaxBodyBytes != 1<<20 {
		t.Errorf("defaults = %+v", c)
	}
	if c.ReadTimeout != 10*time.Second || c.WriteTimeout != time.Minute || c.ShutdownTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v/%v", c.ReadTimeout, c.WriteTimeout, c.ShutdownTimeout)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	err := g.Configure(mustYAMLNode(t, `
bind: "127.0.0.1:9000"
prefix: "control/"
auth:
  bearer_token: "tok"
webhooks:
  billing:
    secret: "s3"
read_timeout: 2s
`))
	if err != nil {
		t.Fatal(err)
	}
	if g.config.Bind != "127.0.0.1:9000" || g.config.Prefix != "/control" {
		t.Errorf("config = %+v", g.config)
	}
	if g.config.Auth.BearerToken != "tok" || g.config.Webhooks["billing"].Secret != "s3" {
		t.Errorf("auth/webhooks = %+v / %+v", g.config.Auth, g.config.Webhooks)
	}
	if g.config.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v", g.config.ReadTimeout)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"defaults", "{}", ""},
		{"bad bind", `bind: "nope"`, "invalid bind address"},
		{"root prefix", `prefix: "/"`, "root path"},
		{"short jwt secret", "auth:\n  jwt_secret: short", "at least 32 bytes"},
		{"long jwt secret", "auth:\n  jwt_secret: " + strings.Repeat("k", 32), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{}
			if err := g.Configure(mustYAMLNode(t, tt.yaml)); err != nil {
				t.Fatal(err)
			}
			err := g.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_ProvisionRegistersDispatcher(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "webhooks:\n  telegram:\n    secret: s")); err != nil {
		t.Fatal(err)
	}
	appCtx := core.NewAppContext(testLogger(), obs.NewMetrics(), t.TempDir())
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	d, ok := core.ServiceAs[*WebhookDispatcher](appCtx, WebhookDispatcherService)
	if !ok || d != g.dispatcher {
		t.Fatalf("dispatcher service = %v, %v", d, ok)
	}
	if d.secrets["telegram"] != "s" {
		t.Errorf("configured secret not passed to dispatcher: %v", d.secrets)
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, `bind: "`+addr+`"`)); err != nil {
		t.Fatal(err)
	}
	appCtx := core.NewAppContext(testLogger(), obs.NewMetrics(), t.TempDir())
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	appCtx.RegisterService(membership.ControlServiceName, Control(&fakeControl{}))
	appCtx.RegisterService(DecisionLogService, membership.DecisionLog(&fakeDecisions{}))

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	if g.control == nil || g.decisions == nil {
		t.Fatal("services were not resolved at Start")
	}

	var resp *http.Response
	var err error
	for range 50 {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestGateway_StartWithoutControl(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, `bind: "`+addr+`"`)); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(core.NewAppContext(testLogger(), nil, t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = g.Stop(context.Background()) }()

	rr := serve(g, http.MethodGet, "/api/info/100", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while control is missing", rr.Code)
	}
}

func TestGateway_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := (&Gateway{}).Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
}

func TestGateway_RequestID(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, "{}")

	rr := serve(g, http.MethodGet, "/health", "", nil)
	if rr.Header().Get(requestIDHeader) == "" {
		t.Error("missing generated request id")
	}
	rr = serve(g, http.MethodGet, "/health", "", http.Header{requestIDHeader: {"abc"}})
	if got := rr.Header().Get(requestIDHeader); got != "abc" {
		t.Errorf("request id = %q, want caller's", got)
	}
}

func TestGateway_BodyLimit(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, "max_body_bytes: 16")
	rr := serve(g, http.MethodPost, "/api/isMember", `{"platformUserId":42,"groupIds":["100","200","300"]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an oversized body", rr.Code)
	}
}

func TestFail_UsesAPIErrorDescription(t *testing.T) {
	t.Parallel()

	g, ctl := newTestGateway(t, "{}")
	ctl.infoErr = errors.New("chat not found")

	rr := serve(g, http.MethodGet, "/api/info/100", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body struct {
		Errors []errorItem `json:"errors"`
	}
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Errors) != 1 || body.Errors[0].Msg != "chat not found" {
		t.Errorf("errors = %+v", body.Errors)
	}
}
