package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

type apiCall struct {
	Method string
	Body   map[string]any
}

// fakeAPI is a recording Bot API server. send* methods without a canned
// response answer with a Message echoing chat_id; other methods answer
// {"ok":true,"result":true}.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	calls     []apiCall
	responses map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, responses: map[string]any{
		"getMe": APIResponse[User]{OK: true, Result: User{ID: 999, IsBot: true, FirstName: "Guild", Username: "guild_bot"}},
	}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	body := map[string]any{}
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Body: body})
	resp, ok := f.responses[method]
	f.mu.Unlock()

	if !ok {
		resp = defaultResponse(method, body)
	}
	writeJSON(f.t, w, resp)
}

func defaultResponse(method string, body map[string]any) any {
	if !strings.HasPrefix(method, "send") {
		return APIResponse[bool]{OK: true, Result: true}
	}
	var chatID int64
	if id, ok := body["chat_id"].(float64); ok {
		chatID = int64(id)
	}
	return APIResponse[Message]{OK: true, Result: Message{MessageID: 1, Chat: Chat{ID: chatID}}}
}

func (f *fakeAPI) respond(method string, resp any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = resp
}

func (f *fakeAPI) client() *Client { return NewClient("TOKEN", f.srv.URL) }

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// recordingHandler captures membership events.
type recordingHandler struct {
	mu       sync.Mutex
	joined   []MemberJoined
	requests []ChatJoinRequest
	left     []User
	blocked  []User
}

func (h *recordingHandler) OnMemberJoined(_ context.Context, ev MemberJoined) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined = append(h.joined, ev)
}

func (h *recordingHandler) OnJoinRequest(_ context.Context, req ChatJoinRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
}

func (h *recordingHandler) OnMemberLeft(_ context.Context, _ Chat, user User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, user)
}

func (h *recordingHandler) OnBotBlocked(_ context.Context, user User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked = append(h.blocked, user)
}

func newTestDispatcher(t *testing.T, api *fakeAPI, cfg Config) (*Dispatcher, *recordingHandler) {
	t.Helper()
	cfg.defaults()
	d := NewDispatcher(api.client(), discardLogger(), nil, cfg)
	d.setMe(User{ID: 999, IsBot: true, Username: "guild_bot"})
	h := &recordingHandler{}
	d.SetHandler(h)
	return d, h
}
