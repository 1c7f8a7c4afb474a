package membership

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/guildbot/internal/access"
	"github.com/flemzord/guildbot/modules/backend/guild"
	"github.com/flemzord/guildbot/modules/bot/telegram"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Method string
	ChatID int64
	UserID int64
	Text   string
	Until  time.Time
}

// fakeBot records Bot API calls in order. errs maps a method name to the
// error it returns.
type fakeBot struct {
	mu      sync.Mutex
	calls   []call
	errs    map[string]error
	chats   map[int64]*telegram.Chat
	members map[int64]*telegram.ChatMember // keyed by user id
	me      telegram.User
	files   map[string][]byte
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		errs:    map[string]error{},
		chats:   map[int64]*telegram.Chat{},
		members: map[int64]*telegram.ChatMember{},
		me:      telegram.User{ID: 999, IsBot: true, Username: "guild_bot"},
		files:   map[string][]byte{},
	}
}

func (f *fakeBot) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.errs[c.Method]
}

func (f *fakeBot) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *fakeBot) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBot) GetMe(context.Context) (*telegram.User, error) {
	if err := f.record(call{Method: "getMe"}); err != nil {
		return nil, err
	}
	me := f.me
	return &me, nil
}

func (f *fakeBot) GetChat(_ context.Context, chatID int64) (*telegram.Chat, error) {
	if err := f.record(call{Method: "getChat", ChatID: chatID}); err != nil {
		return nil, err
	}
	if c, ok := f.chats[chatID]; ok {
		return c, nil
	}
	return &telegram.Chat{ID: chatID, Type: telegram.ChatSupergroup, Title: "Test Group"}, nil
}

func (f *fakeBot) GetChatMember(_ context.Context, chatID, userID int64) (*telegram.ChatMember, error) {
	if err := f.record(call{Method: "getChatMember", ChatID: chatID, UserID: userID}); err != nil {
		return nil, err
	}
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return &telegram.ChatMember{Status: telegram.StatusLeft}, nil
}

func (f *fakeBot) GetFile(_ context.Context, fileID string) (*telegram.File, error) {
	if err := f.record(call{Method: "getFile", Text: fileID}); err != nil {
		return nil, err
	}
	return &telegram.File{FileID: fileID, FilePath: "photos/" + fileID + ".jpg"}, nil
}

func (f *fakeBot) DownloadFile(_ context.Context, path string) ([]byte, error) {
	if err := f.record(call{Method: "download", Text: path}); err != nil {
		return nil, err
	}
	return f.files[path], nil
}

func (f *fakeBot) BanChatMember(_ context.Context, chatID, userID int64, until time.Time) error {
	return f.record(call{Method: "banChatMember", ChatID: chatID, UserID: userID, Until: until})
}

func (f *fakeBot) UnbanChatMember(_ context.Context, chatID, userID int64, _ bool) error {
	return f.record(call{Method: "unbanChatMember", ChatID: chatID, UserID: userID})
}

func (f *fakeBot) SendMessage(_ context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	if err := f.record(call{Method: "sendMessage", ChatID: req.ChatID, Text: req.Text}); err != nil {
		return nil, err
	}
	return &telegram.Message{MessageID: 1}, nil
}

func (f *fakeBot) CreateChatInviteLink(_ context.Context, req telegram.CreateChatInviteLinkRequest) (*telegram.ChatInviteLink, error) {
	if err := f.record(call{Method: "createChatInviteLink", ChatID: req.ChatID}); err != nil {
		return nil, err
	}
	return &telegram.ChatInviteLink{InviteLink: "https://t.me/+invite", CreatesJoinRequest: req.CreatesJoinRequest}, nil
}

func (f *fakeBot) ApproveChatJoinRequest(_ context.Context, chatID, userID int64) error {
	return f.record(call{Method: "approveChatJoinRequest", ChatID: chatID, UserID: userID})
}

func (f *fakeBot) DeclineChatJoinRequest(_ context.Context, chatID, userID int64) error {
	return f.record(call{Method: "declineChatJoinRequest", ChatID: chatID, UserID: userID})
}

// fakeBackend implements both Backend and access.Backend.
type fakeBackend struct {
	mu        sync.Mutex
	roles     []string
	accessErr error
	info      guild.Info
	infoErr   error
	groups    []string
	joined    []string
	removed   []string
	joinErr   error
}

func (b *fakeBackend) GetUserAccess(context.Context, string, string) ([]string, error) {
	return b.roles, b.accessErr
}

func (b *fakeBackend) GetGuildInfo(context.Context, string) (guild.Info, error) {
	return b.info, b.infoErr
}

func (b *fakeBackend) JoinedPlatform(_ context.Context, guildID, userID, refID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined = append(b.joined, guildID+"/"+userID+"/"+refID)
	return b.joinErr
}

func (b *fakeBackend) RemovedFromPlatform(_ context.Context, guildID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, guildID+"/"+userID)
	return nil
}

func (b *fakeBackend) UserGroups(context.Context, string) ([]string, error) {
	return b.groups, nil
}

func (b *fakeBackend) joinedCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.joined...)
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []DecisionRecord
}

func (r *fakeRecorder) Record(_ context.Context, rec DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

type fixture struct {
	bot      *fakeBot
	backend  *fakeBackend
	recorder *fakeRecorder
	exec     *Executor
	enforcer *Enforcer
}

func newFixture() *fixture {
	bot := newFakeBot()
	backend := &fakeBackend{info: guild.Info{Name: "Test Guild", URL: "https://guild.xyz/test?utm_source=telegram"}}
	rec := &fakeRecorder{}
	exec := NewExecutor(bot, discardLogger(), 0)
	oracle := access.NewOracle(backend, exec, discardLogger(), nil)
	enf := NewEnforcer(EnforcerOptions{
		Oracle:    oracle,
		Executor:  exec,
		Backend:   backend,
		Recorder:  rec,
		Logger:    discardLogger(),
		PublicURL: "https://guild.xyz",
		BotID:     func() int64 { return 999 },
	})
	return &fixture{bot: bot, backend: backend, recorder: rec, exec: exec, enforcer: enf}
}
