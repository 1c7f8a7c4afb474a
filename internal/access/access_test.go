package access

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/quick"

	"github.com/flemzord/guildbot/internal/obs"
	"github.com/flemzord/guildbot/modules/backend/guild"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeBackend struct {
	roles    []string
	err      error
	info     guild.Info
	infoErr  error
	calls    int
	infoHits int
}

func (f *fakeBackend) GetUserAccess(_ context.Context, _, _ string) ([]string, error) {
	f.calls++
	return f.roles, f.err
}

func (f *fakeBackend) GetGuildInfo(_ context.Context, _ string) (guild.Info, error) {
	f.infoHits++
	return f.info, f.infoErr
}

type fakeTitles struct {
	title string
	err   error
}

func (f fakeTitles) ChatTitle(context.Context, string) (string, error) { return f.title, f.err }

var query = Query{PlatformUserID: "42", PlatformGuildID: "100"}

func TestNewResult_GrantedIffRoles(t *testing.T) {
	f := func(roles []string) bool {
		r := NewResult(roles)
		return r.Granted == (len(r.Roles) > 0)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
	if Denied("x").Granted {
		t.Error("Denied result must not be granted")
	}
}

func TestCheckAccess_Roles(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		granted bool
	}{
		{"member role", []string{"Member"}, true},
		{"no roles", []string{}, false},
		{"nil roles", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOracle(&fakeBackend{roles: tt.roles}, nil, nil, nil)
			got := o.CheckAccess(context.Background(), query)
			if got.Granted != tt.granted {
				t.Errorf("Granted = %v, want %v", got.Granted, tt.granted)
			}
			if got.DeclineReason != "" {
				t.Errorf("DeclineReason = %q, want empty", got.DeclineReason)
			}
		})
	}
}

func TestCheckAccess_UserNotFoundBuildsInvitation(t *testing.T) {
	backend := &fakeBackend{
		err:  &guild.Error{Status: 404, Message: "Cannot find user 42"},
		info: guild.Info{Name: "Our Guild", URL: "https://guild.xyz/our-guild?utm_source=telegram"},
	}
	o := NewOracle(backend, fakeTitles{title: "Holders"}, nil, nil)

	got := o.CheckAccess(context.Background(), query)
	if got.Granted {
		t.Fatal("expected denial")
	}
	want := `You have been kicked from the "Holders" chat. Reason: Your telegram account is not connected with Guild. ` +
		`If you would like to join, you can do it here: https://guild.xyz/our-guild?utm_source=telegram`
	if got.DeclineReason != want {
		t.Errorf("DeclineReason = %q\nwant %q", got.DeclineReason, want)
	}
}

func TestCheckAccess_UserNotFoundTitleFallsBackToGuildName(t *testing.T) {
	backend := &fakeBackend{
		err:  &guild.Error{Status: 404, Message: "Cannot find user 42"},
		info: guild.Info{Name: "Our Guild", URL: "https://guild.xyz/our-guild"},
	}
	o := NewOracle(backend, fakeTitles{err: errors.New("chat not found")}, nil, nil)

	got := o.CheckAccess(context.Background(), query)
	if !strings.Contains(got.DeclineReason, `"Our Guild"`) {
		t.Errorf("DeclineReason = %q", got.DeclineReason)
	}
}

func TestCheckAccess_UserNotFoundGuildLookupFails(t *testing.T) {
	backend := &fakeBackend{
		err:     &guild.Error{Status: 404, Message: "Cannot find user 42"},
		infoErr: errors.New("backend down"),
	}
	got := NewOracle(backend, nil, nil, nil).CheckAccess(context.Background(), query)
	if got.Granted || got.DeclineReason != "" {
		t.Errorf("got %+v, want plain denial", got)
	}
}

func TestCheckAccess_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"guild not found", &guild.Error{Status: 404, Message: "Cannot find guild 100"}},
		{"server error", &guild.Error{Status: 500, Message: "Internal Server Error"}},
		{"transport", errors.New("dial tcp: connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{err: tt.err}
			got := NewOracle(backend, nil, nil, nil).CheckAccess(context.Background(), query)
			if got.Granted || got.DeclineReason != "" || len(got.Roles) != 0 {
				t.Errorf("got %+v, want plain denial", got)
			}
			if backend.infoHits != 0 {
				t.Error("guild info must only be fetched for unknown users")
			}
		})
	}
}

func TestCheckAccess_Idempotent(t *testing.T) {
	for _, b := range []*fakeBackend{
		{roles: []string{"Member"}},
		{roles: nil},
		{err: errors.New("boom")},
	} {
		o := NewOracle(b, nil, nil, nil)
		first := o.CheckAccess(context.Background(), query)
		second := o.CheckAccess(context.Background(), query)
		if first.Granted != second.Granted {
			t.Errorf("granted changed between calls: %v then %v", first.Granted, second.Granted)
		}
		if b.calls != 2 {
			t.Errorf("backend calls = %d, want 2 (no caching)", b.calls)
		}
	}
}

func TestCheckAccess_RecordsOutcome(t *testing.T) {
	m := obs.NewMetrics()
	o := NewOracle(&fakeBackend{err: &guild.Error{Message: "Cannot find guild 1"}}, nil, nil, m)
	o.CheckAccess(context.Background(), query)

	expected := `
# HELP guildbot_access_checks_total Access checks against the Guild backend by outcome.
# TYPE guildbot_access_checks_total counter
guildbot_access_checks_total{outcome="guild_not_found"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "guildbot_access_checks_total"); err != nil {
		t.Error(err)
	}
}
