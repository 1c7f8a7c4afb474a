package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/flemzord/guildbot/internal/access"
	"github.com/flemzord/guildbot/internal/obs"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// registerTimeout bounds background calls to the backend.
const registerTimeout = 15 * time.Second

// Enforcer applies the access-grant admission policy: whoever holds at least
// one role in the chat's guild may stay, everyone else is kicked or declined.
type Enforcer struct {
	oracle    access.Checker
	exec      *Executor
	backend   Backend
	recorder  Recorder
	metrics   *obs.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	publicURL string
	botID     func() int64

	bg sync.WaitGroup
}

// EnforcerOptions bundles the Enforcer's collaborators. Recorder and
// Metrics are optional.
type EnforcerOptions struct {
	Oracle    access.Checker
	Executor  *Executor
	Backend   Backend
	Recorder  Recorder
	Metrics   *obs.Metrics
	Logger    *slog.Logger
	PublicURL string
	// BotID returns the bot's own user id; it is only known after start.
	BotID func() int64
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(opts EnforcerOptions) *Enforcer {
	if opts.BotID == nil {
		opts.BotID = func() int64 { return 0 }
	}
	return &Enforcer{
		oracle:    opts.Oracle,
		exec:      opts.Executor,
		backend:   opts.Backend,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		tracer:    obs.Tracer(),
		publicURL: opts.PublicURL,
		botID:     opts.BotID,
	}
}

// GenericReason is sent when the backend gave no user-facing reason.
func GenericReason(publicURL string) string {
	return fmt.Sprintf("You have no access to this reward. You can check the requirements here: %s", publicURL)
}

func query(ev Event) access.Query {
	return access.Query{
		PlatformUserID:  strconv.FormatInt(ev.UserID, 10),
		PlatformGuildID: strconv.FormatInt(ev.ChatID, 10),
	}
}

// HandleNewChatMember checks a user who is already in the chat and kicks
// them when they lack access.
func (e *Enforcer) HandleNewChatMember(ctx context.Context, ev Event) Decision {
	ctx, span := e.startSpan(ctx, "membership.new_chat_member", ev)
	defer span.End()

	res := e.oracle.CheckAccess(ctx, query(ev))
	if !res.Granted {
		reason := res.DeclineReason
		if reason == "" {
			reason = GenericReason(e.publicURL)
		}
		outcome := e.exec.Kick(ctx, ev.ChatID, ev.UserID, reason)
		if !outcome.Removed {
			e.logger.Error("kick failed", "chat_id", ev.ChatID, "user_id", ev.UserID, "error", outcome.ErrorMessage)
		}
		e.notifyInviter(ctx, ev)
		return e.decided(ctx, span, ev, res, Decision{Kind: Kick, Reason: reason})
	}

	refID := ""
	if ev.InviteLink != nil {
		refID = ev.InviteLink.Link
	}
	e.Background(ctx, "joined_platform", func(ctx context.Context) error {
		return e.backend.JoinedPlatform(ctx, strconv.FormatInt(ev.ChatID, 10), strconv.FormatInt(ev.UserID, 10), refID)
	})
	welcome := ev
	if ev.InviterID != 0 && ev.InviterID == e.botID() {
		welcome.InviterName = ""
	}
	_ = e.exec.Notify(ctx, ev.UserID, welcomeMessage(welcome))
	return e.decided(ctx, span, ev, res, Decision{Kind: Admit})
}

// HandleJoinRequest answers a join request. Approve or decline is always the
// last Telegram call; on approval the join is registered with the backend
// first.
func (e *Enforcer) HandleJoinRequest(ctx context.Context, ev Event) Decision {
	ctx, span := e.startSpan(ctx, "membership.join_request", ev)
	defer span.End()

	res := e.oracle.CheckAccess(ctx, query(ev))
	if !res.Granted {
		reason := res.DeclineReason
		if reason == "" {
			reason = GenericReason(e.publicURL)
		}
		_ = e.exec.Notify(ctx, ev.UserID, reason)
		if err := e.exec.Decline(ctx, ev.ChatID, ev.UserID); err != nil {
			span.RecordError(err)
		}
		return e.decided(ctx, span, ev, res, Decision{Kind: Reject, Reason: reason})
	}

	refID := ""
	if ev.InviteLink != nil {
		refID = ev.InviteLink.Link
	}
	if err := e.backend.JoinedPlatform(ctx, strconv.FormatInt(ev.ChatID, 10), strconv.FormatInt(ev.UserID, 10), refID); err != nil {
		e.logger.Error("registering join failed", "chat_id", ev.ChatID, "user_id", ev.UserID, "error", err)
	}
	if err := e.exec.Approve(ctx, ev.ChatID, ev.UserID); err != nil {
		span.RecordError(err)
	}
	return e.decided(ctx, span, ev, res, Decision{Kind: Admit})
}

func (e *Enforcer) notifyInviter(ctx context.Context, ev Event) {
	if ev.InviterID == 0 || ev.InviterID == ev.UserID || ev.InviterID == e.botID() {
		return
	}
	name := ev.UserName
	if name == "" {
		name = strconv.FormatInt(ev.UserID, 10)
	}
	_ = e.exec.Notify(ctx, ev.InviterID, fmt.Sprintf(
		"%s was removed from \"%s\" because they have no access to it.", name, ev.ChatTitle))
}

func welcomeMessage(ev Event) string {
	if ev.InviterName != "" {
		return fmt.Sprintf("Welcome to \"%s\"! You were added by %s.", ev.ChatTitle, ev.InviterName)
	}
	return fmt.Sprintf("Welcome to \"%s\"!", ev.ChatTitle)
}

func (e *Enforcer) startSpan(ctx context.Context, name string, ev Event) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("telegram.chat.id", ev.ChatID),
		attribute.Int64("telegram.user.id", ev.UserID),
	))
}

// decided records the decision in every sink and returns it.
func (e *Enforcer) decided(ctx context.Context, span trace.Span, ev Event, res access.Result, d Decision) Decision {
	span.SetAttributes(attribute.String("membership.decision", string(d.Kind)))
	if e.metrics != nil {
		e.metrics.RecordDecision(string(ev.Kind), string(d.Kind))
	}
	e.logger.Info("admission decision",
		"event", ev.Kind,
		"chat_id", ev.ChatID,
		"user_id", ev.UserID,
		"decision", d.Kind,
		"roles", len(res.Roles),
	)
	if e.recorder != nil {
		rec := DecisionRecord{
			ID:        ulid.Make().String(),
			Event:     ev.Kind,
			ChatID:    ev.ChatID,
			UserID:    ev.UserID,
			Decision:  string(d.Kind),
			Reason:    d.Reason,
			Roles:     res.Roles,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.recorder.Record(ctx, rec); err != nil {
			e.logger.Warn("recording decision failed", "error", err)
		}
	}
	return d
}

// Background runs fn detached from ctx's cancellation with its own timeout.
// Failures are logged. Drain waits for these calls.
func (e *Enforcer) Background(ctx context.Context, op string, fn func(context.Context) error) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registerTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Error("background backend call failed", "op", op, "error", err)
		}
	}()
}

// Drain waits for background calls to finish or ctx to expire.
func (e *Enforcer) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("background backend calls still running at shutdown")
	}
}
