package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// Poller implements long-polling for receiving Telegram updates.
// The offset advances as soon as an update is handed off, independently of
// how long its handler takes.
type Poller struct {
	client   *Client
	dispatch func(Update)
	logger   *slog.Logger
	config   Config

	// pause is errorPauseDuration outside tests.
	pause time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a new Poller that hands every update to dispatch.
func NewPoller(client *Client, dispatch func(Update), logger *slog.Logger, config Config) *Poller {
	return &Poller{
		client:   client,
		dispatch: dispatch,
		logger:   logger,
		config:   config,
		pause:    errorPauseDuration,
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx)
}

// Stop signals the polling loop to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	var offset int
	var consecutiveErrors int

	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", p.pause,
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.pause):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.dispatch(update)
		}
	}
}
