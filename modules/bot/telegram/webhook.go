package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// secretHeader carries the secret_token given to setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver processes incoming Telegram webhook payloads. Updates are
// handled inline on the request goroutine.
type WebhookReceiver struct {
	dispatcher *Dispatcher
	secret     string
}

// NewWebhookReceiver creates a new WebhookReceiver.
func NewWebhookReceiver(dispatcher *Dispatcher, secret string) *WebhookReceiver {
	return &WebhookReceiver{dispatcher: dispatcher, secret: secret}
}

// HandleWebhook validates the secret token header, parses the update and
// dispatches it. Handler failures are logged, not returned, so Telegram does
// not redeliver an update that was already acted on.
func (w *WebhookReceiver) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return errors.New("telegram: invalid webhook secret token")
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("telegram: invalid update JSON: %w", err)
	}

	// The request context ends when Telegram hangs up; handlers outlive it.
	w.dispatcher.Handle(context.WithoutCancel(ctx), update)
	return nil
}
