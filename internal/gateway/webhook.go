package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// WebhookHandlerFunc adapts a function to WebhookHandler.
type WebhookHandlerFunc func(ctx context.Context, source string, body []byte, headers http.Header) error

// HandleWebhook implements WebhookHandler.
func (f WebhookHandlerFunc) HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error {
	return f(ctx, source, body, headers)
}

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes incoming webhooks to registered handlers with
// optional HMAC validation. Sources that authenticate themselves (Telegram
// sends a secret token header) register without a secret.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	secrets  map[string]string
	maxBody  int64
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a ready-to-use dispatcher. secrets holds
// per-source HMAC secrets from the configuration; they apply when a
// registration does not bring its own.
func NewWebhookDispatcher(logger *slog.Logger, secrets map[string]string, maxBody int64) *WebhookDispatcher {
	if secrets == nil {
		secrets = map[string]string{}
	}
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		secrets:  secrets,
		maxBody:  maxBody,
		logger:   logger,
	}
}

// Register adds a handler for the given source with an optional HMAC secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	if secret == "" {
		secret = d.secrets[source]
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// RegisterFunc is Register for plain functions. Modules that must not import
// this package register through it.
func (d *WebhookDispatcher) RegisterFunc(source string, fn func(ctx context.Context, source string, body []byte, headers http.Header) error, secret string) {
	d.Register(source, WebhookHandlerFunc(fn), secret)
}

// Sources returns the number of registered sources.
func (d *WebhookDispatcher) Sources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL param,
// validates HMAC if configured, and dispatches to the registered handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	if d.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.maxBody)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	if entry.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if !validateHMAC(body, sig, entry.secret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if err := entry.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		d.logger.Warn("webhook handler rejected delivery", "source", source, "error", err)
		http.Error(w, "rejected", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
