package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/guildbot/internal/core"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime         int64    `json:"uptime_seconds"`
	Modules        []string `json:"modules"`
	WebhookSources int      `json:"webhook_sources"`
	AuditLog       bool     `json:"audit_log"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		names := make([]string, 0, len(mods))
		for _, m := range mods {
			names = append(names, string(m.ID))
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:         int64(time.Since(g.startedAt).Seconds()),
			Modules:        names,
			WebhookSources: g.dispatcher.Sources(),
			AuditLog:       g.decisions != nil,
		})
	}
}
