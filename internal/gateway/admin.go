package gateway

import (
	"net/http"
	"strconv"

	"github.com/flemzord/guildbot/internal/membership"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// handleDecisions lists recent admission decisions, newest first. It
// answers 404 when no audit log is loaded.
func (g *Gateway) handleDecisions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.decisions == nil {
			writeErrors(w, http.StatusNotFound, errorItem{Msg: "audit log not enabled"})
			return
		}

		limit := defaultDecisionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeErrors(w, http.StatusBadRequest, errorItem{Msg: invalidValue, Param: "limit", Location: "query"})
				return
			}
			limit = min(n, maxDecisionLimit)
		}

		recs, err := g.decisions.Recent(r.Context(), limit)
		if err != nil {
			g.fail(w, "decisions", err)
			return
		}
		if recs == nil {
			recs = []membership.DecisionRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}
