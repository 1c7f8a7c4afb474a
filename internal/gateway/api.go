package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/flemzord/guildbot/internal/membership"
	"github.com/flemzord/guildbot/internal/tglogin"
	"github.com/flemzord/guildbot/modules/bot/telegram"
	"github.com/go-chi/chi/v5"
)

// errorItem is one entry of an {"errors":[...]} body. Validation failures
// name the offending parameter and where it was read from.
type errorItem struct {
	Msg      string `json:"msg"`
	Param    string `json:"param,omitempty"`
	Location string `json:"location,omitempty"`
}

const invalidValue = "Invalid value"

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, code int, items ...errorItem) {
	writeJSON(w, code, map[string][]errorItem{"errors": items})
}

// fail answers a handler error. Bot API errors carry their description.
func (g *Gateway) fail(w http.ResponseWriter, op string, err error) {
	g.logger.Error("control API call failed", "op", op, "error", err)
	msg := err.Error()
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.Description != "" {
		msg = apiErr.Description
	}
	writeErrors(w, http.StatusBadRequest, errorItem{Msg: msg})
}

// validator collects field errors.
type validator struct {
	errs []errorItem
}

func (v *validator) invalid(location, param string) {
	v.errs = append(v.errs, errorItem{Msg: invalidValue, Param: param, Location: location})
}

func (v *validator) ok() bool { return len(v.errs) == 0 }

// id reads a numeric Telegram id given either as a JSON number or a string.
func (v *validator) id(location, param string, raw json.RawMessage) (int64, string) {
	s, ok := scalar(raw)
	if ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, s
		}
	}
	v.invalid(location, param)
	return 0, ""
}

func (v *validator) str(location, param string, raw json.RawMessage) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		v.invalid(location, param)
	}
	return s
}

func (v *validator) array(location, param string, raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &items) != nil || items == nil {
		v.invalid(location, param)
		return nil
	}
	return items
}

func (v *validator) oneOf(location, param string, raw json.RawMessage, allowed ...string) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil || !slices.Contains(allowed, s) {
		v.invalid(location, param)
	}
	return s
}

// scalar renders a JSON string or number as text.
func scalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

type object = map[string]json.RawMessage

// decodeBody reads a JSON body into dst. A malformed body is reported as a
// validation error on the body itself.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrors(w, http.StatusBadRequest, errorItem{Msg: invalidValue, Location: "body"})
		return false
	}
	return true
}

// pathID validates a numeric URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, errorItem{Msg: invalidValue, Param: name, Location: "params"})
		return 0, false
	}
	return id, true
}

// handleAccess processes a batch of ADD/REMOVE events.
func (g *Gateway) handleAccess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var items []object
		if !decodeBody(w, r, &items) {
			return
		}

		var v validator
		events := make([]membership.AccessEvent, len(items))
		for i, item := range items {
			p := fmt.Sprintf("[%d].", i)
			ev := membership.AccessEvent{
				Action: membership.Action(v.oneOf("body", p+"action", item["action"], "ADD", "REMOVE")),
			}
			ev.UserID, _ = v.id("body", p+"platformUserId", item["platformUserId"])
			ev.ChatID, _ = v.id("body", p+"platformGuildId", item["platformGuildId"])
			ev.GuildName = v.str("body", p+"guildName", item["guildName"])
			for j, role := range v.array("body", p+"roles", item["roles"]) {
				var ro object
				if json.Unmarshal(role, &ro) != nil {
					v.invalid("body", fmt.Sprintf("%sroles[%d].roleName", p, j))
					continue
				}
				ev.Roles = append(ev.Roles, v.str("body", fmt.Sprintf("%sroles[%d].roleName", p, j), ro["roleName"]))
			}
			events[i] = ev
		}
		if !v.ok() {
			writeErrors(w, http.StatusBadRequest, v.errs...)
			return
		}

		writeJSON(w, http.StatusOK, g.control.Access(r.Context(), events))
	}
}

// handleGuild acknowledges guild lifecycle events.
func (g *Gateway) handleGuild() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body object
		if !decodeBody(w, r, &body) {
			return
		}
		var v validator
		v.oneOf("body", "action", body["action"], "CREATE", "UPDATE", "DELETE")
		_, guildID := v.id("body", "platformGuildId", body["platformGuildId"])
		if !v.ok() {
			writeErrors(w, http.StatusBadRequest, v.errs...)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"platformGuildId":   guildID,
			"platformGuildData": map[string]any{},
		})
	}
}

// handleRole acknowledges role lifecycle events.
func (g *Gateway) handleRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body object
		if !decodeBody(w, r, &body) {
			return
		}
		var v validator
		v.oneOf("body", "action", body["action"], "CREATE", "UPDATE", "DELETE")
		v.id("body", "platformGuildId", body["platformGuildId"])
		var roleID any
		if raw, ok := body["platformRoleId"]; ok {
			_, roleID = v.id("body", "platformRoleId", raw)
		}
		if !v.ok() {
			writeErrors(w, http.StatusBadRequest, v.errs...)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"platformGuildData": map[string]any{},
			"platformRoleId":    roleID,
		})
	}
}

func (g *Gateway) handleInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := pathID(w, r, "platformGuildId")
		if !ok {
			return
		}
		info, err := g.control.Info(r.Context(), chatID)
		if err != nil {
			g.fail(w, "info", err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (g *Gateway) handleResolveUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := tglogin.Decode(r.Body)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, errorItem{Msg: invalidValue, Location: "body"})
			return
		}
		writeJSON(w, http.StatusOK, g.control.ResolveUser(p))
	}
}

func (g *Gateway) handleIsMember() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body object
		if !decodeBody(w, r, &body) {
			return
		}
		var v validator
		userID, _ := v.id("body", "platformUserId", body["platformUserId"])
		raw := v.array("body", "groupIds", body["groupIds"])
		groupIDs := make([]string, 0, len(raw))
		for i, item := range raw {
			s, ok := scalar(item)
			if !ok {
				v.invalid("body", fmt.Sprintf("groupIds[%d]", i))
				continue
			}
			groupIDs = append(groupIDs, s)
		}
		if !v.ok() {
			writeErrors(w, http.StatusBadRequest, v.errs...)
			return
		}
		writeJSON(w, http.StatusOK, g.control.IsMember(r.Context(), userID, groupIDs))
	}
}

func (g *Gateway) handleIsIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := pathID(w, r, "groupId")
		if !ok {
			return
		}
		res := g.control.IsIn(r.Context(), chatID)
		g.logger.Debug("isIn result", "group_id", chatID, "ok", res.OK)
		writeJSON(w, http.StatusOK, res)
	}
}

func (g *Gateway) handleUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "platformUserId")
		if !ok {
			return
		}
		info, err := g.control.User(r.Context(), userID)
		if err != nil {
			g.fail(w, "user", err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (g *Gateway) handleGroupName() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := pathID(w, r, "groupId")
		if !ok {
			return
		}
		name, err := g.control.GroupName(r.Context(), chatID)
		if err != nil {
			g.fail(w, "groupName", err)
			return
		}
		writeJSON(w, http.StatusOK, name)
	}
}
