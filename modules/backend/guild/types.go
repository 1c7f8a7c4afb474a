package guild

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Guild is the backend's view of the guild bound to a Telegram chat.
type Guild struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URLName string `json:"urlName"`
}

// Info is what user-facing messages need to point at a guild.
type Info struct {
	Name string
	URL  string
}

// JoinedPlatformRequest registers that a user entered a guild's chat.
type JoinedPlatformRequest struct {
	Platform       string `json:"platform"`
	PlatformUserID string `json:"platformUserId"`
	GroupID        string `json:"groupId"`
	RefID          string `json:"refId,omitempty"`
}

// RemovedFromPlatformRequest registers that a user left a guild's chat.
type RemovedFromPlatformRequest struct {
	Platform       string `json:"platform"`
	PlatformUserID string `json:"platformUserId"`
	GroupID        string `json:"groupId"`
}

type errorPayload struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

type roleEntry struct {
	RoleID   json.RawMessage `json:"roleId"`
	RoleName string          `json:"roleName"`
	Name     string          `json:"name"`
}

// UnmarshalJSON accepts a role object, a bare role name or a bare role id.
func (r *roleEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &r.RoleName)
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		r.RoleID = json.RawMessage(n.String())
		return nil
	}
	type plain roleEntry
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = roleEntry(p)
	return nil
}

func (r roleEntry) identifier() string {
	switch {
	case r.RoleName != "":
		return r.RoleName
	case r.Name != "":
		return r.Name
	case len(r.RoleID) > 0 && string(r.RoleID) != "null":
		var s string
		if err := json.Unmarshal(r.RoleID, &s); err == nil {
			return s
		}
		return string(r.RoleID)
	default:
		return ""
	}
}

// decodeRoles accepts both access payload shapes the backend has served:
// a bare array of roles and an object with a "roles" array. Entries may be
// role objects or plain names.
func decodeRoles(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var entries []roleEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Roles []roleEntry `json:"roles"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("guild: decode access roles: %w", err)
		}
		entries = wrapped.Roles
	}

	roles := make([]string, 0, len(entries))
	for _, e := range entries {
		if id := e.identifier(); id != "" {
			roles = append(roles, id)
		}
	}
	return roles, nil
}
