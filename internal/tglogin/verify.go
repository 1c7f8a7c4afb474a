// Package tglogin verifies Telegram Login Widget payloads.
//
// The widget signs every field except "hash" with HMAC-SHA256. The key is the
// SHA-256 digest of the bot token, and the signed message is the list of
// "key=value" lines sorted lexicographically and joined with "\n".
package tglogin

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Payload is a decoded login widget payload. Numbers are kept as
// json.Number so that they are signed exactly as they were sent.
type Payload map[string]any

// Decode reads a JSON payload from r.
func Decode(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("tglogin: decode payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// DataCheckString builds the signed message of p.
func DataCheckString(p Payload) string {
	lines := make([]string, 0, len(p))
	for k, v := range p {
		if k == "hash" {
			continue
		}
		lines = append(lines, k+"="+stringify(v))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Sign returns the hex signature of p for the given bot token.
func Sign(token string, p Payload) string {
	key := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(DataCheckString(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether p carries a valid signature for token.
func Verify(token string, p Payload) bool {
	got, ok := p["hash"].(string)
	if !ok || got == "" {
		return false
	}
	want := Sign(token, p)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}

// stringify renders values the way they appear in the widget's query string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}
