package guild

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a non-2xx answer from the Guild backend. Message carries the
// first entry of the backend's {"errors":[{"msg":...}]} payload.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("guild: backend error %d: %s", e.Status, e.Message)
}

const (
	guildNotFoundPrefix = "Cannot find guild"
	userNotFoundPrefix  = "Cannot find user"
)

// IsGuildNotFound reports whether err says the chat is not bound to a guild.
func IsGuildNotFound(err error) bool {
	return hasMessagePrefix(err, guildNotFoundPrefix)
}

// IsUserNotFound reports whether err says the Telegram account is not
// connected to any Guild user.
func IsUserNotFound(err error) bool {
	return hasMessagePrefix(err, userNotFoundPrefix)
}

func hasMessagePrefix(err error, prefix string) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return strings.HasPrefix(be.Message, prefix)
}
