package gateway

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

// authMiddleware accepts either the static bearer token or an HS256 JWT,
// both sent as "Authorization: Bearer <value>". Comparisons of the static
// token are constant-time.
func authMiddleware(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeErrors(w, http.StatusUnauthorized, errorItem{Msg: "unauthorized"})
				return
			}

			if cfg.BearerToken != "" && constantTimeEqual(token, cfg.BearerToken) {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.JWTSecret != "" {
				if err := verifyJWT(cfg, token); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn("control API auth failed", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			writeErrors(w, http.StatusUnauthorized, errorItem{Msg: "unauthorized"})
		})
	}
}

// verifyJWT checks signature, expiry and, when configured, issuer and
// audience.
func verifyJWT(cfg AuthConfig, raw string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return errInvalidToken
	}
	return nil
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
