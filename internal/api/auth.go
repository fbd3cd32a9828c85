package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Caller identity comes from a bearer token whose subject is the caller's
// address, the service's analogue of a transaction sender. The proxy core
// performs its own admin gating on that address; the middleware only
// authenticates it.

type contextKey struct{}

var callerKey contextKey

// CallerFromContext returns the authenticated caller address.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey).(common.Address)
	return addr, ok
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || !common.IsHexAddress(sub) {
			s.writeError(w, http.StatusUnauthorized, "token subject is not an address")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, common.HexToAddress(sub))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewToken issues a token for the given caller address, signed with the
// server's secret. Used by the CLI and by tests.
func NewToken(secret string, caller common.Address, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
