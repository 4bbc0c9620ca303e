package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderAccountID  = "X-Account-Id"
	HeaderGuestToken = "X-Guest-Token"
	HeaderRole       = "X-Role"

	RoleAdmin = "admin"
)

// Caller is who a request acts for. Token validation happens upstream; by the
// time a request reaches this service the identity headers are trusted.
type Caller struct {
	AccountID  *uuid.UUID
	GuestToken string
	Role       string
}

func (c Caller) IsAdmin() bool { return strings.EqualFold(c.Role, RoleAdmin) }

type callerKey struct{}

func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// Identify reads the identity headers into the request context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Caller{
			GuestToken: strings.TrimSpace(r.Header.Get(HeaderGuestToken)),
			Role:       strings.TrimSpace(r.Header.Get(HeaderRole)),
		}
		if raw := r.Header.Get(HeaderAccountID); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid account id"})
				return
			}
			c.AccountID = &id
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
	})
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.EqualFold(CallerFrom(r.Context()).Role, role) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
