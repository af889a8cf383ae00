package identity

import (
	"context"
	"net/http"
)

// Identity is the already-authenticated caller: a user id for logged-in
// customers or a guest token for anonymous carts. Exactly one side is set.
type Identity struct {
	UserID  string
	GuestID string
}

func (id Identity) Zero() bool { return id.UserID == "" && id.GuestID == "" }

// Key returns the cart owner key used for cache and cart lookup.
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.GuestID
}

type ctxKey struct{}

func With(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func From(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// Middleware lifts the upstream auth layer's headers into the request
// context. Token verification happens before this service; X-User-Id wins
// when both headers are present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{}
		if v := r.Header.Get("X-User-Id"); v != "" {
			id.UserID = v
		} else if v := r.Header.Get("X-Guest-Id"); v != "" {
			id.GuestID = v
		}
		next.ServeHTTP(w, r.WithContext(With(r.Context(), id)))
	})
}

// Require rejects requests that carry neither identity header.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if From(r.Context()).Zero() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing identity"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
