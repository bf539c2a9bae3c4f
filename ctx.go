package auth

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithSession sets the acting Session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the acting session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// ActorIDFromContext returns the identity id of the acting session, if any.
func ActorIDFromContext(ctx context.Context) string {
	if s, ok := SessionFromContext(ctx); ok {
		return s.Identity.ID
	}
	return ""
}

// WithProfile sets the resolved profile of a granted request
func WithProfile(ctx context.Context, profile *UserProfile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the resolved profile from the context.
func ProfileFromContext(ctx context.Context) (*UserProfile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*UserProfile)
	return raw, ok && raw != nil
}
