package domain

import "context"

// AuthSession is the authenticated identity behind a turn.
type AuthSession struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"-"`
}

// AuthProvider resolves the current session. A nil session with a nil error
// means the caller is not signed in.
type AuthProvider interface {
	GetCurrentSession(ctx context.Context) (*AuthSession, error)
}

// Context helpers for auth sessions (mirrors the chat ID pattern in context.go).

const authCtxKey ctxKey = "auth_session"

// ContextWithAuthSession returns a new context carrying the given session.
func ContextWithAuthSession(ctx context.Context, s *AuthSession) context.Context {
	return context.WithValue(ctx, authCtxKey, s)
}

// AuthSessionFromContext extracts the session from the context.
// Returns nil if not set.
func AuthSessionFromContext(ctx context.Context) *AuthSession {
	if v, ok := ctx.Value(authCtxKey).(*AuthSession); ok {
		return v
	}
	return nil
}
