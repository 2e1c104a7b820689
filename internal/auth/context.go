package auth

import "context"

// Identity is the authenticated caller, resolved from the session cookie by
// the auth middleware and carried through the request context.
type Identity struct {
	UserID  int
	Email   string
	IsAdmin bool
}

type contextKey struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the caller identity, if the request passed the
// auth middleware as a logged-in user.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}
