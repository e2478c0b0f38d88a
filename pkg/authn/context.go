package authn

import "context"

type sessionKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFrom returns the session set by Middleware.
func SessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}

// MustSession is for handlers mounted behind Middleware.
func MustSession(ctx context.Context) Session {
	sess, ok := SessionFrom(ctx)
	if !ok {
		panic(ErrNoSession)
	}
	return sess
}
