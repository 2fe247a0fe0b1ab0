package session

import "context"

type sessionContextKey struct{}

type snapshotContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext extracts the session from context.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithSnapshot stores the session snapshot in context.
func ContextWithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey{}, snap)
}

// SnapshotFromContext returns the request's snapshot; the zero value is unauthenticated.
func SnapshotFromContext(ctx context.Context) Snapshot {
	snap, _ := ctx.Value(snapshotContextKey{}).(Snapshot)
	return snap
}
