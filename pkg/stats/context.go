package stats

import (
	"context"
)

// statserKey is the context key for the Statser carried through the receive, aggregate and publish path.
type statserKey struct{}

// NewContext returns a copy of ctx carrying statser.  Components started by the server, such as the
// flusher and the publishers, report their internal metrics through the Statser found here.
func NewContext(ctx context.Context, statser Statser) context.Context {
	return context.WithValue(ctx, statserKey{}, statser)
}

// FromContext returns the Statser carried by ctx, or a NullStatser when there is none, so callers
// can report unconditionally.
func FromContext(ctx context.Context) Statser {
	if statser, ok := ctx.Value(statserKey{}).(Statser); ok && statser != nil {
		return statser
	}
	return NewNullStatser()
}
