package cwstatsd

import (
	"context"
)

// Publisher submits aggregated snapshots to a remote metrics API.
// If Publisher implements the Runner interface, it's started in a new goroutine at creation.
type Publisher interface {
	// Name returns the name of the publisher.
	Name() string
	// Publish sends the snapshot.  It must not modify the snapshot, and must respect the context deadline.
	// Any batching or rate limiting required by the remote API is the responsibility of the Publisher.
	Publish(ctx context.Context, snapshot *Snapshot) error
}
