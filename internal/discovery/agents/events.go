package agents

import (
	"context"

	"manifold/internal/discovery"
)

// emit sends an event to the caller-owned channel, blocking on backpressure
// rather than dropping (spec.md §5) but yielding to cancellation so a
// cancelled request doesn't deadlock a stuck consumer.
func emit(ctx context.Context, events chan<- discovery.Event, evt discovery.Event) {
	if events == nil {
		return
	}
	select {
	case events <- evt:
	case <-ctx.Done():
	}
}
