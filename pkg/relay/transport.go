package relay

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
)

// Transport is the messaging boundary the engine forwards through. Every call
// may block on network I/O; the engine processes nothing else meanwhile.
type Transport interface {
	Forward(ctx context.Context, targetID int64, msg bus.InboundMessage) error
	// ForwardGroup forwards an album as one unit. msgs are ordered by message id.
	ForwardGroup(ctx context.Context, targetID int64, msgs []bus.InboundMessage) error
	MarkRead(ctx context.Context, msg bus.InboundMessage) error
	// FetchRecent returns messages of sourceID whose ids lie within window of
	// aroundID.
	FetchRecent(ctx context.Context, sourceID, aroundID int64, window int) ([]bus.InboundMessage, error)
}

// Directory answers which sources are monitored and where to forward.
// store.Store satisfies it.
type Directory interface {
	HasSource(id int64) bool
	Target() (int64, bool)
}

// TransportError wraps a failure from the Transport with the message or album
// it was about.
type TransportError struct {
	Op        string
	SourceID  int64
	MessageID int64
	GroupID   string
	Err       error
}

func (e *TransportError) Error() string {
	if e.GroupID != "" {
		return fmt.Sprintf("%s source=%d group=%s message=%d: %v", e.Op, e.SourceID, e.GroupID, e.MessageID, e.Err)
	}
	return fmt.Sprintf("%s source=%d message=%d: %v", e.Op, e.SourceID, e.MessageID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
