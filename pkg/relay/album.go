package relay

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
)

type groupKey struct {
	source int64
	group  string
}

type messageKey struct {
	source int64
	id     int64
}

// groupState is the terminal state of an album. Once set it never changes
// until Reset.
type groupState int

const (
	groupFlushed groupState = iota + 1
	groupDiscarded
	groupEvicted
)

func (s groupState) String() string {
	switch s {
	case groupFlushed:
		return "flushed"
	case groupDiscarded:
		return "discarded"
	case groupEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// albumBuffer collects the members of one album seen so far.
type albumBuffer struct {
	key       groupKey
	traceID   string
	firstSeen time.Time
	members   map[int64]bus.InboundMessage
}

func newAlbumBuffer(key groupKey, now time.Time) *albumBuffer {
	return &albumBuffer{
		key:       key,
		traceID:   uuid.NewString(),
		firstSeen: now,
		members:   make(map[int64]bus.InboundMessage),
	}
}

// add records msg and reports whether it was new to the buffer.
func (b *albumBuffer) add(msg bus.InboundMessage) bool {
	if _, ok := b.members[msg.MessageID]; ok {
		return false
	}
	b.members[msg.MessageID] = msg
	return true
}

func (b *albumBuffer) has(id int64) bool {
	_, ok := b.members[id]
	return ok
}

func (b *albumBuffer) size() int { return len(b.members) }

// ordered returns the members sorted by message id ascending.
func (b *albumBuffer) ordered() []bus.InboundMessage {
	out := make([]bus.InboundMessage, 0, len(b.members))
	for _, m := range b.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(x, y bus.InboundMessage) int {
		return cmp.Compare(x.MessageID, y.MessageID)
	})
	return out
}

// missing returns the ids of group members in recent that the buffer has not
// seen. recent is already scoped to the album's source.
func (b *albumBuffer) missing(recent []bus.InboundMessage) []int64 {
	var ids []int64
	for _, m := range recent {
		if m.GroupID != b.key.group {
			continue
		}
		if !b.has(m.MessageID) {
			ids = append(ids, m.MessageID)
		}
	}
	return ids
}
