// Package relay decides, for each post observed on a monitored channel,
// whether to forward it now, hold it as part of a growing album, or drop it
// as already handled.
//
// Albums carry no size field, so completeness is inferred: after each new
// member the engine asks the transport for the recent posts around it and
// treats the album as complete once no sibling in that window is missing
// from the buffer, or once MaxAlbumSize members are held. The heuristic can
// flush early or never complete; stalled albums are evicted after AlbumTTL.
//
// An Engine is not safe for concurrent use except for IsEnabled/SetEnabled.
// Runner drives it from a single goroutine.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

// State is the operator-visible engine state.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Outcome reports what Handle did with an event.
type Outcome int

const (
	OutcomeFiltered     Outcome = iota // disabled, unmonitored source, no usable target
	OutcomeDuplicate                   // message or album already handled
	OutcomeForwarded                   // single message forwarded
	OutcomeBuffered                    // album member held, album not yet complete
	OutcomeAlbumFlushed                // album forwarded as one unit
	OutcomeDropped                     // transport failure, nothing retried
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeBuffered:
		return "buffered"
	case OutcomeAlbumFlushed:
		return "album_flushed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Options tune the album completeness heuristic and its memory bounds.
type Options struct {
	// FetchWindow is how many ids either side of a member are scanned for
	// siblings.
	FetchWindow int
	// MaxAlbumSize flushes an album once this many members are held.
	MaxAlbumSize int
	// AlbumTTL bounds how long an incomplete album is held.
	AlbumTTL time.Duration
	// MaxBufferedAlbums bounds concurrent incomplete albums; the oldest is
	// evicted to make room.
	MaxBufferedAlbums int
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// DefaultOptions mirrors Telegram's album limit of ten items.
func DefaultOptions() Options {
	return Options{
		FetchWindow:       10,
		MaxAlbumSize:      10,
		AlbumTTL:          30 * time.Second,
		MaxBufferedAlbums: 256,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FetchWindow <= 0 {
		o.FetchWindow = def.FetchWindow
	}
	if o.MaxAlbumSize <= 0 {
		o.MaxAlbumSize = def.MaxAlbumSize
	}
	if o.AlbumTTL <= 0 {
		o.AlbumTTL = def.AlbumTTL
	}
	if o.MaxBufferedAlbums <= 0 {
		o.MaxBufferedAlbums = def.MaxBufferedAlbums
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Stats is a snapshot of engine bookkeeping.
type Stats struct {
	BufferedAlbums int
	Processed      int
	ClosedAlbums   int
	Forwarded      uint64
	AlbumsFlushed  uint64
	Dropped        uint64
	Evicted        uint64
}

type counters struct {
	forwarded     uint64
	albumsFlushed uint64
	dropped       uint64
	evicted       uint64
}

// Engine forwards posts from monitored channels to the target, deduplicating
// by message id and holding album members until the album looks complete.
// Handle must be called from a single goroutine.
type Engine struct {
	transport Transport
	dir       Directory
	opts      Options
	enabled   atomic.Bool

	processed map[messageKey]struct{}
	closed    map[groupKey]groupState
	buffers   map[groupKey]*albumBuffer
	stats     counters
}

// NewEngine creates a stopped engine.
func NewEngine(transport Transport, dir Directory, opts Options) *Engine {
	return &Engine{
		transport: transport,
		dir:       dir,
		opts:      opts.withDefaults(),
		processed: make(map[messageKey]struct{}),
		closed:    make(map[groupKey]groupState),
		buffers:   make(map[groupKey]*albumBuffer),
	}
}

func (e *Engine) IsEnabled() bool { return e.enabled.Load() }

// SetEnabled gates processing. Buffered albums survive a stop; the change is
// observed at the next event.
func (e *Engine) SetEnabled(enabled bool) {
	if e.enabled.Swap(enabled) != enabled {
		logger.InfoCF("relay", "Engine state changed", map[string]any{
			"state": e.State().String(),
		})
	}
}

func (e *Engine) State() State {
	if e.IsEnabled() {
		return StateRunning
	}
	return StateStopped
}

// Reset forgets every processed message, closed album and buffered album.
func (e *Engine) Reset() {
	logger.InfoCF("relay", "Resetting dedup state", map[string]any{
		"processed":       len(e.processed),
		"buffered_albums": len(e.buffers),
	})
	clear(e.processed)
	clear(e.closed)
	clear(e.buffers)
}

func (e *Engine) Stats() Stats {
	return Stats{
		BufferedAlbums: len(e.buffers),
		Processed:      len(e.processed),
		ClosedAlbums:   len(e.closed),
		Forwarded:      e.stats.forwarded,
		AlbumsFlushed:  e.stats.albumsFlushed,
		Dropped:        e.stats.dropped,
		Evicted:        e.stats.evicted,
	}
}

// Sweep evicts albums older than AlbumTTL and returns how many were evicted.
func (e *Engine) Sweep() int {
	return e.evictExpired(e.opts.Now())
}

// Handle processes one inbound message. Transport failures are logged and
// reflected in the outcome; they are never returned.
func (e *Engine) Handle(ctx context.Context, msg bus.InboundMessage) Outcome {
	if !e.IsEnabled() {
		return OutcomeFiltered
	}
	if !e.dir.HasSource(msg.SourceID) {
		return OutcomeFiltered
	}
	target, ok := e.dir.Target()
	if !ok {
		logger.DebugCF("relay", "Target channel not set, skipping", map[string]any{
			"source_id":  msg.SourceID,
			"message_id": msg.MessageID,
		})
		return OutcomeFiltered
	}
	if target == msg.SourceID || e.dir.HasSource(target) {
		logger.WarnCF("relay", "Target channel is also monitored, refusing to forward", map[string]any{
			"target":     target,
			"source_id":  msg.SourceID,
			"message_id": msg.MessageID,
		})
		return OutcomeFiltered
	}

	if _, seen := e.processed[messageKey{msg.SourceID, msg.MessageID}]; seen {
		return OutcomeDuplicate
	}

	now := e.opts.Now()
	e.evictExpired(now)

	if !msg.Grouped() {
		return e.forwardSingle(ctx, target, msg)
	}
	return e.handleAlbum(ctx, target, msg, now)
}

func (e *Engine) forwardSingle(ctx context.Context, target int64, msg bus.InboundMessage) Outcome {
	if err := e.transport.Forward(ctx, target, msg); err != nil {
		e.logTransportError(&TransportError{
			Op:        "forward",
			SourceID:  msg.SourceID,
			MessageID: msg.MessageID,
			Err:       err,
		})
		return OutcomeDropped
	}

	e.markRead(ctx, msg)
	e.processed[messageKey{msg.SourceID, msg.MessageID}] = struct{}{}
	e.stats.forwarded++

	logger.InfoCF("relay", "Forwarded message", map[string]any{
		"source_id":  msg.SourceID,
		"message_id": msg.MessageID,
		"target":     target,
	})
	return OutcomeForwarded
}

func (e *Engine) handleAlbum(ctx context.Context, target int64, msg bus.InboundMessage, now time.Time) Outcome {
	key := groupKey{msg.SourceID, msg.GroupID}
	if state, ok := e.closed[key]; ok {
		logger.DebugCF("relay", "Late album member discarded", map[string]any{
			"source_id":  msg.SourceID,
			"group_id":   msg.GroupID,
			"message_id": msg.MessageID,
			"state":      state.String(),
		})
		return OutcomeDuplicate
	}

	buf, ok := e.buffers[key]
	if !ok {
		if len(e.buffers) >= e.opts.MaxBufferedAlbums {
			e.evictOldest()
		}
		buf = newAlbumBuffer(key, now)
		e.buffers[key] = buf
		logger.DebugCF("relay", "Album buffering started", map[string]any{
			"source_id": msg.SourceID,
			"group_id":  msg.GroupID,
			"trace_id":  buf.traceID,
		})
	}
	if !buf.add(msg) {
		return OutcomeDuplicate
	}

	recent, err := e.transport.FetchRecent(ctx, msg.SourceID, msg.MessageID, e.opts.FetchWindow)
	if err != nil {
		e.logTransportError(&TransportError{
			Op:        "fetch_recent",
			SourceID:  msg.SourceID,
			MessageID: msg.MessageID,
			GroupID:   msg.GroupID,
			Err:       err,
		})
		e.close(key, groupDiscarded)
		return OutcomeDropped
	}

	missing := buf.missing(recent)
	switch {
	case len(missing) == 0:
	case buf.size() >= e.opts.MaxAlbumSize:
		logger.WarnCF("relay", "Album flushed at size limit with members outstanding", map[string]any{
			"source_id": msg.SourceID,
			"group_id":  msg.GroupID,
			"trace_id":  buf.traceID,
			"size":      buf.size(),
			"missing":   missing,
			"reason":    "album_incomplete",
		})
	default:
		logger.DebugCF("relay", "Album incomplete, buffering", map[string]any{
			"source_id": msg.SourceID,
			"group_id":  msg.GroupID,
			"trace_id":  buf.traceID,
			"size":      buf.size(),
			"missing":   len(missing),
		})
		return OutcomeBuffered
	}

	return e.flush(ctx, target, buf, now)
}

func (e *Engine) flush(ctx context.Context, target int64, buf *albumBuffer, now time.Time) Outcome {
	members := buf.ordered()
	if err := e.transport.ForwardGroup(ctx, target, members); err != nil {
		e.logTransportError(&TransportError{
			Op:        "forward_group",
			SourceID:  buf.key.source,
			MessageID: members[0].MessageID,
			GroupID:   buf.key.group,
			Err:       err,
		})
		e.close(buf.key, groupDiscarded)
		return OutcomeDropped
	}

	for _, m := range members {
		e.markRead(ctx, m)
		e.processed[messageKey{m.SourceID, m.MessageID}] = struct{}{}
	}
	e.close(buf.key, groupFlushed)
	e.stats.albumsFlushed++

	logger.InfoCF("relay", "Forwarded album", map[string]any{
		"source_id": buf.key.source,
		"group_id":  buf.key.group,
		"trace_id":  buf.traceID,
		"size":      len(members),
		"target":    target,
		"held_for":  now.Sub(buf.firstSeen).String(),
	})
	return OutcomeAlbumFlushed
}

// markRead failures are not fatal: the message already reached the target.
func (e *Engine) markRead(ctx context.Context, msg bus.InboundMessage) {
	if err := e.transport.MarkRead(ctx, msg); err != nil {
		logger.WarnCF("relay", "Mark read failed", map[string]any{
			"source_id":  msg.SourceID,
			"message_id": msg.MessageID,
			"error":      err.Error(),
		})
	}
}

// close moves an album to a terminal state and frees its buffer.
func (e *Engine) close(key groupKey, state groupState) {
	delete(e.buffers, key)
	e.closed[key] = state
}

func (e *Engine) evictExpired(now time.Time) int {
	n := 0
	for _, buf := range e.buffers {
		if now.Sub(buf.firstSeen) > e.opts.AlbumTTL {
			e.evict(buf, "ttl_expired")
			n++
		}
	}
	return n
}

func (e *Engine) evictOldest() {
	var oldest *albumBuffer
	for _, buf := range e.buffers {
		if oldest == nil || buf.firstSeen.Before(oldest.firstSeen) {
			oldest = buf
		}
	}
	if oldest != nil {
		e.evict(oldest, "buffer_limit")
	}
}

func (e *Engine) evict(buf *albumBuffer, cause string) {
	e.close(buf.key, groupEvicted)
	e.stats.evicted++
	logger.WarnCF("relay", "Album evicted before completion", map[string]any{
		"source_id": buf.key.source,
		"group_id":  buf.key.group,
		"trace_id":  buf.traceID,
		"size":      buf.size(),
		"cause":     cause,
		"reason":    "album_incomplete",
	})
}

func (e *Engine) logTransportError(err *TransportError) {
	e.stats.dropped++
	logger.ErrorCF("relay", "Transport failure, message dropped", map[string]any{
		"op":         err.Op,
		"source_id":  err.SourceID,
		"message_id": err.MessageID,
		"group_id":   err.GroupID,
		"error":      err.Err.Error(),
	})
}
