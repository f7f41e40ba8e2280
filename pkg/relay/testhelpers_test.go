package relay

import (
	"context"
	"sync"
	"time"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
)

// fakeTransport records every call and serves FetchRecent from a per-source
// history that tests populate.
type fakeTransport struct {
	mu sync.Mutex

	history map[int64][]bus.InboundMessage

	forwards []int64   // message ids passed to Forward
	groups   [][]int64 // message ids per ForwardGroup call, in call order
	reads    []int64
	fetches  int
	targets  []int64

	forwardErr error
	groupErr   error
	readErr    error
	fetchErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{history: make(map[int64][]bus.InboundMessage)}
}

func (f *fakeTransport) record(msgs ...bus.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.history[m.SourceID] = append(f.history[m.SourceID], m)
	}
}

func (f *fakeTransport) Forward(_ context.Context, target int64, msg bus.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwards = append(f.forwards, msg.MessageID)
	return nil
}

func (f *fakeTransport) ForwardGroup(_ context.Context, target int64, msgs []bus.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.groupErr != nil {
		return f.groupErr
	}
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	f.groups = append(f.groups, ids)
	return nil
}

func (f *fakeTransport) MarkRead(_ context.Context, msg bus.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, msg.MessageID)
	return f.readErr
}

func (f *fakeTransport) FetchRecent(_ context.Context, source, around int64, window int) ([]bus.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []bus.InboundMessage
	for _, m := range f.history[source] {
		if m.MessageID >= around-int64(window) && m.MessageID <= around+int64(window) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets) + len(f.reads) + f.fetches
}

func (f *fakeTransport) forwarded() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.forwards...)
}

func (f *fakeTransport) forwardedGroups() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int64(nil), f.groups...)
}

// fakeDirectory is a mutable monitored set and target.
type fakeDirectory struct {
	mu      sync.Mutex
	sources map[int64]bool
	target  int64
	hasTgt  bool
}

func newFakeDirectory(target int64, sources ...int64) *fakeDirectory {
	d := &fakeDirectory{sources: make(map[int64]bool), target: target, hasTgt: true}
	for _, s := range sources {
		d.sources[s] = true
	}
	return d
}

func (d *fakeDirectory) HasSource(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sources[id]
}

func (d *fakeDirectory) Target() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target, d.hasTgt
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testSource = int64(-1001)
	testTarget = int64(-1009)
)

func single(id int64) bus.InboundMessage {
	return bus.InboundMessage{SourceID: testSource, MessageID: id}
}

func member(id int64, group string) bus.InboundMessage {
	return bus.InboundMessage{SourceID: testSource, MessageID: id, GroupID: group, HasMedia: true}
}

// newTestEngine returns an enabled engine monitoring testSource.
func newTestEngine(opts Options) (*Engine, *fakeTransport, *fakeDirectory) {
	tr := newFakeTransport()
	dir := newFakeDirectory(testTarget, testSource)
	e := NewEngine(tr, dir, opts)
	e.SetEnabled(true)
	return e, tr, dir
}
