package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
)

type echoHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *echoHandler) Execute(_ context.Context, cmd bus.Command) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, cmd.Text)
	if cmd.Text == "/silent" {
		return ""
	}
	return "ok: " + cmd.Text
}

type panicHandler struct{}

func (panicHandler) Execute(context.Context, bus.Command) string { panic("boom") }

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNewRunner_RejectsBadSchedule(t *testing.T) {
	e, _, _ := newTestEngine(Options{})
	_, err := NewRunner(e, bus.NewMessageBus(), nil, "not a cron")
	assert.Error(t, err)

	r, err := NewRunner(e, bus.NewMessageBus(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, r.nextSweep)

	r, err = NewRunner(e, bus.NewMessageBus(), nil, "*/5 * * * *")
	require.NoError(t, err)
	assert.NotNil(t, r.nextSweep)
}

func TestRunner_MessagesAndCommands(t *testing.T) {
	e, tr, _ := newTestEngine(Options{})
	mb := bus.NewMessageBus()
	defer mb.Close()
	h := &echoHandler{}

	r, err := NewRunner(e, mb, h, "")
	require.NoError(t, err)
	cancel, done := startRunner(t, r)

	ctx := context.Background()
	require.NoError(t, mb.PublishInbound(ctx, bus.MessageEvent(single(1))))
	require.NoError(t, mb.PublishInbound(ctx, bus.CommandEvent(bus.Command{
		Channel: "telegram", ChatID: 77, SenderID: "1", Text: "/status",
	})))

	outCtx, outCancel := context.WithTimeout(ctx, 2*time.Second)
	defer outCancel()
	out, ok := mb.SubscribeOutbound(outCtx)
	require.True(t, ok)
	assert.Equal(t, "telegram", out.Channel)
	assert.Equal(t, int64(77), out.ChatID)
	assert.Equal(t, "ok: /status", out.Content)

	// The message was queued before the command, so it is already handled.
	assert.Equal(t, []int64{1}, tr.forwarded())

	cancel()
	waitDone(t, done)
}

func TestRunner_EmptyReplyNotPublished(t *testing.T) {
	e, _, _ := newTestEngine(Options{})
	mb := bus.NewMessageBus()
	defer mb.Close()

	r, err := NewRunner(e, mb, &echoHandler{}, "")
	require.NoError(t, err)
	cancel, done := startRunner(t, r)

	ctx := context.Background()
	require.NoError(t, mb.PublishInbound(ctx, bus.CommandEvent(bus.Command{Channel: "cli", Text: "/silent"})))
	require.NoError(t, mb.PublishInbound(ctx, bus.CommandEvent(bus.Command{Channel: "cli", Text: "/list"})))

	outCtx, outCancel := context.WithTimeout(ctx, 2*time.Second)
	defer outCancel()
	out, ok := mb.SubscribeOutbound(outCtx)
	require.True(t, ok)
	assert.Equal(t, "ok: /list", out.Content)

	cancel()
	waitDone(t, done)
}

func TestRunner_PanicDoesNotStopStream(t *testing.T) {
	e, tr, _ := newTestEngine(Options{})
	mb := bus.NewMessageBus()
	defer mb.Close()

	r, err := NewRunner(e, mb, panicHandler{}, "")
	require.NoError(t, err)
	cancel, done := startRunner(t, r)

	ctx := context.Background()
	require.NoError(t, mb.PublishInbound(ctx, bus.CommandEvent(bus.Command{Channel: "cli", Text: "/boom"})))
	require.NoError(t, mb.PublishInbound(ctx, bus.MessageEvent(single(5))))

	assert.Eventually(t, func() bool {
		return len(tr.forwarded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitDone(t, done)
}

func TestRunner_ShutdownResetsEngine(t *testing.T) {
	e, tr, _ := newTestEngine(Options{})
	mb := bus.NewMessageBus()
	defer mb.Close()

	r, err := NewRunner(e, mb, nil, "")
	require.NoError(t, err)
	cancel, done := startRunner(t, r)

	tr.record(member(1, "G"), member(2, "G"))
	require.NoError(t, mb.PublishInbound(context.Background(), bus.MessageEvent(member(1, "G"))))
	require.NoError(t, mb.PublishInbound(context.Background(), bus.MessageEvent(single(9))))
	assert.Eventually(t, func() bool {
		return len(tr.forwarded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitDone(t, done)

	assert.False(t, e.IsEnabled())
	stats := e.Stats()
	assert.Zero(t, stats.BufferedAlbums)
	assert.Zero(t, stats.Processed)
}

func TestRunner_StopsWhenBusCloses(t *testing.T) {
	e, _, _ := newTestEngine(Options{})
	mb := bus.NewMessageBus()

	r, err := NewRunner(e, mb, nil, "")
	require.NoError(t, err)
	cancel, done := startRunner(t, r)
	defer cancel()

	mb.Close()
	waitDone(t, done)
}

func TestRunner_ScheduledSweep(t *testing.T) {
	clock := newFakeClock()
	e, tr, _ := newTestEngine(Options{AlbumTTL: time.Second, Now: clock.Now})
	mb := bus.NewMessageBus()
	defer mb.Close()

	r, err := NewRunner(e, mb, nil, "")
	require.NoError(t, err)
	r.nextSweep = func(after time.Time) (time.Time, error) {
		return after.Add(20 * time.Millisecond), nil
	}

	tr.record(member(1, "G"), member(2, "G"))
	require.Equal(t, OutcomeBuffered, e.Handle(context.Background(), member(1, "G")))
	clock.Advance(5 * time.Second)

	cancel, done := startRunner(t, r)
	// Stats is read from this goroutine only after the runner has exited.
	time.Sleep(200 * time.Millisecond)
	cancel()
	waitDone(t, done)

	assert.Equal(t, uint64(1), e.Stats().Evicted)
}
