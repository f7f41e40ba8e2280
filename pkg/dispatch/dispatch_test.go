package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/relay"
	"github.com/tinyland-inc/chanrelay/pkg/store"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

type fakeResolver struct {
	byName map[string]ChannelInfo
	byID   map[int64]ChannelInfo
	known  []ChannelInfo
	err    error
}

func newFakeResolver(channels ...ChannelInfo) *fakeResolver {
	r := &fakeResolver{
		byName: make(map[string]ChannelInfo),
		byID:   make(map[int64]ChannelInfo),
	}
	for _, ch := range channels {
		if ch.Username != "" {
			r.byName[ch.Username] = ch
		}
		r.byID[ch.ID] = ch
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, ref utils.ChannelRef) (ChannelInfo, error) {
	if r.err != nil {
		return ChannelInfo{}, r.err
	}
	if ref.Username != "" {
		if ch, ok := r.byName[ref.Username]; ok {
			return ch, nil
		}
		return ChannelInfo{}, ErrChannelNotFound
	}
	if ch, ok := r.byID[ref.ID]; ok {
		return ch, nil
	}
	return ChannelInfo{}, ErrChannelNotFound
}

func (r *fakeResolver) ChatName(_ context.Context, id int64) (string, error) {
	if ch, ok := r.byID[id]; ok {
		return ch.Name(), nil
	}
	return "", errors.New("chat not found")
}

func (r *fakeResolver) KnownChannels() []ChannelInfo { return r.known }

type fakeEngine struct {
	enabled bool
	resets  int
	stats   relay.Stats
}

func (e *fakeEngine) IsEnabled() bool        { return e.enabled }
func (e *fakeEngine) SetEnabled(enabled bool) { e.enabled = enabled }
func (e *fakeEngine) Reset()                 { e.resets++ }
func (e *fakeEngine) Stats() relay.Stats     { return e.stats }

func (e *fakeEngine) State() relay.State {
	if e.enabled {
		return relay.StateRunning
	}
	return relay.StateStopped
}

var (
	news   = ChannelInfo{ID: -1001, Username: "golang_news", Title: "Go News"}
	weekly = ChannelInfo{ID: -1002, Title: "Weekly Digest"}
	sink   = ChannelInfo{ID: -1009, Username: "my_aggregate", Title: "Aggregate"}
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *fakeEngine, *fakeResolver) {
	t.Helper()
	st, err := store.Load(filepath.Join(t.TempDir(), "channels.json"))
	require.NoError(t, err)
	eng := &fakeEngine{}
	res := newFakeResolver(news, weekly, sink)
	return NewDispatcher(st, eng, res), st, eng, res
}

func run(d *Dispatcher, text string) string {
	return d.Execute(context.Background(), bus.Command{Channel: "telegram", ChatID: 1, SenderID: "1", Text: text})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, name, args string
		ok               bool
	}{
		{"/start", "/start", "", true},
		{"/add_channel @golang_news", "/add_channel", "@golang_news", true},
		{"/add_channel@relay_bot  https://t.me/x ", "/add_channel", "https://t.me/x", true},
		{"/set_target\n-1009", "/set_target", "-1009", true},
		{"/LIST", "/list", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.name, name, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestStartStop(t *testing.T) {
	d, st, eng, _ := newTestDispatcher(t)

	assert.Equal(t, msgBotStarted+"\n"+msgNoTarget, run(d, "/start"))
	assert.True(t, eng.enabled)

	require.NoError(t, st.SetTarget(sink.ID))
	assert.Equal(t, msgBotStarted, run(d, "/start"))

	assert.Equal(t, msgBotStopped, run(d, "/stop"))
	assert.False(t, eng.enabled)
	assert.Zero(t, eng.resets)
}

func TestAddChannel(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)

	assert.Equal(t, "Channel @golang_news added to monitoring list.", run(d, "/add_channel https://t.me/golang_news"))
	assert.True(t, st.HasSource(news.ID))

	assert.Equal(t, "Channel @golang_news is already monitored.", run(d, "/add_channel @golang_news"))
	assert.Equal(t, "Channel Weekly Digest added to monitoring list.", run(d, "/add_channel -1002"))
	assert.Equal(t, []int64{news.ID, weekly.ID}, st.Sources())
}

func TestAddChannel_Errors(t *testing.T) {
	d, st, _, res := newTestDispatcher(t)

	assert.Contains(t, run(d, "/add_channel"), "Usage: /add_channel")
	assert.Equal(t, msgInvalidChannel, run(d, "/add_channel not a channel"))
	assert.Equal(t, msgChannelNotFound, run(d, "/add_channel @missing_channel"))

	res.err = ErrInvalidChannel
	assert.Equal(t, msgInvalidChannel, run(d, "/add_channel @some_group"))

	res.err = errors.New("network down")
	assert.Equal(t, msgChannelNotFound, run(d, "/add_channel @golang_news"))

	assert.Empty(t, st.Sources())
}

func TestAddChannel_RefusesTarget(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	require.NoError(t, st.SetTarget(sink.ID))

	assert.Equal(t, "Channel @my_aggregate is the target channel and cannot be monitored.",
		run(d, "/add_channel @my_aggregate"))
	assert.False(t, st.HasSource(sink.ID))
}

func TestAddAllChannels(t *testing.T) {
	d, st, _, res := newTestDispatcher(t)
	require.NoError(t, st.SetTarget(sink.ID))
	_, err := st.AddSource(news.ID)
	require.NoError(t, err)

	res.known = []ChannelInfo{news, weekly, sink}
	assert.Equal(t, "Added 1 channels to monitoring list. Use /list to see them all.", run(d, "/add_all_channels"))
	assert.Equal(t, []int64{news.ID, weekly.ID}, st.Sources())
}

func TestRemoveChannel(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	_, err := st.AddSource(news.ID)
	require.NoError(t, err)

	assert.Equal(t, "Channel @golang_news removed from monitoring list.", run(d, "/remove_channel @golang_news"))
	assert.False(t, st.HasSource(news.ID))
	assert.Equal(t, "Channel @golang_news is not in the monitoring list.", run(d, "/remove_channel @golang_news"))
}

func TestRemoveChannel_UnreachableByID(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	_, err := st.AddSource(-4242)
	require.NoError(t, err)

	assert.Equal(t, "Channel -4242 removed from monitoring list.", run(d, "/remove_channel -4242"))
	assert.Empty(t, st.Sources())
}

func TestSetTarget(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)

	assert.Equal(t, "Target channel set to @my_aggregate.", run(d, "/set_target @my_aggregate"))
	target, ok := st.Target()
	require.True(t, ok)
	assert.Equal(t, sink.ID, target)
}

func TestSetTarget_RefusesMonitored(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	_, err := st.AddSource(news.ID)
	require.NoError(t, err)

	reply := run(d, "/set_target @golang_news")
	assert.Contains(t, reply, "is monitored")
	_, ok := st.Target()
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)

	assert.Equal(t, "Monitored channels:\n(none)\n"+msgNoTarget, run(d, "/list"))

	for _, id := range []int64{news.ID, weekly.ID, -777} {
		_, err := st.AddSource(id)
		require.NoError(t, err)
	}
	require.NoError(t, st.SetTarget(sink.ID))

	assert.Equal(t,
		"Monitored channels:\n- @golang_news\n- Weekly Digest\n- -777\nTarget channel: @my_aggregate",
		run(d, "/list"))
}

func TestStatus(t *testing.T) {
	d, st, eng, _ := newTestDispatcher(t)
	_, err := st.AddSource(news.ID)
	require.NoError(t, err)
	eng.stats = relay.Stats{BufferedAlbums: 2, Processed: 17, Forwarded: 12, AlbumsFlushed: 1, Dropped: 3, Evicted: 1}

	reply := run(d, "/status")
	assert.Contains(t, reply, "Bot status: stopped")
	assert.Contains(t, reply, "Monitored channels: 1")
	assert.Contains(t, reply, "Buffered albums: 2")
	assert.Contains(t, reply, "Processed messages: 17")
	assert.Contains(t, reply, "Dropped: 3, evicted albums: 1")

	eng.enabled = true
	assert.Contains(t, run(d, "/status"), "Bot status: running")
}

func TestResetAndHelp(t *testing.T) {
	d, _, eng, _ := newTestDispatcher(t)

	assert.Equal(t, msgReset, run(d, "/reset"))
	assert.Equal(t, 1, eng.resets)

	assert.Equal(t, msgHelp, run(d, "/help"))
	assert.Equal(t, msgHelp, run(d, "/unknown"))
	assert.Equal(t, msgHelp, run(d, "plain text"))
}

func TestChannelInfoName(t *testing.T) {
	assert.Equal(t, "@golang_news", news.Name())
	assert.Equal(t, "Weekly Digest", weekly.Name())
	assert.Equal(t, "-5", ChannelInfo{ID: -5}.Name())
}
