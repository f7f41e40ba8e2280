package channels

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/dispatch"
	"github.com/tinyland-inc/chanrelay/pkg/store"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, ref utils.ChannelRef) (dispatch.ChannelInfo, error) {
	if ref.Username == "golang_news" {
		return dispatch.ChannelInfo{ID: -1001, Username: "golang_news"}, nil
	}
	return dispatch.ChannelInfo{}, dispatch.ErrChannelNotFound
}

func (stubResolver) ChatName(context.Context, int64) (string, error) { return "", nil }
func (stubResolver) KnownChannels() []dispatch.ChannelInfo          { return nil }

// setupConfig points the CLI at a temp config whose store lives next to it.
func setupConfig(t *testing.T, token string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "channels.json")
	cfg.Telegram.Token = token
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(path, cfg))

	internal.ConfigPath = path
	t.Cleanup(func() { internal.ConfigPath = "" })

	prev := newResolver
	newResolver = func(*config.Config) (dispatch.Resolver, error) { return stubResolver{}, nil }
	t.Cleanup(func() { newResolver = prev })

	return cfg.Storage.Path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewChannelsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewChannelsCommand(t *testing.T) {
	cmd := NewChannelsCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "channels", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())

	for _, name := range []string{"list", "add", "remove", "target"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
		assert.NotNil(t, sub.RunE)
	}
}

func TestChannelsAddListRemove(t *testing.T) {
	storePath := setupConfig(t, "")

	out, err := execute(t, "add", "--", "-1001")
	require.NoError(t, err)
	assert.Contains(t, out, "Channel -1001 added")

	out, err = execute(t, "add", "--", "-1001")
	require.NoError(t, err)
	assert.Contains(t, out, "already monitored")

	out, err = execute(t, "target", "--", "-1009")
	require.NoError(t, err)
	assert.Contains(t, out, "Target channel set to -1009")

	out, err = execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "  - -1001\n")
	assert.Contains(t, out, "Target channel: -1009")

	out, err = execute(t, "remove", "--", "-1001")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	st, err := store.Load(storePath)
	require.NoError(t, err)
	assert.Empty(t, st.Sources())
	target, ok := st.Target()
	require.True(t, ok)
	assert.Equal(t, int64(-1009), target)
}

func TestChannelsFeedbackLoopRefused(t *testing.T) {
	setupConfig(t, "")

	_, err := execute(t, "add", "--", "-1001")
	require.NoError(t, err)
	_, err = execute(t, "target", "--", "-1001")
	assert.ErrorIs(t, err, store.ErrFeedbackLoop)

	_, err = execute(t, "target", "--", "-1009")
	require.NoError(t, err)
	_, err = execute(t, "add", "--", "-1009")
	assert.Error(t, err)
}

func TestChannelsUsernameNeedsToken(t *testing.T) {
	setupConfig(t, "")
	_, err := execute(t, "add", "@golang_news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}

func TestChannelsUsernameResolved(t *testing.T) {
	storePath := setupConfig(t, "123:abc")

	out, err := execute(t, "add", "https://t.me/golang_news")
	require.NoError(t, err)
	assert.Contains(t, out, "@golang_news added")

	_, err = execute(t, "add", "@missing_chan")
	assert.ErrorIs(t, err, dispatch.ErrChannelNotFound)

	_, err = os.Stat(storePath)
	require.NoError(t, err)
}

func TestChannelsInvalidInput(t *testing.T) {
	setupConfig(t, "")
	_, err := execute(t, "add", "not a channel")
	assert.ErrorIs(t, err, utils.ErrInvalidChannelRef)
}
