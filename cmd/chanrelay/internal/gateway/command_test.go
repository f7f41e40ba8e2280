package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/config"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "gateway", cmd.Use)
	assert.Equal(t, []string{"g"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("console"))
}

func TestCheckOperators(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Empty(t, cfg.Telegram.AllowFrom)

	err := checkOperators(cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_from")

	assert.NoError(t, checkOperators(cfg, true))

	cfg.Telegram.AllowFrom = config.FlexibleStringSlice{" "}
	assert.Error(t, checkOperators(cfg, false))

	cfg.Telegram.AllowFrom = config.FlexibleStringSlice{"@operator"}
	assert.NoError(t, checkOperators(cfg, false))
}

func TestEngineOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Relay.AlbumTTLSeconds = 45

	opts := engineOptions(cfg)
	assert.Equal(t, 10, opts.FetchWindow)
	assert.Equal(t, 10, opts.MaxAlbumSize)
	assert.Equal(t, 45*time.Second, opts.AlbumTTL)
	assert.Equal(t, 256, opts.MaxBufferedAlbums)
}

func TestOperatorChatIDs(t *testing.T) {
	got := operatorChatIDs([]string{"555", "777|backup", "@operator", "", "-5", "abc"})
	assert.Equal(t, []int64{555, 777}, got)
}

type sendRecorder struct {
	sent []bus.OutboundMessage
}

func (s *sendRecorder) Name() string                { return "telegram" }
func (s *sendRecorder) Start(context.Context) error { return nil }
func (s *sendRecorder) Stop(context.Context) error  { return nil }
func (s *sendRecorder) IsRunning() bool             { return true }
func (s *sendRecorder) IsAllowed(string) bool       { return true }

func (s *sendRecorder) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestNotifyOperators(t *testing.T) {
	rec := &sendRecorder{}
	notifyOperators(context.Background(), rec, []string{"555", "@operator"})

	require.Len(t, rec.sent, 1)
	assert.Equal(t, bus.OutboundMessage{Channel: "telegram", ChatID: 555, Content: "Bot stopped."}, rec.sent[0])
}
