package channels

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/dispatch"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

const telegramMaxMessageLength = 4096

// botAPI is the part of *telego.Bot the channel calls after start-up.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	ForwardMessage(ctx context.Context, params *telego.ForwardMessageParams) (*telego.Message, error)
	ForwardMessages(ctx context.Context, params *telego.ForwardMessagesParams) ([]telego.MessageID, error)
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
}

// TelegramChannel observes channel posts through the Bot API and forwards
// them. It is the relay's Transport and the dispatcher's Resolver; operator
// commands arrive as private messages from allow-listed users.
type TelegramChannel struct {
	*BaseChannel
	bot     *telego.Bot
	api     botAPI
	config  config.TelegramConfig
	history *History
	delay   time.Duration

	mu    sync.RWMutex
	known map[int64]dispatch.ChannelInfo

	cancel  context.CancelFunc
	pending sync.WaitGroup
}

func NewTelegramChannel(cfg config.TelegramConfig, mb *bus.MessageBus) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	opts := []telego.BotOption{telego.WithLogger(telegoLogger{})}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	ch := newTelegramChannel(bot, cfg, mb)
	ch.bot = bot
	return ch, nil
}

func newTelegramChannel(api botAPI, cfg config.TelegramConfig, mb *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", mb, cfg.AllowFrom,
			WithMaxMessageLength(telegramMaxMessageLength),
			WithDenyByDefault(),
		),
		api:         api,
		config:      cfg,
		history:     NewHistory(cfg.HistorySize),
		delay:       time.Duration(cfg.MediaGroupDelayMS) * time.Millisecond,
		known:       make(map[int64]dispatch.ChannelInfo),
	}
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	if c.bot == nil {
		return errors.New("telegram bot not initialized")
	}

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        c.config.PollTimeout,
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	c.cancel = cancel
	c.SetRunning(true)

	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": me.Username,
	})

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		for update := range updates {
			c.handleUpdate(pollCtx, update)
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.ChannelPost != nil:
		c.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil:
		c.handlePrivateMessage(ctx, update.Message)
	}
}

// handleChannelPost records the post and publishes it. Album members are
// held back for the configured delay so their siblings are in the history
// by the time the relay looks.
func (c *TelegramChannel) handleChannelPost(ctx context.Context, post *telego.Message) {
	c.remember(post.Chat)
	msg := toInbound(post)
	c.history.Record(msg)

	logger.DebugCF("telegram", "Channel post received", map[string]any{
		"source_id":  msg.SourceID,
		"message_id": msg.MessageID,
		"group_id":   msg.GroupID,
	})

	if !msg.Grouped() || c.delay <= 0 {
		c.HandleMessage(ctx, msg)
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		c.HandleMessage(ctx, msg)
	}()
}

func (c *TelegramChannel) handlePrivateMessage(ctx context.Context, m *telego.Message) {
	if m.Chat.Type != telego.ChatTypePrivate || m.From == nil {
		return
	}
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	senderID := fmt.Sprintf("%d", m.From.ID)
	if m.From.Username != "" {
		senderID += "|" + m.From.Username
	}
	c.HandleCommand(ctx, m.Chat.ID, senderID, text)
}

func toInbound(m *telego.Message) bus.InboundMessage {
	return bus.InboundMessage{
		SourceID:  m.Chat.ID,
		MessageID: int64(m.MessageID),
		GroupID:   m.MediaGroupID,
		HasMedia:  hasMedia(m),
		Payload:   m,
	}
}

func hasMedia(m *telego.Message) bool {
	return len(m.Photo) > 0 ||
		m.Video != nil ||
		m.Document != nil ||
		m.Audio != nil ||
		m.Animation != nil ||
		m.Voice != nil ||
		m.VideoNote != nil ||
		m.Sticker != nil
}

func (c *TelegramChannel) remember(chat telego.Chat) {
	if chat.Type != telego.ChatTypeChannel {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[chat.ID] = dispatch.ChannelInfo{ID: chat.ID, Username: chat.Username, Title: chat.Title}
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return errors.New("telegram channel not running")
	}
	_, err := c.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: msg.ChatID},
		Text:   msg.Content,
	})
	return err
}

func (c *TelegramChannel) Forward(ctx context.Context, targetID int64, msg bus.InboundMessage) error {
	_, err := c.api.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     telego.ChatID{ID: targetID},
		FromChatID: telego.ChatID{ID: msg.SourceID},
		MessageID:  int(msg.MessageID),
	})
	return err
}

// ForwardGroup forwards an album in one call so Telegram keeps it grouped.
func (c *TelegramChannel) ForwardGroup(ctx context.Context, targetID int64, msgs []bus.InboundMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		if m.SourceID != msgs[0].SourceID {
			return fmt.Errorf("album spans chats %d and %d", msgs[0].SourceID, m.SourceID)
		}
		ids[i] = int(m.MessageID)
	}
	_, err := c.api.ForwardMessages(ctx, &telego.ForwardMessagesParams{
		ChatID:     telego.ChatID{ID: targetID},
		FromChatID: telego.ChatID{ID: msgs[0].SourceID},
		MessageIDs: ids,
	})
	return err
}

// MarkRead is a no-op: bots have no read state for channel posts.
func (c *TelegramChannel) MarkRead(_ context.Context, msg bus.InboundMessage) error {
	logger.DebugCF("telegram", "Mark read skipped for bot account", map[string]any{
		"source_id":  msg.SourceID,
		"message_id": msg.MessageID,
	})
	return nil
}

func (c *TelegramChannel) FetchRecent(_ context.Context, sourceID, aroundID int64, window int) ([]bus.InboundMessage, error) {
	return c.history.Around(sourceID, aroundID, window), nil
}

func (c *TelegramChannel) Resolve(ctx context.Context, ref utils.ChannelRef) (dispatch.ChannelInfo, error) {
	chatID := telego.ChatID{ID: ref.ID}
	if ref.Username != "" {
		chatID = telego.ChatID{Username: "@" + ref.Username}
	}

	chat, err := c.api.GetChat(ctx, &telego.GetChatParams{ChatID: chatID})
	if err != nil {
		return dispatch.ChannelInfo{}, fmt.Errorf("%w: %s: %v", dispatch.ErrChannelNotFound, ref, err)
	}
	if chat.Type != telego.ChatTypeChannel {
		return dispatch.ChannelInfo{}, fmt.Errorf("%w: %s is a %s", dispatch.ErrInvalidChannel, ref, chat.Type)
	}

	info := dispatch.ChannelInfo{ID: chat.ID, Username: chat.Username, Title: chat.Title}
	c.mu.Lock()
	c.known[info.ID] = info
	c.mu.Unlock()
	return info, nil
}

func (c *TelegramChannel) ChatName(ctx context.Context, id int64) (string, error) {
	c.mu.RLock()
	info, ok := c.known[id]
	c.mu.RUnlock()
	if ok {
		return info.Name(), nil
	}

	chat, err := c.api.GetChat(ctx, &telego.GetChatParams{ChatID: telego.ChatID{ID: id}})
	if err != nil {
		return "", err
	}
	info = dispatch.ChannelInfo{ID: chat.ID, Username: chat.Username, Title: chat.Title}
	if chat.Type == telego.ChatTypeChannel {
		c.mu.Lock()
		c.known[id] = info
		c.mu.Unlock()
	}
	return info.Name(), nil
}

// KnownChannels lists the channels seen in updates or resolved, by id.
func (c *TelegramChannel) KnownChannels() []dispatch.ChannelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]dispatch.ChannelInfo, 0, len(c.known))
	for _, info := range c.known {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b dispatch.ChannelInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// telegoLogger routes telego's internal logging into the component logger.
type telegoLogger struct{}

func (telegoLogger) Debugf(format string, args ...any) {
	logger.DebugC("telego", fmt.Sprintf(format, args...))
}

func (telegoLogger) Errorf(format string, args ...any) {
	logger.ErrorC("telego", fmt.Sprintf(format, args...))
}
