package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// Replies exceeding this limit are split by the Manager.
// A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// WithDenyByDefault makes an empty allow list admit nobody.
func WithDenyByDefault() BaseChannelOption {
	return func(c *BaseChannel) { c.denyByDefault = true }
}

// MessageLengthProvider is an opt-in interface that channels implement
// to advertise their maximum message length.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

type BaseChannel struct {
	bus              *bus.MessageBus
	running          atomic.Bool
	name             string
	allowList        []string
	denyByDefault    bool
	maxMessageLength int
}

func NewBaseChannel(
	name string,
	bus *bus.MessageBus,
	allowList []string,
	opts ...BaseChannelOption,
) *BaseChannel {
	bc := &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed reports whether senderID may issue operator commands. An empty
// allow list admits everyone unless the channel denies by default.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return !c.denyByDefault
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == allowed ||
			senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// HandleCommand publishes an operator command if the sender is allowed.
func (c *BaseChannel) HandleCommand(ctx context.Context, chatID int64, senderID, text string) {
	if !c.IsAllowed(senderID) {
		logger.WarnCF(c.name, "Command from unauthorized sender ignored", map[string]any{
			"sender_id": senderID,
			"chat_id":   chatID,
		})
		return
	}

	err := c.bus.PublishInbound(ctx, bus.CommandEvent(bus.Command{
		Channel:  c.name,
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
	}))
	if err != nil {
		logger.WarnCF(c.name, "Could not publish command", map[string]any{
			"error": err.Error(),
		})
	}
}

// HandleMessage publishes an observed channel post.
func (c *BaseChannel) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if err := c.bus.PublishInbound(ctx, bus.MessageEvent(msg)); err != nil {
		logger.WarnCF(c.name, "Could not publish message", map[string]any{
			"source_id":  msg.SourceID,
			"message_id": msg.MessageID,
			"error":      err.Error(),
		})
	}
}
