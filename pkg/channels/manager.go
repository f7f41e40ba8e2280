package channels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

// Manager owns the registered channels and delivers operator replies from
// the outbound bus to the channel each command came from.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager(mb *bus.MessageBus) *Manager {
	return &Manager{
		bus:      mb,
		channels: make(map[string]Channel),
	}
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels returns the registered channel names, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StartAll starts every channel. A channel that fails to start is logged and
// skipped; the joined errors are returned.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.GetEnabledChannels() {
		ch, _ := m.GetChannel(name)
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": name})
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.GetEnabledChannels() {
		ch, _ := m.GetChannel(name)
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RouteOutbound delivers replies until ctx is done or the bus closes.
func (m *Manager) RouteOutbound(ctx context.Context) error {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}
		m.deliver(ctx, msg)
	}
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		logger.WarnCF("channels", "Reply for unknown channel dropped", map[string]any{
			"channel": msg.Channel,
		})
		return
	}

	maxLen := 0
	if lp, ok := ch.(MessageLengthProvider); ok {
		maxLen = lp.MaxMessageLength()
	}

	for _, chunk := range utils.SplitMessage(msg.Content, maxLen) {
		part := msg
		part.Content = chunk
		if err := ch.Send(ctx, part); err != nil {
			logger.ErrorCF("channels", "Error sending reply", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
			return
		}
	}
}
