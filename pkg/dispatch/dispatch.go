// Package dispatch implements the operator command surface: starting and
// stopping the relay, editing the monitored set and target, and reporting
// status.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
	"github.com/tinyland-inc/chanrelay/pkg/relay"
	"github.com/tinyland-inc/chanrelay/pkg/store"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

var (
	// ErrInvalidChannel means the reference resolved to something that is not
	// a broadcast channel, or could not be parsed at all.
	ErrInvalidChannel = errors.New("not a channel")
	// ErrChannelNotFound means the transport could not find or access the
	// channel.
	ErrChannelNotFound = errors.New("channel not found")
)

// ChannelInfo describes a resolved channel.
type ChannelInfo struct {
	ID       int64
	Username string
	Title    string
}

// Name is the operator-facing name: the public username when there is one,
// otherwise the title.
func (c ChannelInfo) Name() string {
	switch {
	case c.Username != "":
		return "@" + c.Username
	case c.Title != "":
		return c.Title
	default:
		return fmt.Sprintf("%d", c.ID)
	}
}

// Resolver turns operator references into channels.
type Resolver interface {
	Resolve(ctx context.Context, ref utils.ChannelRef) (ChannelInfo, error)
	ChatName(ctx context.Context, id int64) (string, error)
	KnownChannels() []ChannelInfo
}

// Store is the subset of store.Store the dispatcher edits.
type Store interface {
	AddSource(id int64) (bool, error)
	RemoveSource(id int64) (bool, error)
	SetTarget(id int64) error
	Sources() []int64
	HasSource(id int64) bool
	Target() (int64, bool)
}

// Engine is the subset of relay.Engine the dispatcher controls.
type Engine interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	State() relay.State
	Reset()
	Stats() relay.Stats
}

// Dispatcher executes operator commands. It is driven by the relay runner,
// so Execute never runs concurrently with message handling.
type Dispatcher struct {
	store    Store
	engine   Engine
	resolver Resolver
}

func NewDispatcher(st Store, engine Engine, resolver Resolver) *Dispatcher {
	return &Dispatcher{
		store:    st,
		engine:   engine,
		resolver: resolver,
	}
}

// ParseCommand splits "/name@bot args" into its command name and argument
// text. ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}
	name = text
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		name, args = text[:i], text[i+1:]
	}
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// Execute runs one command and returns the reply for the operator.
func (d *Dispatcher) Execute(ctx context.Context, cmd bus.Command) string {
	name, args, ok := ParseCommand(cmd.Text)
	if !ok {
		return msgHelp
	}

	logger.InfoCF("dispatch", "Command received", map[string]any{
		"command":   name,
		"channel":   cmd.Channel,
		"sender_id": cmd.SenderID,
	})

	switch name {
	case cmdStart:
		return d.start()
	case cmdStop:
		d.engine.SetEnabled(false)
		return msgBotStopped
	case cmdAddChannel:
		return d.addChannel(ctx, args)
	case cmdAddAllChannels:
		return d.addAllChannels()
	case cmdRemoveChannel:
		return d.removeChannel(ctx, args)
	case cmdSetTarget:
		return d.setTarget(ctx, args)
	case cmdList:
		return d.list(ctx)
	case cmdStatus:
		return d.status()
	case cmdReset:
		d.engine.Reset()
		return msgReset
	default:
		return msgHelp
	}
}

func (d *Dispatcher) start() string {
	d.engine.SetEnabled(true)
	if _, ok := d.store.Target(); !ok {
		return msgBotStarted + "\n" + msgNoTarget
	}
	return msgBotStarted
}

// resolve parses and resolves a reference, mapping failures to the operator
// reply that explains them.
func (d *Dispatcher) resolve(ctx context.Context, input string) (ChannelInfo, string, bool) {
	ref, err := utils.ParseChannelInput(input)
	if err != nil {
		return ChannelInfo{}, msgInvalidChannel, false
	}
	info, err := d.resolver.Resolve(ctx, ref)
	switch {
	case err == nil:
		return info, "", true
	case errors.Is(err, ErrInvalidChannel):
		return ChannelInfo{}, msgInvalidChannel, false
	default:
		logger.WarnCF("dispatch", "Channel lookup failed", map[string]any{
			"ref":   ref.String(),
			"error": err.Error(),
		})
		return ChannelInfo{}, msgChannelNotFound, false
	}
}

func (d *Dispatcher) addChannel(ctx context.Context, args string) string {
	if args == "" {
		return usage(cmdAddChannel)
	}
	info, reply, ok := d.resolve(ctx, args)
	if !ok {
		return reply
	}
	if target, ok := d.store.Target(); ok && target == info.ID {
		return fmt.Sprintf(msgIsTarget, info.Name())
	}

	added, err := d.store.AddSource(info.ID)
	if err != nil {
		return d.storeFailure("add_channel", err)
	}
	if !added {
		return fmt.Sprintf(msgAlreadyMonitored, info.Name())
	}
	return fmt.Sprintf(msgChannelAdded, info.Name())
}

func (d *Dispatcher) addAllChannels() string {
	target, hasTarget := d.store.Target()
	count := 0
	for _, ch := range d.resolver.KnownChannels() {
		if hasTarget && ch.ID == target {
			continue
		}
		added, err := d.store.AddSource(ch.ID)
		if err != nil {
			return d.storeFailure("add_all_channels", err)
		}
		if added {
			count++
		}
	}
	return fmt.Sprintf(msgAllChannelsAdded, count)
}

func (d *Dispatcher) removeChannel(ctx context.Context, args string) string {
	if args == "" {
		return usage(cmdRemoveChannel)
	}

	// A numeric id that is monitored can be removed even when the channel is
	// no longer reachable.
	var info ChannelInfo
	if ref, err := utils.ParseChannelInput(args); err == nil && ref.ID != 0 && d.store.HasSource(ref.ID) {
		info = ChannelInfo{ID: ref.ID}
		if name, err := d.resolver.ChatName(ctx, ref.ID); err == nil {
			info.Title = name
		}
	} else {
		var reply string
		var ok bool
		if info, reply, ok = d.resolve(ctx, args); !ok {
			return reply
		}
	}

	removed, err := d.store.RemoveSource(info.ID)
	if err != nil {
		return d.storeFailure("remove_channel", err)
	}
	if !removed {
		return fmt.Sprintf(msgNotMonitored, info.Name())
	}
	return fmt.Sprintf(msgChannelRemoved, info.Name())
}

func (d *Dispatcher) setTarget(ctx context.Context, args string) string {
	if args == "" {
		return usage(cmdSetTarget)
	}
	info, reply, ok := d.resolve(ctx, args)
	if !ok {
		return reply
	}
	if err := d.store.SetTarget(info.ID); err != nil {
		if errors.Is(err, store.ErrFeedbackLoop) {
			return fmt.Sprintf(msgTargetMonitored, info.Name())
		}
		return d.storeFailure("set_target", err)
	}
	return fmt.Sprintf(msgTargetSet, info.Name())
}

func (d *Dispatcher) list(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("Monitored channels:")
	sources := d.store.Sources()
	if len(sources) == 0 {
		sb.WriteString("\n(none)")
	}
	for _, id := range sources {
		sb.WriteString("\n- ")
		sb.WriteString(d.chatName(ctx, id))
	}

	if target, ok := d.store.Target(); ok {
		sb.WriteString("\nTarget channel: ")
		sb.WriteString(d.chatName(ctx, target))
	} else {
		sb.WriteString("\n")
		sb.WriteString(msgNoTarget)
	}
	return sb.String()
}

// chatName falls back to the numeric id when the name cannot be looked up.
func (d *Dispatcher) chatName(ctx context.Context, id int64) string {
	name, err := d.resolver.ChatName(ctx, id)
	if err != nil || name == "" {
		if err != nil {
			logger.DebugCF("dispatch", "Chat name lookup failed", map[string]any{
				"chat_id": id,
				"error":   err.Error(),
			})
		}
		return fmt.Sprintf("%d", id)
	}
	return name
}

func (d *Dispatcher) status() string {
	st := d.engine.Stats()
	return fmt.Sprintf(
		"Bot status: %s\nMonitored channels: %d\nBuffered albums: %d\nProcessed messages: %d\n"+
			"Forwarded: %d messages, %d albums\nDropped: %d, evicted albums: %d",
		d.engine.State(),
		len(d.store.Sources()),
		st.BufferedAlbums,
		st.Processed,
		st.Forwarded, st.AlbumsFlushed,
		st.Dropped, st.Evicted,
	)
}

func (d *Dispatcher) storeFailure(op string, err error) string {
	logger.ErrorCF("dispatch", "Could not persist configuration", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return fmt.Sprintf(msgStoreFailure, err)
}

func usage(cmd string) string {
	return fmt.Sprintf("Usage: %s <@username | https://t.me/username | channel id>", cmd)
}
