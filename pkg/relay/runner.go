package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

// CommandHandler executes an operator command and returns the reply text.
type CommandHandler interface {
	Execute(ctx context.Context, cmd bus.Command) string
}

// Runner is the single consumer of the inbound bus. Messages, operator
// commands and scheduled sweeps all run on its goroutine, one at a time, so
// the engine needs no locking.
type Runner struct {
	engine   *Engine
	bus      *bus.MessageBus
	commands CommandHandler
	schedule string

	nextSweep func(after time.Time) (time.Time, error)
}

// NewRunner validates the sweep schedule (a cron expression; empty disables
// scheduled sweeps) and returns a runner.
func NewRunner(engine *Engine, mb *bus.MessageBus, commands CommandHandler, schedule string) (*Runner, error) {
	r := &Runner{
		engine:   engine,
		bus:      mb,
		commands: commands,
		schedule: schedule,
	}
	if schedule != "" {
		g := gronx.New()
		if !g.IsValid(schedule) {
			return nil, fmt.Errorf("invalid sweep schedule %q", schedule)
		}
		r.nextSweep = func(after time.Time) (time.Time, error) {
			return gronx.NextTickAfter(schedule, after, false)
		}
	}
	return r, nil
}

// Run consumes events until ctx is done or the bus closes, then resets the
// engine.
func (r *Runner) Run(ctx context.Context) error {
	logger.InfoCF("relay", "Runner started", map[string]any{
		"sweep_schedule": r.schedule,
	})
	defer func() {
		r.engine.SetEnabled(false)
		r.engine.Reset()
		logger.InfoC("relay", "Runner stopped")
	}()

	timer := r.armSweep()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var tick <-chan time.Time
		if timer != nil {
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.bus.Done():
			return nil
		case evt, ok := <-r.bus.Inbound():
			if !ok {
				return nil
			}
			r.dispatch(ctx, evt)
		case <-tick:
			if n := r.engine.Sweep(); n > 0 {
				logger.InfoCF("relay", "Scheduled sweep evicted albums", map[string]any{"evicted": n})
			}
			timer = r.armSweep()
		}
	}
}

func (r *Runner) armSweep() *time.Timer {
	if r.nextSweep == nil {
		return nil
	}
	now := time.Now()
	next, err := r.nextSweep(now)
	if err != nil {
		logger.ErrorCF("relay", "Cannot schedule sweep", map[string]any{
			"schedule": r.schedule,
			"error":    err.Error(),
		})
		return nil
	}
	return time.NewTimer(next.Sub(now))
}

// dispatch handles one event. A panic while handling is logged and the
// stream continues.
func (r *Runner) dispatch(ctx context.Context, evt bus.Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorCF("relay", "Event handler panicked", map[string]any{
				"kind":  evt.Kind.String(),
				"panic": fmt.Sprint(p),
			})
		}
	}()

	switch evt.Kind {
	case bus.EventMessage:
		outcome := r.engine.Handle(ctx, evt.Message)
		logger.DebugCF("relay", "Message handled", map[string]any{
			"source_id":  evt.Message.SourceID,
			"message_id": evt.Message.MessageID,
			"outcome":    outcome.String(),
		})
	case bus.EventCommand:
		r.runCommand(ctx, evt.Command)
	default:
		logger.WarnCF("relay", "Unknown event kind", map[string]any{"kind": int(evt.Kind)})
	}
}

func (r *Runner) runCommand(ctx context.Context, cmd bus.Command) {
	if r.commands == nil {
		logger.WarnCF("relay", "No command handler, ignoring command", map[string]any{"text": cmd.Text})
		return
	}
	reply := r.commands.Execute(ctx, cmd)
	if reply == "" {
		return
	}
	err := r.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel: cmd.Channel,
		ChatID:  cmd.ChatID,
		Content: reply,
	})
	if err != nil {
		logger.WarnCF("relay", "Could not publish reply", map[string]any{
			"channel": cmd.Channel,
			"error":   err.Error(),
		})
	}
}
