package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/channels"
	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/dispatch"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
	"github.com/tinyland-inc/chanrelay/pkg/relay"
	"github.com/tinyland-inc/chanrelay/pkg/store"
)

const shutdownTimeout = 5 * time.Second

func gatewayCmd(debug, console bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return err
	}
	if debug {
		fmt.Println("🔍 Debug mode enabled")
	}

	if !cfg.Telegram.Enabled {
		return errors.New("telegram is disabled in config; the relay has no transport")
	}
	if err := checkOperators(cfg, console); err != nil {
		return err
	}

	st, err := store.Load(cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("error loading channel store: %w", err)
	}

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telegram, err := channels.NewTelegramChannel(cfg.Telegram, msgBus)
	if err != nil {
		return fmt.Errorf("error creating telegram channel: %w", err)
	}

	manager := channels.NewManager(msgBus)
	manager.Register(telegram)
	if console {
		manager.Register(channels.NewConsoleChannel(cfg.Console, msgBus, cancel))
	}

	engine := relay.NewEngine(telegram, st, engineOptions(cfg))
	engine.SetEnabled(cfg.Relay.StartEnabled)

	dispatcher := dispatch.NewDispatcher(st, engine, telegram)
	runner, err := relay.NewRunner(engine, msgBus, dispatcher, cfg.Relay.SweepSchedule)
	if err != nil {
		return err
	}

	if err := manager.StartAll(ctx); err != nil {
		if !telegram.IsRunning() {
			return fmt.Errorf("error starting channels: %w", err)
		}
		fmt.Printf("⚠ Some channels failed to start: %v\n", err)
	}

	printStartup(cfg, st, manager.GetEnabledChannels(), engine.State())
	logger.InfoCF("gateway", "Gateway started", map[string]any{
		"channels": manager.GetEnabledChannels(),
		"sources":  len(st.Sources()),
		"state":    engine.State().String(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return manager.RouteOutbound(gctx) })
	runErr := g.Wait()

	fmt.Println("\nShutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	notifyOperators(stopCtx, telegram, cfg.Telegram.AllowFrom)
	if err := manager.StopAll(stopCtx); err != nil {
		logger.WarnCF("gateway", "Channels did not stop cleanly", map[string]any{"error": err.Error()})
	}
	logger.DisableFileLogging()
	fmt.Println("✓ Gateway stopped")

	return runErr
}

// checkOperators refuses a gateway nobody can command. The telegram channel
// ignores every sender while allow_from is empty.
func checkOperators(cfg *config.Config, console bool) error {
	if console {
		return nil
	}
	for _, entry := range cfg.Telegram.AllowFrom {
		if strings.TrimSpace(entry) != "" {
			return nil
		}
	}
	return errors.New("telegram.allow_from is empty: add your Telegram user id or run with --console")
}

func engineOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		FetchWindow:       cfg.Relay.FetchWindow,
		MaxAlbumSize:      cfg.Relay.MaxAlbumSize,
		AlbumTTL:          cfg.Relay.AlbumTTL(),
		MaxBufferedAlbums: cfg.Relay.MaxBufferedAlbums,
	}
}

func printStartup(cfg *config.Config, st *store.Store, enabled []string, state relay.State) {
	fmt.Printf("%s chanrelay %s\n", internal.Logo, internal.FormatVersion())
	fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	if len(cfg.Telegram.AllowFrom) == 0 {
		fmt.Println("⚠ telegram.allow_from is empty, Telegram commands are ignored")
	}
	fmt.Printf("✓ Store: %s (%d monitored)\n", st.Path(), len(st.Sources()))
	if target, ok := st.Target(); ok {
		fmt.Printf("✓ Target channel: %d\n", target)
	} else {
		fmt.Println("⚠ Target channel not set, use /set_target")
	}
	fmt.Printf("✓ Relay %s", state)
	if state == relay.StateStopped {
		fmt.Print(" (send /start to begin forwarding)")
	}
	fmt.Println()
	if cfg.Relay.SweepSchedule != "" {
		fmt.Printf("✓ Album sweep schedule: %s\n", cfg.Relay.SweepSchedule)
	}
	fmt.Println("Press Ctrl+C to stop")
}

// notifyOperators tells every numerically allow-listed operator that the
// relay stopped.
func notifyOperators(ctx context.Context, ch channels.Channel, allowFrom []string) {
	for _, id := range operatorChatIDs(allowFrom) {
		err := ch.Send(ctx, bus.OutboundMessage{Channel: ch.Name(), ChatID: id, Content: "Bot stopped."})
		if err != nil {
			logger.WarnCF("gateway", "Could not notify operator", map[string]any{
				"chat_id": id,
				"error":   err.Error(),
			})
		}
	}
}

// operatorChatIDs extracts user ids from allow_from entries such as "123"
// or "123|name". Username-only entries have no chat to write to.
func operatorChatIDs(allowFrom []string) []int64 {
	var ids []int64
	for _, entry := range allowFrom {
		idPart, _, _ := strings.Cut(entry, "|")
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
