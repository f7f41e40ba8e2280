package channels

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/pkg/bus"
	tgchannels "github.com/tinyland-inc/chanrelay/pkg/channels"
	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/dispatch"
	"github.com/tinyland-inc/chanrelay/pkg/store"
	"github.com/tinyland-inc/chanrelay/pkg/utils"
)

// newResolver is swapped out in tests.
var newResolver = func(cfg *config.Config) (dispatch.Resolver, error) {
	return tgchannels.NewTelegramChannel(cfg.Telegram, bus.NewMessageBus())
}

func openStore() (*store.Store, *config.Config, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	st, err := store.Load(cfg.StoragePath())
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

// resolveID turns input into a chat id. Numeric ids are used as given;
// usernames and links need the bot token to be looked up.
func resolveID(ctx context.Context, cfg *config.Config, input string) (int64, string, error) {
	ref, err := utils.ParseChannelInput(input)
	if err != nil {
		return 0, "", fmt.Errorf("%q: %w", input, err)
	}
	if ref.ID != 0 {
		return ref.ID, ref.String(), nil
	}
	if cfg.Telegram.Token == "" {
		return 0, "", errors.New("resolving a username needs telegram.token; pass the numeric channel id instead")
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return 0, "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	info, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return 0, "", err
	}
	return info.ID, info.Name(), nil
}

func addChannel(ctx context.Context, w io.Writer, input string) error {
	st, cfg, err := openStore()
	if err != nil {
		return err
	}
	id, name, err := resolveID(ctx, cfg, input)
	if err != nil {
		return err
	}
	if target, ok := st.Target(); ok && target == id {
		return fmt.Errorf("channel %s is the target channel and cannot be monitored", name)
	}

	added, err := st.AddSource(id)
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintf(w, "✓ Channel %s added to monitoring list.\n", name)
	} else {
		fmt.Fprintf(w, "Channel %s is already monitored.\n", name)
	}
	return nil
}

func removeChannel(ctx context.Context, w io.Writer, input string) error {
	st, cfg, err := openStore()
	if err != nil {
		return err
	}
	id, name, err := resolveID(ctx, cfg, input)
	if err != nil {
		return err
	}

	removed, err := st.RemoveSource(id)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintf(w, "✓ Channel %s removed from monitoring list.\n", name)
	} else {
		fmt.Fprintf(w, "Channel %s is not in the monitoring list.\n", name)
	}
	return nil
}

func setTarget(ctx context.Context, w io.Writer, input string) error {
	st, cfg, err := openStore()
	if err != nil {
		return err
	}
	id, name, err := resolveID(ctx, cfg, input)
	if err != nil {
		return err
	}
	if err := st.SetTarget(id); err != nil {
		if errors.Is(err, store.ErrFeedbackLoop) {
			return fmt.Errorf("channel %s is monitored; remove it before making it the target: %w", name, err)
		}
		return err
	}
	fmt.Fprintf(w, "✓ Target channel set to %s.\n", name)
	return nil
}

func printList(w io.Writer, st *store.Store) {
	fmt.Fprintln(w, "Monitored channels:")
	sources := st.Sources()
	if len(sources) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, id := range sources {
		fmt.Fprintf(w, "  - %d\n", id)
	}
	if target, ok := st.Target(); ok {
		fmt.Fprintf(w, "Target channel: %d\n", target)
	} else {
		fmt.Fprintln(w, "Target channel not set.")
	}
}
