package status

import (
	"fmt"
	"io"
	"os"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/pkg/store"
)

func statusCmd(w io.Writer) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	configPath := internal.GetConfigPath()

	fmt.Fprintf(w, "%s chanrelay Status\n", internal.Logo)
	fmt.Fprintf(w, "Version: %s\n\n", internal.FormatVersion())

	fmt.Fprintln(w, "Config:", configPath, exists(configPath))
	storePath := cfg.StoragePath()
	fmt.Fprintln(w, "Store:", storePath, exists(storePath))

	if !cfg.Telegram.Enabled {
		fmt.Fprintln(w, "Telegram: disabled")
	} else if cfg.Telegram.Token == "" {
		fmt.Fprintln(w, "Telegram: enabled, token not set")
	} else {
		fmt.Fprintln(w, "Telegram: enabled, token set")
	}
	if len(cfg.Telegram.AllowFrom) > 0 {
		fmt.Fprintf(w, "Operators: %d allowed\n", len(cfg.Telegram.AllowFrom))
	} else {
		fmt.Fprintln(w, "Operators: none, Telegram commands are ignored")
	}

	if _, err := os.Stat(storePath); err != nil {
		fmt.Fprintln(w, "\nMonitored channels: 0 (store not created)")
		fmt.Fprintln(w, "Target channel: not set")
	} else {
		st, err := store.Load(storePath)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nMonitored channels: %d\n", len(st.Sources()))
		for _, id := range st.Sources() {
			fmt.Fprintf(w, "  - %d\n", id)
		}
		if target, ok := st.Target(); ok {
			fmt.Fprintf(w, "Target channel: %d\n", target)
		} else {
			fmt.Fprintln(w, "Target channel: not set")
		}
	}

	r := cfg.Relay
	fmt.Fprintln(w, "\nRelay:")
	fmt.Fprintf(w, "  Start enabled: %t\n", r.StartEnabled)
	fmt.Fprintf(w, "  Fetch window: %d\n", r.FetchWindow)
	fmt.Fprintf(w, "  Max album size: %d\n", r.MaxAlbumSize)
	fmt.Fprintf(w, "  Album TTL: %s\n", r.AlbumTTL())
	fmt.Fprintf(w, "  Max buffered albums: %d\n", r.MaxBufferedAlbums)
	if r.SweepSchedule != "" {
		fmt.Fprintf(w, "  Sweep schedule: %s\n", r.SweepSchedule)
	} else {
		fmt.Fprintln(w, "  Sweep schedule: off")
	}
	return nil
}

func exists(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}
