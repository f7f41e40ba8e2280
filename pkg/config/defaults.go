package config

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:           true,
			AllowFrom:         FlexibleStringSlice{},
			MediaGroupDelayMS: 800,
			HistorySize:       200,
			PollTimeout:       30,
		},
		Console: ConsoleConfig{
			Prompt:      "relay> ",
			HistoryFile: "~/.chanrelay/console_history",
		},
		Storage: StorageConfig{
			Path: "~/.chanrelay/channels.json",
		},
		Relay: RelayConfig{
			FetchWindow:       10,
			MaxAlbumSize:      10,
			AlbumTTLSeconds:   30,
			MaxBufferedAlbums: 256,
			SweepSchedule:     "* * * * *",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 1,
		},
	}
}
