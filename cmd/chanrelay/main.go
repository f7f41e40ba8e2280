// chanrelay - Telegram channel relay
// Forwards posts from monitored channels into one target channel.
// License: MIT
//
// Copyright (c) 2026 chanrelay contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal/channels"
	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal/gateway"
	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal/onboard"
	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal/status"
	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal/version"
)

func NewChanrelayCommand() *cobra.Command {
	short := fmt.Sprintf("%s chanrelay - Telegram channel relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "chanrelay",
		Short:   short,
		Example: "chanrelay gateway",
	}

	cmd.PersistentFlags().StringVar(&internal.ConfigPath, "config", "",
		"Config file path (default: ~/.chanrelay/config.json)")

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		channels.NewChannelsCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewChanrelayCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
