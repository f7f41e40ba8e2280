package channels

import (
	"github.com/spf13/cobra"
)

func NewChannelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "channels",
		Aliases: []string{"ch"},
		Short:   "Edit monitored channels and the target offline",
		Long: `Edit the channel store without running the gateway.

Changes are picked up on the next gateway start. While a gateway is running,
use its /add_channel, /remove_channel and /set_target commands instead.
Numeric channel ids are negative; put them after -- so they are not read as flags.`,
		Example: `  chanrelay channels list
  chanrelay channels add -- -1001234567890
  chanrelay channels add @golang_news
  chanrelay channels remove -- -1001234567890
  chanrelay channels target https://t.me/my_aggregate`,
	}

	cmd.AddCommand(
		newListCommand(),
		newAddCommand(),
		newRemoveCommand(),
		newTargetCommand(),
	)

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored channels and the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <channel>",
		Short: "Add a channel to the monitoring list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addChannel(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <channel>",
		Aliases: []string{"rm"},
		Short:   "Remove a channel from the monitoring list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeChannel(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func newTargetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "target <channel>",
		Short: "Set the channel posts are forwarded to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTarget(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}
