package gateway

import (
	"github.com/spf13/cobra"
)

func NewGatewayCommand() *cobra.Command {
	var debug bool
	var console bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Start the channel relay",
		Args:    cobra.NoArgs,
		Example: `  chanrelay gateway
  chanrelay gateway --console
  chanrelay gateway --debug --config /etc/chanrelay/config.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return gatewayCmd(debug, console)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVarP(&console, "console", "c", false, "Accept operator commands from this terminal")

	return cmd
}
