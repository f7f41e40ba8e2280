package onboard

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tinyland-inc/chanrelay/cmd/chanrelay/internal"
	"github.com/tinyland-inc/chanrelay/pkg/auth"
	"github.com/tinyland-inc/chanrelay/pkg/config"
)

func onboard(in io.Reader, out io.Writer, force bool) error {
	configPath := internal.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	prompter := auth.NewPrompter(in, out)
	token, err := prompter.BotToken()
	if err != nil {
		return err
	}
	operator, err := prompter.OperatorID()
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.Telegram.Token = token
	cfg.Telegram.AllowFrom = config.FlexibleStringSlice{strconv.FormatInt(operator, 10)}
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	fmt.Fprintf(out, "\n%s chanrelay is ready!\n", internal.Logo)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Add the bot as an administrator of the target channel")
	fmt.Fprintln(out, "  2. Add the bot to every channel you want to monitor")
	fmt.Fprintln(out, "  3. Run: chanrelay gateway")
	fmt.Fprintf(out, "  4. From account %d, message the bot: /set_target, /add_channel, /start\n", operator)
	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	return nil
}
