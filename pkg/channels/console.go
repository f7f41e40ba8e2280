package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

const consoleSenderID = "console"

// ConsoleChannel reads operator commands from the terminal. It has no allow
// list: whoever holds the terminal is the operator.
type ConsoleChannel struct {
	*BaseChannel
	config config.ConsoleConfig
	onExit func()

	mu  sync.Mutex
	rl  *readline.Instance
	out io.Writer
}

// NewConsoleChannel returns a console channel. onExit runs when the operator
// types exit, presses Ctrl+C or closes stdin.
func NewConsoleChannel(cfg config.ConsoleConfig, mb *bus.MessageBus, onExit func()) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", mb, nil),
		config:      cfg,
		onExit:      onExit,
		out:         os.Stdout,
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.config.Prompt,
		HistoryFile:     c.config.HistoryFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}

	c.mu.Lock()
	c.rl = rl
	c.out = rl.Stdout()
	c.mu.Unlock()
	c.SetRunning(true)

	go c.readLoop(ctx, rl)
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context, rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				c.exit()
				return
			}
			if !c.IsRunning() {
				return
			}
			logger.WarnCF("console", "Error reading input", map[string]any{"error": err.Error()})
			continue
		}
		if !c.handleLine(ctx, line) {
			c.exit()
			return
		}
	}
}

// handleLine publishes one input line and reports whether to keep reading.
func (c *ConsoleChannel) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch {
	case input == "":
		return true
	case input == "exit" || input == "quit":
		return false
	case !strings.HasPrefix(input, "/"):
		c.print("Commands start with /. Try /help")
		return true
	}
	c.HandleCommand(ctx, 0, consoleSenderID, input)
	return true
}

func (c *ConsoleChannel) exit() {
	if c.onExit != nil {
		c.onExit()
	}
}

func (c *ConsoleChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.print(msg.Content)
	return nil
}

func (c *ConsoleChannel) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s\n", text)
}
