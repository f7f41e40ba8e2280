package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrNoInput           = errors.New("no input received")
	ErrEmptyToken        = errors.New("token cannot be empty")
	ErrInvalidToken      = errors.New("token does not look like a bot token (<bot id>:<secret>)")
	ErrInvalidOperatorID = errors.New("operator id must be a positive numeric Telegram user id")
)

var botTokenRe = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// Prompter asks onboarding questions on w and reads the answers from r, one
// line each.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(r), out: w}
}

// BotToken reads the token issued by @BotFather.
func (p *Prompter) BotToken() (string, error) {
	line, err := p.ask("Paste the bot token from @BotFather:")
	if err != nil {
		return "", err
	}
	if err := ValidateBotToken(line); err != nil {
		return "", err
	}
	return line, nil
}

// OperatorID reads the numeric user id of the account allowed to send
// commands to the bot.
func (p *Prompter) OperatorID() (int64, error) {
	line, err := p.ask("Your numeric Telegram user id (ask @userinfobot), the only account allowed to command the bot:")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(line, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q: %w", line, ErrInvalidOperatorID)
	}
	return id, nil
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprintln(p.out, question)
	fmt.Fprint(p.out, "> ")

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", ErrNoInput
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func ValidateBotToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if !botTokenRe.MatchString(token) {
		return ErrInvalidToken
	}
	return nil
}
