package utils

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidChannelRef is returned for input that is neither a public
// username, a t.me link nor a numeric chat id.
var ErrInvalidChannelRef = errors.New("invalid channel reference")

// Telegram usernames: 5-32 chars, letters, digits and underscores, starting
// with a letter.
var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{4,31}$`)

// ChannelRef is a parsed operator reference to a channel. Exactly one of ID
// or Username is set.
type ChannelRef struct {
	ID       int64
	Username string
}

// ChatRef returns the form the Bot API accepts as chat_id for lookups.
func (r ChannelRef) ChatRef() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

func (r ChannelRef) String() string { return r.ChatRef() }

// ParseChannelInput accepts "@name", "name", "t.me/name",
// "https://t.me/name/123" and numeric ids such as "-1001234567890".
func ParseChannelInput(input string) (ChannelRef, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return ChannelRef{}, ErrInvalidChannelRef
	}

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id == 0 {
			return ChannelRef{}, ErrInvalidChannelRef
		}
		return ChannelRef{ID: id}, nil
	}

	if idx := strings.Index(s, "t.me/"); idx >= 0 {
		s = s[idx+len("t.me/"):]
		if i := strings.IndexAny(s, "/?#"); i >= 0 {
			s = s[:i]
		}
		// Invite links (t.me/+hash, t.me/joinchat/...) cannot be resolved by name.
		if s == "joinchat" || strings.HasPrefix(s, "+") {
			return ChannelRef{}, ErrInvalidChannelRef
		}
	} else {
		s = strings.TrimPrefix(s, "@")
	}

	if !usernameRe.MatchString(s) {
		return ChannelRef{}, ErrInvalidChannelRef
	}
	return ChannelRef{Username: s}, nil
}
