package bus

// InboundMessage is a post observed on a source channel. It is immutable once
// received; Payload is the transport's native message and is forwarded
// verbatim by the transport that produced it.
type InboundMessage struct {
	SourceID  int64  `json:"source_id"`
	MessageID int64  `json:"message_id"`           // monotonic per source
	GroupID   string `json:"group_id,omitempty"`   // set iff the post is part of an album
	HasMedia  bool   `json:"has_media"`
	Payload   any    `json:"-"`
}

// Grouped reports whether the message belongs to an album.
func (m InboundMessage) Grouped() bool { return m.GroupID != "" }

// Command is an operator instruction received on a control channel.
type Command struct {
	Channel  string `json:"channel"` // channel that delivered it, replies go back there
	ChatID   int64  `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is the single inbound unit consumed by the relay runner. Exactly one
// of Message or Command is set, matching Kind.
type Event struct {
	Kind    EventKind
	Message InboundMessage
	Command Command
}

func MessageEvent(msg InboundMessage) Event {
	return Event{Kind: EventMessage, Message: msg}
}

func CommandEvent(cmd Command) Event {
	return Event{Kind: EventCommand, Command: cmd}
}

// OutboundMessage is a text reply to an operator.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  int64  `json:"chat_id"`
	Content string `json:"content"`
}
