package channels

import (
	"cmp"
	"slices"
	"sync"

	"github.com/tinyland-inc/chanrelay/pkg/bus"
)

// History keeps the most recent posts of each chat, ordered by message id.
// The Bot API cannot read channel history, so the relay's fetchRecent is
// served from here.
type History struct {
	mu    sync.Mutex
	size  int
	chats map[int64][]bus.InboundMessage
}

// NewHistory keeps up to size posts per chat.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 200
	}
	return &History{
		size:  size,
		chats: make(map[int64][]bus.InboundMessage),
	}
}

func compareID(a bus.InboundMessage, id int64) int {
	return cmp.Compare(a.MessageID, id)
}

// Record stores msg. Re-recording an id replaces the entry; when the chat is
// full the lowest id is dropped.
func (h *History) Record(msg bus.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.chats[msg.SourceID]
	i, found := slices.BinarySearchFunc(entries, msg.MessageID, compareID)
	if found {
		entries[i] = msg
		return
	}
	entries = slices.Insert(entries, i, msg)
	if len(entries) > h.size {
		entries = slices.Delete(entries, 0, len(entries)-h.size)
	}
	h.chats[msg.SourceID] = entries
}

// Around returns the posts of chatID whose ids lie within window of around,
// in id order.
func (h *History) Around(chatID, around int64, window int) []bus.InboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.chats[chatID]
	lo, _ := slices.BinarySearchFunc(entries, around-int64(window), compareID)
	hi, found := slices.BinarySearchFunc(entries, around+int64(window), compareID)
	if found {
		hi++
	}
	if lo >= hi {
		return nil
	}
	return slices.Clone(entries[lo:hi])
}

func (h *History) Len(chatID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chats[chatID])
}

// Forget drops everything recorded for chatID.
func (h *History) Forget(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, chatID)
}
