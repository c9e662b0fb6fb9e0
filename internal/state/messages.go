package state

import (
	"sync"

	"github.com/matheus3301/crmsync/internal/model"
)

// DefaultWindow is the number of most recent messages kept for the open chat.
const DefaultWindow = 50

// MessageStore holds the ordered message window of the currently open chat.
// The open-chat id doubles as the reference cell consulted by async
// responses and polling ticks at apply time.
type MessageStore struct {
	mu       sync.RWMutex
	window   int
	current  string
	messages []model.Message
	index    map[string]int
	scroll   bool
}

// NewMessageStore creates a store keeping at most window messages.
func NewMessageStore(window int) *MessageStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MessageStore{window: window, index: make(map[string]int)}
}

// Open switches the reference cell to chatID and clears the window.
func (s *MessageStore) Open(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == chatID {
		return
	}
	s.current = chatID
	s.messages = nil
	s.index = make(map[string]int)
	s.scroll = false
}

// Close clears the open chat.
func (s *MessageStore) Close() {
	s.Open("")
}

// Current returns the open chat id, or "" when none is open.
func (s *MessageStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LoadSnapshot replaces the window with msgs (oldest first) if chatID is still
// the open chat; otherwise the response is stale and is discarded.
// Local messages newer than the snapshot and missing from it are kept at the end.
func (s *MessageStore) LoadSnapshot(chatID string, msgs []model.Message, silent bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID == "" || chatID != s.current {
		return false
	}

	next := make([]model.Message, 0, len(msgs))
	index := make(map[string]int, len(msgs))
	var newest int64
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if i, ok := index[m.ID]; ok {
			next[i] = mergeMessage(next[i], m)
			continue
		}
		index[m.ID] = len(next)
		next = append(next, m)
		if m.CreatedAt > newest {
			newest = m.CreatedAt
		}
	}
	for _, m := range s.messages {
		if _, ok := index[m.ID]; ok {
			continue
		}
		if m.CreatedAt >= newest {
			index[m.ID] = len(next)
			next = append(next, m)
		}
	}

	s.messages = next
	s.index = index
	s.trim()
	if !silent {
		s.scroll = true
	}
	return true
}

// AppendIfNew adds msg to the open chat unless a message with the same id is
// already present, in which case the stored entry is enriched in place.
// It reports whether a new entry was appended.
func (s *MessageStore) AppendIfNew(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" || msg.ChatID == "" || msg.ChatID != s.current {
		return false
	}
	if i, ok := s.index[msg.ID]; ok {
		s.messages[i] = mergeMessage(s.messages[i], msg)
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.trim()
	s.scroll = true
	return true
}

// Messages returns a copy of the window, oldest first.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the window.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// ShouldScroll reports the pending scroll signal without clearing it.
func (s *MessageStore) ShouldScroll() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scroll
}

// ConsumeScroll returns the pending scroll signal and clears it.
func (s *MessageStore) ConsumeScroll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.scroll
	s.scroll = false
	return v
}

// trim drops the oldest entries beyond the window. Caller holds mu.
func (s *MessageStore) trim() {
	over := len(s.messages) - s.window
	if over <= 0 {
		return
	}
	s.messages = append([]model.Message(nil), s.messages[over:]...)
	s.index = make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

// mergeMessage enriches cur with fields from in without changing identity or position.
func mergeMessage(cur, in model.Message) model.Message {
	if in.IsRead {
		cur.IsRead = true
	}
	if cur.VoiceURL == "" && in.VoiceURL != "" {
		cur.VoiceURL = in.VoiceURL
	}
	if cur.Content.IsZero() && !in.Content.IsZero() {
		cur.Content = in.Content
	}
	if cur.Type == "" {
		cur.Type = in.Type
	}
	return cur
}
