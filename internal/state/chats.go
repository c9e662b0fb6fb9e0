package state

import (
	"sort"
	"sync"

	"github.com/matheus3301/crmsync/internal/model"
)

// previewLen bounds the summary text kept for the chat list.
const previewLen = 100

// recentPerChat bounds the message ids remembered per chat for duplicate detection.
const recentPerChat = 64

// MessageFlags qualify a message event applied to the conversation list.
type MessageFlags struct {
	// Open is true when the chat is the one currently displayed.
	Open bool
	// SelfEcho marks the echo of a message the operator just sent.
	SelfEcho bool
}

// ConversationStore is the authoritative in-memory chat list.
// All mutations go through its merge functions.
type ConversationStore struct {
	mu     sync.RWMutex
	chats  map[string]*model.Chat
	recent map[string][]string
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		chats:  make(map[string]*model.Chat),
		recent: make(map[string][]string),
	}
}

// UpsertFromSnapshot merges a chat-list snapshot and returns how many chats changed.
// Chats missing from the snapshot are kept: snapshots may be paginated or filtered.
func (s *ConversationStore) UpsertFromSnapshot(chats []model.Chat) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range chats {
		in := chats[i]
		if in.ID == "" {
			continue
		}
		cur, ok := s.chats[in.ID]
		if !ok {
			c := cloneChat(&in)
			normalize(c)
			s.chats[in.ID] = c
			changed++
			continue
		}
		switch {
		case in.UpdatedAt > cur.UpdatedAt:
			cur.UpdatedAt = in.UpdatedAt
			cur.LastMessage = cloneLast(in.LastMessage)
			cur.UnreadCount = in.UnreadCount
			cur.HasNewMessage = cur.HasNewMessage || in.HasNewMessage
			if in.AccountName != "" {
				cur.AccountName = in.AccountName
			}
			normalize(cur)
			changed++
		case in.UpdatedAt == cur.UpdatedAt:
			if in.AccountName != "" && in.AccountName != cur.AccountName {
				cur.AccountName = in.AccountName
				changed++
			}
		}
	}
	return changed
}

// ApplyMessageEvent folds one message into its chat's summary and counters.
// Unknown chats get a minimal stub since push may race ahead of the list.
// It reports whether the chat changed.
func (s *ConversationStore) ApplyMessageEvent(chatID string, msg model.Message, flags MessageFlags) bool {
	if chatID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		c = &model.Chat{ID: chatID}
		s.chats[chatID] = c
	}

	if s.applied(c, msg.ID) {
		// Our own message echoed back before the send response: clear the
		// flag it raised if nothing else is unread.
		if flags.SelfEcho && c.HasNewMessage && c.UnreadCount == 0 &&
			c.LastMessage != nil && c.LastMessage.ID == msg.ID {
			c.HasNewMessage = false
			return true
		}
		return !ok
	}
	if msg.CreatedAt < c.UpdatedAt {
		return !ok
	}
	s.remember(chatID, msg.ID)

	if newerThanSummary(c, msg) {
		c.UpdatedAt = msg.CreatedAt
		c.LastMessage = &model.LastMessage{
			ID:        msg.ID,
			Direction: msg.Direction,
			Text:      msg.Preview(previewLen),
			CreatedAt: msg.CreatedAt,
		}
	}
	if msg.Direction == model.DirectionIn && !flags.Open {
		c.UnreadCount++
	}
	if !flags.SelfEcho {
		c.HasNewMessage = true
	}
	normalize(c)
	return true
}

// MarkViewed clears unread state for a chat. It reports whether the chat exists.
func (s *ConversationStore) MarkViewed(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	c.UnreadCount = 0
	c.HasNewMessage = false
	return true
}

// Get returns a copy of one chat.
func (s *ConversationStore) Get(chatID string) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return model.Chat{}, false
	}
	return *cloneChat(c), true
}

// List returns copies of all chats ordered by UpdatedAt descending.
func (s *ConversationStore) List() []model.Chat {
	s.mu.RLock()
	out := make([]model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *cloneChat(c))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Unread returns the number of chats flagged new and the sum of unread counts.
func (s *ConversationStore) Unread() (chats, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.HasNewMessage {
			chats++
		}
		messages += c.UnreadCount
	}
	return chats, messages
}

// Len returns the number of known chats.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// applied reports whether id was already folded into c. Caller holds mu.
func (s *ConversationStore) applied(c *model.Chat, id string) bool {
	if id == "" {
		return false
	}
	if c.LastMessage != nil && c.LastMessage.ID == id {
		return true
	}
	for _, r := range s.recent[c.ID] {
		if r == id {
			return true
		}
	}
	return false
}

// remember records id for chatID, dropping the oldest beyond recentPerChat. Caller holds mu.
func (s *ConversationStore) remember(chatID, id string) {
	if id == "" {
		return
	}
	ids := append(s.recent[chatID], id)
	if over := len(ids) - recentPerChat; over > 0 {
		ids = append([]string(nil), ids[over:]...)
	}
	s.recent[chatID] = ids
}

// newerThanSummary orders by (CreatedAt, ID): timestamps are whole seconds, so
// several messages can share one.
func newerThanSummary(c *model.Chat, msg model.Message) bool {
	if msg.CreatedAt != c.UpdatedAt || c.LastMessage == nil {
		return msg.CreatedAt >= c.UpdatedAt
	}
	return msg.ID > c.LastMessage.ID
}

func normalize(c *model.Chat) {
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	if c.UnreadCount > 0 {
		c.HasNewMessage = true
	}
}

func cloneChat(c *model.Chat) *model.Chat {
	out := *c
	out.LastMessage = cloneLast(c.LastMessage)
	return &out
}

func cloneLast(l *model.LastMessage) *model.LastMessage {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}
