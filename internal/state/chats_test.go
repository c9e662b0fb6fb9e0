package state

import (
	"testing"

	"github.com/matheus3301/crmsync/internal/model"
)

func inbound(chatID, id string, created int64, text string) model.Message {
	return model.Message{
		ID: id, ChatID: chatID, Direction: model.DirectionIn,
		CreatedAt: created, Type: model.TypeText, Content: model.Content{Text: text},
	}
}

func TestUpsertFromSnapshotInsertsAndKeepsAbsent(t *testing.T) {
	s := NewConversationStore()
	s.UpsertFromSnapshot([]model.Chat{
		{ID: "a", AccountName: "acc", UpdatedAt: 100},
		{ID: "b", AccountName: "acc", UpdatedAt: 200},
	})

	// Second page only mentions "c"; "a" and "b" must survive.
	s.UpsertFromSnapshot([]model.Chat{{ID: "c", UpdatedAt: 300}})

	chats := s.List()
	if len(chats) != 3 {
		t.Fatalf("got %d chats, want 3", len(chats))
	}
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if chats[i].ID != id {
			t.Errorf("chats[%d] = %q, want %q (UpdatedAt desc)", i, chats[i].ID, id)
		}
	}
}

func TestUpsertFromSnapshotIgnoresOlderUpdate(t *testing.T) {
	s := NewConversationStore()
	s.UpsertFromSnapshot([]model.Chat{{
		ID: "a", UpdatedAt: 200,
		LastMessage: &model.LastMessage{ID: "m2", Text: "newer", CreatedAt: 200},
	}})

	changed := s.UpsertFromSnapshot([]model.Chat{{
		ID: "a", UpdatedAt: 100,
		LastMessage: &model.LastMessage{ID: "m1", Text: "older", CreatedAt: 100},
	}})
	if changed != 0 {
		t.Errorf("changed = %d, want 0 for an older snapshot", changed)
	}

	c, _ := s.Get("a")
	if c.LastMessage.Text != "newer" || c.UpdatedAt != 200 {
		t.Errorf("summary = %+v at %d, want newer at 200", c.LastMessage, c.UpdatedAt)
	}
}

func TestUpsertFromSnapshotEqualTimestampKeepsViewedState(t *testing.T) {
	s := NewConversationStore()
	s.UpsertFromSnapshot([]model.Chat{{ID: "a", UpdatedAt: 100, UnreadCount: 3}})
	s.MarkViewed("a")

	s.UpsertFromSnapshot([]model.Chat{{ID: "a", UpdatedAt: 100, UnreadCount: 3, AccountName: "renamed"}})

	c, _ := s.Get("a")
	if c.UnreadCount != 0 || c.HasNewMessage {
		t.Errorf("unread = %d new = %v, want 0/false after view", c.UnreadCount, c.HasNewMessage)
	}
	if c.AccountName != "renamed" {
		t.Errorf("account = %q, want renamed", c.AccountName)
	}
}

func TestUnreadImpliesNewMessage(t *testing.T) {
	s := NewConversationStore()
	s.UpsertFromSnapshot([]model.Chat{{ID: "a", UpdatedAt: 1, UnreadCount: 2, HasNewMessage: false}})

	c, _ := s.Get("a")
	if !c.HasNewMessage {
		t.Error("UnreadCount > 0 must imply HasNewMessage")
	}
}

func TestApplyMessageEventCreatesStub(t *testing.T) {
	s := NewConversationStore()
	if !s.ApplyMessageEvent("ghost", inbound("ghost", "m1", 50, "hi"), MessageFlags{}) {
		t.Fatal("ApplyMessageEvent on unknown chat should report a change")
	}
	c, ok := s.Get("ghost")
	if !ok {
		t.Fatal("stub chat not created")
	}
	if c.UnreadCount != 1 || !c.HasNewMessage {
		t.Errorf("unread = %d new = %v, want 1/true", c.UnreadCount, c.HasNewMessage)
	}
	if c.LastMessage == nil || c.LastMessage.Text != "hi" {
		t.Errorf("last message = %+v, want text hi", c.LastMessage)
	}
}

func TestApplyMessageEventUnreadRules(t *testing.T) {
	tests := []struct {
		name       string
		dir        model.Direction
		flags      MessageFlags
		wantUnread int
		wantNew    bool
	}{
		{"inbound closed", model.DirectionIn, MessageFlags{}, 1, true},
		{"inbound open", model.DirectionIn, MessageFlags{Open: true}, 0, true},
		{"outbound from elsewhere", model.DirectionOut, MessageFlags{}, 0, true},
		{"self echo", model.DirectionOut, MessageFlags{SelfEcho: true}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewConversationStore()
			s.UpsertFromSnapshot([]model.Chat{{ID: "a", UpdatedAt: 10}})
			msg := inbound("a", "m1", 20, "x")
			msg.Direction = tt.dir
			s.ApplyMessageEvent("a", msg, tt.flags)

			c, _ := s.Get("a")
			if c.UnreadCount != tt.wantUnread {
				t.Errorf("unread = %d, want %d", c.UnreadCount, tt.wantUnread)
			}
			if c.HasNewMessage != tt.wantNew {
				t.Errorf("hasNew = %v, want %v", c.HasNewMessage, tt.wantNew)
			}
		})
	}
}

func TestApplyMessageEventDuplicateDoesNotDoubleCount(t *testing.T) {
	s := NewConversationStore()
	m := inbound("a", "m1", 20, "x")
	s.ApplyMessageEvent("a", m, MessageFlags{})
	if s.ApplyMessageEvent("a", m, MessageFlags{}) {
		t.Error("duplicate event reported a change")
	}
	c, _ := s.Get("a")
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 after duplicate delivery", c.UnreadCount)
	}
}

func TestApplyMessageEventOlderDoesNotOverwriteSummary(t *testing.T) {
	s := NewConversationStore()
	s.ApplyMessageEvent("a", inbound("a", "m2", 200, "newer"), MessageFlags{})
	s.ApplyMessageEvent("a", inbound("a", "m1", 100, "older"), MessageFlags{})

	c, _ := s.Get("a")
	if c.LastMessage.Text != "newer" || c.UpdatedAt != 200 {
		t.Errorf("summary = %q at %d, want newer at 200", c.LastMessage.Text, c.UpdatedAt)
	}
}

func TestMarkViewedThenInboundCountsFromZero(t *testing.T) {
	s := NewConversationStore()
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		s.ApplyMessageEvent("a", inbound("a", id, int64(10+i), "x"), MessageFlags{})
	}
	if !s.MarkViewed("a") {
		t.Fatal("MarkViewed returned false for a known chat")
	}
	c, _ := s.Get("a")
	if c.UnreadCount != 0 || c.HasNewMessage {
		t.Fatalf("after MarkViewed unread = %d new = %v", c.UnreadCount, c.HasNewMessage)
	}

	s.ApplyMessageEvent("a", inbound("a", "m5", 99, "again"), MessageFlags{})
	c, _ = s.Get("a")
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 (no leftover count)", c.UnreadCount)
	}
}

func TestMarkViewedUnknownChat(t *testing.T) {
	s := NewConversationStore()
	if s.MarkViewed("nope") {
		t.Error("MarkViewed on unknown chat returned true")
	}
}

func TestUnreadTotals(t *testing.T) {
	s := NewConversationStore()
	s.ApplyMessageEvent("a", inbound("a", "m1", 1, "x"), MessageFlags{})
	s.ApplyMessageEvent("a", inbound("a", "m2", 2, "x"), MessageFlags{})
	s.ApplyMessageEvent("b", inbound("b", "m3", 3, "x"), MessageFlags{})

	chats, msgs := s.Unread()
	if chats != 2 || msgs != 3 {
		t.Errorf("Unread() = %d chats, %d messages; want 2, 3", chats, msgs)
	}
}

func TestApplyMessageEventSameSecondRedelivery(t *testing.T) {
	s := NewConversationStore()
	first := inbound("a", "m1", 100, "first")
	second := inbound("a", "m2", 100, "second")

	s.ApplyMessageEvent("a", first, MessageFlags{})
	s.ApplyMessageEvent("a", second, MessageFlags{})
	if s.ApplyMessageEvent("a", first, MessageFlags{}) {
		t.Error("re-delivered m1 reported a change")
	}

	c, _ := s.Get("a")
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", c.UnreadCount)
	}
	if c.LastMessage == nil || c.LastMessage.Text != "second" {
		t.Errorf("summary = %+v, want second", c.LastMessage)
	}
}

func TestApplyMessageEventSameSecondLowerIDKeepsSummary(t *testing.T) {
	s := NewConversationStore()
	s.ApplyMessageEvent("a", inbound("a", "m2", 100, "second"), MessageFlags{})
	if !s.ApplyMessageEvent("a", inbound("a", "m1", 100, "first"), MessageFlags{}) {
		t.Fatal("new message in the same second was dropped")
	}
	c, _ := s.Get("a")
	if c.UnreadCount != 2 || c.LastMessage.Text != "second" {
		t.Errorf("unread = %d summary = %q, want 2/second", c.UnreadCount, c.LastMessage.Text)
	}
}

func TestSelfEchoAfterPushClearsFlag(t *testing.T) {
	s := NewConversationStore()
	out := inbound("a", "s1", 100, "hello")
	out.Direction = model.DirectionOut

	// The push copy lands before we know the id is ours.
	s.ApplyMessageEvent("a", out, MessageFlags{Open: true})
	if c, _ := s.Get("a"); !c.HasNewMessage {
		t.Fatal("unrecognised outbound push did not flag the chat")
	}
	if !s.ApplyMessageEvent("a", out, MessageFlags{Open: true, SelfEcho: true}) {
		t.Error("self echo of the summarized message reported no change")
	}
	c, _ := s.Get("a")
	if c.HasNewMessage || c.UnreadCount != 0 {
		t.Errorf("chat = new %v unread %d, want cleared", c.HasNewMessage, c.UnreadCount)
	}
}

func TestSelfEchoKeepsFlagWhenUnread(t *testing.T) {
	s := NewConversationStore()
	s.ApplyMessageEvent("a", inbound("a", "m1", 90, "hi"), MessageFlags{})
	out := inbound("a", "s1", 100, "hello")
	out.Direction = model.DirectionOut
	s.ApplyMessageEvent("a", out, MessageFlags{})
	s.ApplyMessageEvent("a", out, MessageFlags{SelfEcho: true})

	c, _ := s.Get("a")
	if !c.HasNewMessage || c.UnreadCount != 1 {
		t.Errorf("chat = new %v unread %d, want true/1", c.HasNewMessage, c.UnreadCount)
	}
}
