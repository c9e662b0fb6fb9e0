package views

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line one\nline two", "line one line two"},
		{"👍\U0001F3FB", "👍"},
		{"a‍b", "ab"},
		{"bell\a", "bell"},
		{"привет", "привет"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleChats() []model.Chat {
	return []model.Chat{
		{ID: "c1", AccountName: "Shop", UpdatedAt: 300, UnreadCount: 2, HasNewMessage: true,
			LastMessage: &model.LastMessage{Text: "is the bike still for sale?", Direction: model.DirectionIn}},
		{ID: "c2", AccountName: "Shop", UpdatedAt: 200,
			LastMessage: &model.LastMessage{Text: "thanks", Direction: model.DirectionOut}},
		{ID: "c3", AccountName: "Garage", UpdatedAt: 100},
	}
}

func TestConversationListFilterAndSelection(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update(sampleChats())

	if got := cl.GetRowCount(); got != 4 {
		t.Fatalf("rows = %d, want header + 3", got)
	}
	if got := cl.GetCell(1, 3).Text; got != "2" {
		t.Errorf("badge = %q, want 2", got)
	}
	if got := cl.GetCell(2, 2).Text; !strings.Contains(got, "you: thanks") {
		t.Errorf("outbound preview = %q", got)
	}
	if !strings.Contains(cl.GetTitle(), "1 new") {
		t.Errorf("title = %q", cl.GetTitle())
	}

	cl.SetFilter("BIKE")
	if cl.GetRowCount() != 2 || cl.SelectedChat() != "c1" {
		t.Errorf("filtered rows = %d selected = %q", cl.GetRowCount(), cl.SelectedChat())
	}
	cl.SetFilter("garage")
	if cl.ChatByIndex(1) != "c3" {
		t.Errorf("ChatByIndex(1) = %q, want c3", cl.ChatByIndex(1))
	}
	cl.SetFilter("")
	if cl.ChatByIndex(3) != "c3" || cl.ChatByIndex(4) != "" {
		t.Error("ChatByIndex out of range handling")
	}
}

func TestConversationListKeepsSelectionAcrossReorder(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	chats := sampleChats()
	cl.Update(chats)
	cl.Select(2, 0)
	if cl.SelectedChat() != "c2" {
		t.Fatalf("selected = %q", cl.SelectedChat())
	}

	chats[2].UpdatedAt = 999
	reordered := []model.Chat{chats[2], chats[0], chats[1]}
	cl.Update(reordered)
	if cl.SelectedChat() != "c2" {
		t.Errorf("selection moved to %q after reorder", cl.SelectedChat())
	}
}

func TestMessageThreadRender(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetChat(model.Chat{ID: "c1", AccountName: "Shop"})
	mt.Update([]model.Message{
		{ID: "m1", Direction: model.DirectionIn, Type: model.TypeText, Content: model.Content{Text: "hi [red]there"}},
		{ID: "m2", Direction: model.DirectionOut, Type: model.TypeVoice, VoiceURL: "https://cdn.example/v.ogg",
			Content: model.Content{Voice: &model.VoiceContent{VoiceID: "v1"}}},
	}, true)

	text := mt.Text()
	if !strings.Contains(text, "hi [red") {
		t.Errorf("markup in text was not escaped:\n%s", text)
	}
	if !strings.Contains(text, "[voice] https://cdn.example/v.ogg") {
		t.Errorf("voice url missing:\n%s", text)
	}
	if strings.Index(text, "them") > strings.Index(text, "you") {
		t.Errorf("messages out of order:\n%s", text)
	}
	if mt.ChatID() != "c1" {
		t.Errorf("ChatID() = %q", mt.ChatID())
	}
}

func TestMessageThreadSendTrims(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	var sent []string
	mt.SetOnSend(func(text string) { sent = append(sent, text) })

	enter := func(text string) {
		mt.Composer().SetText(text)
		mt.Composer().InputHandler()(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), func(tview.Primitive) {})
	}
	enter("   ")
	enter("  on my way ")
	if len(sent) != 1 || sent[0] != "on my way" {
		t.Errorf("sent = %q", sent)
	}
	if mt.Composer().GetText() != "" {
		t.Errorf("composer not cleared: %q", mt.Composer().GetText())
	}
}

func TestCallsViewTitleBadge(t *testing.T) {
	cv := NewCallsView(ui.DefaultTheme())
	cv.Update(nil)
	if !strings.Contains(cv.GetTitle(), "loading") {
		t.Errorf("title = %q", cv.GetTitle())
	}

	cv.Update(&api.ListCallGroupsResponse{
		Groups: []calls.Group{{
			PhoneNumber: "79990001122",
			Calls:       []model.Call{{ID: "k1", Status: model.CallMissed, CreatedAt: time.Now()}},
			Counters:    calls.Counters{Total: 1, Missed: 1, Today: 1},
		}},
		NewCalls: 2,
		Stats:    model.CallStats{TotalCalls: 1, MissedCalls: 1, TodayCalls: 1},
	})
	if !strings.Contains(cv.GetTitle(), "(2 new)") {
		t.Errorf("title = %q", cv.GetTitle())
	}
	cv.Select(1, 0)
	g, ok := cv.SelectedGroup()
	if !ok || g.PhoneNumber != "79990001122" {
		t.Errorf("SelectedGroup() = %+v, %v", g, ok)
	}
	if got := cv.GetCell(1, 6).Text; !strings.Contains(got, "missed") {
		t.Errorf("status cell = %q", got)
	}
}
