package keys

import (
	"fmt"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("thread", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	if !r.HandleEvent("thread", runeKey('q')) || got != "view" {
		t.Errorf("thread: got %q, want view", got)
	}
	if !r.HandleEvent("chats", runeKey('q')) || got != "global" {
		t.Errorf("chats: got %q, want global", got)
	}
	if r.HandleEvent("chats", runeKey('x')) {
		t.Error("unbound key reported as handled")
	}
}

func TestSpecialKeyMatch(t *testing.T) {
	a := &Action{Key: tcell.KeyCtrlR}
	if !a.Matches(tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)) {
		t.Error("Ctrl-R did not match")
	}
	if a.Matches(runeKey('r')) {
		t.Error("plain r matched Ctrl-R")
	}
}

func TestHintsKeepOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Description: "q:quit", Visible: true})
	r.AddGlobal("hidden", &Action{Description: "x", Visible: false})
	r.AddView("chats", "open", &Action{Description: "enter:open", Visible: true})
	r.AddView("chats", "calls", &Action{Description: "c:calls", Visible: true})
	// Replacing keeps the original slot.
	r.AddView("chats", "open", &Action{Description: "enter:open chat", Visible: true})

	for i := 0; i < 5; i++ {
		got := fmt.Sprint(r.Hints("chats"))
		if got != "[enter:open chat c:calls q:quit]" {
			t.Fatalf("hints = %s", got)
		}
	}
}
