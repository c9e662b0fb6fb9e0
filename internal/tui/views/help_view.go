package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "esc", Description: "back"},
	}
}

var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{"Global", [][2]string{
		{":", "command mode"},
		{"/", "filter chats"},
		{"c", "calls"},
		{"r", "refresh from the CRM"},
		{"?", "this help"},
		{"esc", "back"},
		{"q", "quit"},
	}},
	{"Chats", [][2]string{
		{"enter", "open chat (marks it viewed)"},
		{"1-9", "open the Nth chat"},
		{"j/k", "move down/up"},
	}},
	{"Thread", [][2]string{
		{"i", "focus the reply box"},
		{"enter", "send (in the reply box)"},
		{"d", "chat details"},
		{"esc", "leave the reply box, then close the chat"},
	}},
	{"Commands", [][2]string{
		{":chat <id>", "open a chat by id"},
		{":calls", "show calls"},
		{":refresh", "refresh chats and calls"},
		{":quit / :q", "quit"},
	}},
}

func (hv *HelpView) render() {
	key := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  %s%-12s[-] %s\n", key, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
