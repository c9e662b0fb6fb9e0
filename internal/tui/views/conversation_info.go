package views

import (
	"fmt"

	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays details about a chat.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "details" }

// Hints implements ui.Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "esc", Description: "back"},
	}
}

// Update renders chat details.
func (ci *ConversationInfo) Update(chat model.Chat) {
	ci.Clear()

	fg := ui.Tag(ci.theme.FgColor)
	val := ui.Tag(ci.theme.CounterColor)

	last, dir := "-", "-"
	if chat.LastMessage != nil {
		last = tview.Escape(sanitizeForTerminal(chat.LastMessage.Text))
		dir = string(chat.LastMessage.Direction)
	}
	updated := formatTimestamp(chat.UpdatedAt)
	if updated == "" {
		updated = "-"
	}

	_, _ = fmt.Fprintf(ci,
		"\n %s[::b]Chat:[-:-:-]         %s%s[-]\n"+
			" %s[::b]Account:[-:-:-]      %s%s[-]\n"+
			" %s[::b]Unread:[-:-:-]       %s%d[-]\n"+
			" %s[::b]New:[-:-:-]          %s%t[-]\n"+
			" %s[::b]Updated:[-:-:-]      %s%s[-]\n"+
			" %s[::b]Last (%s):[-:-:-] %s%s[-]",
		fg, val, tview.Escape(chat.ID),
		fg, val, tview.Escape(sanitizeForTerminal(chat.AccountName)),
		fg, val, chat.UnreadCount,
		fg, val, chat.HasNewMessage,
		fg, val, updated,
		fg, dir, val, last,
	)
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(chat.ID)))
}
