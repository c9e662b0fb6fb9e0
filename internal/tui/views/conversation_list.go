package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main chat list view.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	chats   []model.Chat
	visible []string
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "chats" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "enter", Description: "open"},
		{Key: "c", Description: "calls"},
		{Key: "r", Description: "refresh"},
		{Key: "/", Description: "filter"},
		{Key: ":", Description: "cmd"},
		{Key: "?", Description: "help"},
	}
}

// Update refreshes the list with new data, keeping the selected chat selected.
func (cl *ConversationList) Update(chats []model.Chat) {
	selected := cl.SelectedChat()
	cl.chats = chats
	cl.render()
	cl.selectChat(selected)
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
	cl.Select(1, 0)
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string { return cl.filter }

func (cl *ConversationList) render() {
	cl.Clear()
	cl.visible = cl.visible[:0]

	headers := []struct {
		text string
		exp  int
	}{
		{" CHAT", 1},
		{" ACCOUNT", 1},
		{" LAST MESSAGE", 3},
		{" NEW", 0},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	unreadChats := 0
	row := 1
	for _, chat := range cl.chats {
		if chat.HasNewMessage {
			unreadChats++
		}
		preview := ""
		if chat.LastMessage != nil {
			preview = chat.LastMessage.Text
			if chat.LastMessage.Direction == model.DirectionOut {
				preview = "you: " + preview
			}
		}
		if !matchFilter(cl.filter, chat.ID, chat.AccountName, preview) {
			continue
		}

		color := cl.theme.FgColor
		attr := tcell.AttrNone
		if chat.HasNewMessage {
			color = cl.theme.CounterColor
			attr = tcell.AttrBold
		}
		badge := ""
		switch {
		case chat.UnreadCount > 0:
			badge = fmt.Sprintf("%d", chat.UnreadCount)
		case chat.HasNewMessage:
			badge = "*"
		}

		cells := []*tview.TableCell{
			tview.NewTableCell(" " + tview.Escape(chat.ID)).SetExpansion(1),
			tview.NewTableCell(" " + tview.Escape(sanitizeForTerminal(chat.AccountName))).SetExpansion(1),
			tview.NewTableCell(" " + tview.Escape(sanitizeForTerminal(preview))).SetExpansion(3).SetMaxWidth(60),
			tview.NewTableCell(badge).SetAlign(tview.AlignRight).SetTextColor(cl.theme.BadgeColor),
			tview.NewTableCell(" " + formatTimestamp(chat.UpdatedAt)).SetAlign(tview.AlignRight),
		}
		for col, cell := range cells {
			if col != 3 {
				cell.SetTextColor(color)
			}
			cl.SetCell(row, col, cell.SetAttributes(attr))
		}
		cl.visible = append(cl.visible, chat.ID)
		row++
	}

	title := fmt.Sprintf(" Chats (%d) ", len(cl.chats))
	if unreadChats > 0 {
		title = fmt.Sprintf(" Chats (%d, %d new) ", len(cl.chats), unreadChats)
	}
	if cl.filter != "" {
		title = fmt.Sprintf(" Chats (%d/%d) /%s ", len(cl.visible), len(cl.chats), tview.Escape(cl.filter))
	}
	cl.SetTitle(title)
}

// SelectedChat returns the id of the selected chat, or "".
func (cl *ConversationList) SelectedChat() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cl.visible) {
		return ""
	}
	return cl.visible[idx]
}

// ChatByIndex returns the id of the Nth visible chat (1-based).
func (cl *ConversationList) ChatByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1]
}

func (cl *ConversationList) selectChat(id string) {
	for i, v := range cl.visible {
		if v == id {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(cl.visible) > 0 {
		row, _ := cl.GetSelection()
		if row < 1 || row > len(cl.visible) {
			cl.Select(1, 0)
		}
	}
}

// formatTimestamp renders a Unix-seconds timestamp as a clock time for today
// and a date otherwise.
func formatTimestamp(sec int64) string {
	if sec == 0 {
		return ""
	}
	t := time.Unix(sec, 0)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func matchFilter(filter string, fields ...string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), filter) {
			return true
		}
	}
	return false
}
