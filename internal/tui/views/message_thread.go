package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the open chat's window and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	chatID   string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Reply (i) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		mt.onSend(text)
		composer.SetText("")
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "thread" }

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "reply"},
		{Key: "d", Description: "details"},
		{Key: "esc", Description: "back"},
		{Key: "?", Description: "help"},
	}
}

// SetChat sets the chat shown and its title.
func (mt *MessageThread) SetChat(chat model.Chat) {
	mt.chatID = chat.ID
	title := chat.ID
	if chat.AccountName != "" {
		title = fmt.Sprintf("%s @ %s", chat.ID, sanitizeForTerminal(chat.AccountName))
	}
	mt.messages.SetTitle(" " + tview.Escape(title) + " ")
}

// ChatID returns the chat shown.
func (mt *MessageThread) ChatID() string { return mt.chatID }

// SetOnSend sets the callback for a submitted reply.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update redraws the window (oldest first). The view only jumps to the
// newest message when scroll is set; otherwise the reader's position is kept.
func (mt *MessageThread) Update(msgs []model.Message, scroll bool) {
	row, col := mt.messages.GetScrollOffset()
	mt.messages.Clear()

	in := ui.Tag(mt.theme.InboundColor)
	out := ui.Tag(mt.theme.OutboundColor)
	muted := ui.Tag(mt.theme.MutedColor)
	for _, m := range msgs {
		who, color := "them", in
		if m.Direction == model.DirectionOut {
			who, color = "you", out
		}
		body := renderBody(m)
		_, _ = fmt.Fprintf(mt.messages, "%s[::b]%s[-:-:-] %s%s[-]\n%s\n\n",
			color, who, muted, formatTimestamp(m.CreatedAt), body)
	}

	if scroll {
		mt.messages.ScrollToEnd()
	} else {
		mt.messages.ScrollTo(row, col)
	}
}

// Text returns the rendered thread without color tags.
func (mt *MessageThread) Text() string {
	return mt.messages.GetText(true)
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func renderBody(m model.Message) string {
	body := tview.Escape(sanitizeForTerminal(m.Preview(0)))
	switch {
	case m.Type == model.TypeVoice && m.VoiceURL != "":
		body += " " + tview.Escape(m.VoiceURL)
	case m.Type == model.TypeImage && m.Content.Image != nil:
		body += " " + tview.Escape(m.Content.Image.URL)
	case m.Type == model.TypeLocation && m.Content.Location != nil:
		loc := m.Content.Location
		body += fmt.Sprintf(" %s (%.5f, %.5f)", tview.Escape(sanitizeForTerminal(loc.Title)), loc.Lat, loc.Lon)
	case m.Type == model.TypeItem && m.Content.Item != nil && m.Content.Item.Price != "":
		body += " " + tview.Escape(m.Content.Item.Price)
	}
	return body
}
