package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// SessionData is what the header shows about the daemon.
type SessionData struct {
	Session       string
	Status        string
	PushConnected bool
	Chats         int
	UnreadChats   int
	NewCalls      int
	Uptime        time.Duration
}

// Header is the top bar: session summary on the left, key hints on the right.
type Header struct {
	*tview.Flex
	theme *Theme
	info  *tview.TextView
	menu  *tview.TextView
}

// NewHeader creates the header bar.
func NewHeader(theme *Theme) *Header {
	info := tview.NewTextView().SetDynamicColors(true)
	info.SetBackgroundColor(theme.BgColor)
	info.SetBorderPadding(0, 0, 1, 1)

	menu := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignRight)
	menu.SetBackgroundColor(theme.BgColor)
	menu.SetBorderPadding(0, 0, 1, 1)

	flex := tview.NewFlex().
		AddItem(info, 0, 1, false).
		AddItem(menu, 0, 1, false)
	flex.SetBackgroundColor(theme.BgColor)

	return &Header{Flex: flex, theme: theme, info: info, menu: menu}
}

// SetSession renders the session summary.
func (h *Header) SetSession(d SessionData) {
	h.info.Clear()
	fg := Tag(h.theme.FgColor)
	val := Tag(h.theme.CounterColor)

	push := Tag(h.theme.MutedColor) + "polling[-]"
	if d.PushConnected {
		push = Tag(h.theme.InboundColor) + "live[-]"
	}
	status := d.Status
	if status == "" {
		status = "?"
	}
	calls := fmt.Sprintf("%s%d[-]", val, d.NewCalls)
	if d.NewCalls > 0 {
		calls = fmt.Sprintf("%s[::b]%d[-:-:-]", Tag(h.theme.BadgeColor), d.NewCalls)
	}

	_, _ = fmt.Fprintf(h.info, "%s[::b]crmsync[-:-:-] %s%s[-] %s%s[-] %s | %schats[-] %s%d/%d[-] %scalls[-] %s %sup[-] %s%s[-]",
		Tag(h.theme.TitleColor), val, tview.Escape(d.Session),
		fg, status, push,
		fg, val, d.UnreadChats, d.Chats,
		fg, calls,
		fg, val, formatDuration(d.Uptime),
	)
}

// SetHints renders key hints.
func (h *Header) SetHints(hints []MenuHint) {
	h.menu.Clear()
	key := Tag(h.theme.MenuKeyColor)
	parts := make([]string, 0, len(hints))
	for _, hint := range hints {
		parts = append(parts, fmt.Sprintf("%s<%s>[-] %s", key, tview.Escape(hint.Key), hint.Description))
	}
	_, _ = fmt.Fprint(h.menu, strings.Join(parts, "  "))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
