package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/model"
)

const timeLayout = "2006-01-02 15:04"

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format(timeLayout)
}

func formatUnix(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format(timeLayout)
}

// formatChat renders one list line: marker, id, unread, time, preview.
func formatChat(c model.Chat) string {
	marker := " "
	if c.HasNewMessage {
		marker = "*"
	}
	preview := ""
	if c.LastMessage != nil {
		preview = c.LastMessage.Text
		if c.LastMessage.Direction == model.DirectionOut {
			preview = "you: " + preview
		}
	}
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf("(%d)", c.UnreadCount)
	}
	return strings.TrimRight(fmt.Sprintf("%s %-24s %-5s %s  %s", marker, c.ID, unread, formatUnix(c.UpdatedAt), model.Truncate(oneLine(preview), 60)), " ")
}

func formatMessage(m model.Message) string {
	who := "them"
	if m.Direction == model.DirectionOut {
		who = "you "
	}
	body := m.Preview(0)
	if m.VoiceURL != "" {
		body += " " + m.VoiceURL
	}
	return fmt.Sprintf("[%s] %s: %s", formatUnix(m.CreatedAt), who, oneLine(body))
}

func formatCallGroup(g calls.Group) string {
	last := "-"
	if len(g.Calls) > 0 {
		last = fmt.Sprintf("%s %s", g.Calls[0].CreatedAt.Local().Format(timeLayout), g.Calls[0].Status)
	}
	return fmt.Sprintf("%-14s total %-3d missed %-3d answered %-3d today %-3d last %s",
		g.PhoneNumber, g.Total, g.Missed, g.Answered, g.Today, last)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
