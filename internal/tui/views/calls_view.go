package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// CallsView is the call history grouped by phone number.
type CallsView struct {
	*tview.Table
	theme  *ui.Theme
	groups []calls.Group
}

// NewCallsView creates the calls table.
func NewCallsView(theme *ui.Theme) *CallsView {
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
	table.SetTitle(" Calls ")

	return &CallsView{Table: table, theme: theme}
}

// Name implements ui.Component.
func (cv *CallsView) Name() string { return "calls" }

// Hints implements ui.Component.
func (cv *CallsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "r", Description: "refresh"},
		{Key: "esc", Description: "back"},
		{Key: "?", Description: "help"},
	}
}

// Update renders the groups and the summary title.
func (cv *CallsView) Update(resp *api.ListCallGroupsResponse) {
	cv.Clear()
	if resp == nil {
		cv.SetTitle(" Calls (loading) ")
		return
	}
	cv.groups = resp.Groups

	headers := []string{" PHONE", " TOTAL", " MISSED", " ANSWERED", " TODAY", " LAST CALL", " STATUS"}
	for col, h := range headers {
		cv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cv.theme.TableHeaderFg).
			SetBackgroundColor(cv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}

	for i, g := range resp.Groups {
		row := i + 1
		last, lastStatus := "", ""
		if len(g.Calls) > 0 {
			last = formatCallTime(g.Calls[0].CreatedAt)
			lastStatus = string(g.Calls[0].Status)
		}
		missedColor := cv.theme.FgColor
		if g.Missed > 0 {
			missedColor = cv.theme.BadgeColor
		}
		cv.SetCell(row, 0, tview.NewTableCell(" "+g.PhoneNumber).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf(" %d", g.Total)).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", g.Missed)).SetTextColor(missedColor))
		cv.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf(" %d", g.Answered)).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf(" %d", g.Today)).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 5, tview.NewTableCell(" "+last).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 6, tview.NewTableCell(" "+lastStatus).SetTextColor(cv.theme.FgColor))
	}

	s := resp.Stats
	title := fmt.Sprintf(" Calls: %d total, %d missed, %d answered, %d today ", s.TotalCalls, s.MissedCalls, s.AnsweredCalls, s.TodayCalls)
	if resp.NewCalls > 0 {
		title += fmt.Sprintf("%s(%d new)[-] ", ui.Tag(cv.theme.BadgeColor), resp.NewCalls)
	}
	cv.SetTitle(title)
}

// SelectedGroup returns the group under the cursor.
func (cv *CallsView) SelectedGroup() (calls.Group, bool) {
	row, _ := cv.GetSelection()
	if row < 1 || row > len(cv.groups) {
		return calls.Group{}, false
	}
	return cv.groups[row-1], true
}

func formatCallTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTimestamp(t.Unix())
}
