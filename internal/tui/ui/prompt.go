package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what the footer input does with its text.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

func (m PromptMode) label() string {
	if m == PromptFilter {
		return " /"
	}
	return " :"
}

// Prompt is the footer input line shared by ":" commands and the "/" chat
// filter. Filters apply live while typing; Esc puts the previous one back.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	active   bool
	previous string
	commands []string

	onSubmit func(mode PromptMode, text string)
	onCancel func()
	onFilter func(text string)
}

// NewPrompt creates the input. commands feeds completion in command mode.
func NewPrompt(theme *Theme, commands []string) *Prompt {
	input := tview.NewInputField()
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input, commands: commands}
	input.SetChangedFunc(p.changed)
	input.SetAutocompleteFunc(p.complete)
	input.SetDoneFunc(p.done)
	return p
}

// SetOnSubmit sets the Enter callback. Empty text is submitted too, which
// clears a filter.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) { p.onSubmit = fn }

// SetOnCancel sets the Esc callback.
func (p *Prompt) SetOnCancel(fn func()) { p.onCancel = fn }

// SetOnFilter sets the live filter callback.
func (p *Prompt) SetOnFilter(fn func(text string)) { p.onFilter = fn }

// Activate prepares the prompt for mode, prefilled with current.
func (p *Prompt) Activate(mode PromptMode, current string) {
	p.active = false
	p.mode = mode
	p.previous = current
	p.SetLabel(mode.label())
	p.SetText(current)
	p.active = true
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

func (p *Prompt) changed(text string) {
	if p.active && p.mode == PromptFilter && p.onFilter != nil {
		p.onFilter(text)
	}
}

func (p *Prompt) complete(text string) []string {
	if p.mode != PromptCommand || text == "" || strings.Contains(text, " ") {
		return nil
	}
	var out []string
	for _, c := range p.commands {
		if strings.HasPrefix(c, strings.ToLower(text)) && c != text {
			out = append(out, c)
		}
	}
	return out
}

func (p *Prompt) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		text := p.GetText()
		p.deactivate()
		if p.onSubmit != nil {
			p.onSubmit(p.mode, text)
		}
	case tcell.KeyEscape:
		p.deactivate()
		if p.mode == PromptFilter && p.onFilter != nil {
			p.onFilter(p.previous)
		}
		if p.onCancel != nil {
			p.onCancel()
		}
	}
}

func (p *Prompt) deactivate() {
	p.active = false
	p.SetText("")
}
