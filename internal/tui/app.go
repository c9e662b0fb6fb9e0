package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/crmsync/internal/api"
	domain "github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/tui/keys"
	"github.com/matheus3301/crmsync/internal/tui/model"
	"github.com/matheus3301/crmsync/internal/tui/ui"
	"github.com/matheus3301/crmsync/internal/tui/views"
	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	pageChats   = "chats"
	pageThread  = "thread"
	pageCalls   = "calls"
	pageDetails = "details"
	pageHelp    = "help"

	statusRefreshInterval = 30 * time.Second
	watchRetryDelay       = 2 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	header   *ui.Header
	footer   *tview.Pages
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	vm       *model.ViewModel
	client   model.Daemon
	activity *model.ActivityReporter
	registry *keys.Registry

	chats   *views.ConversationList
	thread  *views.MessageThread
	callsV  *views.CallsView
	info    *views.ConversationInfo
	help    *views.HelpView
	byPage  map[string]ui.Component
	current atomic.Value // top page name, readable off the UI goroutine

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c model.Daemon, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		header:   ui.NewHeader(theme),
		footer:   tview.NewPages(),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme, Commands),
		vm:       model.NewViewModel(c),
		client:   c,
		activity: model.NewActivityReporter(c, model.DefaultActivityInterval),
		registry: keys.NewRegistry(),
		chats:    views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		callsV:   views.NewCallsView(theme),
		info:     views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.byPage = map[string]ui.Component{
		pageChats:   a.chats,
		pageThread:  a.thread,
		pageCalls:   a.callsV,
		pageDetails: a.info,
		pageHelp:    a.help,
	}

	a.header.SetSession(ui.SessionData{Session: sessionName, Status: "CONNECTING"})
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Handler: func() { a.pages.Push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("calls", &keys.Action{
		Key: tcell.KeyRune, Rune: 'c',
		Handler: a.showCalls,
	})
	a.registry.AddGlobal("refresh", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Handler: a.refresh,
	})
	a.registry.AddGlobal("suspend", &keys.Action{
		Key:     tcell.KeyCtrlZ,
		Handler: a.suspend,
	})

	a.registry.AddView(pageChats, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	for n := 1; n <= 9; n++ {
		n := n
		a.registry.AddView(pageChats, "jump"+strconv.Itoa(n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.chats.ChatByIndex(n); id != "" {
					a.openChat(id)
				}
			},
		})
	}
	a.registry.AddView(pageThread, "reply", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Handler: a.showDetails,
	})
}

func (a *App) setupCallbacks() {
	a.chats.SetSelectedFunc(func(row, col int) {
		if id := a.chats.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.vm.Flash.Err("Send failed: " + errText(err))
			} else {
				a.vm.Flash.Info("Sending...")
			}
			a.redraw(model.DirtyFlash)
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.chats.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
	a.prompt.SetOnFilter(a.chats.SetFilter)

	a.pages.SetOnChange(func(top string) {
		a.current.Store(top)
		if c, ok := a.byPage[top]; ok {
			a.header.SetHints(c.Hints())
		}
		switch top {
		case pageThread:
			a.app.SetFocus(a.thread.Messages())
		case pageChats:
			a.app.SetFocus(a.chats)
		default:
			if p, ok := a.byPage[top].(tview.Primitive); ok {
				a.app.SetFocus(p)
			}
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageChats, a.chats, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageCalls, a.callsV, true, false)
	a.pages.AddPage(pageDetails, a.info, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.footer.AddPage("flash", a.flashBar, true, true)
	a.footer.AddPage("prompt", a.prompt, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.footer, 1, 0, false)
	a.app.SetRoot(root, true)
	a.pages.Reset(pageChats)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		a.touch()

		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape && a.app.GetFocus() == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if event.Key() == tcell.KeyEscape {
			a.back()
			return nil
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) back() {
	switch a.pages.Current() {
	case pageThread:
		go func() {
			if err := a.vm.CloseChat(a.ctx); err != nil {
				a.vm.Flash.Warn("Close failed: " + errText(err))
				a.redraw(model.DirtyFlash)
			}
		}()
	case pageChats:
		if a.chats.Filter() != "" {
			a.chats.SetFilter("")
		}
		return
	}
	a.pages.Pop()
}

func (a *App) touch() {
	go func() { _, _ = a.activity.Touch(a.ctx) }()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	current := ""
	if mode == ui.PromptFilter {
		current = a.chats.Filter()
	}
	a.prompt.Activate(mode, current)
	a.footer.SwitchToPage("prompt")
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.footer.SwitchToPage("flash")
	a.app.SetFocus(a.currentPrimitive())
}

func (a *App) currentPrimitive() tview.Primitive {
	switch a.pages.Current() {
	case pageThread:
		return a.thread.Messages()
	case pageCalls:
		return a.callsV
	case pageDetails:
		return a.info
	case pageHelp:
		return a.help
	}
	return a.chats
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "quit":
		a.app.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "calls":
		a.showCalls()
	case "chats":
		a.pages.Reset(pageChats)
	case "refresh":
		a.refresh()
	case "chat":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: :chat <id>")
			a.flashBar.Update(a.vm.Flash.Get())
			return
		}
		a.openChat(cmd.Args)
	default:
		a.vm.Flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
		a.flashBar.Update(a.vm.Flash.Get())
	}
}

func (a *App) openChat(chatID string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, chatID); err != nil {
			a.vm.Flash.Err("Open failed: " + errText(err))
			a.redraw(model.DirtyFlash)
			return
		}
		chat, _ := a.vm.GetChat(chatID)
		msgs, scroll := a.vm.GetMessages()
		a.app.QueueUpdateDraw(func() {
			a.thread.SetChat(chat)
			a.thread.Update(msgs, scroll)
			a.chats.Update(a.vm.GetChats())
			a.header.SetSession(a.vm.Session())
			a.pages.Push(pageThread)
		})
	}()
}

func (a *App) showDetails() {
	chat, ok := a.vm.GetChat(a.thread.ChatID())
	if !ok {
		return
	}
	a.info.Update(chat)
	a.pages.Push(pageDetails)
}

// showCalls opens the calls view; opening it clears the new-calls badge.
func (a *App) showCalls() {
	a.callsV.Update(a.vm.GetCalls())
	a.pages.Push(pageCalls)
	go func() {
		if err := a.vm.LoadCalls(a.ctx); err != nil {
			a.vm.Flash.Err("Calls failed: " + errText(err))
			a.redraw(model.DirtyFlash)
			return
		}
		calls := *a.vm.GetCalls()
		if err := a.vm.ResetNewCalls(a.ctx); err != nil {
			a.vm.Flash.Warn("Badge reset failed: " + errText(err))
		}
		a.app.QueueUpdateDraw(func() {
			// Keep the count that was new when the view opened visible in the title.
			a.callsV.Update(&calls)
			a.header.SetSession(a.vm.Session())
			a.flashBar.Update(a.vm.Flash.Get())
		})
	}()
}

func (a *App) refresh() {
	onCalls := a.pages.Current() == pageCalls
	go func() {
		var err error
		d := model.DirtyChats | model.DirtyStatus | model.DirtyFlash
		if onCalls {
			err = a.vm.RefreshCalls(a.ctx)
			d |= model.DirtyCalls
		} else {
			err = a.vm.RefreshChats(a.ctx)
		}
		if err != nil {
			a.vm.Flash.Err("Refresh failed: " + errText(err))
		} else {
			a.vm.Flash.Info("Refreshed")
		}
		a.redraw(d)
	}()
}

// suspend hands the terminal back to the shell. The daemon sees the UI as
// hidden until the process is resumed.
func (a *App) suspend() {
	_ = a.activity.SetVisible(a.ctx, false)
	a.app.Suspend(func() {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTSTP)
	})
	_ = a.activity.SetVisible(a.ctx, true)
}

// handle applies one daemon event, reloading what it invalidated. It runs
// on the event-watching goroutine.
func (a *App) handle(env *api.EventEnvelope) error {
	d := a.vm.Apply(env)
	if d&model.ReloadChats != 0 {
		if err := a.vm.LoadChats(a.ctx); err == nil {
			d |= model.DirtyChats
		}
	}
	if d&model.ReloadMessages != 0 {
		if err := a.vm.LoadMessages(a.ctx); err == nil {
			d |= model.DirtyMessages
		}
	}
	if d&model.ReloadCalls != 0 && a.currentPage() == pageCalls {
		if err := a.vm.LoadCalls(a.ctx); err == nil {
			d |= model.DirtyCalls
		}
	}
	a.redraw(d)
	return nil
}

func (a *App) currentPage() string {
	top, _ := a.current.Load().(string)
	return top
}

// redraw queues a redraw of whatever d marks dirty. Safe from any goroutine.
func (a *App) redraw(d model.Dirty) {
	if d == 0 {
		return
	}
	var msgs []domain.Message
	scroll := false
	if d&model.DirtyMessages != 0 {
		msgs, scroll = a.vm.GetMessages()
	}
	a.app.QueueUpdateDraw(func() {
		if d&model.DirtyChats != 0 {
			a.chats.Update(a.vm.GetChats())
		}
		if d&model.DirtyMessages != 0 && a.thread.ChatID() == a.vm.ActiveChat() {
			a.thread.Update(msgs, scroll)
		}
		if d&model.DirtyCalls != 0 {
			a.callsV.Update(a.vm.GetCalls())
		}
		a.header.SetSession(a.vm.Session())
		a.flashBar.Update(a.vm.Flash.Get())
	})
}

// watch streams daemon events until the app exits, reconnecting and
// reloading after a broken stream.
func (a *App) watch() {
	for {
		err := a.client.WatchEvents(a.ctx, "", a.handle)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Warn("Daemon connection lost: " + errText(err))
		}
		a.redraw(model.DirtyFlash)
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
		a.load()
	}
}

// load fetches status and the chat list and redraws everything.
func (a *App) load() {
	if err := a.vm.LoadStatus(a.ctx); err != nil {
		a.vm.Flash.Err("Status failed: " + errText(err))
	}
	if err := a.vm.LoadChats(a.ctx); err != nil {
		a.vm.Flash.Err("Chats failed: " + errText(err))
	}
	if a.vm.ActiveChat() != "" {
		_ = a.vm.LoadMessages(a.ctx)
	}
	a.redraw(model.DirtyChats | model.DirtyMessages | model.DirtyStatus | model.DirtyFlash)
}

func (a *App) tick() {
	clock := time.NewTicker(time.Second)
	status := time.NewTicker(statusRefreshInterval)
	defer clock.Stop()
	defer status.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-clock.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.vm.Flash.Get())
			})
		case <-status.C:
			if err := a.vm.LoadStatus(a.ctx); err == nil {
				a.redraw(model.DirtyStatus)
			}
		}
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go func() {
		if err := a.activity.SetVisible(a.ctx, true); err != nil {
			a.vm.Flash.Warn("Activity report failed: " + errText(err))
		}
		a.load()
		go a.watch()
		go a.tick()
	}()

	err := a.app.Run()

	// The app context is about to go away; give the hidden report its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = a.activity.SetVisible(ctx, false)
	cancel()
	a.cancel()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.app.Stop()
}

func errText(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if st, ok := grpcstatus.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}
