package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/bus"
	domain "github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/outbox"
	"github.com/matheus3301/crmsync/internal/status"
	intsync "github.com/matheus3301/crmsync/internal/sync"
	"github.com/matheus3301/crmsync/internal/tui/ui"
)

// Daemon is the part of the control-plane client the TUI uses.
type Daemon interface {
	GetStatus(ctx context.Context) (*api.GetStatusResponse, error)
	ReportActivity(ctx context.Context, req *api.ReportActivityRequest) error
	ListChats(ctx context.Context, limit int) (*api.ListChatsResponse, error)
	RefreshChats(ctx context.Context) (*api.RefreshChatsResponse, error)
	OpenChat(ctx context.Context, chatID string) (*api.OpenChatResponse, error)
	CloseChat(ctx context.Context) error
	ListMessages(ctx context.Context, chatID string) (*api.ListMessagesResponse, error)
	SendText(ctx context.Context, chatID, text string) (*api.SendTextResponse, error)
	ListCallGroups(ctx context.Context) (*api.ListCallGroupsResponse, error)
	RefreshCalls(ctx context.Context) (*api.RefreshCallsResponse, error)
	ResetNewCalls(ctx context.Context) error
	WatchEvents(ctx context.Context, prefix string, fn func(*api.EventEnvelope) error) error
}

// Dirty tells the UI which parts to redraw or reload after an event.
type Dirty uint8

const (
	// DirtyChats: the cached chat list changed and should be redrawn.
	DirtyChats Dirty = 1 << iota
	// ReloadChats: the daemon list changed in bulk; fetch it again.
	ReloadChats
	// DirtyMessages: the open thread changed and should be redrawn.
	DirtyMessages
	// ReloadMessages: fetch the open chat's window again.
	ReloadMessages
	// ReloadCalls: fetch the call groups again.
	ReloadCalls
	// DirtyCalls: the calls view should be redrawn.
	DirtyCalls
	// DirtyStatus: the header should be redrawn.
	DirtyStatus
	// DirtyFlash: the flash bar should be redrawn.
	DirtyFlash
)

// ViewModel caches daemon state for the views. Views read snapshots; all
// writes go through its methods.
type ViewModel struct {
	mu sync.RWMutex

	client   Daemon
	Status   *api.GetStatusResponse
	Chats    []domain.Chat
	Messages []domain.Message
	ActiveID string
	Calls    *api.ListCallGroupsResponse
	scroll   bool
	pending  map[string]string // client message id -> chat id
	Flash    *ui.FlashModel
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c Daemon) *ViewModel {
	return &ViewModel{
		client:  c,
		pending: make(map[string]string),
		Flash:   ui.NewFlashModel(),
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = resp
	vm.mu.Unlock()
	if resp.Status == string(status.AuthExpired) {
		vm.Flash.Sticky(expiredText)
	}
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	resp, err := vm.client.ListChats(ctx, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Chats = resp.Chats
	vm.mu.Unlock()
	return nil
}

// RefreshChats asks the daemon to refetch the list and then reloads it.
func (vm *ViewModel) RefreshChats(ctx context.Context) error {
	if _, err := vm.client.RefreshChats(ctx); err != nil {
		return err
	}
	return vm.LoadChats(ctx)
}

// OpenChat opens chatID in the daemon and caches its window. The daemon
// marks the chat viewed as part of opening it, so the cached entry is cleared too.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) error {
	resp, err := vm.client.OpenChat(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.ActiveID = chatID
	vm.Messages = resp.Messages
	vm.scroll = true
	vm.upsertChat(resp.Chat)
	return nil
}

// CloseChat closes the open chat.
func (vm *ViewModel) CloseChat(ctx context.Context) error {
	vm.mu.Lock()
	vm.ActiveID = ""
	vm.Messages = nil
	vm.mu.Unlock()
	return vm.client.CloseChat(ctx)
}

// LoadMessages refetches the open chat's window.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	vm.mu.RLock()
	chatID := vm.ActiveID
	vm.mu.RUnlock()
	if chatID == "" {
		return nil
	}
	resp, err := vm.client.ListMessages(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	// The user may have moved on while the request was in flight.
	if vm.ActiveID != resp.ChatID {
		return nil
	}
	vm.Messages = resp.Messages
	vm.scroll = vm.scroll || resp.Scroll
	return nil
}

// SendText queues text for the open chat.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	vm.mu.RLock()
	chatID := vm.ActiveID
	vm.mu.RUnlock()
	if chatID == "" {
		return fmt.Errorf("no chat is open")
	}
	resp, err := vm.client.SendText(ctx, chatID, text)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.pending[resp.ClientMsgID] = chatID
	vm.mu.Unlock()
	return nil
}

// LoadCalls fetches the grouped call history.
func (vm *ViewModel) LoadCalls(ctx context.Context) error {
	resp, err := vm.client.ListCallGroups(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Calls = resp
	if vm.Status != nil {
		vm.Status.NewCalls = resp.NewCalls
	}
	vm.mu.Unlock()
	return nil
}

// RefreshCalls asks the daemon to refetch calls and then reloads them.
func (vm *ViewModel) RefreshCalls(ctx context.Context) error {
	if _, err := vm.client.RefreshCalls(ctx); err != nil {
		return err
	}
	return vm.LoadCalls(ctx)
}

// ResetNewCalls clears the new-calls badge.
func (vm *ViewModel) ResetNewCalls(ctx context.Context) error {
	if err := vm.client.ResetNewCalls(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.Status != nil {
		vm.Status.NewCalls = 0
	}
	if vm.Calls != nil {
		vm.Calls.NewCalls = 0
	}
	vm.mu.Unlock()
	return nil
}

const expiredText = "Session expired: update the CRM token and restart crmsyncd"

// Apply folds one daemon event into the cache and reports what changed.
func (vm *ViewModel) Apply(env *api.EventEnvelope) Dirty {
	switch env.Kind {
	case bus.KindChatUpdated:
		var p intsync.ChatChange
		if json.Unmarshal(env.Payload, &p) != nil || p.Chat.ID == "" {
			return ReloadChats
		}
		vm.mu.Lock()
		vm.upsertChat(p.Chat)
		vm.mu.Unlock()
		return DirtyChats | DirtyStatus

	case bus.KindChatsRefreshed:
		return ReloadChats | DirtyStatus

	case bus.KindMessageAppended:
		var p intsync.MessageAppend
		if json.Unmarshal(env.Payload, &p) != nil {
			return ReloadMessages
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if p.ChatID != vm.ActiveID || p.ChatID == "" {
			return 0
		}
		for _, m := range vm.Messages {
			if m.ID == p.Message.ID {
				return 0
			}
		}
		vm.Messages = append(vm.Messages, p.Message)
		vm.scroll = true
		return DirtyMessages

	case bus.KindMessageSnapshot:
		var p intsync.MessageSnapshot
		if json.Unmarshal(env.Payload, &p) != nil {
			return 0
		}
		vm.mu.RLock()
		active := vm.ActiveID
		vm.mu.RUnlock()
		if p.ChatID != active || active == "" {
			return 0
		}
		return ReloadMessages

	case bus.KindSendAck:
		var p outbox.Result
		_ = json.Unmarshal(env.Payload, &p)
		if !vm.takePending(p.ClientMsgID) {
			return 0
		}
		vm.Flash.Info("Message sent")
		return DirtyFlash

	case bus.KindSendFailed:
		var p outbox.Result
		_ = json.Unmarshal(env.Payload, &p)
		vm.takePending(p.ClientMsgID)
		msg := "Send failed"
		if p.Error != "" {
			msg += ": " + p.Error
		}
		vm.Flash.Err(msg)
		return DirtyFlash

	case bus.KindCallsUpdated:
		var p intsync.CallsChange
		if json.Unmarshal(env.Payload, &p) == nil {
			vm.mu.Lock()
			if vm.Status != nil {
				vm.Status.NewCalls = p.NewCalls
			}
			vm.mu.Unlock()
		}
		return ReloadCalls | DirtyStatus

	case bus.KindStatusChanged:
		var p status.StatusChange
		if json.Unmarshal(env.Payload, &p) == nil {
			vm.mu.Lock()
			if vm.Status != nil {
				vm.Status.Status = string(p.To)
			}
			vm.mu.Unlock()
		}
		return DirtyStatus

	case bus.KindSessionExpired:
		vm.mu.Lock()
		if vm.Status != nil {
			vm.Status.Status = string(status.AuthExpired)
			vm.Status.PushConnected = false
		}
		vm.mu.Unlock()
		vm.Flash.Sticky(expiredText)
		return DirtyStatus | DirtyFlash

	case bus.KindPushConnected, bus.KindPushLost:
		connected := env.Kind == bus.KindPushConnected
		vm.mu.Lock()
		if vm.Status != nil {
			vm.Status.PushConnected = connected
		}
		vm.mu.Unlock()
		if connected {
			vm.Flash.Info("Live updates connected")
		} else {
			vm.Flash.Warn("Live updates lost, polling")
		}
		return DirtyStatus | DirtyFlash
	}
	return 0
}

func (vm *ViewModel) takePending(clientMsgID string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.pending[clientMsgID]; !ok {
		return false
	}
	delete(vm.pending, clientMsgID)
	return true
}

// upsertChat replaces or inserts c and keeps the list newest first. Caller holds mu.
func (vm *ViewModel) upsertChat(c domain.Chat) {
	if c.ID == "" {
		return
	}
	found := false
	for i := range vm.Chats {
		if vm.Chats[i].ID == c.ID {
			vm.Chats[i] = c
			found = true
			break
		}
	}
	if !found {
		vm.Chats = append(vm.Chats, c)
	}
	sort.SliceStable(vm.Chats, func(i, j int) bool {
		if vm.Chats[i].UpdatedAt != vm.Chats[j].UpdatedAt {
			return vm.Chats[i].UpdatedAt > vm.Chats[j].UpdatedAt
		}
		return vm.Chats[i].ID < vm.Chats[j].ID
	})
}

// GetChats returns a copy of the chat list.
func (vm *ViewModel) GetChats() []domain.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]domain.Chat(nil), vm.Chats...)
}

// GetChat returns one cached chat.
func (vm *ViewModel) GetChat(chatID string) (domain.Chat, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.Chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return domain.Chat{}, false
}

// GetMessages returns the open chat's window and consumes the scroll signal.
func (vm *ViewModel) GetMessages() (msgs []domain.Message, scroll bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	scroll = vm.scroll
	vm.scroll = false
	return append([]domain.Message(nil), vm.Messages...), scroll
}

// ActiveChat returns the open chat id.
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveID
}

// GetCalls returns the cached call groups, or nil before the first load.
func (vm *ViewModel) GetCalls() *api.ListCallGroupsResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Calls
}

// Session returns the header data.
func (vm *ViewModel) Session() ui.SessionData {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.Status == nil {
		return ui.SessionData{}
	}
	s := vm.Status
	unread := 0
	for _, c := range vm.Chats {
		if c.HasNewMessage {
			unread++
		}
	}
	chats := len(vm.Chats)
	if chats == 0 {
		chats = s.ChatCount
		unread = s.UnreadChats
	}
	return ui.SessionData{
		Session:       s.Session,
		Status:        s.Status,
		PushConnected: s.PushConnected,
		Chats:         chats,
		UnreadChats:   unread,
		NewCalls:      s.NewCalls,
		Uptime:        time.Duration(s.UptimeMs) * time.Millisecond,
	}
}
