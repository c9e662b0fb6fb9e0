package sync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/crmsync/internal/bus"
	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/crm"
	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/poll"
	"github.com/matheus3301/crmsync/internal/state"
	"github.com/matheus3301/crmsync/internal/status"
	"go.uber.org/zap"
)

// ErrHalted is returned by user-initiated operations after the session expired.
var ErrHalted = errors.New("sync: halted after session expiry")

// sentTTL bounds how long an outbound id is remembered for self-echo detection.
const sentTTL = 5 * time.Minute

// DefaultVoiceTimeout caps the voice lookup done inline for one pushed
// message; the push read loop waits on it.
const DefaultVoiceTimeout = 5 * time.Second

// Origin tells IngestMessage which channel delivered a message.
type Origin int

const (
	OriginPush Origin = iota
	OriginPoll
	OriginSend
)

func (o Origin) String() string {
	switch o {
	case OriginPush:
		return "push"
	case OriginPoll:
		return "poll"
	case OriginSend:
		return "send"
	}
	return "unknown"
}

// API is the subset of the CRM client the engine calls.
type API interface {
	Account() string
	ListChats(ctx context.Context, limit, offset int) ([]model.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error)
	SendText(ctx context.Context, chatID, text string) (model.Message, error)
	MarkRead(ctx context.Context, chatID string) error
	ListCallGroups(ctx context.Context, page, limit int) (map[string][]model.Call, model.CallStats, error)
}

// VoiceResolver fills voice URLs on a message window.
type VoiceResolver interface {
	Resolve(ctx context.Context, msgs []model.Message, account string) []model.Message
}

// Scheduler arms the fallback polling timers.
type Scheduler interface {
	StartConversationPolling(fn poll.RefreshFunc, interval time.Duration)
	StartMessagePolling(chatID string, fn poll.MessageRefreshFunc, interval time.Duration)
	StopMessagePolling()
	TriggerConversationRefresh()
	Stop()
}

// Options tune page sizes and polling cadence.
type Options struct {
	ChatsPageSize    int
	MessagesPageSize int
	CallsPageSize    int
	ChatsInterval    time.Duration
	MessagesInterval time.Duration
	VoiceTimeout     time.Duration
}

func (o *Options) setDefaults() {
	if o.ChatsPageSize <= 0 {
		o.ChatsPageSize = 100
	}
	if o.MessagesPageSize <= 0 {
		o.MessagesPageSize = state.DefaultWindow
	}
	if o.CallsPageSize <= 0 {
		o.CallsPageSize = 50
	}
	if o.ChatsInterval <= 0 {
		o.ChatsInterval = poll.DefaultChatsInterval
	}
	if o.MessagesInterval <= 0 {
		o.MessagesInterval = poll.DefaultMessagesInterval
	}
	if o.VoiceTimeout <= 0 {
		o.VoiceTimeout = DefaultVoiceTimeout
	}
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	API        API
	Chats      *state.ConversationStore
	Messages   *state.MessageStore
	Calls      *calls.Aggregator
	Voice      VoiceResolver
	Scheduler  Scheduler
	Reconciler *Reconciler
	Bus        *bus.Bus
	Status     *status.Machine
	Logger     *zap.Logger
}

// ChatChange is the payload of chat.updated.
type ChatChange struct {
	Chat model.Chat
}

// MessageAppend is the payload of message.appended.
type MessageAppend struct {
	ChatID  string
	Message model.Message
	Origin  string
}

// MessageSnapshot is the payload of message.snapshot.
type MessageSnapshot struct {
	ChatID string
	Count  int
	Silent bool
}

// ChatsRefresh is the payload of chat.refreshed.
type ChatsRefresh struct {
	Changed int
	Total   int
}

// CallsChange is the payload of calls.updated.
type CallsChange struct {
	NewCalls int
	Stats    model.CallStats
}

// Engine is the single merge path: push events, poll results and send echoes
// all land in the stores through the same calls.
type Engine struct {
	api        API
	chats      *state.ConversationStore
	messages   *state.MessageStore
	calls      *calls.Aggregator
	voice      VoiceResolver
	sched      Scheduler
	reconciler *Reconciler
	bus        *bus.Bus
	status     *status.Machine
	logger     *zap.Logger
	opts       Options

	halted   atomic.Bool
	haltOnce sync.Once
	cancel   context.CancelFunc

	sentMu sync.Mutex
	sent   map[string]time.Time
}

// NewEngine wires an engine. Chats, Messages, Calls and Bus are required.
func NewEngine(d Deps, opts Options) *Engine {
	opts.setDefaults()
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{
		api:        d.API,
		chats:      d.Chats,
		messages:   d.Messages,
		calls:      d.Calls,
		voice:      d.Voice,
		sched:      d.Scheduler,
		reconciler: d.Reconciler,
		bus:        d.Bus,
		status:     d.Status,
		logger:     d.Logger,
		opts:       opts,
		sent:       make(map[string]time.Time),
	}
}

// Start restores the cached chat list, arms list polling and kicks off the
// first refresh in the background.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	if n, err := e.reconciler.WarmStart(e.chats); err != nil {
		e.logger.Warn("warm start failed", zap.Error(err))
	} else if n > 0 {
		e.logger.Info("chat list restored from cache", zap.Int("chats", n))
		e.bus.Emit(bus.KindChatsRefreshed, ChatsRefresh{Changed: n, Total: e.chats.Len()})
	}

	if e.sched != nil {
		e.sched.StartConversationPolling(e.pollTick, e.opts.ChatsInterval)
	}
	go func() {
		if err := e.Resync(ctx); err != nil {
			e.logger.Warn("initial sync failed", zap.Error(err))
		}
	}()
}

// Stop disarms polling and cancels background work started by Start.
func (e *Engine) Stop() {
	if e.sched != nil {
		e.sched.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Halted reports whether the session expired.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Expire halts synchronization after a session rejection seen outside the
// REST path, such as a refused push handshake.
func (e *Engine) Expire() {
	e.halt()
}

// Resync silently refreshes everything. Used at boot and after push reconnects
// to pick up events missed while the socket was down.
func (e *Engine) Resync(ctx context.Context) error {
	if err := e.RefreshChats(ctx, true); err != nil {
		return err
	}
	if chatID := e.messages.Current(); chatID != "" {
		if err := e.LoadMessages(ctx, chatID, true); err != nil {
			return err
		}
	}
	return e.RefreshCalls(ctx, true)
}

func (e *Engine) pollTick(ctx context.Context, silent bool) error {
	if err := e.RefreshChats(ctx, silent); err != nil {
		return err
	}
	return e.RefreshCalls(ctx, silent)
}

// RefreshChats fetches the chat list and merges it. Silent refreshes swallow
// transient failures; the next tick retries.
func (e *Engine) RefreshChats(ctx context.Context, silent bool) error {
	if e.halted.Load() {
		return e.haltedErr(silent)
	}
	list, err := e.api.ListChats(ctx, e.opts.ChatsPageSize, 0)
	if err != nil {
		return e.handleErr("refresh chats", err, silent)
	}
	if e.halted.Load() {
		return e.haltedErr(silent)
	}

	changed := e.chats.UpsertFromSnapshot(list)
	if changed > 0 {
		e.reconciler.SaveChats(e.chats.List()...)
	}
	e.reconciler.MarkRefreshed(CheckpointChats, time.Now())
	if changed > 0 || !silent {
		e.bus.Emit(bus.KindChatsRefreshed, ChatsRefresh{Changed: changed, Total: e.chats.Len()})
	}
	e.logger.Debug("chats refreshed", zap.Int("received", len(list)), zap.Int("changed", changed), zap.Bool("silent", silent))
	return nil
}

// LoadMessages fetches the newest window of chatID and applies it only if
// chatID is still the open chat when the response lands.
func (e *Engine) LoadMessages(ctx context.Context, chatID string, silent bool) error {
	if e.halted.Load() {
		return e.haltedErr(silent)
	}
	msgs, err := e.api.ListMessages(ctx, chatID, e.opts.MessagesPageSize, 0)
	if err != nil {
		return e.handleErr("load messages", err, silent)
	}
	slices.Reverse(msgs)
	if e.voice != nil {
		msgs = e.voice.Resolve(ctx, msgs, e.api.Account())
	}
	if e.halted.Load() {
		return e.haltedErr(silent)
	}

	if !e.messages.LoadSnapshot(chatID, msgs, silent) {
		e.logger.Debug("discarding stale message snapshot", zap.String("chat_id", chatID), zap.String("open", e.messages.Current()))
		return nil
	}
	e.bus.Emit(bus.KindMessageSnapshot, MessageSnapshot{ChatID: chatID, Count: e.messages.Len(), Silent: silent})

	// Keep the list summary in step with what the thread shows.
	if n := len(msgs); n > 0 {
		newest := msgs[n-1]
		if e.chats.ApplyMessageEvent(chatID, newest, state.MessageFlags{Open: true, SelfEcho: e.isSelfEcho(newest, OriginPoll)}) {
			e.chatChanged(chatID)
		}
	}
	return nil
}

// IngestMessage merges one message from any origin. It reports whether any
// store changed.
func (e *Engine) IngestMessage(ctx context.Context, chatID string, msg model.Message, origin Origin) bool {
	if e.halted.Load() || chatID == "" || msg.ID == "" {
		return false
	}
	msg.ChatID = chatID
	if msg.VoiceID() != "" && msg.VoiceURL == "" && e.voice != nil {
		vctx, cancel := context.WithTimeout(ctx, e.opts.VoiceTimeout)
		msg = e.voice.Resolve(vctx, []model.Message{msg}, e.api.Account())[0]
		cancel()
	}
	if e.halted.Load() {
		return false
	}

	open := e.messages.Current() == chatID
	appended := false
	if open {
		appended = e.messages.AppendIfNew(msg)
	}
	changed := e.chats.ApplyMessageEvent(chatID, msg, state.MessageFlags{
		Open:     open,
		SelfEcho: e.isSelfEcho(msg, origin),
	})

	if appended {
		e.bus.Emit(bus.KindMessageAppended, MessageAppend{ChatID: chatID, Message: msg, Origin: origin.String()})
	}
	if changed {
		e.chatChanged(chatID)
	}
	e.logger.Debug("message ingested",
		zap.String("chat_id", chatID), zap.String("msg_id", msg.ID), zap.Stringer("origin", origin),
		zap.Bool("appended", appended), zap.Bool("chat_changed", changed))
	return appended || changed
}

// OpenChat makes chatID the open chat, clears its unread state, re-arms
// message polling for it and loads its newest messages.
func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	if e.halted.Load() {
		return ErrHalted
	}
	e.messages.Open(chatID)
	e.MarkViewed(chatID)

	if err := e.api.MarkRead(ctx, chatID); err != nil {
		if errors.Is(err, crm.ErrSessionExpired) {
			e.halt()
			return ErrHalted
		}
		e.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	if e.sched != nil {
		e.sched.StartMessagePolling(chatID, e.LoadMessages, e.opts.MessagesInterval)
	}
	err := e.LoadMessages(ctx, chatID, false)
	// The snapshot may have refreshed the summary of a chat the operator is looking at.
	e.MarkViewed(chatID)
	return err
}

// CloseChat clears the open chat and stops message polling.
func (e *Engine) CloseChat() {
	e.messages.Close()
	if e.sched != nil {
		e.sched.StopMessagePolling()
	}
}

// MarkViewed clears unread state locally. It reports whether the chat is known.
func (e *Engine) MarkViewed(chatID string) bool {
	if e.halted.Load() {
		return false
	}
	if !e.chats.MarkViewed(chatID) {
		return false
	}
	e.chatChanged(chatID)
	return true
}

// Send posts text to chatID and ingests the server's echo, so the thread
// converges before any push confirmation arrives.
func (e *Engine) Send(ctx context.Context, chatID, text string) (model.Message, error) {
	if e.halted.Load() {
		return model.Message{}, ErrHalted
	}
	msg, err := e.api.SendText(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, crm.ErrSessionExpired) {
			e.halt()
			return model.Message{}, ErrHalted
		}
		return model.Message{}, err
	}
	e.rememberSent(msg.ID)
	e.IngestMessage(ctx, chatID, msg, OriginSend)
	return msg, nil
}

// RefreshCalls reloads the grouped call history.
func (e *Engine) RefreshCalls(ctx context.Context, silent bool) error {
	if e.halted.Load() {
		return e.haltedErr(silent)
	}
	groups, stats, err := e.api.ListCallGroups(ctx, 1, e.opts.CallsPageSize)
	if err != nil {
		return e.handleErr("refresh calls", err, silent)
	}
	if e.halted.Load() {
		return e.haltedErr(silent)
	}
	e.calls.LoadGroupedSnapshot(groups, stats)
	e.reconciler.MarkRefreshed(CheckpointCalls, time.Now())
	e.callsChanged()
	return nil
}

// ResetNewCalls clears the new-calls badge.
func (e *Engine) ResetNewCalls() {
	e.calls.ResetNewCallsCount()
	e.callsChanged()
}

// PushMessage implements push.Sink.
func (e *Engine) PushMessage(ctx context.Context, chatID string, msg model.Message) {
	e.IngestMessage(ctx, chatID, msg, OriginPush)
}

// RequestChatRefresh implements push.Sink.
func (e *Engine) RequestChatRefresh() {
	if e.halted.Load() || e.sched == nil {
		return
	}
	e.sched.TriggerConversationRefresh()
}

// PushNewCall implements push.Sink.
func (e *Engine) PushNewCall(call model.Call) {
	if e.halted.Load() {
		return
	}
	if e.calls.ApplyNewCall(call) {
		e.logger.Info("new call", zap.String("call_id", call.ID), zap.String("status", string(call.Status)))
	}
	e.callsChanged()
}

// PushCallUpdate implements push.Sink.
func (e *Engine) PushCallUpdate(call model.Call) {
	if e.halted.Load() {
		return
	}
	if e.calls.ApplyCallUpdate(call) {
		e.callsChanged()
	}
}

// RolloverDay recomputes today's call counters; scheduled at midnight.
func (e *Engine) RolloverDay() {
	e.calls.RolloverDay()
	e.callsChanged()
}

// Chats returns the conversation list snapshot.
func (e *Engine) Chats() []model.Chat { return e.chats.List() }

// Chat returns one conversation.
func (e *Engine) Chat(chatID string) (model.Chat, bool) { return e.chats.Get(chatID) }

// OpenChatID returns the open chat id without touching the scroll signal.
func (e *Engine) OpenChatID() string { return e.messages.Current() }

// Unread returns the number of chats flagged new and the total unread count.
func (e *Engine) Unread() (chats, messages int) { return e.chats.Unread() }

// NewCalls returns the new-calls badge.
func (e *Engine) NewCalls() int { return e.calls.NewCallsCount() }

// OpenMessages returns the open chat id and its window. The scroll signal is
// consumed by the caller.
func (e *Engine) OpenMessages() (string, []model.Message, bool) {
	return e.messages.Current(), e.messages.Messages(), e.messages.ConsumeScroll()
}

// CallGroups returns the grouped calls, badge value and stats.
func (e *Engine) CallGroups() ([]calls.Group, int, model.CallStats) {
	return e.calls.Groups(), e.calls.NewCallsCount(), e.calls.Stats()
}

// LastRefreshed exposes the sync checkpoints.
func (e *Engine) LastRefreshed(key string) (time.Time, bool) {
	return e.reconciler.LastRefreshed(key)
}

func (e *Engine) chatChanged(chatID string) {
	c, ok := e.chats.Get(chatID)
	if !ok {
		return
	}
	e.reconciler.SaveChats(c)
	e.bus.Emit(bus.KindChatUpdated, ChatChange{Chat: c})
}

func (e *Engine) callsChanged() {
	e.bus.Emit(bus.KindCallsUpdated, CallsChange{NewCalls: e.calls.NewCallsCount(), Stats: e.calls.Stats()})
}

// handleErr applies the error policy: session expiry halts, background
// failures are logged and swallowed, user-initiated ones are returned.
func (e *Engine) handleErr(op string, err error, silent bool) error {
	if errors.Is(err, crm.ErrSessionExpired) {
		e.halt()
		return e.haltedErr(silent)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	e.logger.Warn(op+" failed", zap.Error(err), zap.Bool("silent", silent), zap.Bool("transient", crm.IsTransient(err)))
	if silent {
		return nil
	}
	return err
}

func (e *Engine) haltedErr(silent bool) error {
	if silent {
		return nil
	}
	return ErrHalted
}

// halt runs once: later expiries are the same condition and stay quiet.
func (e *Engine) halt() {
	e.haltOnce.Do(func() {
		e.halted.Store(true)
		e.logger.Error("crm session expired; synchronization halted")
		if e.sched != nil {
			e.sched.Stop()
		}
		if e.status != nil {
			if err := e.status.Ensure(status.AuthExpired); err != nil {
				e.logger.Warn("status transition failed", zap.Error(err))
			}
		}
		e.bus.Emit(bus.KindSessionExpired, nil)
	})
}

func (e *Engine) rememberSent(id string) {
	if id == "" {
		return
	}
	now := time.Now()
	e.sentMu.Lock()
	defer e.sentMu.Unlock()
	for k, at := range e.sent {
		if now.Sub(at) > sentTTL {
			delete(e.sent, k)
		}
	}
	e.sent[id] = now
}

func (e *Engine) isSelfEcho(msg model.Message, origin Origin) bool {
	if origin == OriginSend {
		return true
	}
	if msg.Direction != model.DirectionOut {
		return false
	}
	e.sentMu.Lock()
	defer e.sentMu.Unlock()
	_, ok := e.sent[msg.ID]
	return ok
}
