package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultChatsInterval    = 60 * time.Second
	DefaultMessagesInterval = 10 * time.Second
	DefaultNewChatDebounce  = 2 * time.Second
)

const chatsKey = "chats"

// Gate decides whether a tick may hit the network.
type Gate interface {
	IsPageVisible() bool
	IsUserActive(window time.Duration) bool
}

// Target is the live open-chat reference cell read at tick time.
type Target interface {
	Current() string
}

// RefreshFunc reloads the chat list.
type RefreshFunc func(ctx context.Context, silent bool) error

// MessageRefreshFunc reloads the messages of one chat.
type MessageRefreshFunc func(ctx context.Context, chatID string, silent bool) error

// Options configures a Scheduler.
type Options struct {
	// ActivityWindow is passed to Gate.IsUserActive. Zero means the gate's default.
	ActivityWindow time.Duration
	// NewChatDebounce coalesces TriggerConversationRefresh calls.
	NewChatDebounce time.Duration
}

type loop struct {
	cancel context.CancelFunc
}

// Scheduler runs the chat-list and open-chat polling timers. Each timer is
// cancelled before a new one is armed, so at most one of each kind is live.
type Scheduler struct {
	gate   Gate
	target Target
	opts   Options
	logger *zap.Logger
	group  singleflight.Group

	mu       sync.Mutex
	chats    *loop
	messages *loop
	chatsFn  RefreshFunc
	debounce *time.Timer
	baseCtx  context.Context
	stopBase context.CancelFunc
}

// NewScheduler creates a scheduler with no timers armed.
func NewScheduler(gate Gate, target Target, opts Options, logger *zap.Logger) *Scheduler {
	if opts.NewChatDebounce <= 0 {
		opts.NewChatDebounce = DefaultNewChatDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gate:     gate,
		target:   target,
		opts:     opts,
		logger:   logger,
		baseCtx:  ctx,
		stopBase: cancel,
	}
}

// StartConversationPolling arms the chat-list timer, replacing any previous one.
func (s *Scheduler) StartConversationPolling(fn RefreshFunc, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultChatsInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(&s.chats)
	s.chatsFn = fn
	s.chats = s.spawn(interval, func(ctx context.Context) {
		s.run(ctx, chatsKey, func(ctx context.Context) error { return fn(ctx, true) })
	})
	s.logger.Debug("conversation polling armed", zap.Duration("interval", interval))
}

// StartMessagePolling arms the open-chat timer, replacing any previous one.
// chatID is informational: every tick polls whatever chat is open at that moment.
func (s *Scheduler) StartMessagePolling(chatID string, fn MessageRefreshFunc, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMessagesInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(&s.messages)
	s.messages = s.spawn(interval, func(ctx context.Context) {
		current := s.target.Current()
		if current == "" {
			return
		}
		s.run(ctx, "messages:"+current, func(ctx context.Context) error { return fn(ctx, current, true) })
	})
	s.logger.Debug("message polling armed", zap.String("chat_id", chatID), zap.Duration("interval", interval))
}

// StopConversationPolling cancels the chat-list timer. Safe to call repeatedly.
func (s *Scheduler) StopConversationPolling() {
	s.mu.Lock()
	s.stopLocked(&s.chats)
	s.chatsFn = nil
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()
}

// StopMessagePolling cancels the open-chat timer. Safe to call repeatedly.
func (s *Scheduler) StopMessagePolling() {
	s.mu.Lock()
	s.stopLocked(&s.messages)
	s.mu.Unlock()
}

// Stop cancels both timers and any pending debounced refresh.
func (s *Scheduler) Stop() {
	s.StopConversationPolling()
	s.StopMessagePolling()
}

// TriggerConversationRefresh schedules one chat-list refresh after the debounce
// delay. Calls within the delay collapse into that single refresh. The refresh is
// not gated on activity: it is a reaction to a push, not a timer.
func (s *Scheduler) TriggerConversationRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.chatsFn
	if fn == nil {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.opts.NewChatDebounce, func() {
		s.mu.Lock()
		s.debounce = nil
		s.mu.Unlock()
		s.exec(s.baseCtx, chatsKey, func(ctx context.Context) error { return fn(ctx, true) })
	})
}

// Close stops everything and cancels in-flight refreshes.
func (s *Scheduler) Close() {
	s.Stop()
	s.stopBase()
}

func (s *Scheduler) spawn(interval time.Duration, tick func(ctx context.Context)) *loop {
	ctx, cancel := context.WithCancel(s.baseCtx)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ctx.Err() != nil {
					return
				}
				tick(ctx)
			}
		}
	}()
	return &loop{cancel: cancel}
}

func (s *Scheduler) stopLocked(l **loop) {
	if *l != nil {
		(*l).cancel()
		*l = nil
	}
}

// run applies the activity gate. A gated tick is dropped, not deferred.
func (s *Scheduler) run(ctx context.Context, key string, fn func(ctx context.Context) error) {
	if s.gate != nil && !(s.gate.IsPageVisible() && s.gate.IsUserActive(s.opts.ActivityWindow)) {
		return
	}
	s.exec(ctx, key, fn)
}

// exec starts fn in the background unless a refresh for key is already in
// flight, in which case the tick joins it.
func (s *Scheduler) exec(ctx context.Context, key string, fn func(ctx context.Context) error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return nil, fn(ctx)
	})
	go func() {
		res := <-ch
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			s.logger.Warn("poll refresh failed", zap.String("key", key), zap.Error(res.Err))
		}
	}()
}
