package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/matheus3301/crmsync/internal/model"
	"go.uber.org/zap"
)

// Handler receives the raw payload of one frame.
type Handler func(ctx context.Context, data json.RawMessage)

// Source is a per-connection event emitter.
type Source interface {
	On(kind Kind, h Handler) (off func())
}

// Sink is where decoded events end up. Every message goes through the same
// merge path as poll results.
type Sink interface {
	PushMessage(ctx context.Context, chatID string, msg model.Message)
	RequestChatRefresh()
	PushNewCall(call model.Call)
	PushCallUpdate(call model.Call)
}

// Router translates push events into sink calls. At most one source is
// attached at a time.
type Router struct {
	sink   Sink
	logger *zap.Logger

	mu   sync.Mutex
	offs []func()
}

// NewRouter creates a detached router.
func NewRouter(sink Sink, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{sink: sink, logger: logger}
}

// Attach registers one handler per kind on src. Any previous attachment is
// removed first, so reconnects never stack handlers.
func (r *Router) Attach(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()
	for _, kind := range Kinds {
		kind := kind
		r.offs = append(r.offs, src.On(kind, func(ctx context.Context, data json.RawMessage) {
			r.handle(ctx, kind, data)
		}))
	}
}

// Detach removes every handler registered by the last Attach.
func (r *Router) Detach() {
	r.mu.Lock()
	r.detachLocked()
	r.mu.Unlock()
}

// Attached reports whether a source is currently attached.
func (r *Router) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offs) > 0
}

func (r *Router) detachLocked() {
	for _, off := range r.offs {
		off()
	}
	r.offs = nil
}

func (r *Router) handle(ctx context.Context, kind Kind, data json.RawMessage) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("push handler panic", zap.String("kind", string(kind)), zap.Any("panic", p))
		}
	}()

	ev, err := Decode(kind, data)
	if err != nil {
		r.logger.Warn("dropping push event", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	r.Dispatch(ctx, ev)
}

// Dispatch applies one decoded event.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case NewMessage:
		r.sink.PushMessage(ctx, e.ChatID, e.Message)
	case ChatUpdated:
		r.chatChanged(ctx, e.ChatID, e.Message, e.IsNewChat)
	case Notification:
		r.chatChanged(ctx, e.ChatID, e.Message, e.IsNewChat)
	case NewCall:
		r.sink.PushNewCall(e.Call)
	case CallUpdated:
		r.sink.PushCallUpdate(e.Call)
	default:
		panic(fmt.Sprintf("push: unhandled event %T", ev))
	}
}

// chatChanged never upserts the partial chat: a new chat or a message-less
// update asks for a real list refresh instead.
func (r *Router) chatChanged(ctx context.Context, chatID string, msg *model.Message, isNew bool) {
	if msg != nil {
		r.sink.PushMessage(ctx, chatID, *msg)
	}
	if isNew || msg == nil {
		r.sink.RequestChatRefresh()
	}
}
