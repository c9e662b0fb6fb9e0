package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/crmsync/internal/bus"
	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/store"
	"github.com/matheus3301/crmsync/internal/sync"
	"go.uber.org/zap"
)

const drainInterval = 500 * time.Millisecond

// TextSender posts a text and returns the stored message. sync.Engine implements it.
type TextSender interface {
	Send(ctx context.Context, chatID, text string) (model.Message, error)
}

// Result is the payload of message.sending, message.send_ack and message.send_failed.
type Result struct {
	ClientMsgID string
	ChatID      string
	ServerMsgID string
	Error       string
}

// Sender drains the outbox through the engine's send path.
type Sender struct {
	db     *store.DB
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
	kick   chan struct{}
	cancel context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
}

// Enqueue queues text for chatID and returns the client message id.
func (s *Sender) Enqueue(chatID, text string) (string, error) {
	id := uuid.NewString()
	if err := s.db.QueueOutbox(id, chatID, text); err != nil {
		return "", err
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return id, nil
}

// Start fails sends interrupted by a previous crash, then begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.FailInterruptedSends(); err != nil {
		s.logger.Error("failed to recover outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("marked interrupted sends as failed", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.kick:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}
		s.bus.Emit(bus.KindSending, Result{ClientMsgID: entry.ClientMsgID, ChatID: entry.ChatID})

		msg, err := s.sender.Send(ctx, entry.ChatID, entry.Body)
		if err != nil {
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			// Session expiry already produced its own single notification.
			if errors.Is(err, sync.ErrHalted) {
				continue
			}
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			s.bus.Emit(bus.KindSendFailed, Result{ClientMsgID: entry.ClientMsgID, ChatID: entry.ChatID, Error: err.Error()})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", msg.ID))
		s.bus.Emit(bus.KindSendAck, Result{ClientMsgID: entry.ClientMsgID, ChatID: entry.ChatID, ServerMsgID: msg.ID})
	}
}
