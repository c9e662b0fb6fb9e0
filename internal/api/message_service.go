package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/matheus3301/crmsync/internal/bus"
	"github.com/matheus3301/crmsync/internal/model"
	intsync "github.com/matheus3301/crmsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// EventSource is the bus subscription used by WatchEvents.
type EventSource interface {
	Subscribe(namespace string, bufSize int) (<-chan bus.Event, func())
}

func (s *ChatService) ListMessages(_ context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	current, msgs, scroll := s.engine.OpenMessages()
	if req.ChatID != "" && req.ChatID != current {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "chat %q is not open", req.ChatID)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &ListMessagesResponse{ChatID: current, Messages: msgs, Scroll: scroll}, nil
}

func (s *ChatService) SendText(_ context.Context, req *SendTextRequest) (*SendTextResponse, error) {
	text := strings.TrimSpace(req.Text)
	if req.ChatID == "" || text == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id and text are required")
	}
	if s.engine.Halted() {
		return nil, toStatus("send", intsync.ErrHalted)
	}
	id, err := s.outbox.Enqueue(req.ChatID, text)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "queue outbox: %v", err)
	}
	return &SendTextResponse{ClientMsgID: id}, nil
}

func (s *ChatService) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ch, unsub := s.events.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			env := &EventEnvelope{
				EventID:          evt.ID,
				Session:          s.sessionName,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Kind:             evt.Kind,
			}
			if evt.Payload != nil {
				payload, err := json.Marshal(evt.Payload)
				if err != nil {
					return grpcstatus.Errorf(codes.Internal, "encode %s payload: %v", evt.Kind, err)
				}
				env.Payload = payload
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
