package api

import (
	"context"
	"strings"

	"github.com/matheus3301/crmsync/internal/model"
	intsync "github.com/matheus3301/crmsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Enqueuer queues a user-initiated send and returns its client message id.
type Enqueuer interface {
	Enqueue(chatID, text string) (string, error)
}

// ChatService implements ChatServer. Message and event methods live in
// message_service.go.
type ChatService struct {
	engine      *intsync.Engine
	outbox      Enqueuer
	events      EventSource
	sessionName string
}

// NewChatService creates a chat service over the engine.
func NewChatService(engine *intsync.Engine, outbox Enqueuer, events EventSource, sessionName string) *ChatService {
	return &ChatService{engine: engine, outbox: outbox, events: events, sessionName: sessionName}
}

func (s *ChatService) ListChats(_ context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	chats := s.engine.Chats()
	if req.Limit > 0 && len(chats) > req.Limit {
		chats = chats[:req.Limit]
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return &ListChatsResponse{Chats: chats}, nil
}

func (s *ChatService) RefreshChats(ctx context.Context, _ *RefreshChatsRequest) (*RefreshChatsResponse, error) {
	if err := s.engine.RefreshChats(ctx, false); err != nil {
		return nil, toStatus("refresh chats", err)
	}
	return &RefreshChatsResponse{Total: len(s.engine.Chats())}, nil
}

func (s *ChatService) OpenChat(ctx context.Context, req *OpenChatRequest) (*OpenChatResponse, error) {
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	if err := s.engine.OpenChat(ctx, chatID); err != nil {
		return nil, toStatus("open chat", err)
	}
	chat, _ := s.engine.Chat(chatID)
	_, msgs, scroll := s.engine.OpenMessages()
	return &OpenChatResponse{Chat: chat, Messages: msgs, Scroll: scroll}, nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *CloseChatRequest) (*CloseChatResponse, error) {
	s.engine.CloseChat()
	return &CloseChatResponse{}, nil
}

func (s *ChatService) MarkViewed(_ context.Context, req *MarkViewedRequest) (*MarkViewedResponse, error) {
	if s.engine.Halted() {
		return nil, toStatus("mark viewed", intsync.ErrHalted)
	}
	if !s.engine.MarkViewed(req.ChatID) {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}
	return &MarkViewedResponse{}, nil
}
