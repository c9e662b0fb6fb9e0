package api

import (
	"context"
	"time"

	"github.com/matheus3301/crmsync/internal/activity"
	"github.com/matheus3301/crmsync/internal/status"
	intsync "github.com/matheus3301/crmsync/internal/sync"
)

// PushState reports whether the push channel is currently connected.
type PushState interface {
	Connected() bool
}

// SessionService implements SessionServer.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	engine      *intsync.Engine
	monitor     *activity.Monitor
	push        PushState
}

// NewSessionService creates a new session service. push may be nil.
func NewSessionService(sessionName string, machine *status.Machine, engine *intsync.Engine, monitor *activity.Monitor, push PushState) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		engine:      engine,
		monitor:     monitor,
		push:        push,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Session:  s.sessionName,
		Status:   string(s.machine.Current()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if s.push != nil {
		resp.PushConnected = s.push.Connected()
	}

	if s.engine != nil {
		resp.ChatCount = len(s.engine.Chats())
		resp.UnreadChats, resp.UnreadMessages = s.engine.Unread()
		resp.NewCalls = s.engine.NewCalls()
		resp.OpenChatID = s.engine.OpenChatID()
		if at, ok := s.engine.LastRefreshed(intsync.CheckpointChats); ok {
			resp.ChatsRefreshedAt = at.UnixMilli()
		}
		if at, ok := s.engine.LastRefreshed(intsync.CheckpointCalls); ok {
			resp.CallsRefreshedAt = at.UnixMilli()
		}
	}

	if s.monitor != nil {
		visible, last := s.monitor.Signal()
		resp.Visible = visible
		if !last.IsZero() {
			resp.LastActivityAt = last.UnixMilli()
		}
	}
	return resp, nil
}

func (s *SessionService) ReportActivity(_ context.Context, req *ReportActivityRequest) (*ReportActivityResponse, error) {
	if s.monitor == nil {
		return &ReportActivityResponse{}, nil
	}
	if req.Visible != nil {
		s.monitor.SetVisible(*req.Visible)
	}
	if req.ActivityAtUnixMs > 0 {
		at := time.UnixMilli(req.ActivityAtUnixMs)
		// A client clock ahead of ours must not pin the user as active.
		if now := time.Now(); at.After(now) {
			at = now
		}
		s.monitor.Touch(at)
	}
	return &ReportActivityResponse{}, nil
}
