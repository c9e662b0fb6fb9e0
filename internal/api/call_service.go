package api

import (
	"context"

	"github.com/matheus3301/crmsync/internal/calls"
	intsync "github.com/matheus3301/crmsync/internal/sync"
)

// CallService implements CallServer.
type CallService struct {
	engine *intsync.Engine
}

func NewCallService(engine *intsync.Engine) *CallService {
	return &CallService{engine: engine}
}

func (s *CallService) ListCallGroups(_ context.Context, _ *ListCallGroupsRequest) (*ListCallGroupsResponse, error) {
	groups, badge, stats := s.engine.CallGroups()
	if groups == nil {
		groups = []calls.Group{}
	}
	return &ListCallGroupsResponse{Groups: groups, NewCalls: badge, Stats: stats}, nil
}

func (s *CallService) RefreshCalls(ctx context.Context, _ *RefreshCallsRequest) (*RefreshCallsResponse, error) {
	if err := s.engine.RefreshCalls(ctx, false); err != nil {
		return nil, toStatus("refresh calls", err)
	}
	return &RefreshCallsResponse{NewCalls: s.engine.NewCalls()}, nil
}

func (s *CallService) ResetNewCalls(_ context.Context, _ *ResetNewCallsRequest) (*ResetNewCallsResponse, error) {
	s.engine.ResetNewCalls()
	return &ResetNewCallsResponse{}, nil
}
