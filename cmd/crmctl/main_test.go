package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type fakeDaemon struct {
	mu       sync.Mutex
	sent     []api.SendTextRequest
	opened   string
	resets   int
	halted   bool
	chatList []model.Chat
}

func (f *fakeDaemon) GetStatus(context.Context, *api.GetStatusRequest) (*api.GetStatusResponse, error) {
	return &api.GetStatusResponse{Session: "work", Status: "LIVE", PushConnected: true, ChatCount: 2, UnreadChats: 1, UnreadMessages: 3, NewCalls: 4}, nil
}

func (f *fakeDaemon) ReportActivity(context.Context, *api.ReportActivityRequest) (*api.ReportActivityResponse, error) {
	return &api.ReportActivityResponse{}, nil
}

func (f *fakeDaemon) ListChats(_ context.Context, req *api.ListChatsRequest) (*api.ListChatsResponse, error) {
	chats := f.chatList
	if req.Limit > 0 && len(chats) > req.Limit {
		chats = chats[:req.Limit]
	}
	return &api.ListChatsResponse{Chats: chats}, nil
}

func (f *fakeDaemon) RefreshChats(context.Context, *api.RefreshChatsRequest) (*api.RefreshChatsResponse, error) {
	return &api.RefreshChatsResponse{Total: len(f.chatList)}, nil
}

func (f *fakeDaemon) OpenChat(_ context.Context, req *api.OpenChatRequest) (*api.OpenChatResponse, error) {
	f.mu.Lock()
	f.opened = req.ChatID
	f.mu.Unlock()
	return &api.OpenChatResponse{
		Chat: model.Chat{ID: req.ChatID},
		Messages: []model.Message{
			{ID: "m1", ChatID: req.ChatID, Direction: model.DirectionIn, CreatedAt: 100, Type: model.TypeText, Content: model.Content{Text: "is it available?"}},
			{ID: "m2", ChatID: req.ChatID, Direction: model.DirectionOut, CreatedAt: 200, Type: model.TypeText, Content: model.Content{Text: "yes"}},
		},
	}, nil
}

func (f *fakeDaemon) CloseChat(context.Context, *api.CloseChatRequest) (*api.CloseChatResponse, error) {
	return &api.CloseChatResponse{}, nil
}

func (f *fakeDaemon) ListMessages(context.Context, *api.ListMessagesRequest) (*api.ListMessagesResponse, error) {
	return &api.ListMessagesResponse{}, nil
}

func (f *fakeDaemon) MarkViewed(context.Context, *api.MarkViewedRequest) (*api.MarkViewedResponse, error) {
	return &api.MarkViewedResponse{}, nil
}

func (f *fakeDaemon) SendText(_ context.Context, req *api.SendTextRequest) (*api.SendTextResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.halted {
		return nil, grpcstatus.Error(codes.Unauthenticated, "session expired")
	}
	f.sent = append(f.sent, *req)
	return &api.SendTextResponse{ClientMsgID: fmt.Sprintf("c-%d", len(f.sent))}, nil
}

func (f *fakeDaemon) WatchEvents(*api.WatchEventsRequest, api.EventStream) error {
	return nil
}

func (f *fakeDaemon) ListCallGroups(context.Context, *api.ListCallGroupsRequest) (*api.ListCallGroupsResponse, error) {
	return &api.ListCallGroupsResponse{
		Groups: []calls.Group{{
			PhoneNumber: "79990001122",
			Calls:       []model.Call{{ID: "k1", PhoneNumber: "79990001122", Status: model.CallMissed, CreatedAt: time.Now()}},
			Counters:    calls.Counters{Total: 1, Missed: 1, Today: 1},
		}},
		NewCalls: 1,
		Stats:    model.CallStats{TotalCalls: 1, MissedCalls: 1, TodayCalls: 1},
	}, nil
}

func (f *fakeDaemon) RefreshCalls(context.Context, *api.RefreshCallsRequest) (*api.RefreshCallsResponse, error) {
	return &api.RefreshCallsResponse{NewCalls: 2}, nil
}

func (f *fakeDaemon) ResetNewCalls(context.Context, *api.ResetNewCallsRequest) (*api.ResetNewCallsResponse, error) {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return &api.ResetNewCallsResponse{}, nil
}

// startFake serves f on a short-path Unix socket and returns the socket path.
func startFake(t *testing.T, f *fakeDaemon) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "crmctl")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sock := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	api.RegisterSessionServer(srv, f)
	api.RegisterChatServer(srv, f)
	api.RegisterCallServer(srv, f)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return sock
}

func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	code := execute(cmd)
	return out.String(), errOut.String(), code
}

func TestVersionCommand(t *testing.T) {
	out, _, code := run(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "crmctl") {
		t.Errorf("version output = %q", out)
	}
}

func TestHelpListsCommands(t *testing.T) {
	out, _, code := run(t, "--help")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, name := range []string{"status", "chats", "open", "send", "calls"} {
		if !strings.Contains(out, name) {
			t.Errorf("help output missing %q", name)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	sock := startFake(t, &fakeDaemon{})
	out, errOut, code := run(t, "--socket", sock, "status")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{"work", "LIVE", "connected", "4 new"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	sock := startFake(t, &fakeDaemon{})
	out, _, code := run(t, "--socket", sock, "--json", "status")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var resp api.GetStatusResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if resp.Status != "LIVE" || resp.UnreadMessages != 3 {
		t.Errorf("decoded = %+v", resp)
	}
}

func TestChatsCommandLimit(t *testing.T) {
	f := &fakeDaemon{chatList: []model.Chat{
		{ID: "c1", UnreadCount: 2, HasNewMessage: true, UpdatedAt: 300, LastMessage: &model.LastMessage{Text: "hello\nthere"}},
		{ID: "c2", UpdatedAt: 200},
		{ID: "c3", UpdatedAt: 100},
	}}
	sock := startFake(t, f)
	out, _, code := run(t, "--socket", sock, "chats", "--limit", "2")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "* c1") || !strings.Contains(lines[0], "(2)") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "hello there") {
		t.Errorf("preview not flattened: %q", lines[0])
	}
}

func TestOpenPrintsThread(t *testing.T) {
	f := &fakeDaemon{}
	sock := startFake(t, f)
	out, _, code := run(t, "--socket", sock, "open", "c9")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if f.opened != "c9" {
		t.Errorf("opened = %q, want c9", f.opened)
	}
	if !strings.Contains(out, "them: is it available?") || !strings.Contains(out, "you : yes") {
		t.Errorf("thread output:\n%s", out)
	}
}

func TestSendJoinsArgs(t *testing.T) {
	f := &fakeDaemon{}
	sock := startFake(t, f)
	out, _, code := run(t, "--socket", sock, "send", "c1", "see", "you", "soon")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(f.sent) != 1 || f.sent[0].Text != "see you soon" || f.sent[0].ChatID != "c1" {
		t.Errorf("sent = %+v", f.sent)
	}
	if !strings.Contains(out, "Queued c-1") {
		t.Errorf("output = %q", out)
	}
}

func TestSendReportsStatusError(t *testing.T) {
	sock := startFake(t, &fakeDaemon{halted: true})
	_, errOut, code := run(t, "--socket", sock, "send", "c1", "hi")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "session expired") || !strings.Contains(errOut, "Unauthenticated") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCallsResetFlag(t *testing.T) {
	f := &fakeDaemon{}
	sock := startFake(t, f)
	out, _, code := run(t, "--socket", sock, "calls", "--reset")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "79990001122") || !strings.Contains(out, "missed 1") {
		t.Errorf("calls output:\n%s", out)
	}
	if f.resets != 1 {
		t.Errorf("resets = %d, want 1", f.resets)
	}

	if _, _, code := run(t, "--socket", sock, "calls", "reset"); code != 0 {
		t.Fatalf("calls reset exit code = %d", code)
	}
	if f.resets != 2 {
		t.Errorf("resets = %d, want 2", f.resets)
	}
}

func TestSendRequiresText(t *testing.T) {
	_, errOut, code := run(t, "send", "c1")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "requires at least 2 arg") {
		t.Errorf("stderr = %q", errOut)
	}
}
