package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "crmsync.v1.SessionService"
	ChatServiceName    = "crmsync.v1.ChatService"
	CallServiceName    = "crmsync.v1.CallService"
)

// SessionServer is the daemon status and UI-signal surface.
type SessionServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	ReportActivity(context.Context, *ReportActivityRequest) (*ReportActivityResponse, error)
}

// ChatServer exposes the conversation list, the open chat and sends.
type ChatServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	RefreshChats(context.Context, *RefreshChatsRequest) (*RefreshChatsResponse, error)
	OpenChat(context.Context, *OpenChatRequest) (*OpenChatResponse, error)
	CloseChat(context.Context, *CloseChatRequest) (*CloseChatResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	MarkViewed(context.Context, *MarkViewedRequest) (*MarkViewedResponse, error)
	SendText(context.Context, *SendTextRequest) (*SendTextResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// CallServer exposes the grouped call history.
type CallServer interface {
	ListCallGroups(context.Context, *ListCallGroupsRequest) (*ListCallGroupsResponse, error)
	RefreshCalls(context.Context, *RefreshCallsRequest) (*RefreshCallsResponse, error)
	ResetNewCalls(context.Context, *ResetNewCallsRequest) (*ResetNewCallsResponse, error)
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s eventStream) Send(e *EventEnvelope) error { return s.SendMsg(e) }

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "ReportActivity", SessionServer.ReportActivity),
	},
	Metadata: "crmsync/v1/session",
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChats", ChatServer.ListChats),
		unary(ChatServiceName, "RefreshChats", ChatServer.RefreshChats),
		unary(ChatServiceName, "OpenChat", ChatServer.OpenChat),
		unary(ChatServiceName, "CloseChat", ChatServer.CloseChat),
		unary(ChatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(ChatServiceName, "MarkViewed", ChatServer.MarkViewed),
		unary(ChatServiceName, "SendText", ChatServer.SendText),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "crmsync/v1/chat",
}

var CallServiceDesc = grpc.ServiceDesc{
	ServiceName: CallServiceName,
	HandlerType: (*CallServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(CallServiceName, "ListCallGroups", CallServer.ListCallGroups),
		unary(CallServiceName, "RefreshCalls", CallServer.RefreshCalls),
		unary(CallServiceName, "ResetNewCalls", CallServer.ResetNewCalls),
	},
	Metadata: "crmsync/v1/call",
}

func RegisterSessionServer(r grpc.ServiceRegistrar, srv SessionServer) {
	r.RegisterService(&SessionServiceDesc, srv)
}

func RegisterChatServer(r grpc.ServiceRegistrar, srv ChatServer) {
	r.RegisterService(&ChatServiceDesc, srv)
}

func RegisterCallServer(r grpc.ServiceRegistrar, srv CallServer) {
	r.RegisterService(&CallServiceDesc, srv)
}

// unary builds a method descriptor from a method expression such as
// ChatServer.ListChats, decoding into a fresh *Req.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).WatchEvents(in, eventStream{stream})
}
