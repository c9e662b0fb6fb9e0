package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to a daemon's Unix socket with the JSON codec selected.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
}

// Client is a typed wrapper over the three control-plane services.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", &GetStatusRequest{})
}

func (c *Client) ReportActivity(ctx context.Context, req *ReportActivityRequest) error {
	_, err := invoke[ReportActivityResponse](ctx, c.cc, SessionServiceName, "ReportActivity", req)
	return err
}

func (c *Client) ListChats(ctx context.Context, limit int) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c.cc, ChatServiceName, "ListChats", &ListChatsRequest{Limit: limit})
}

func (c *Client) RefreshChats(ctx context.Context) (*RefreshChatsResponse, error) {
	return invoke[RefreshChatsResponse](ctx, c.cc, ChatServiceName, "RefreshChats", &RefreshChatsRequest{})
}

func (c *Client) OpenChat(ctx context.Context, chatID string) (*OpenChatResponse, error) {
	return invoke[OpenChatResponse](ctx, c.cc, ChatServiceName, "OpenChat", &OpenChatRequest{ChatID: chatID})
}

func (c *Client) CloseChat(ctx context.Context) error {
	_, err := invoke[CloseChatResponse](ctx, c.cc, ChatServiceName, "CloseChat", &CloseChatRequest{})
	return err
}

func (c *Client) ListMessages(ctx context.Context, chatID string) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, ChatServiceName, "ListMessages", &ListMessagesRequest{ChatID: chatID})
}

func (c *Client) MarkViewed(ctx context.Context, chatID string) error {
	_, err := invoke[MarkViewedResponse](ctx, c.cc, ChatServiceName, "MarkViewed", &MarkViewedRequest{ChatID: chatID})
	return err
}

func (c *Client) SendText(ctx context.Context, chatID, text string) (*SendTextResponse, error) {
	return invoke[SendTextResponse](ctx, c.cc, ChatServiceName, "SendText", &SendTextRequest{ChatID: chatID, Text: text})
}

func (c *Client) ListCallGroups(ctx context.Context) (*ListCallGroupsResponse, error) {
	return invoke[ListCallGroupsResponse](ctx, c.cc, CallServiceName, "ListCallGroups", &ListCallGroupsRequest{})
}

func (c *Client) RefreshCalls(ctx context.Context) (*RefreshCallsResponse, error) {
	return invoke[RefreshCallsResponse](ctx, c.cc, CallServiceName, "RefreshCalls", &RefreshCallsRequest{})
}

func (c *Client) ResetNewCalls(ctx context.Context) error {
	_, err := invoke[ResetNewCallsResponse](ctx, c.cc, CallServiceName, "ResetNewCalls", &ResetNewCallsRequest{})
	return err
}

// WatchEvents streams events until ctx ends or the server closes the stream.
// fn runs on the receiving goroutine; a non-nil return stops the stream.
func (c *Client) WatchEvents(ctx context.Context, prefix string, fn func(*EventEnvelope) error) error {
	desc := &ChatServiceDesc.Streams[0]
	stream, err := c.cc.NewStream(ctx, desc, "/"+ChatServiceName+"/"+desc.StreamName, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&WatchEventsRequest{Prefix: prefix}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(EventEnvelope)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
