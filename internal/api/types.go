package api

import (
	"encoding/json"

	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/model"
)

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	UptimeMs      int64  `json:"uptime_ms"`
	PushConnected bool   `json:"push_connected"`

	ChatCount      int    `json:"chat_count"`
	UnreadChats    int    `json:"unread_chats"`
	UnreadMessages int    `json:"unread_messages"`
	NewCalls       int    `json:"new_calls"`
	OpenChatID     string `json:"open_chat_id,omitempty"`

	// Unix milliseconds; zero when the refresh never completed.
	ChatsRefreshedAt int64 `json:"chats_refreshed_at"`
	CallsRefreshedAt int64 `json:"calls_refreshed_at"`

	Visible        bool  `json:"visible"`
	LastActivityAt int64 `json:"last_activity_at"`
}

// ReportActivityRequest carries the UI's visibility and interaction signals.
// A nil Visible leaves visibility unchanged; a zero ActivityAtUnixMs records
// no interaction.
type ReportActivityRequest struct {
	Visible          *bool `json:"visible,omitempty"`
	ActivityAtUnixMs int64 `json:"activity_at_unix_ms,omitempty"`
}

type ReportActivityResponse struct{}

type ListChatsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListChatsResponse struct {
	Chats []model.Chat `json:"chats"`
}

type RefreshChatsRequest struct{}

type RefreshChatsResponse struct {
	Total int `json:"total"`
}

type OpenChatRequest struct {
	ChatID string `json:"chat_id"`
}

type OpenChatResponse struct {
	Chat     model.Chat      `json:"chat"`
	Messages []model.Message `json:"messages"`
	// Scroll carries the signal consumed by opening, as in ListMessagesResponse.
	Scroll bool `json:"scroll"`
}

type CloseChatRequest struct{}

type CloseChatResponse struct{}

// ListMessagesRequest reads the open chat's window. A non-empty ChatID must
// name the open chat.
type ListMessagesRequest struct {
	ChatID string `json:"chat_id,omitempty"`
}

type ListMessagesResponse struct {
	ChatID   string          `json:"chat_id"`
	Messages []model.Message `json:"messages"`
	// Scroll is the one-shot "jump to newest" signal.
	Scroll bool `json:"scroll"`
}

type MarkViewedRequest struct {
	ChatID string `json:"chat_id"`
}

type MarkViewedResponse struct{}

type SendTextRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type SendTextResponse struct {
	ClientMsgID string `json:"client_msg_id"`
}

// WatchEventsRequest filters the stream by kind prefix ("message.", "calls.").
// An empty prefix streams everything.
type WatchEventsRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Session          string          `json:"session"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Kind             string          `json:"kind"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type ListCallGroupsRequest struct{}

type ListCallGroupsResponse struct {
	Groups   []calls.Group   `json:"groups"`
	NewCalls int             `json:"new_calls"`
	Stats    model.CallStats `json:"stats"`
}

type RefreshCallsRequest struct{}

type RefreshCallsResponse struct {
	NewCalls int `json:"new_calls"`
}

type ResetNewCallsRequest struct{}

type ResetNewCallsResponse struct{}
