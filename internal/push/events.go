package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/crmsync/internal/model"
)

// ErrMalformed marks a push frame whose payload lacks required fields.
var ErrMalformed = errors.New("push: malformed payload")

// Kind is the event name on the wire.
type Kind string

const (
	KindNewMessage   Kind = "new-message"
	KindChatUpdated  Kind = "chat-updated"
	KindNotification Kind = "notification"
	KindNewCall      Kind = "new-call"
	KindCallUpdated  Kind = "call-updated"
)

// Kinds lists every kind the router subscribes to.
var Kinds = []Kind{KindNewMessage, KindChatUpdated, KindNotification, KindNewCall, KindCallUpdated}

// Frame is one message read from the socket.
type Frame struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is one of the decoded variants below.
type Event interface {
	Kind() Kind
}

// NewMessage carries a single message for a chat.
type NewMessage struct {
	ChatID  string
	Message model.Message
}

// ChatUpdated signals a chat change, optionally with the message that caused it.
type ChatUpdated struct {
	ChatID    string
	Message   *model.Message
	IsNewChat bool
}

// Notification is a digest echo of ChatUpdated.
type Notification struct {
	ChatID    string
	Message   *model.Message
	IsNewChat bool
}

// NewCall is a call that just started or was just logged.
type NewCall struct {
	Call model.Call
}

// CallUpdated is a status change of a known call.
type CallUpdated struct {
	Call model.Call
}

func (NewMessage) Kind() Kind   { return KindNewMessage }
func (ChatUpdated) Kind() Kind  { return KindChatUpdated }
func (Notification) Kind() Kind { return KindNotification }
func (NewCall) Kind() Kind      { return KindNewCall }
func (CallUpdated) Kind() Kind  { return KindCallUpdated }

type chatPayload struct {
	ChatID    string         `json:"chatId"`
	Message   *model.Message `json:"message,omitempty"`
	IsNewChat bool           `json:"isNewChat,omitempty"`
}

type callPayload struct {
	Call *model.Call `json:"call"`
}

// Decode turns a raw frame into its typed variant.
func Decode(kind Kind, data json.RawMessage) (Event, error) {
	switch kind {
	case KindNewMessage, KindChatUpdated, KindNotification:
		var p chatPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		if err := p.validate(kind); err != nil {
			return nil, err
		}
		switch kind {
		case KindNewMessage:
			return NewMessage{ChatID: p.ChatID, Message: *p.Message}, nil
		case KindChatUpdated:
			return ChatUpdated{ChatID: p.ChatID, Message: p.Message, IsNewChat: p.IsNewChat}, nil
		default:
			return Notification{ChatID: p.ChatID, Message: p.Message, IsNewChat: p.IsNewChat}, nil
		}
	case KindNewCall, KindCallUpdated:
		var p callPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
		}
		if p.Call == nil || p.Call.ID == "" || p.Call.PhoneNumber == "" {
			return nil, fmt.Errorf("%w: %s: missing call id or phone", ErrMalformed, kind)
		}
		if kind == KindNewCall {
			return NewCall{Call: *p.Call}, nil
		}
		return CallUpdated{Call: *p.Call}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
}

func (p *chatPayload) validate(kind Kind) error {
	if p.ChatID == "" && p.Message != nil {
		p.ChatID = p.Message.ChatID
	}
	if p.ChatID == "" {
		return fmt.Errorf("%w: %s: missing chatId", ErrMalformed, kind)
	}
	if kind == KindNewMessage && p.Message == nil {
		return fmt.Errorf("%w: %s: missing message", ErrMalformed, kind)
	}
	if p.Message != nil {
		if p.Message.ID == "" {
			return fmt.Errorf("%w: %s: message without id", ErrMalformed, kind)
		}
		p.Message.ChatID = p.ChatID
	}
	return nil
}
