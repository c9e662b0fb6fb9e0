package model

import (
	"fmt"
	"time"
)

// Direction is the author side of a message relative to the operator account.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageType tags the payload carried in Content.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVoice    MessageType = "voice"
	TypeLink     MessageType = "link"
	TypeItem     MessageType = "item"
	TypeLocation MessageType = "location"
)

// Chat is one buyer/seller conversation tied to one external account.
type Chat struct {
	ID            string       `json:"id"`
	AccountName   string       `json:"account_name"`
	LastMessage   *LastMessage `json:"last_message,omitempty"`
	UnreadCount   int          `json:"unread_count"`
	HasNewMessage bool         `json:"has_new_message"`
	UpdatedAt     int64        `json:"updated"`
}

// LastMessage is the denormalized summary shown in the chat list.
type LastMessage struct {
	ID        string    `json:"id,omitempty"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	CreatedAt int64     `json:"created"`
}

// Message is one unit of conversation content. CreatedAt is in seconds.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Direction Direction   `json:"direction"`
	CreatedAt int64       `json:"created"`
	Type      MessageType `json:"type"`
	Content   Content     `json:"content"`
	IsRead    bool        `json:"is_read"`
	VoiceURL  string      `json:"voice_url,omitempty"`
}

// Content is the type-tagged message payload. Exactly one field is expected
// to be set for a given MessageType; Text may accompany any of them.
type Content struct {
	Text     string           `json:"text,omitempty"`
	Link     *LinkContent     `json:"link,omitempty"`
	Image    *ImageContent    `json:"image,omitempty"`
	Voice    *VoiceContent    `json:"voice,omitempty"`
	Item     *ItemContent     `json:"item,omitempty"`
	Location *LocationContent `json:"location,omitempty"`
}

type LinkContent struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

type ImageContent struct {
	URL string `json:"url"`
}

type VoiceContent struct {
	VoiceID string `json:"voice_id"`
}

type ItemContent struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Price string `json:"price,omitempty"`
	URL   string `json:"url,omitempty"`
}

type LocationContent struct {
	Title string  `json:"title,omitempty"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// IsZero reports whether no payload field is set.
func (c Content) IsZero() bool {
	return c.Text == "" && c.Link == nil && c.Image == nil && c.Voice == nil && c.Item == nil && c.Location == nil
}

// VoiceID returns the opaque voice identifier, or "" for non-voice messages.
func (m *Message) VoiceID() string {
	if m.Type != TypeVoice || m.Content.Voice == nil {
		return ""
	}
	return m.Content.Voice.VoiceID
}

// Preview returns a short plain-text rendering used for chat summaries.
func (m *Message) Preview(maxLen int) string {
	var s string
	switch {
	case m.Content.Text != "":
		s = m.Content.Text
	case m.Type == TypeVoice:
		s = "[voice]"
	case m.Type == TypeImage:
		s = "[image]"
	case m.Type == TypeLocation:
		s = "[location]"
	case m.Type == TypeItem && m.Content.Item != nil:
		s = fmt.Sprintf("[item] %s", m.Content.Item.Title)
	case m.Type == TypeLink && m.Content.Link != nil:
		s = m.Content.Link.URL
	default:
		s = "[" + string(m.Type) + "]"
	}
	return Truncate(s, maxLen)
}

// Truncate cuts s to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}

// CallStatus is the outcome of a phone call.
type CallStatus string

const (
	CallAnswered CallStatus = "answered"
	CallMissed   CallStatus = "missed"
	CallBusy     CallStatus = "busy"
	CallNoAnswer CallStatus = "no_answer"
)

// Call is one telephony record.
type Call struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	Status      CallStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	Duration    int        `json:"duration,omitempty"`
	RecordingID string     `json:"recording_id,omitempty"`
}

// CallStats are the aggregate numbers returned with a grouped-calls page.
type CallStats struct {
	TotalCalls    int `json:"total_calls"`
	MissedCalls   int `json:"missed_calls"`
	AnsweredCalls int `json:"answered_calls"`
	TodayCalls    int `json:"today_calls"`
}
