package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "chat." receives chat.updated but not message.appended.
const (
	KindChatUpdated     = "chat.updated"
	KindChatsRefreshed  = "chat.refreshed"
	KindMessageAppended = "message.appended"
	KindMessageSnapshot = "message.snapshot"
	KindSending         = "message.sending"
	KindSendAck         = "message.send_ack"
	KindSendFailed      = "message.send_failed"
	KindCallsUpdated    = "calls.updated"
	KindStatusChanged   = "session.status_changed"
	KindSessionExpired  = "session.expired"
	KindPushConnected   = "push.connected"
	KindPushLost        = "push.disconnected"
)

// Event is a domain event. ID and Timestamp are filled by Publish when empty.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}
