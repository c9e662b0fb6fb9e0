package store

// OutboxStatus is the lifecycle of a queued send.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is one operator-initiated text send.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	Body         string
	Status       OutboxStatus
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
}

// Checkpoint is one row of sync_state.
type Checkpoint struct {
	Key       string
	Value     string
	UpdatedAt int64
}
