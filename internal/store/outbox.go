package store

import (
	"database/sql"
	"time"
)

// QueueOutbox adds a text send for the sender loop to pick up.
func (db *DB) QueueOutbox(clientMsgID, chatID, body string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, chat_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		clientMsgID, chatID, body, OutboxQueued, now, now)
	return err
}

// MarkOutboxSending claims a queued entry.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	return db.setOutboxStatus(clientMsgID, OutboxSending, "", "")
}

// MarkOutboxSent records the id the CRM assigned to the message.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	return db.setOutboxStatus(clientMsgID, OutboxSent, "", serverMsgID)
}

// MarkOutboxFailed records why a send did not go through.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	return db.setOutboxStatus(clientMsgID, OutboxFailed, errMsg, "")
}

func (db *DB) setOutboxStatus(clientMsgID string, status OutboxStatus, errMsg, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET
			status = ?,
			error_message = CASE WHEN ? = '' THEN error_message ELSE ? END,
			server_msg_id = CASE WHEN ? = '' THEN server_msg_id ELSE ? END,
			updated_at = ?
		WHERE client_msg_id = ?`,
		status, errMsg, errMsg, serverMsgID, serverMsgID, now, clientMsgID)
	return err
}

// PendingOutbox returns queued entries, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, chat_id, body, status, error_message, server_msg_id, created_at
		FROM outbox WHERE status = ? ORDER BY created_at ASC, id ASC`, OutboxQueued)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ChatID, &e.Body, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOutbox returns one entry by client id, or nil if unknown.
func (db *DB) GetOutbox(clientMsgID string) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRow(`
		SELECT id, client_msg_id, chat_id, body, status, error_message, server_msg_id, created_at
		FROM outbox WHERE client_msg_id = ?`, clientMsgID).
		Scan(&e.ID, &e.ClientMsgID, &e.ChatID, &e.Body, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FailInterruptedSends marks entries left in 'sending' by a crashed daemon as
// failed. Whether the CRM accepted them is unknown, so they are not retried.
func (db *DB) FailInterruptedSends() (int64, error) {
	res, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = 'interrupted', updated_at = ?
		WHERE status = ?`, OutboxFailed, time.Now().UnixMilli(), OutboxSending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
