package store

import (
	"fmt"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
)

// SaveChats writes the chat list snapshot in one transaction. Rows not in
// chats are kept, matching the in-memory merge.
func (db *DB) SaveChats(chats []model.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO chats (id, account_name, last_message_id, last_direction, last_text, last_created,
			unread_count, has_new_message, updated, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_name = excluded.account_name,
			last_message_id = excluded.last_message_id,
			last_direction = excluded.last_direction,
			last_text = excluded.last_text,
			last_created = excluded.last_created,
			unread_count = excluded.unread_count,
			has_new_message = excluded.has_new_message,
			updated = excluded.updated,
			cached_at = excluded.cached_at
		WHERE excluded.updated >= chats.updated`)
	if err != nil {
		return fmt.Errorf("prepare chat upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for _, c := range chats {
		var last model.LastMessage
		if c.LastMessage != nil {
			last = *c.LastMessage
		}
		if _, err := stmt.Exec(c.ID, c.AccountName, last.ID, string(last.Direction), last.Text, last.CreatedAt,
			c.UnreadCount, c.HasNewMessage, c.UpdatedAt, now); err != nil {
			return fmt.Errorf("upsert chat %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadChats returns the cached chat list, most recently updated first.
func (db *DB) LoadChats() ([]model.Chat, error) {
	rows, err := db.Query(`
		SELECT id, account_name, last_message_id, last_direction, last_text, last_created,
			unread_count, has_new_message, updated
		FROM chats
		ORDER BY updated DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		var (
			c    model.Chat
			last model.LastMessage
			dir  string
		)
		if err := rows.Scan(&c.ID, &c.AccountName, &last.ID, &dir, &last.Text, &last.CreatedAt,
			&c.UnreadCount, &c.HasNewMessage, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if last.ID != "" || last.Text != "" {
			last.Direction = model.Direction(dir)
			c.LastMessage = &last
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CountChats returns the number of cached chats.
func (db *DB) CountChats() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}
