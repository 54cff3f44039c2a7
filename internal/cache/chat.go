package cache

import (
	"time"

	"github.com/chirpsocial/chirp/internal/state"
)

// PutChat inserts or updates a chat record (idempotent on id).
func (db *DB) PutChat(c state.Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (id, name, avatar_url, is_group, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.AvatarURL, c.IsGroup, c.Unread, c.LastMessageAt, c.LastPreview, now)
	return err
}

// DeleteChat removes a chat and its cached messages.
func (db *DB) DeleteChat(id string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	return err
}

// ListChats returns cached chats sorted by last message timestamp descending.
func (db *DB) ListChats() ([]state.Chat, error) {
	rows, err := db.Query(`
		SELECT id, name, avatar_url, is_group, unread_count, last_message_at, last_message_preview
		FROM chats
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []state.Chat
	for rows.Next() {
		var c state.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.AvatarURL, &c.IsGroup, &c.Unread, &c.LastMessageAt, &c.LastPreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
