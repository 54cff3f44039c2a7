package cache

import (
	"github.com/chirpsocial/chirp/internal/state"
	"github.com/chirpsocial/chirp/internal/wire"
)

// PutMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) PutMessage(m state.Message) error {
	var mediaURL, mediaType string
	if m.Media != nil {
		mediaURL = m.Media.URL
		mediaType = m.Media.MimeType
	}
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, client_id, sender_id, sender_name, content, media_url, media_type, created_at, delivered, read, pinned, edited, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			client_id = excluded.client_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			media_url = excluded.media_url,
			media_type = excluded.media_type,
			delivered = excluded.delivered,
			read = excluded.read,
			pinned = excluded.pinned,
			edited = excluded.edited,
			pending = excluded.pending`,
		m.ChatID, m.ID, m.ClientID, m.SenderID, m.SenderName, m.Content,
		mediaURL, mediaType, m.CreatedAt, m.Delivered, m.Read, m.Pinned, m.Edited, m.Pending)
	return err
}

// DeleteMessage removes a single cached message.
func (db *DB) DeleteMessage(chatID, id string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, id)
	return err
}

// ListMessages returns cached messages for a chat in chronological order.
func (db *DB) ListMessages(chatID string) ([]state.Message, error) {
	rows, err := db.Query(`
		SELECT chat_id, msg_id, client_id, sender_id, sender_name, content, media_url, media_type, created_at, delivered, read, pinned, edited, pending
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []state.Message
	for rows.Next() {
		var m state.Message
		var mediaURL, mediaType string
		if err := rows.Scan(&m.ChatID, &m.ID, &m.ClientID, &m.SenderID, &m.SenderName, &m.Content,
			&mediaURL, &mediaType, &m.CreatedAt, &m.Delivered, &m.Read, &m.Pinned, &m.Edited, &m.Pending); err != nil {
			return nil, err
		}
		if mediaURL != "" || mediaType != "" {
			m.Media = &wire.Media{URL: mediaURL, MimeType: mediaType}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
