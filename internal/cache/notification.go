package cache

import "github.com/chirpsocial/chirp/internal/state"

// PutNotification inserts or updates a notification (idempotent on id).
func (db *DB) PutNotification(n state.Notification) error {
	_, err := db.Exec(`
		INSERT INTO notifications (id, type, read, seen, actor_id, actor_name, action_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			read = excluded.read,
			seen = excluded.seen,
			actor_name = excluded.actor_name,
			action_url = excluded.action_url`,
		n.ID, n.Type, n.Read, n.Seen, n.ActorID, n.ActorName, n.ActionURL, n.CreatedAt)
	return err
}

// ListNotifications returns cached notifications newest first.
func (db *DB) ListNotifications() ([]state.Notification, error) {
	rows, err := db.Query(`
		SELECT id, type, read, seen, actor_id, actor_name, action_url, created_at
		FROM notifications
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ns []state.Notification
	for rows.Next() {
		var n state.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Read, &n.Seen, &n.ActorID, &n.ActorName, &n.ActionURL, &n.CreatedAt); err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, rows.Err()
}
