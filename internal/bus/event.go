package bus

import "time"

// Event kinds published by the sync engine. Subscribers filter by
// namespace prefix, e.g. "chat." receives every chat-related kind.
const (
	KindStatusChanged = "conn.status_changed"
	KindAuthRejected  = "conn.auth_rejected"

	KindChatUpserted    = "chat.upserted"
	KindChatRemoved     = "chat.removed"
	KindChatOpened      = "chat.opened"
	KindMessageUpserted = "chat.message_upserted"
	KindMessageRemoved  = "chat.message_removed"
	KindUnreadChanged   = "chat.unread_changed"
	KindTypingChanged   = "chat.typing_changed"
	KindPresenceChanged = "chat.presence_changed"

	KindNotificationUpserted = "notification.upserted"
	KindNotificationCounts   = "notification.counts_changed"

	KindToggleFailed    = "toggle.failed"
	KindAckDelivered    = "sync.ack_delivered"
	KindResyncScheduled = "sync.resync_scheduled"
	KindResyncApplied   = "sync.resync_applied"
)

// Event represents a state change emitted to the UI layer.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
