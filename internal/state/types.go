package state

import "github.com/chirpsocial/chirp/internal/wire"

// Message is a message as held by the store. Pending marks an optimistic
// local write that has not yet been matched with its authoritative echo.
type Message struct {
	ID         string // server id; provisional client id while Pending
	ClientID   string // correlation id generated at send time
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	Media      *wire.Media
	CreatedAt  int64
	Delivered  bool
	Read       bool
	Pinned     bool
	Edited     bool
	Pending    bool
}

// Chat is a chat as held by the store. Exactly one Chat exists per id.
type Chat struct {
	ID            string
	Name          string
	AvatarURL     string
	IsGroup       bool
	LastMessageAt int64
	LastPreview   string
	Unread        int
}

// Notification mirrors wire.Notification with independent read and seen
// lifecycles.
type Notification struct {
	ID        string
	Type      string
	Read      bool
	Seen      bool
	ActorID   string
	ActorName string
	ActionURL string
	CreatedAt int64
}

// Counts carries server-authoritative counters used to reconcile the
// store's local arithmetic after acks and resyncs.
type Counts struct {
	UnreadNotifications int
	UnseenNotifications int
	ChatUnread          map[string]int
}

// ToggleKind identifies an optimistic boolean toggle family.
type ToggleKind string

const (
	ToggleLike     ToggleKind = "like"
	ToggleFollow   ToggleKind = "follow"
	ToggleBookmark ToggleKind = "bookmark"
)

// ToggleState is the boolean plus counter pair a toggle operates on.
type ToggleState struct {
	Active bool
	Count  int
}

type toggleKey struct {
	Kind   ToggleKind
	Target string
}

// CacheWriter is the optional write-through persistence sink. Writes are
// best-effort: a cache failure is logged, never propagated to a reducer.
type CacheWriter interface {
	PutChat(c Chat) error
	DeleteChat(id string) error
	PutMessage(m Message) error
	DeleteMessage(chatID, id string) error
	PutNotification(n Notification) error
}

// AckSink receives the acknowledgement operations reducers trigger, e.g.
// auto mark-as-read on messages arriving in the open chat. Implemented by
// the sync/retry queue via the engine.
type AckSink interface {
	MarkRead(targetID string)
	MarkAllRead(chatID string)
	MarkDelivered(messageID string)
}
