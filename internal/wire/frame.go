package wire

import "encoding/json"

// Kind is the inbound frame type discriminator.
type Kind string

const (
	KindNewMessage        Kind = "NEW_MESSAGE"
	KindMessageUpdated    Kind = "MESSAGE_UPDATED"
	KindMessageDeleted    Kind = "MESSAGE_DELETED"
	KindTypingIndicator   Kind = "TYPING_INDICATOR"
	KindChatUpdated       Kind = "CHAT_UPDATED"
	KindNewChat           Kind = "NEW_CHAT"
	KindChatDeleted       Kind = "CHAT_DELETED"
	KindParticipantLeft   Kind = "PARTICIPANT_LEFT"
	KindReadStatusUpdated Kind = "READ_STATUS_UPDATED"
	KindChatReadUpdated   Kind = "CHAT_READ_UPDATED"
	KindUserStatusChanged Kind = "USER_STATUS_CHANGED"
	KindNotification      Kind = "NOTIFICATION"
	KindCountsUpdated     Kind = "COUNTS_UPDATED"
)

// Envelope is the wire format for every inbound frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame is the closed set of decoded inbound frames. Every frame the
// engine processes is one of the concrete types below; the normalization
// adapter in decode.go is the only producer.
type Frame interface {
	Kind() Kind
}

// Message is the canonical message shape. All backend payload variants
// are folded into this one schema at the parsing boundary.
type Message struct {
	ID         string
	ClientID   string // client correlation id echoed back for optimistic sends
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	Media      *Media
	CreatedAt  int64 // unix milliseconds
	Delivered  bool
	Read       bool
	Pinned     bool
	Edited     bool
}

// Media describes an attachment on a message.
type Media struct {
	URL      string
	MimeType string
}

// Chat is the canonical chat shape.
type Chat struct {
	ID            string
	Name          string
	AvatarURL     string
	IsGroup       bool
	LastMessageAt int64
	LastPreview   string
	Unread        int
}

// Notification is the canonical notification shape. Read and Seen are
// independent lifecycles: read means the user acted on it, seen means it
// merely scrolled past their eyes.
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

// TypingUpdate replaces a chat's typing set wholesale.
type TypingUpdate struct {
	ChatID  string
	UserIDs []string
}

// ReadUpdate marks individual messages read by a participant.
type ReadUpdate struct {
	ChatID     string
	MessageIDs []string
	ReaderID   string
}

// ChatReadUpdate marks an entire chat read by a participant.
type ChatReadUpdate struct {
	ChatID   string
	ReaderID string
	ReadAt   int64
}

// CountsUpdate is a server-pushed refresh of the authoritative counters,
// the same shape the counts endpoint returns.
type CountsUpdate struct {
	UnreadNotifications int
	UnseenNotifications int
	ChatUnread          map[string]int
}

// PresenceUpdate carries a user online/offline change.
type PresenceUpdate struct {
	UserID     string
	Online     bool
	LastSeenAt int64
}

// Concrete frames.

type NewMessageFrame struct{ Message Message }

type MessageUpdatedFrame struct{ Message Message }

type MessageDeletedFrame struct {
	ChatID    string
	MessageID string
}

type TypingFrame struct{ Update TypingUpdate }

type ChatUpdatedFrame struct{ Chat Chat }

type NewChatFrame struct{ Chat Chat }

type ChatDeletedFrame struct{ ChatID string }

type ParticipantLeftFrame struct {
	ChatID string
	UserID string
}

type ReadStatusFrame struct{ Update ReadUpdate }

type ChatReadFrame struct{ Update ChatReadUpdate }

type UserStatusFrame struct{ Update PresenceUpdate }

type NotificationFrame struct{ Notification Notification }

type CountsFrame struct{ Update CountsUpdate }

func (NewMessageFrame) Kind() Kind      { return KindNewMessage }
func (MessageUpdatedFrame) Kind() Kind  { return KindMessageUpdated }
func (MessageDeletedFrame) Kind() Kind  { return KindMessageDeleted }
func (TypingFrame) Kind() Kind          { return KindTypingIndicator }
func (ChatUpdatedFrame) Kind() Kind     { return KindChatUpdated }
func (NewChatFrame) Kind() Kind         { return KindNewChat }
func (ChatDeletedFrame) Kind() Kind     { return KindChatDeleted }
func (ParticipantLeftFrame) Kind() Kind { return KindParticipantLeft }
func (ReadStatusFrame) Kind() Kind      { return KindReadStatusUpdated }
func (ChatReadFrame) Kind() Kind        { return KindChatReadUpdated }
func (UserStatusFrame) Kind() Kind      { return KindUserStatusChanged }
func (NotificationFrame) Kind() Kind    { return KindNotification }
func (CountsFrame) Kind() Kind          { return KindCountsUpdated }
