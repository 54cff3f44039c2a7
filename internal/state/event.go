package state

import "github.com/chirpsocial/chirp/internal/wire"

// Event is the closed set of store transitions. Every mutation of the
// store is one of the concrete types below, applied by the single-writer
// loop; there are no other mutation paths.
type Event interface {
	isEvent()
}

// FrameEvent wraps an authoritative inbound frame.
type FrameEvent struct {
	Frame wire.Frame
}

// OptimisticSendEvent records a locally sent message before any server
// confirmation.
type OptimisticSendEvent struct {
	Message Message
}

// SendConfirmedEvent carries the authoritative echo of an optimistic send.
type SendConfirmedEvent struct {
	ClientID string
	Message  wire.Message
}

// SendFailedEvent marks an optimistic send as failed.
type SendFailedEvent struct {
	ClientID string
	ChatID   string
	Reason   string
}

// ChatOpenedEvent resets the chat's unread counter and makes it the
// active chat for unread bookkeeping.
type ChatOpenedEvent struct {
	ChatID string
}

// ChatClosedEvent clears the active chat.
type ChatClosedEvent struct{}

// NotificationReadEvent applies the read lifecycle locally (optimistic or
// ack-confirmed; the operation is idempotent either way).
type NotificationReadEvent struct {
	ID string
}

// NotificationSeenEvent applies the seen lifecycle locally.
type NotificationSeenEvent struct {
	ID string
}

// NotificationsAllSeenEvent marks every notification seen.
type NotificationsAllSeenEvent struct{}

// CountsEvent overwrites local counters with server-authoritative values.
type CountsEvent struct {
	Counts Counts
}

// ResyncEvent replaces authoritative lists wholesale after the retry queue
// gives up on an operation. Pending optimistic messages survive.
type ResyncEvent struct {
	Chats         []wire.Chat
	Notifications []wire.Notification
	Counts        Counts
}

// HydrateEvent seeds the store from the offline cache at startup. It
// performs no unread bookkeeping and is not written back to the cache.
type HydrateEvent struct {
	Chats         []Chat
	Messages      map[string][]Message
	Notifications []Notification
}

// toggleAppliedEvent, toggleConfirmedEvent and toggleRevertedEvent are
// produced exclusively by ToggleTxn.
type toggleAppliedEvent struct {
	Key  toggleKey
	Next ToggleState
}

type toggleConfirmedEvent struct {
	Key    toggleKey
	Server ToggleState
}

type toggleRevertedEvent struct {
	Key      toggleKey
	Snapshot ToggleState
	Reason   string
}

func (FrameEvent) isEvent()                {}
func (OptimisticSendEvent) isEvent()       {}
func (SendConfirmedEvent) isEvent()        {}
func (SendFailedEvent) isEvent()           {}
func (ChatOpenedEvent) isEvent()           {}
func (ChatClosedEvent) isEvent()           {}
func (NotificationReadEvent) isEvent()     {}
func (NotificationSeenEvent) isEvent()     {}
func (NotificationsAllSeenEvent) isEvent() {}
func (CountsEvent) isEvent()               {}
func (ResyncEvent) isEvent()               {}
func (HydrateEvent) isEvent()              {}
func (toggleAppliedEvent) isEvent()        {}
func (toggleConfirmedEvent) isEvent()      {}
func (toggleRevertedEvent) isEvent()       {}
