package state

import (
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/wire"
)

func (s *Store) applyNotification(n wire.Notification) {
	existing, seen := s.notifications[n.ID]
	if seen {
		// Authoritative update; the two lifecycles only move forward here,
		// a push frame never un-reads a locally read notification.
		existing.Read = existing.Read || n.Read
		existing.Seen = existing.Seen || n.Seen
		existing.ActionURL = n.ActionURL
		s.recountNotifications()
		s.writeNotification(*existing)
		s.emit(bus.KindNotificationUpserted, NotificationPatch{ID: n.ID})
		return
	}

	stored := &Notification{
		ID:        n.ID,
		Type:      n.Type,
		Read:      n.Read,
		Seen:      n.Seen,
		ActorID:   n.ActorID,
		ActorName: n.ActorName,
		ActionURL: n.ActionURL,
		CreatedAt: n.CreatedAt,
	}
	s.notifications[n.ID] = stored
	s.insertNotifOrder(n.ID, n.CreatedAt)
	s.recountNotifications()
	s.writeNotification(*stored)
	s.emit(bus.KindNotificationUpserted, NotificationPatch{ID: n.ID})
	s.emitNotifCounts()
}

func (s *Store) applyNotificationRead(id string) {
	n, ok := s.notifications[id]
	if !ok || n.Read {
		return
	}
	n.Read = true
	s.recountNotifications()
	s.writeNotification(*n)
	s.emit(bus.KindNotificationUpserted, NotificationPatch{ID: id})
	s.emitNotifCounts()
}

func (s *Store) applyNotificationSeen(id string) {
	n, ok := s.notifications[id]
	if !ok || n.Seen {
		return
	}
	n.Seen = true
	s.recountNotifications()
	s.writeNotification(*n)
	s.emit(bus.KindNotificationUpserted, NotificationPatch{ID: id})
	s.emitNotifCounts()
}

func (s *Store) applyNotificationsAllSeen() {
	changed := false
	for _, n := range s.notifications {
		if !n.Seen {
			n.Seen = true
			s.writeNotification(*n)
			changed = true
		}
	}
	if changed {
		s.recountNotifications()
		s.emitNotifCounts()
	}
}

func (s *Store) applyCounts(c Counts) {
	// A successful ack is followed by this authoritative refresh; local
	// arithmetic is never trusted indefinitely.
	s.notifUnread = c.UnreadNotifications
	s.notifUnseen = c.UnseenNotifications
	for chatID, unread := range c.ChatUnread {
		if chat, ok := s.chats[chatID]; ok {
			if chatID == s.openChatID {
				unread = 0
			}
			if chat.Unread != unread {
				chat.Unread = unread
				s.writeChat(*chat)
				s.emit(bus.KindUnreadChanged, UnreadPatch{ChatID: chatID, Unread: unread})
			}
		}
	}
	s.emitNotifCounts()
}

// recountNotifications recomputes local counters from the entities. The
// server's counts frame overwrites these whenever it arrives.
func (s *Store) recountNotifications() {
	unread, unseen := 0, 0
	for _, n := range s.notifications {
		if !n.Read {
			unread++
		}
		if !n.Seen {
			unseen++
		}
	}
	s.notifUnread = unread
	s.notifUnseen = unseen
}

func (s *Store) emitNotifCounts() {
	s.emit(bus.KindNotificationCounts, CountsPatch{
		Unread: s.notifUnread,
		Unseen: s.notifUnseen,
	})
}

// insertNotifOrder keeps notifOrder newest first.
func (s *Store) insertNotifOrder(id string, createdAt int64) {
	pos := 0
	for pos < len(s.notifOrder) {
		other := s.notifications[s.notifOrder[pos]]
		if other == nil || other.CreatedAt <= createdAt {
			break
		}
		pos++
	}
	s.notifOrder = append(s.notifOrder, "")
	copy(s.notifOrder[pos+1:], s.notifOrder[pos:])
	s.notifOrder[pos] = id
}

// NotificationPatch is the bus payload for notification changes.
type NotificationPatch struct {
	ID string
}

// CountsPatch is the bus payload for notification counter changes.
type CountsPatch struct {
	Unread int
	Unseen int
}
