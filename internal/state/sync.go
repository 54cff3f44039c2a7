package state

import (
	"sort"

	"github.com/chirpsocial/chirp/internal/bus"
	"go.uber.org/zap"
)

// applyResync replaces authoritative lists wholesale. This is the fallback
// after the retry queue exhausts an operation: rather than trusting a
// possibly-diverged optimistic view forever, the engine re-fetched the
// lists and counts and hands them here. Pending optimistic messages are
// preserved; everything authoritative is rebuilt from the payload.
func (s *Store) applyResync(e ResyncEvent) {
	seen := make(map[string]struct{}, len(e.Chats))
	for _, wc := range e.Chats {
		seen[wc.ID] = struct{}{}
		s.applyChatUpserted(wc)
	}
	// Chats the server no longer lists are gone, unless they still hold
	// unsent optimistic messages.
	for id := range s.chats {
		if _, ok := seen[id]; ok {
			continue
		}
		if hasPending(s.messages[id]) {
			continue
		}
		s.applyChatDeleted(id)
	}

	s.notifications = make(map[string]*Notification, len(e.Notifications))
	s.notifOrder = s.notifOrder[:0]
	for _, wn := range e.Notifications {
		n := &Notification{
			ID:        wn.ID,
			Type:      wn.Type,
			Read:      wn.Read,
			Seen:      wn.Seen,
			ActorID:   wn.ActorID,
			ActorName: wn.ActorName,
			ActionURL: wn.ActionURL,
			CreatedAt: wn.CreatedAt,
		}
		s.notifications[wn.ID] = n
		s.notifOrder = append(s.notifOrder, wn.ID)
		s.writeNotification(*n)
	}
	sort.SliceStable(s.notifOrder, func(i, j int) bool {
		return s.notifications[s.notifOrder[i]].CreatedAt > s.notifications[s.notifOrder[j]].CreatedAt
	})

	s.applyCounts(e.Counts)
	s.emit(bus.KindResyncApplied, nil)
}

// applyHydrate seeds the store from the offline cache. No unread
// bookkeeping, no ack triggers, no cache write-back.
func (s *Store) applyHydrate(e HydrateEvent) {
	for _, c := range e.Chats {
		chat := c
		s.chats[c.ID] = &chat
	}
	for chatID, msgs := range e.Messages {
		copied := make([]Message, len(msgs))
		copy(copied, msgs)
		sortMessages(copied)
		s.messages[chatID] = copied
		for _, m := range copied {
			s.msgChat[m.ID] = chatID
		}
	}
	for _, n := range e.Notifications {
		stored := n
		s.notifications[n.ID] = &stored
		s.notifOrder = append(s.notifOrder, n.ID)
	}
	sort.SliceStable(s.notifOrder, func(i, j int) bool {
		return s.notifications[s.notifOrder[i]].CreatedAt > s.notifications[s.notifOrder[j]].CreatedAt
	})
	s.recountNotifications()
}

func hasPending(msgs []Message) bool {
	for _, m := range msgs {
		if m.Pending {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Cache write-through helpers. All best-effort; a cache failure never
// fails a reducer.

func (s *Store) writeChat(c Chat) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutChat(c); err != nil {
		s.logger.Warn("cache put chat failed", zap.Error(err))
	}
}

func (s *Store) writeMessage(m Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutMessage(m); err != nil {
		s.logger.Warn("cache put message failed", zap.Error(err))
	}
}

func (s *Store) deleteCachedMessage(chatID, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteMessage(chatID, id); err != nil {
		s.logger.Warn("cache delete message failed", zap.Error(err))
	}
}

func (s *Store) writeNotification(n Notification) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutNotification(n); err != nil {
		s.logger.Warn("cache put notification failed", zap.Error(err))
	}
}

