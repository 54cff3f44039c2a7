package state

import (
	"sort"
	"unicode/utf8"

	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/wire"
)

// correlationWindowMillis bounds the content+sender+timestamp heuristic
// used when an authoritative echo carries no client correlation id.
const correlationWindowMillis = 5000

// applyOptimisticSend prepends nothing: canonical order is chronological,
// so a fresh local send appends at the tail. Caller holds the lock.
func (s *Store) applyOptimisticSend(m Message) {
	m.Pending = true
	s.insertMessage(m)
	s.touchChat(m.ChatID, m.CreatedAt, m.Content)
	s.writeMessage(m)
	s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: m.ChatID, MessageID: m.ID, Pending: true})
}

// reconcileMessage merges one authoritative message against local state.
// countUnread is true only for NEW_MESSAGE frames; echoes of our own sends
// and edits never touch unread counters.
func (s *Store) reconcileMessage(m wire.Message, countUnread bool) {
	// Dedup by server id: if the id is already present this frame is a
	// duplicate delivery and the existing entry wins.
	if _, seen := s.msgChat[m.ID]; seen {
		return
	}

	msg := fromWireMessage(m)

	// Correlate with a pending optimistic copy: client id first, then the
	// content+sender+timestamp-window heuristic. A match supersedes in
	// place: the entry keeps its position and the server copy wins its fields.
	if idx, ok := s.findPending(m); ok {
		msgs := s.messages[m.ChatID]
		old := msgs[idx]
		delete(s.msgChat, old.ID)
		msg.ClientID = old.ClientID
		msg.Pending = false
		msgs[idx] = msg
		s.msgChat[msg.ID] = m.ChatID
		s.deleteCachedMessage(m.ChatID, old.ID)
		s.writeMessage(msg)
		s.touchChat(m.ChatID, msg.CreatedAt, msg.Content)
		s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: m.ChatID, MessageID: msg.ID, Superseded: old.ID})
		return
	}

	s.insertMessage(msg)
	s.touchChat(m.ChatID, msg.CreatedAt, msg.Content)
	s.writeMessage(msg)

	if countUnread && m.SenderID != s.selfID {
		if m.ChatID != s.openChatID {
			c := s.chats[m.ChatID]
			c.Unread++
			s.writeChat(*c)
			s.emit(bus.KindUnreadChanged, UnreadPatch{ChatID: m.ChatID, Unread: c.Unread})
			if s.acks != nil {
				s.acks.MarkDelivered(m.ID)
			}
		} else if s.acks != nil {
			// Arriving in the open chat: already on screen, ack it.
			s.acks.MarkRead(m.ID)
		}
	}
	s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: m.ChatID, MessageID: msg.ID})
}

func (s *Store) applyMessageUpdated(m wire.Message) {
	chatID, seen := s.msgChat[m.ID]
	if !seen {
		// An edit for a message we never saw: treat as authoritative
		// insert, but edits never bump unread.
		s.reconcileMessage(m, false)
		return
	}
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == m.ID {
			updated := fromWireMessage(m)
			updated.ClientID = msgs[i].ClientID
			msgs[i] = updated
			s.writeMessage(updated)
			s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: chatID, MessageID: m.ID})
			return
		}
	}
}

func (s *Store) applyMessageDeleted(chatID, messageID string) {
	msgs := s.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			s.messages[chatID] = append(msgs[:i], msgs[i+1:]...)
			delete(s.msgChat, messageID)
			s.deleteCachedMessage(chatID, messageID)
			s.refreshChatPreview(chatID)
			s.emit(bus.KindMessageRemoved, MessagePatch{ChatID: chatID, MessageID: messageID})
			return
		}
	}
}

func (s *Store) applySendFailed(e SendFailedEvent) {
	msgs := s.messages[e.ChatID]
	for i := range msgs {
		if msgs[i].ClientID == e.ClientID && msgs[i].Pending {
			removed := msgs[i]
			s.messages[e.ChatID] = append(msgs[:i], msgs[i+1:]...)
			delete(s.msgChat, removed.ID)
			s.deleteCachedMessage(e.ChatID, removed.ID)
			s.refreshChatPreview(e.ChatID)
			s.emit(bus.KindMessageRemoved, MessagePatch{ChatID: e.ChatID, MessageID: removed.ID, Reason: e.Reason})
			return
		}
	}
}

func (s *Store) applyReadStatus(u wire.ReadUpdate) {
	msgs := s.messages[u.ChatID]
	changed := false
	ids := make(map[string]struct{}, len(u.MessageIDs))
	for _, id := range u.MessageIDs {
		ids[id] = struct{}{}
	}
	for i := range msgs {
		if _, ok := ids[msgs[i].ID]; ok && !msgs[i].Read {
			msgs[i].Read = true
			msgs[i].Delivered = true
			s.writeMessage(msgs[i])
			changed = true
		}
	}
	if changed {
		s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: u.ChatID})
	}
}

func (s *Store) applyChatRead(u wire.ChatReadUpdate) {
	msgs := s.messages[u.ChatID]
	for i := range msgs {
		if u.ReadAt != 0 && msgs[i].CreatedAt > u.ReadAt {
			continue
		}
		if !msgs[i].Read {
			msgs[i].Read = true
			msgs[i].Delivered = true
			s.writeMessage(msgs[i])
		}
	}
	if u.ReaderID == s.selfID {
		// Our own read state synced from another device.
		if c, ok := s.chats[u.ChatID]; ok && c.Unread != 0 {
			c.Unread = 0
			s.writeChat(*c)
			s.emit(bus.KindUnreadChanged, UnreadPatch{ChatID: u.ChatID, Unread: 0})
		}
	}
	s.emit(bus.KindMessageUpserted, MessagePatch{ChatID: u.ChatID})
}

// insertMessage places a message at its chronological position and indexes
// its id. Most arrivals are newest, so the scan starts from the tail.
func (s *Store) insertMessage(m Message) {
	msgs := s.messages[m.ChatID]
	pos := len(msgs)
	for pos > 0 && msgs[pos-1].CreatedAt > m.CreatedAt {
		pos--
	}
	msgs = append(msgs, Message{})
	copy(msgs[pos+1:], msgs[pos:])
	msgs[pos] = m
	s.messages[m.ChatID] = msgs
	s.msgChat[m.ID] = m.ChatID
}

// findPending locates the optimistic copy of an authoritative message, if
// one exists. Client-id correlation is exact; the fallback heuristic only
// fires for our own messages within a small timestamp window.
func (s *Store) findPending(m wire.Message) (int, bool) {
	msgs := s.messages[m.ChatID]
	if m.ClientID != "" {
		for i := range msgs {
			if msgs[i].Pending && msgs[i].ClientID == m.ClientID {
				return i, true
			}
		}
	}
	if m.SenderID != s.selfID {
		return 0, false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Pending {
			continue
		}
		if msgs[i].Content != m.Content {
			continue
		}
		delta := m.CreatedAt - msgs[i].CreatedAt
		if delta < 0 {
			delta = -delta
		}
		if delta <= correlationWindowMillis {
			return i, true
		}
	}
	return 0, false
}

// touchChat updates a chat's recency metadata, creating the chat if this
// is the first we hear of it.
func (s *Store) touchChat(chatID string, at int64, preview string) {
	c, ok := s.chats[chatID]
	if !ok {
		c = &Chat{ID: chatID}
		s.chats[chatID] = c
		s.emit(bus.KindChatUpserted, ChatPatch{ChatID: chatID})
	}
	if at >= c.LastMessageAt {
		c.LastMessageAt = at
		c.LastPreview = truncate(preview, 100)
	}
	s.writeChat(*c)
}

// refreshChatPreview recomputes lastMessage metadata after a removal.
func (s *Store) refreshChatPreview(chatID string) {
	c, ok := s.chats[chatID]
	if !ok {
		return
	}
	msgs := s.messages[chatID]
	if len(msgs) == 0 {
		c.LastMessageAt = 0
		c.LastPreview = ""
	} else {
		last := msgs[len(msgs)-1]
		c.LastMessageAt = last.CreatedAt
		c.LastPreview = truncate(last.Content, 100)
	}
	s.writeChat(*c)
}

func fromWireMessage(m wire.Message) Message {
	return Message{
		ID:         m.ID,
		ClientID:   m.ClientID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Media:      m.Media,
		CreatedAt:  m.CreatedAt,
		Delivered:  m.Delivered,
		Read:       m.Read,
		Pinned:     m.Pinned,
		Edited:     m.Edited,
	}
}

// truncate shortens a preview without splitting a rune mid-sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// sortMessages restores chronological order after a bulk load.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
}

// MessagePatch is the bus payload for message changes.
type MessagePatch struct {
	ChatID     string
	MessageID  string
	Superseded string // provisional id replaced by the authoritative one
	Pending    bool
	Reason     string
}

// ChatPatch is the bus payload for chat changes.
type ChatPatch struct {
	ChatID string
}

// UnreadPatch is the bus payload for unread counter changes.
type UnreadPatch struct {
	ChatID string
	Unread int
}
