package state

import (
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/wire"
	"go.uber.org/zap"
)

func (s *Store) applyChatUpserted(c wire.Chat) {
	existing, ok := s.chats[c.ID]
	if !ok {
		existing = &Chat{ID: c.ID}
		s.chats[c.ID] = existing
	}
	if c.Name != "" {
		existing.Name = c.Name
	}
	if c.AvatarURL != "" {
		existing.AvatarURL = c.AvatarURL
	}
	existing.IsGroup = existing.IsGroup || c.IsGroup
	if c.LastMessageAt > existing.LastMessageAt {
		existing.LastMessageAt = c.LastMessageAt
	}
	if c.LastPreview != "" {
		existing.LastPreview = truncate(c.LastPreview, 100)
	}
	// Server unread is authoritative except for the open chat, which the
	// user is looking at right now.
	if c.ID == s.openChatID {
		existing.Unread = 0
	} else {
		existing.Unread = c.Unread
	}
	s.writeChat(*existing)
	s.emit(bus.KindChatUpserted, ChatPatch{ChatID: c.ID})
}

func (s *Store) applyChatDeleted(chatID string) {
	if _, ok := s.chats[chatID]; !ok {
		return
	}
	for _, m := range s.messages[chatID] {
		delete(s.msgChat, m.ID)
	}
	delete(s.messages, chatID)
	delete(s.chats, chatID)
	delete(s.typing, chatID)
	if s.openChatID == chatID {
		s.openChatID = ""
	}
	if s.cache != nil {
		if err := s.cache.DeleteChat(chatID); err != nil {
			s.logger.Warn("cache delete chat failed", zap.Error(err))
		}
	}
	s.emit(bus.KindChatRemoved, ChatPatch{ChatID: chatID})
}

func (s *Store) applyParticipantLeft(chatID, userID string) {
	if userID == s.selfID {
		// We were removed from the room; drop it entirely.
		s.applyChatDeleted(chatID)
		return
	}
	if set, ok := s.typing[chatID]; ok {
		delete(set, userID)
	}
	s.emit(bus.KindChatUpserted, ChatPatch{ChatID: chatID})
}

func (s *Store) applyChatOpened(chatID string) {
	s.openChatID = chatID
	c, ok := s.chats[chatID]
	if !ok {
		c = &Chat{ID: chatID}
		s.chats[chatID] = c
	}
	hadUnread := c.Unread != 0
	c.Unread = 0
	s.writeChat(*c)
	s.emit(bus.KindChatOpened, ChatPatch{ChatID: chatID})
	if hadUnread {
		s.emit(bus.KindUnreadChanged, UnreadPatch{ChatID: chatID, Unread: 0})
	}
	if s.acks != nil {
		s.acks.MarkAllRead(chatID)
	}
}

// applyTyping replaces the chat's typing set wholesale: the server is the
// sole source of truth for who is typing now. The local user is filtered
// at write time so it can never leak into a view.
func (s *Store) applyTyping(u wire.TypingUpdate) {
	set := make(map[string]struct{}, len(u.UserIDs))
	for _, id := range u.UserIDs {
		if id != s.selfID {
			set[id] = struct{}{}
		}
	}
	s.typing[u.ChatID] = set
	s.emit(bus.KindTypingChanged, TypingPatch{ChatID: u.ChatID, UserIDs: sortedKeys(set)})
}

func (s *Store) applyPresence(u wire.PresenceUpdate) {
	s.presence[u.UserID] = u
	s.emit(bus.KindPresenceChanged, u)
}

// TypingPatch is the bus payload for typing set changes.
type TypingPatch struct {
	ChatID  string
	UserIDs []string
}
