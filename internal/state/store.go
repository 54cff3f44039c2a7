package state

import (
	"context"
	"sort"
	"sync"

	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/wire"
	"go.uber.org/zap"
)

// Store is the single owner of chat, message, notification, typing and
// unread state. All writes are serialized: reducers run either inline under
// the store lock (frame handlers, which the connection's read loop already
// serializes) or through the Dispatch channel consumed by Run (async ack
// and REST completion callbacks). No other component mutates this state.
//
// Canonical message order is ascending CreatedAt within a chat; chat lists
// are most-recently-active first.
type Store struct {
	selfID string
	bus    *bus.Bus
	logger *zap.Logger
	cache  CacheWriter
	acks   AckSink

	mu            sync.RWMutex
	chats         map[string]*Chat
	messages      map[string][]Message
	msgChat       map[string]string // message id -> chat id, the dedup index
	typing        map[string]map[string]struct{}
	presence      map[string]wire.PresenceUpdate
	notifications map[string]*Notification
	notifOrder    []string // newest first
	toggles       map[toggleKey]ToggleState
	openChatID    string
	notifUnread   int
	notifUnseen   int

	events chan Event
	cancel context.CancelFunc
}

// New creates an empty store for the given local user id.
func New(selfID string, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		selfID:        selfID,
		bus:           b,
		logger:        logger,
		chats:         make(map[string]*Chat),
		messages:      make(map[string][]Message),
		msgChat:       make(map[string]string),
		typing:        make(map[string]map[string]struct{}),
		presence:      make(map[string]wire.PresenceUpdate),
		notifications: make(map[string]*Notification),
		toggles:       make(map[toggleKey]ToggleState),
		events:        make(chan Event, 256),
	}
}

// SetCache installs the write-through persistence sink.
func (s *Store) SetCache(c CacheWriter) { s.cache = c }

// SetAckSink installs the sink for reducer-triggered acknowledgements.
func (s *Store) SetAckSink(a AckSink) { s.acks = a }

// Start runs the event loop consuming dispatched events.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		for {
			select {
			case evt := <-s.events:
				s.Apply(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event loop.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Dispatch queues an event for the store loop. Used by completion callbacks
// that run on other goroutines; frame handlers may call Apply directly.
func (s *Store) Dispatch(evt Event) {
	s.events <- evt
}

// Apply runs one reducer. Reducers are total: they never fail and never
// partially apply; malformed input was already rejected at the wire
// boundary.
func (s *Store) Apply(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := evt.(type) {
	case FrameEvent:
		s.applyFrame(e.Frame)
	case OptimisticSendEvent:
		s.applyOptimisticSend(e.Message)
	case SendConfirmedEvent:
		m := e.Message
		if m.ClientID == "" {
			m.ClientID = e.ClientID
		}
		s.reconcileMessage(m, false)
	case SendFailedEvent:
		s.applySendFailed(e)
	case ChatOpenedEvent:
		s.applyChatOpened(e.ChatID)
	case ChatClosedEvent:
		s.openChatID = ""
	case NotificationReadEvent:
		s.applyNotificationRead(e.ID)
	case NotificationSeenEvent:
		s.applyNotificationSeen(e.ID)
	case NotificationsAllSeenEvent:
		s.applyNotificationsAllSeen()
	case CountsEvent:
		s.applyCounts(e.Counts)
	case ResyncEvent:
		s.applyResync(e)
	case HydrateEvent:
		s.applyHydrate(e)
	case toggleAppliedEvent:
		s.toggles[e.Key] = e.Next
	case toggleConfirmedEvent:
		s.toggles[e.Key] = e.Server
	case toggleRevertedEvent:
		s.toggles[e.Key] = e.Snapshot
		s.emit(bus.KindToggleFailed, ToggleFailure{
			Kind:   e.Key.Kind,
			Target: e.Key.Target,
			Reason: e.Reason,
		})
	}
}

func (s *Store) applyFrame(frame wire.Frame) {
	switch f := frame.(type) {
	case wire.NewMessageFrame:
		s.reconcileMessage(f.Message, true)
	case wire.MessageUpdatedFrame:
		s.applyMessageUpdated(f.Message)
	case wire.MessageDeletedFrame:
		s.applyMessageDeleted(f.ChatID, f.MessageID)
	case wire.TypingFrame:
		s.applyTyping(f.Update)
	case wire.NewChatFrame:
		s.applyChatUpserted(f.Chat)
	case wire.ChatUpdatedFrame:
		s.applyChatUpserted(f.Chat)
	case wire.ChatDeletedFrame:
		s.applyChatDeleted(f.ChatID)
	case wire.ParticipantLeftFrame:
		s.applyParticipantLeft(f.ChatID, f.UserID)
	case wire.ReadStatusFrame:
		s.applyReadStatus(f.Update)
	case wire.ChatReadFrame:
		s.applyChatRead(f.Update)
	case wire.UserStatusFrame:
		s.applyPresence(f.Update)
	case wire.NotificationFrame:
		s.applyNotification(f.Notification)
	case wire.CountsFrame:
		s.applyCounts(Counts{
			UnreadNotifications: f.Update.UnreadNotifications,
			UnseenNotifications: f.Update.UnseenNotifications,
			ChatUnread:          f.Update.ChatUnread,
		})
	}
}

// emit publishes under the store lock; the bus never blocks.
func (s *Store) emit(kind string, payload any) {
	if s.bus != nil {
		s.bus.Emit(kind, payload)
	}
}

// ToggleFailure is the bus payload for a reverted toggle, the one failure
// class besides auth that is user-visible.
type ToggleFailure struct {
	Kind   ToggleKind
	Target string
	Reason string
}

// OptimisticSend synthesizes the local copy of an outbound message and
// applies it. The provisional id is derived from the correlation id; the
// authoritative echo supersedes it in place.
func (s *Store) OptimisticSend(clientID, chatID, content string, at int64) Message {
	m := Message{
		ID:        "local-" + clientID,
		ClientID:  clientID,
		ChatID:    chatID,
		SenderID:  s.selfID,
		Content:   content,
		CreatedAt: at,
		Pending:   true,
	}
	s.Apply(OptimisticSendEvent{Message: m})
	return m
}

// OpenChat makes chatID the active chat, resets its unread counter and
// triggers a MARK_ALL_READ acknowledgement.
func (s *Store) OpenChat(chatID string) {
	s.Apply(ChatOpenedEvent{ChatID: chatID})
}

// CloseChat clears the active chat.
func (s *Store) CloseChat() {
	s.Apply(ChatClosedEvent{})
}

// Views. All return copies; callers never see internal slices.

// ChatList returns chats ordered most-recently-active first.
func (s *Store) ChatList() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Chat returns one chat by id.
func (s *Store) Chat(id string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// Messages returns a chat's messages in ascending CreatedAt order.
func (s *Store) Messages(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// TypingUsers returns who is typing in a chat. The local user is always
// excluded from the result.
func (s *Store) TypingUsers(chatID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.typing[chatID]
	out := make([]string, 0, len(set))
	for id := range set {
		if id != s.selfID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Notifications returns notifications newest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, 0, len(s.notifOrder))
	for _, id := range s.notifOrder {
		if n, ok := s.notifications[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// NotificationCounts returns the unread and unseen counters.
func (s *Store) NotificationCounts() (unread, unseen int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifUnread, s.notifUnseen
}

// UnreadTotal returns the sum of all chat unread counters.
func (s *Store) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.chats {
		total += c.Unread
	}
	return total
}

// Presence returns the last known presence for a user.
func (s *Store) Presence(userID string) (wire.PresenceUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userID]
	return p, ok
}

// Toggle returns the current state of an optimistic toggle.
func (s *Store) Toggle(kind ToggleKind, target string) ToggleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toggles[toggleKey{Kind: kind, Target: target}]
}

// OpenChatID returns the currently open chat, if any.
func (s *Store) OpenChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openChatID
}
