package router

import (
	"context"
	"sync"

	"github.com/chirpsocial/chirp/internal/wire"
	"go.uber.org/zap"
)

// Channel identifies a logical subscription. Each channel has at most one
// handler; user-queue channels live for the whole session while chat rooms
// are joined and left explicitly.
type Channel string

const (
	ChannelChatMessages       Channel = "chat-messages"
	ChannelChatTyping         Channel = "chat-typing"
	ChannelChatReadStatus     Channel = "chat-read-status"
	ChannelChatRoster         Channel = "chat-roster"
	ChannelNotifications      Channel = "notifications"
	ChannelNotificationCounts Channel = "notification-counts"
)

// Handler consumes decoded frames for one channel.
type Handler func(frame wire.Frame)

// Sender writes outbound frames; satisfied by the connection manager.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Router multiplexes inbound frames to per-channel handlers and owns the
// subscription table. A handler failure is isolated: the connection's read
// loop outranks any single frame's processing.
type Router struct {
	sender Sender
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[Channel]Handler
	joined   map[string]struct{}
}

// New creates a router that sends control frames through the given sender.
func New(sender Sender, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		sender:   sender,
		logger:   logger,
		handlers: make(map[Channel]Handler),
		joined:   make(map[string]struct{}),
	}
}

// channelFor maps a frame kind to its owning channel.
func channelFor(kind wire.Kind) (Channel, bool) {
	switch kind {
	case wire.KindNewMessage, wire.KindMessageUpdated, wire.KindMessageDeleted:
		return ChannelChatMessages, true
	case wire.KindTypingIndicator:
		return ChannelChatTyping, true
	case wire.KindReadStatusUpdated, wire.KindChatReadUpdated:
		return ChannelChatReadStatus, true
	case wire.KindChatUpdated, wire.KindNewChat, wire.KindChatDeleted,
		wire.KindParticipantLeft, wire.KindUserStatusChanged:
		return ChannelChatRoster, true
	case wire.KindNotification:
		return ChannelNotifications, true
	case wire.KindCountsUpdated:
		return ChannelNotificationCounts, true
	}
	return "", false
}

// Subscribe registers the handler for a channel, replacing any prior one so
// a frame is never delivered twice. The server-side subscription is
// established best-effort; ResubscribeAll repeats it after each reconnect.
func (r *Router) Subscribe(ctx context.Context, ch Channel, h Handler) {
	r.mu.Lock()
	_, replaced := r.handlers[ch]
	r.handlers[ch] = h
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("handler replaced", zap.String("channel", string(ch)))
		return
	}
	if err := r.sender.Send(ctx, wire.SubscribeChannel(string(ch))); err != nil {
		r.logger.Debug("subscribe frame deferred", zap.String("channel", string(ch)), zap.Error(err))
	}
}

// Unsubscribe removes the channel's handler.
func (r *Router) Unsubscribe(ch Channel) {
	r.mu.Lock()
	delete(r.handlers, ch)
	r.mu.Unlock()
}

// UnsubscribeAll drops every handler and forgets joined rooms. Used on logout.
func (r *Router) UnsubscribeAll() {
	r.mu.Lock()
	r.handlers = make(map[Channel]Handler)
	r.joined = make(map[string]struct{})
	r.mu.Unlock()
}

// JoinChat subscribes to a chat room's scoped events.
func (r *Router) JoinChat(ctx context.Context, chatID string) error {
	r.mu.Lock()
	r.joined[chatID] = struct{}{}
	r.mu.Unlock()
	return r.sender.Send(ctx, wire.JoinChat(chatID))
}

// LeaveChat leaves a chat room.
func (r *Router) LeaveChat(ctx context.Context, chatID string) error {
	r.mu.Lock()
	delete(r.joined, chatID)
	r.mu.Unlock()
	return r.sender.Send(ctx, wire.LeaveChat(chatID))
}

// SendTyping emits a fire-and-forget typing indicator for a chat.
func (r *Router) SendTyping(ctx context.Context, chatID string, on bool) error {
	return r.sender.Send(ctx, wire.Typing(chatID, on))
}

// ResubscribeAll re-establishes every channel subscription and rejoins open
// rooms. The connection manager calls this after each successful connect;
// the server keeps no subscription state across reconnects.
func (r *Router) ResubscribeAll(ctx context.Context) {
	r.mu.Lock()
	channels := make([]Channel, 0, len(r.handlers))
	for ch := range r.handlers {
		channels = append(channels, ch)
	}
	rooms := make([]string, 0, len(r.joined))
	for id := range r.joined {
		rooms = append(rooms, id)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		if err := r.sender.Send(ctx, wire.SubscribeChannel(string(ch))); err != nil {
			r.logger.Warn("resubscribe failed", zap.String("channel", string(ch)), zap.Error(err))
		}
	}
	for _, id := range rooms {
		if err := r.sender.Send(ctx, wire.JoinChat(id)); err != nil {
			r.logger.Warn("rejoin failed", zap.String("chat_id", id), zap.Error(err))
		}
	}
}

// HandleRaw decodes one inbound frame and routes it. Malformed frames and
// unknown types are logged and dropped; they never reach a reducer and
// never crash the read loop.
func (r *Router) HandleRaw(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		r.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	ch, ok := channelFor(frame.Kind())
	if !ok {
		r.logger.Warn("dropping unroutable frame", zap.String("kind", string(frame.Kind())))
		return
	}

	r.mu.Lock()
	h := r.handlers[ch]
	r.mu.Unlock()
	if h == nil {
		r.logger.Debug("no handler for channel", zap.String("channel", string(ch)))
		return
	}
	r.invoke(ch, h, frame)
}

func (r *Router) invoke(ch Channel, h Handler, frame wire.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic",
				zap.String("channel", string(ch)),
				zap.String("kind", string(frame.Kind())),
				zap.Any("panic", rec))
		}
	}()
	h(frame)
}
