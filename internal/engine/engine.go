// Package engine composes the sync pipeline: connection manager, frame
// router, entity store, acknowledgement queue and REST client. It owns the
// session lifecycle and exposes the operations the UI layer calls.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chirpsocial/chirp/internal/ack"
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/conn"
	"github.com/chirpsocial/chirp/internal/rest"
	"github.com/chirpsocial/chirp/internal/router"
	"github.com/chirpsocial/chirp/internal/state"
	"github.com/chirpsocial/chirp/internal/wire"
)

// SnapshotLoader hydrates the store from the offline cache at startup.
// Satisfied by *cache.DB; nil disables hydration.
type SnapshotLoader interface {
	LoadSnapshot() (state.HydrateEvent, error)
}

const fetchTimeout = 15 * time.Second

// Engine drives one signed-in session.
type Engine struct {
	selfID    string
	conn      *conn.Manager
	router    *router.Router
	store     *state.Store
	acks      *ack.Queue
	api       *rest.Client
	snapshots SnapshotLoader
	bus       *bus.Bus
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(selfID string, mgr *conn.Manager, rt *router.Router, st *state.Store, q *ack.Queue, api *rest.Client, snapshots SnapshotLoader, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		selfID:    selfID,
		conn:      mgr,
		router:    rt,
		store:     st,
		acks:      q,
		api:       api,
		snapshots: snapshots,
		bus:       b,
		logger:    logger,
	}

	mgr.OnFrame(rt.HandleRaw)
	mgr.OnConnected(e.onConnected)
	st.SetAckSink(q)
	q.OnDelivered = func(ack.Op) { go e.refreshCounts() }
	q.OnResyncNeeded = func(op ack.Op) { go e.resync(string(op.Kind)) }
	return e
}

// Start hydrates from cache, arms the pipeline and opens the connection.
// A connection failure is not fatal: the manager keeps retrying and the UI
// renders the cached state meanwhile.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if e.snapshots != nil {
		snap, err := e.snapshots.LoadSnapshot()
		if err != nil {
			e.logger.Warn("cache hydration failed, starting empty", zap.Error(err))
		} else {
			e.store.Apply(snap)
			e.logger.Info("hydrated from cache",
				zap.Int("chats", len(snap.Chats)),
				zap.Int("notifications", len(snap.Notifications)))
		}
	}

	e.store.Start(e.ctx)
	e.acks.Start(e.ctx)

	// Every inbound frame flows through the store's reducers; the router
	// guarantees each frame reaches at most one of these.
	for _, ch := range []router.Channel{
		router.ChannelChatMessages,
		router.ChannelChatTyping,
		router.ChannelChatReadStatus,
		router.ChannelChatRoster,
		router.ChannelNotifications,
		router.ChannelNotificationCounts,
	} {
		e.router.Subscribe(e.ctx, ch, e.applyFrame)
	}

	if err := e.conn.Connect(e.ctx); err != nil {
		e.logger.Warn("initial connect failed", zap.Error(err))
	}
	return nil
}

// Stop tears the session down without clearing pending work; receipts
// queued before shutdown are simply lost, the next resync converges them.
func (e *Engine) Stop() {
	e.conn.Disconnect("shutdown")
	e.acks.Stop()
	e.store.Stop()
	if e.cancel != nil {
		e.cancel()
	}
}

// Logout ends the session deliberately: pending receipts are discarded,
// subscriptions dropped, the socket closed.
func (e *Engine) Logout() {
	e.acks.ClearPending()
	e.router.UnsubscribeAll()
	e.conn.Disconnect("logout")
	e.logger.Info("logged out")
}

// RetryConnection restarts the reconnect cycle after the manager gave up.
func (e *Engine) RetryConnection(ctx context.Context) error {
	return e.conn.RetryConnection(ctx)
}

// Store exposes the read-side views.
func (e *Engine) Store() *state.Store { return e.store }

// SendMessage performs an optimistic send: the message appears in the open
// chat immediately and is reconciled with the authoritative echo. It
// returns the correlation id.
func (e *Engine) SendMessage(chatID, content string) string {
	clientID := uuid.NewString()
	e.store.OptimisticSend(clientID, chatID, content, time.Now().UnixMilli())

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
		defer cancel()
		m, err := e.api.SendMessage(ctx, clientID, chatID, content)
		if err != nil {
			e.logger.Warn("send failed", zap.String("chat_id", chatID), zap.Error(err))
			e.store.Dispatch(state.SendFailedEvent{ClientID: clientID, ChatID: chatID, Reason: err.Error()})
			return
		}
		e.store.Dispatch(state.SendConfirmedEvent{ClientID: clientID, Message: m})
	}()
	return clientID
}

// OpenChat makes chatID the active chat: unread resets, the room's scoped
// events start flowing, and a whole-chat read receipt is queued.
func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	e.store.OpenChat(chatID)
	return e.router.JoinChat(ctx, chatID)
}

// CloseChat leaves the active chat.
func (e *Engine) CloseChat(ctx context.Context) error {
	chatID := e.store.OpenChatID()
	e.store.CloseChat()
	if chatID == "" {
		return nil
	}
	return e.router.LeaveChat(ctx, chatID)
}

// SetTyping emits a typing indicator for the active chat. Indicator expiry
// is server-driven; the client only reports edges.
func (e *Engine) SetTyping(ctx context.Context, chatID string, on bool) error {
	return e.router.SendTyping(ctx, chatID, on)
}

// MarkNotificationRead applies the read lifecycle locally and queues the
// receipt.
func (e *Engine) MarkNotificationRead(id string) {
	e.store.Apply(state.NotificationReadEvent{ID: id})
	e.acks.NotificationRead(id)
}

// MarkNotificationsSeen marks every notification seen and queues the
// receipt.
func (e *Engine) MarkNotificationsSeen() {
	e.store.Apply(state.NotificationsAllSeenEvent{})
	e.acks.NotificationsSeen()
}

// Toggle flips a like, follow or bookmark optimistically and settles it
// against the server in the background. On failure the captured snapshot
// is restored and a toggle-failed event surfaces on the bus.
func (e *Engine) Toggle(kind state.ToggleKind, targetID string) {
	txn := e.store.BeginToggle(kind, targetID)
	next := e.store.Toggle(kind, targetID)

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
		defer cancel()
		confirmed, err := e.api.SetToggle(ctx, kind, targetID, next.Active)
		if err != nil {
			e.logger.Warn("toggle failed",
				zap.String("kind", string(kind)),
				zap.String("target", targetID),
				zap.Error(err))
			txn.Revert(err.Error())
			return
		}
		txn.Confirm(confirmed.Active, confirmed.Count)
	}()
}

func (e *Engine) applyFrame(frame wire.Frame) {
	e.store.Apply(state.FrameEvent{Frame: frame})
}

// onConnected runs after every successful connect. The server keeps no
// subscription state across reconnects, so everything is re-established,
// then authoritative counters are refreshed to absorb whatever happened
// while the link was down.
func (e *Engine) onConnected() {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()
	e.router.ResubscribeAll(ctx)
	go e.refreshCounts()
}

func (e *Engine) refreshCounts() {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()
	counts, err := e.api.FetchCounts(ctx)
	if err != nil {
		e.logger.Warn("counts refresh failed", zap.Error(err))
		return
	}
	e.store.Dispatch(state.CountsEvent{Counts: counts})
}

// resync replaces the authoritative dataset wholesale. It is the
// convergence fallback when an acknowledgement could not be delivered:
// instead of guessing which receipt was lost, fetch everything.
func (e *Engine) resync(reason string) {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()

	chats, err := e.api.FetchChats(ctx)
	if err != nil {
		e.logger.Error("resync: chat fetch failed", zap.String("trigger", reason), zap.Error(err))
		return
	}
	notifications, err := e.api.FetchNotifications(ctx)
	if err != nil {
		e.logger.Error("resync: notification fetch failed", zap.String("trigger", reason), zap.Error(err))
		return
	}
	counts, err := e.api.FetchCounts(ctx)
	if err != nil {
		e.logger.Error("resync: counts fetch failed", zap.String("trigger", reason), zap.Error(err))
		return
	}

	e.store.Dispatch(state.ResyncEvent{
		Chats:         chats,
		Notifications: notifications,
		Counts:        counts,
	})
	e.logger.Info("resync applied",
		zap.String("trigger", reason),
		zap.Int("chats", len(chats)),
		zap.Int("notifications", len(notifications)))
}
