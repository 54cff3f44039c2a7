// Package ack is the outbound acknowledgement queue. Read and seen
// receipts must eventually reach the server even over a flaky link, so
// every operation retries with exponential backoff; an operation that
// exhausts its attempts is dropped and a full resync is requested instead,
// which converges the client regardless of which ack was lost.
package ack

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/rest"
)

// Kind identifies an acknowledgement operation.
type Kind string

const (
	KindMarkRead          Kind = "mark_read"
	KindMarkAllRead       Kind = "mark_all_read"
	KindMarkDelivered     Kind = "mark_delivered"
	KindNotificationRead  Kind = "notification_read"
	KindNotificationsSeen Kind = "notifications_seen"
)

// Op is one queued acknowledgement.
type Op struct {
	ID       string
	Kind     Kind
	TargetID string
	Attempts int
	Created  time.Time
}

// Executor performs the network side of an operation.
type Executor interface {
	Execute(ctx context.Context, op Op) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, op Op) error

func (f ExecutorFunc) Execute(ctx context.Context, op Op) error { return f(ctx, op) }

// Options tunes the retry behaviour.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
}

type pendingOp struct {
	op     Op
	policy *backoff.ExponentialBackOff
	timer  *clock.Timer
}

// Queue retries acknowledgement operations until they land or give up.
type Queue struct {
	opts   Options
	exec   Executor
	clock  clock.Clock
	bus    *bus.Bus
	logger *zap.Logger

	// OnDelivered fires after an op reaches the server; the engine uses it
	// to refresh authoritative counts. OnResyncNeeded fires when an op is
	// abandoned. Set both before Start.
	OnDelivered    func(op Op)
	OnResyncNeeded func(op Op)

	mu      sync.Mutex
	pending map[string]*pendingOp
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(exec Executor, clk clock.Clock, b *bus.Bus, logger *zap.Logger, opts Options) *Queue {
	opts.defaults()
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		opts:    opts,
		exec:    exec,
		clock:   clk,
		bus:     b,
		logger:  logger,
		pending: make(map[string]*pendingOp),
	}
}

// Start arms the queue. Operations enqueued before Start are rejected.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight work and pending retries.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	for _, p := range q.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	q.mu.Unlock()
}

// MarkRead queues a single-message read receipt.
func (q *Queue) MarkRead(messageID string) {
	q.enqueue(Op{Kind: KindMarkRead, TargetID: messageID})
}

// MarkAllRead queues a whole-chat read receipt.
func (q *Queue) MarkAllRead(chatID string) {
	q.enqueue(Op{Kind: KindMarkAllRead, TargetID: chatID})
}

// MarkDelivered queues a delivery receipt for a message that arrived while
// its chat was not on screen.
func (q *Queue) MarkDelivered(messageID string) {
	q.enqueue(Op{Kind: KindMarkDelivered, TargetID: messageID})
}

// NotificationRead queues a notification read receipt.
func (q *Queue) NotificationRead(notificationID string) {
	q.enqueue(Op{Kind: KindNotificationRead, TargetID: notificationID})
}

// NotificationsSeen queues the all-notifications-seen receipt.
func (q *Queue) NotificationsSeen() {
	q.enqueue(Op{Kind: KindNotificationsSeen})
}

// HasPending reports whether any operation is still in flight or awaiting
// retry. The store consults this during resync to protect unconfirmed work.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ClearPending drops every queued operation without executing it. Used at
// logout so receipts for a dead session are never replayed.
func (q *Queue) ClearPending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, p := range q.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(q.pending, id)
	}
}

func (q *Queue) enqueue(op Op) {
	op.ID = uuid.NewString()
	op.Created = q.clock.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.opts.BackoffBase
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	q.mu.Lock()
	if q.ctx == nil {
		q.mu.Unlock()
		q.logger.Warn("ack dropped, queue not started", zap.String("kind", string(op.Kind)))
		return
	}
	p := &pendingOp{op: op, policy: policy}
	q.pending[op.ID] = p
	q.mu.Unlock()

	go q.attempt(p)
}

func (q *Queue) attempt(p *pendingOp) {
	q.mu.Lock()
	if _, ok := q.pending[p.op.ID]; !ok || q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	ctx := q.ctx
	p.op.Attempts++
	op := p.op
	q.mu.Unlock()

	err := q.exec.Execute(ctx, op)
	if err == nil {
		q.mu.Lock()
		delete(q.pending, op.ID)
		q.mu.Unlock()
		q.bus.Emit(bus.KindAckDelivered, op)
		if q.OnDelivered != nil {
			q.OnDelivered(op)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	if rest.IsAuthError(err) {
		// Not a delivery problem; the session is gone. Drop without
		// resync, the connection layer owns the auth failure path.
		q.mu.Lock()
		delete(q.pending, op.ID)
		q.mu.Unlock()
		q.logger.Warn("ack rejected, session invalid",
			zap.String("kind", string(op.Kind)), zap.Error(err))
		return
	}

	if op.Attempts >= q.opts.MaxAttempts {
		q.mu.Lock()
		delete(q.pending, op.ID)
		q.mu.Unlock()
		q.logger.Warn("ack abandoned, scheduling full resync",
			zap.String("kind", string(op.Kind)),
			zap.String("target", op.TargetID),
			zap.Int("attempts", op.Attempts))
		q.bus.Emit(bus.KindResyncScheduled, op)
		if q.OnResyncNeeded != nil {
			q.OnResyncNeeded(op)
		}
		return
	}

	delay := p.policy.NextBackOff()
	q.logger.Debug("ack retry scheduled",
		zap.String("kind", string(op.Kind)),
		zap.Int("attempt", op.Attempts),
		zap.Duration("delay", delay))

	q.mu.Lock()
	if _, ok := q.pending[op.ID]; !ok {
		q.mu.Unlock()
		return
	}
	p.timer = q.clock.AfterFunc(delay, func() {
		q.attempt(p)
	})
	q.mu.Unlock()
}
