package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/status"
	"github.com/chirpsocial/chirp/internal/wire"
	"go.uber.org/zap"
)

// TokenSource is the credential collaborator. The manager never refreshes
// tokens itself; it asks for a valid one before each connection attempt and
// reports rejections back.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	OnAuthRejected()
}

var (
	// ErrNoCredential means the token source could not supply a credential.
	ErrNoCredential = errors.New("no valid credential")
	// ErrNotConnected means a send was attempted without an active socket.
	ErrNotConnected = errors.New("not connected")
)

// Options configures the connection manager.
type Options struct {
	URL                  string
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	ReconnectCeiling     time.Duration
	MaxReconnectAttempts int
}

func (o *Options) defaults() {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.ReconnectBase == 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectCeiling == 0 {
		o.ReconnectCeiling = 30 * time.Second
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
}

// Manager owns the persistent pub/sub connection: activation, heartbeats,
// auth-header injection, and the reconnect backoff state machine. It is the
// exclusive writer of the connection state.
type Manager struct {
	opts    Options
	tokens  TokenSource
	machine *status.Machine
	dialer  Dialer
	clock   clock.Clock
	bus     *bus.Bus
	logger  *zap.Logger

	onConnected func()
	onFrame     func(data []byte)

	mu              sync.Mutex
	sock            Socket
	cancelConn      context.CancelFunc
	shouldReconnect bool
	attempts        int
	policy          *backoff.ExponentialBackOff
	reconnectTimer  *clock.Timer
}

// NewManager creates a connection manager. The dialer and clock are
// injectable; passing nil selects the production WebSocket dialer and the
// real clock.
func NewManager(opts Options, tokens TokenSource, machine *status.Machine, b *bus.Bus, dialer Dialer, clk clock.Clock, logger *zap.Logger) *Manager {
	opts.defaults()
	if dialer == nil {
		dialer = NewDialer()
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.ReconnectBase
	policy.MaxInterval = opts.ReconnectCeiling
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	return &Manager{
		opts:    opts,
		tokens:  tokens,
		machine: machine,
		dialer:  dialer,
		clock:   clk,
		bus:     b,
		logger:  logger,
		policy:  policy,
	}
}

// OnConnected registers the hook invoked after every successful (re)connect.
// The router uses it to re-establish channel subscriptions; the server keeps
// nothing across reconnects.
func (m *Manager) OnConnected(fn func()) {
	m.onConnected = fn
}

// OnFrame registers the sink for inbound raw frames.
func (m *Manager) OnFrame(fn func(data []byte)) {
	m.onFrame = fn
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Connect establishes the connection. Idempotent: a no-op while already
// connected or connecting. A missing credential counts as a transient
// failure and is retried on the backoff schedule.
func (m *Manager) Connect(ctx context.Context) error {
	st := m.machine.Current()
	if st == status.Connected || st == status.Connecting {
		return nil
	}
	m.mu.Lock()
	m.shouldReconnect = true
	m.mu.Unlock()
	return m.dial(ctx)
}

// RetryConnection resets the attempt counter and connects again. This is
// the only way out of FAILED short of a full Disconnect.
func (m *Manager) RetryConnection(ctx context.Context) error {
	m.mu.Lock()
	m.attempts = 0
	m.policy.Reset()
	m.shouldReconnect = true
	m.mu.Unlock()
	return m.dial(ctx)
}

// Disconnect tears down the socket, cancels any pending reconnect timer,
// and prevents in-flight callbacks from resurrecting the connection.
func (m *Manager) Disconnect(reason string) {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cancelConn != nil {
		m.cancelConn()
		m.cancelConn = nil
	}
	sock := m.sock
	m.sock = nil
	m.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	_ = m.machine.Transition(status.Disconnected)
	m.logger.Info("disconnected", zap.String("reason", reason))
}

// Send writes an outbound frame on the active socket.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	return sock.Write(ctx, data)
}

func (m *Manager) dial(ctx context.Context) error {
	_ = m.machine.Transition(status.Connecting)

	token, err := m.tokens.Token(ctx)
	if err != nil {
		// A token fetch can fail transiently; leaving the manager parked
		// with no pending timer would strand it, so it retries on the
		// same backoff schedule as a failed dial.
		m.logger.Warn("credential unavailable", zap.Error(err))
		m.scheduleReconnect()
		return fmt.Errorf("%w: %v", ErrNoCredential, err)
	}

	m.logger.Info("connecting", zap.String("url", m.opts.URL))

	sock, err := m.dialer.Dial(ctx, m.opts.URL, token)
	if err != nil {
		if IsAuthError(err) {
			m.failAuth(err)
			return err
		}
		m.logger.Warn("connect failed", zap.Error(err))
		m.scheduleReconnect()
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sock = sock
	m.cancelConn = cancel
	m.attempts = 0
	m.policy.Reset()
	m.mu.Unlock()

	_ = m.machine.Transition(status.Connected)
	m.logger.Info("connected")

	go m.readLoop(connCtx, sock)
	go m.heartbeatLoop(connCtx)

	if m.onConnected != nil {
		m.onConnected()
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context, sock Socket) {
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleReadFailure(err)
			return
		}
		if m.onFrame != nil {
			m.onFrame(data)
		}
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := m.clock.Ticker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Send(ctx, wire.Ping()); err != nil {
				m.logger.Debug("heartbeat send failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) handleReadFailure(err error) {
	m.mu.Lock()
	if m.cancelConn != nil {
		m.cancelConn()
		m.cancelConn = nil
	}
	if m.sock != nil {
		_ = m.sock.Close()
		m.sock = nil
	}
	resume := m.shouldReconnect
	m.mu.Unlock()

	if IsAuthError(err) {
		m.failAuth(err)
		return
	}
	if !resume {
		_ = m.machine.Transition(status.Disconnected)
		return
	}
	m.logger.Warn("connection lost", zap.Error(err))
	m.scheduleReconnect()
}

// failAuth handles the non-retryable failure class: stop the backoff
// schedule immediately and hand the problem to the credential collaborator.
func (m *Manager) failAuth(err error) {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()

	_ = m.machine.Transition(status.Failed)
	m.logger.Error("authorization rejected, reconnect disabled", zap.Error(err))
	if m.bus != nil {
		m.bus.Emit(bus.KindAuthRejected, err.Error())
	}
	m.tokens.OnAuthRejected()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if !m.shouldReconnect {
		m.mu.Unlock()
		return
	}
	m.attempts++
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.mu.Unlock()
		_ = m.machine.Transition(status.Failed)
		m.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", m.opts.MaxReconnectAttempts))
		return
	}
	delay := m.policy.NextBackOff()
	attempt := m.attempts
	_ = m.machine.Transition(status.Reconnecting)
	m.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		resume := m.shouldReconnect
		m.reconnectTimer = nil
		m.mu.Unlock()
		if !resume {
			return
		}
		if err := m.dial(context.Background()); err != nil {
			m.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
	})
	m.mu.Unlock()
}
