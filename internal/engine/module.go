package engine

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chirpsocial/chirp/internal/ack"
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/cache"
	"github.com/chirpsocial/chirp/internal/config"
	"github.com/chirpsocial/chirp/internal/conn"
	"github.com/chirpsocial/chirp/internal/logging"
	"github.com/chirpsocial/chirp/internal/rest"
	"github.com/chirpsocial/chirp/internal/router"
	"github.com/chirpsocial/chirp/internal/state"
	"github.com/chirpsocial/chirp/internal/status"
)

// Params holds the resolved session identity passed to the fx module.
type Params struct {
	UserID     string
	Token      string
	ConfigPath string
}

// Module returns the fx module for the sync engine, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideTokens,
			provideCache,
			provideStore,
			provideConnManager,
			provideRouter,
			provideRESTClient,
			provideAckQueue,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

// staticTokens serves a token fixed at process start. A live app would
// plug a refreshing source here; the interfaces are the contract.
type staticTokens struct {
	token  string
	logger *zap.Logger
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", conn.ErrNoCredential
	}
	return s.token, nil
}

func (s *staticTokens) OnAuthRejected() {
	s.logger.Warn("session token rejected, sign-in required")
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, p.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideTokens(p Params, logger *zap.Logger) *staticTokens {
	return &staticTokens{token: p.Token, logger: logger}
}

func provideCache(cfg *config.Config, logger *zap.Logger) (*cache.DB, error) {
	if cfg.CachePath == "" {
		logger.Info("offline cache disabled")
		return nil, nil
	}
	db, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("cache migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("cache migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", cfg.CachePath))
	return db, nil
}

func provideStore(p Params, b *bus.Bus, db *cache.DB, logger *zap.Logger) *state.Store {
	st := state.New(p.UserID, b, logger)
	if db != nil {
		st.SetCache(db)
	}
	return st
}

func provideConnManager(cfg *config.Config, tokens *staticTokens, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *conn.Manager {
	opts := conn.Options{
		URL:                  cfg.WebsocketURL,
		HeartbeatInterval:    cfg.Reconnect.Heartbeat(),
		ReconnectBase:        cfg.Reconnect.BaseDelay(),
		ReconnectCeiling:     cfg.Reconnect.MaxDelay(),
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}
	return conn.NewManager(opts, tokens, machine, b, conn.NewDialer(), clock.New(), logger)
}

func provideRouter(mgr *conn.Manager, logger *zap.Logger) *router.Router {
	return router.New(mgr, logger)
}

func provideRESTClient(cfg *config.Config, tokens *staticTokens, logger *zap.Logger) *rest.Client {
	return rest.New(cfg.APIURL, tokens, logger)
}

func provideAckQueue(cfg *config.Config, api *rest.Client, b *bus.Bus, logger *zap.Logger) *ack.Queue {
	exec := ack.ExecutorFunc(func(ctx context.Context, op ack.Op) error {
		switch op.Kind {
		case ack.KindMarkRead:
			return api.MarkMessageRead(ctx, op.TargetID)
		case ack.KindMarkAllRead:
			return api.MarkChatRead(ctx, op.TargetID)
		case ack.KindMarkDelivered:
			return api.MarkMessageDelivered(ctx, op.TargetID)
		case ack.KindNotificationRead:
			return api.MarkNotificationRead(ctx, op.TargetID)
		case ack.KindNotificationsSeen:
			return api.MarkNotificationsSeen(ctx)
		}
		return nil
	})
	return ack.New(exec, clock.New(), b, logger, ack.Options{
		MaxAttempts: cfg.Ack.MaxAttempts,
		BackoffBase: cfg.Ack.BackoffBase(),
	})
}

func provideEngine(p Params, mgr *conn.Manager, rt *router.Router, st *state.Store, q *ack.Queue, api *rest.Client, db *cache.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	var snapshots SnapshotLoader
	if db != nil {
		snapshots = db
	}
	return New(p.UserID, mgr, rt, st, q, api, snapshots, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, e *Engine, db *cache.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return e.Start(context.Background())
		},
		OnStop: func(_ context.Context) error {
			e.Stop()
			if db != nil {
				if err := db.Close(); err != nil {
					logger.Warn("error closing cache", zap.Error(err))
				}
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
