package daemon

import (
	"context"
	"errors"

	"github.com/matheus3301/crmsync/internal/activity"
	"github.com/matheus3301/crmsync/internal/api"
	"github.com/matheus3301/crmsync/internal/bus"
	"github.com/matheus3301/crmsync/internal/calls"
	"github.com/matheus3301/crmsync/internal/config"
	"github.com/matheus3301/crmsync/internal/crm"
	"github.com/matheus3301/crmsync/internal/lock"
	"github.com/matheus3301/crmsync/internal/logging"
	"github.com/matheus3301/crmsync/internal/outbox"
	"github.com/matheus3301/crmsync/internal/poll"
	"github.com/matheus3301/crmsync/internal/push"
	"github.com/matheus3301/crmsync/internal/session"
	"github.com/matheus3301/crmsync/internal/state"
	"github.com/matheus3301/crmsync/internal/status"
	"github.com/matheus3301/crmsync/internal/store"
	intsync "github.com/matheus3301/crmsync/internal/sync"
	"github.com/matheus3301/crmsync/internal/voice"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load from the config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCRMClient,
			provideVoiceResolver,
			provideMonitor,
			provideStores,
			provideScheduler,
			provideReconciler,
			provideEngine,
			providePushClient,
			provideRouter,
			provideSender,
			provideCron,
			provideSessionService,
			provideChatService,
			provideCallService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(session.ConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, result, err := store.OpenCache(dbPath)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("path", dbPath), zap.Uint("version", result.Version)}
	switch {
	case result.Rebuilt:
		logger.Warn("cache was unreadable, rebuilt empty", fields...)
	case result.Changed:
		logger.Info("cache migrated", fields...)
	default:
		logger.Info("cache opened", fields...)
	}
	return db, nil
}

func provideCRMClient(cfg *config.Config, logger *zap.Logger) *crm.Client {
	return crm.NewClient(crm.Config{
		BaseURL: cfg.API.BaseURL,
		Account: cfg.API.Account,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout.Duration,
	}, logger.Named("crm"))
}

func provideVoiceResolver(client *crm.Client, cfg *config.Config, logger *zap.Logger) *voice.Resolver {
	return voice.NewResolver(client, cfg.Voice.CacheTTL.Duration, logger.Named("voice"))
}

func provideMonitor() *activity.Monitor {
	return activity.NewMonitor()
}

func provideStores(cfg *config.Config) (*state.ConversationStore, *state.MessageStore, *calls.Aggregator) {
	return state.NewConversationStore(), state.NewMessageStore(cfg.Messages.Window), calls.NewAggregator()
}

func provideScheduler(monitor *activity.Monitor, msgs *state.MessageStore, cfg *config.Config, logger *zap.Logger) *poll.Scheduler {
	return poll.NewScheduler(monitor, msgs, poll.Options{
		ActivityWindow:  cfg.Polling.ActivityWindow.Duration,
		NewChatDebounce: cfg.Polling.NewChatDebounce.Duration,
	}, logger.Named("poll"))
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger.Named("cache"))
}

type engineDeps struct {
	fx.In

	Client     *crm.Client
	Chats      *state.ConversationStore
	Messages   *state.MessageStore
	Calls      *calls.Aggregator
	Voice      *voice.Resolver
	Scheduler  *poll.Scheduler
	Reconciler *intsync.Reconciler
	Bus        *bus.Bus
	Status     *status.Machine
	Config     *config.Config
	Logger     *zap.Logger
}

func provideEngine(d engineDeps) *intsync.Engine {
	return intsync.NewEngine(intsync.Deps{
		API:        d.Client,
		Chats:      d.Chats,
		Messages:   d.Messages,
		Calls:      d.Calls,
		Voice:      d.Voice,
		Scheduler:  d.Scheduler,
		Reconciler: d.Reconciler,
		Bus:        d.Bus,
		Status:     d.Status,
		Logger:     d.Logger.Named("sync"),
	}, intsync.Options{
		MessagesPageSize: d.Config.Messages.Window,
		CallsPageSize:    d.Config.Calls.PageSize,
		ChatsInterval:    d.Config.Polling.ChatsInterval.Duration,
		MessagesInterval: d.Config.Polling.MessagesInterval.Duration,
	})
}

func providePushClient(cfg *config.Config, logger *zap.Logger) *push.Client {
	return push.NewClient(push.ClientConfig{
		URL:          cfg.Push.URL,
		Token:        cfg.API.Token,
		PingInterval: cfg.Push.PingInterval.Duration,
		MaxBackoff:   cfg.Push.MaxBackoff.Duration,
	}, logger.Named("push"))
}

func provideRouter(engine *intsync.Engine, logger *zap.Logger) *push.Router {
	return push.NewRouter(engine, logger.Named("push"))
}

func provideSender(db *store.DB, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, engine, b, logger.Named("outbox"))
}

func provideCron() *cron.Cron {
	return cron.New()
}

func provideSessionService(p Params, m *status.Machine, engine *intsync.Engine, monitor *activity.Monitor, pc *push.Client) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, engine, monitor, pc)
}

func provideChatService(p Params, engine *intsync.Engine, sender *outbox.Sender, b *bus.Bus) *api.ChatService {
	return api.NewChatService(engine, sender, b, p.SessionName)
}

func provideCallService(engine *intsync.Engine) *api.CallService {
	return api.NewCallService(engine)
}

type lifecycleDeps struct {
	fx.In

	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Engine    *intsync.Engine
	Scheduler *poll.Scheduler
	Push      *push.Client
	Router    *push.Router
	Sender    *outbox.Sender
	Cron      *cron.Cron
	Machine   *status.Machine
	Bus       *bus.Bus
	Config    *config.Config
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) error {
	logger := d.Logger
	if _, err := calls.ScheduleRollover(d.Cron, calls.MidnightSpec, d.Engine.RolloverDay); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pushDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Restores the cached list, arms fallback polling and starts the first refresh.
			d.Engine.Start(runCtx)
			d.Sender.Start(runCtx)
			d.Cron.Start()

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			ensure(d.Machine, status.Connecting, logger)

			if d.Config.Push.URL == "" {
				logger.Info("no push endpoint configured, running on polling only")
				ensure(d.Machine, status.Polling, logger)
				close(pushDone)
				return nil
			}

			d.Push.OnConnect(func(sess *push.Session) {
				d.Router.Attach(sess)
				d.Bus.Emit(bus.KindPushConnected, nil)
				ensure(d.Machine, status.Live, logger)
				// Pick up whatever happened while the socket was down.
				go func() {
					if err := d.Engine.Resync(runCtx); err != nil {
						logger.Warn("resync after push connect failed", zap.Error(err))
					}
				}()
			})
			d.Push.OnDisconnect(func(err error) {
				d.Router.Detach()
				if d.Engine.Halted() || runCtx.Err() != nil {
					return
				}
				d.Bus.Emit(bus.KindPushLost, nil)
				logger.Info("push unavailable, falling back to polling", zap.Error(err))
				ensure(d.Machine, status.Polling, logger)
			})

			go func() {
				defer close(pushDone)
				err := d.Push.Run(runCtx)
				if errors.Is(err, crm.ErrSessionExpired) {
					d.Engine.Expire()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-pushDone:
			case <-ctx.Done():
			}
			<-d.Cron.Stop().Done()
			d.Sender.Stop()
			d.Engine.Stop()
			d.Scheduler.Close()
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
	return nil
}

// ensure moves m to s unless the session already expired.
func ensure(m *status.Machine, s status.State, logger *zap.Logger) {
	if m.Current() == status.AuthExpired {
		return
	}
	if err := m.Ensure(s); err != nil {
		logger.Debug("status transition skipped", zap.String("to", string(s)), zap.Error(err))
	}
}
