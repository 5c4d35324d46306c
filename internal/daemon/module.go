package daemon

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/config"
	"github.com/matheus3301/shiftsync/internal/connectivity"
	"github.com/matheus3301/shiftsync/internal/lock"
	"github.com/matheus3301/shiftsync/internal/logging"
	"github.com/matheus3301/shiftsync/internal/outbox"
	"github.com/matheus3301/shiftsync/internal/profile"
	"github.com/matheus3301/shiftsync/internal/remote"
	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/store"
	intsync "github.com/matheus3301/shiftsync/internal/sync"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
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
			provideTracker,
			provideLock,
			provideStore,
			provideRemote,
			provideMonitor,
			provideQueue,
			provideWriter,
			provideSyncEngine,
			provideSyncService,
			provideLocalService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	cfg, err := config.Load(profile.ConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", profile.ConfigPath(p.ProfileName), err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideTracker(b *bus.Bus, m *status.Machine) *status.Tracker {
	return status.NewTracker(b, m)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock as a parameter so the store is never opened by
// a process that does not own the profile.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.StorePath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config, db *store.DB, logger *zap.Logger) (*remote.Client, error) {
	deviceID := cfg.Remote.DeviceID
	if deviceID == "" {
		var err error
		deviceID, err = db.EnsureDeviceID(context.Background(), uuid.NewString)
		if err != nil {
			return nil, fmt.Errorf("device id: %w", err)
		}
	}
	logger.Info("remote configured",
		zap.String("base_url", cfg.Remote.BaseURL),
		zap.String("device_id", deviceID))
	return remote.New(cfg.Remote.BaseURL,
		remote.WithToken(cfg.Remote.BearerToken()),
		remote.WithDeviceID(deviceID),
		remote.WithTimeout(cfg.Remote.RequestTimeout.Duration),
		remote.WithProbePath(cfg.Connectivity.ProbePath),
	), nil
}

func provideMonitor(c *remote.Client, t *status.Tracker, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *connectivity.Monitor {
	return connectivity.NewMonitor(c, t, b, logger,
		cfg.Connectivity.ProbeTimeout.Duration,
		cfg.Connectivity.CheckInterval.Duration)
}

func provideQueue(db *store.DB, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *outbox.Queue {
	return outbox.NewQueue(db, b, logger, outbox.Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BackoffBase: cfg.Sync.BackoffBase.Duration,
		BackoffMax:  cfg.Sync.BackoffMax.Duration,
	})
}

func provideWriter(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Writer {
	return outbox.NewWriter(db, b, logger)
}

func provideSyncEngine(db *store.DB, q *outbox.Queue, c *remote.Client, mon *connectivity.Monitor, m *status.Machine, t *status.Tracker, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Engine {
	return intsync.NewEngine(db, q, c, mon, m, t, b, logger.Named("sync"), intsync.Options{
		Interval:       cfg.Sync.Interval.Duration,
		PushBatchSize:  cfg.Sync.PushBatchSize,
		PullPageSize:   cfg.Sync.PullPageSize,
		MaxPullPages:   cfg.Sync.MaxPullPages,
		RequestRetries: cfg.Sync.RequestRetries,
		RetryBase:      cfg.Sync.RetryBase.Duration,
		RetryMax:       cfg.Sync.BackoffMax.Duration,
	})
}

func provideSyncService(engine *intsync.Engine, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(engine, logger)
}

func provideLocalService(db *store.DB, w *outbox.Writer, q *outbox.Queue) *api.LocalService {
	return api.NewLocalService(db, w, q)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, db *store.DB, c *remote.Client, mon *connectivity.Monitor, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	listenerDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			engine.Start()
			mon.Start(runCtx)

			if cfg.Remote.Notify {
				l := c.Listener(func() { b.Emit(bus.RemoteChanged, nil) }, logger.Named("changes"))
				go func() {
					defer close(listenerDone)
					_ = l.Run(runCtx)
				}()
			} else {
				close(listenerDone)
			}

			// The first probe decides whether the startup cycle runs or is
			// skipped as offline; either way it is published.
			go func() {
				online := mon.Check(runCtx)
				logger.Info("initial connectivity", zap.Bool("online", online))
				engine.Trigger("startup")
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			cancel()
			<-listenerDone
			mon.Stop()
			engine.Stop()
			if err := db.Checkpoint(ctx); err != nil {
				logger.Warn("wal checkpoint failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
