package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/notify"
)

// Manager coordinates run processing using the registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *catalog.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notify.Service

	heartbeat *HeartbeatMonitor

	lanes     map[catalog.ProcessingLane]*laneState
	laneOrder []catalog.ProcessingLane

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun *catalog.Run
}

// NewManager constructs a workflow manager with the default notifier.
func NewManager(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notify.NewService(cfg, store))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notify.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Daemon.PollIntervalSeconds) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Daemon.HeartbeatIntervalSeconds)*time.Second,
			time.Duration(cfg.Daemon.HeartbeatTimeoutSeconds)*time.Second,
		),
		lanes: make(map[catalog.ProcessingLane]*laneState),
	}
}
