package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"farmledger/internal/log"
)

// SweeperConfig holds the sweep intervals.
type SweeperConfig struct {
	// PollInterval is how often pending rows are re-synced (default: 30s)
	PollInterval time.Duration

	// CleanupInterval is how often expired sessions are purged (default: 1h)
	CleanupInterval time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PollInterval:    30 * time.Second,
		CleanupInterval: time.Hour,
	}
}

// Cleanup removes stale data and reports how many rows went.
type Cleanup func(ctx context.Context) (int64, error)

// Sweeper runs ProcessPending on a ticker and an optional cleanup on a slower one.
type Sweeper struct {
	worker  *SyncWorker
	cleanup Cleanup
	config  SweeperConfig
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(worker *SyncWorker, cleanup Cleanup, config SweeperConfig, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	def := DefaultSweeperConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Sweeper{worker: worker, cleanup: cleanup, config: config, logger: logger.WithComponent(log.ComponentWorker)}
}

// Start begins the loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Sweeper started",
		"poll_interval", s.config.PollInterval.String(),
		"cleanup_interval", s.config.CleanupInterval.String())
	return nil
}

// Stop signals the loop and waits for it, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	poll := time.NewTicker(s.config.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(s.config.CleanupInterval)
	defer cleanup.Stop()

	// Catch up on anything left pending while the worker was down.
	s.sweep(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-poll.C:
			s.sweep(ctx)
		case <-cleanup.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	synced, failed, err := s.worker.ProcessPending(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Sweep failed", log.FieldError, err)
		return
	}
	if synced > 0 || failed > 0 {
		s.logger.InfoContext(ctx, "Sweep completed", "synced", synced, "failed", failed)
	}
}

func (s *Sweeper) runCleanup(ctx context.Context) {
	if s.cleanup == nil {
		return
	}
	if _, err := s.cleanup(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Cleanup failed", log.FieldError, err)
	}
}
