// Package scheduler drives the poll loop using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

// CycleRunner is one full poll cycle of the relay.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Manager owns the gocron scheduler. The relay job runs in singleton mode
// so a slow cycle is never overlapped by the next tick; shutdown waits for
// the in-flight cycle, which keeps the store consistent on exit.
type Manager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.Mutex
}

// NewManager creates a scheduler manager. Cycle timestamps are UTC.
func NewManager(log logger.Interface) (*Manager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	return &Manager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// RegisterRelayJob registers the poll cycle at the given interval. The
// first cycle runs immediately on start.
func (m *Manager) RegisterRelayJob(runner CycleRunner, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := runner.RunCycle(ctx); err != nil {
				m.logger.Errorw("poll cycle failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("relay-poll"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered relay poll job", "interval", interval)
	return nil
}

// Start begins running registered jobs.
func (m *Manager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started")
}

// Shutdown stops the scheduler, waiting for the running cycle to finish.
func (m *Manager) Shutdown() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if !m.started {
		return nil
	}
	err := m.scheduler.Shutdown()
	m.started = false
	m.logger.Infow("scheduler stopped")
	return err
}
