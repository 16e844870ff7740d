package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunnerRecord captures one completed scheduler iteration.
type RunnerRecord struct {
	RunnerID   int       `json:"runner_id"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Scheduler runs a single function on a background worker with a fixed
// delay between runs. The delay is measured from the end of one invocation
// to the start of the next, so it is a minimum gap rather than a period.
type Scheduler struct {
	fn     func() error
	delay  time.Duration
	logger zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	runnerID int
	history  []RunnerRecord
}

func New(fn func() error, delay time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		fn:       fn,
		delay:    delay,
		logger:   logger,
		runnerID: 1,
	}
}

// Start launches the worker. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Debug().Msg("scheduler already running")
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	go s.run(s.stopCh, s.doneCh)
	s.logger.Info().Dur("delay", s.delay).Msg("scheduler started")
}

// Stop signals the worker and waits for it to exit. An in-flight run
// completes naturally. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.logger.Info().Msg("scheduler stopped")
}

// IsRunning reports whether the worker is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunnersHistory returns a copy of the append-only iteration records in
// execution order.
func (s *Scheduler) RunnersHistory() []RunnerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]RunnerRecord, len(s.history))
	copy(records, s.history)
	return records
}

func (s *Scheduler) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.invoke()

		// An interrupted wait still records the completed run before the
		// worker exits.
		select {
		case <-stopCh:
			s.appendRecord()
			return
		case <-time.After(s.delay):
			s.appendRecord()
		}
	}
}

func (s *Scheduler) invoke() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduled run panicked")
		}
	}()
	if err := s.fn(); err != nil {
		s.logger.Error().Err(err).Msg("scheduled run failed")
	}
}

func (s *Scheduler) appendRecord() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, RunnerRecord{
		RunnerID:   s.runnerID,
		ExecutedAt: time.Now().UTC(),
	})
	s.runnerID++
}
