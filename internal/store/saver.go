package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// FailureHook is called when a record could not be saved after every retry
type FailureHook func(rec quest.Record, err error)

// Saver persists records asynchronously on a pool of workers. Workers may
// complete saves in any order; the store's revision guard keeps the newest.
type Saver struct {
	store   Store
	cfg     config.SaverConfig
	logger  *slog.Logger
	onFail  FailureHook
	queue   chan quest.Record
	stop    chan struct{}
	workers sync.WaitGroup

	sendMu  sync.RWMutex
	mu      sync.Mutex
	closed  bool
	pending int
	idle    chan struct{}

	saved    atomic.Int64
	stale    atomic.Int64
	failures atomic.Int64
}

// NewSaver starts cfg.Workers workers writing to st
func NewSaver(st Store, cfg config.SaverConfig, logger *slog.Logger) *Saver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	s := &Saver{
		store:  st,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan quest.Record, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	return s
}

// OnFailure installs a hook for records that exhausted their retries.
// It must be set before the first Enqueue.
func (s *Saver) OnFailure(hook FailureHook) {
	s.onFail = hook
}

// Enqueue queues rec for saving. It blocks while the queue is full.
func (s *Saver) Enqueue(ctx context.Context, rec quest.Record) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.mu.Unlock()

	select {
	case s.queue <- rec:
		return nil
	case <-ctx.Done():
		s.done()
		return ctx.Err()
	}
}

func (s *Saver) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

// Flush waits until every queued record has been handled
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the workers. Retry backoff is cut short.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	// Wait for senders that passed the closed check.
	s.sendMu.Lock()
	close(s.queue)
	s.sendMu.Unlock()
	s.workers.Wait()
}

// Stats returns how many records were saved, dropped as stale, and lost
func (s *Saver) Stats() (saved, stale, failed int64) {
	return s.saved.Load(), s.stale.Load(), s.failures.Load()
}

func (s *Saver) worker() {
	defer s.workers.Done()
	for rec := range s.queue {
		s.save(rec)
		s.done()
	}
}

func (s *Saver) save(rec quest.Record) {
	backoff := s.cfg.RetryBackoff()
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff * time.Duration(attempt)):
			case <-s.stop:
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.store.Save(ctx, rec)
		cancel()

		switch {
		case err == nil:
			s.saved.Add(1)
			return
		case errors.Is(err, ErrStaleRevision):
			s.stale.Add(1)
			s.logger.Debug("Dropped stale quest record",
				"player", rec.PlayerID, "quest", rec.QuestType, "revision", rec.Revision)
			return
		case errors.Is(err, ErrClosed):
			attempt = s.cfg.MaxRetries
		}
		s.logger.Warn("Quest record save failed",
			"player", rec.PlayerID, "quest", rec.QuestType, "attempt", attempt+1, "error", err)
	}

	s.failures.Add(1)
	s.logger.Error("Persistence failure, quest record not saved",
		"player", rec.PlayerID, "quest", rec.QuestType, "revision", rec.Revision, "error", err)
	if s.onFail != nil {
		s.onFail(rec, err)
	}
}
