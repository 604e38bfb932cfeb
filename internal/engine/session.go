package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// dedupeWindow is how many recent event ids a session remembers
const dedupeWindow = 256

// job runs on a session goroutine
type job func(s *session)

// session is the single writer for one player's quest state. Everything in
// it except pending is owned by the session goroutine.
type session struct {
	playerID string
	mailbox  chan job
	stop     chan struct{}
	done     chan struct{}

	// pending counts queued and running jobs; guarded by Engine.mu
	pending int

	log *quest.PlayerQuestLog

	recent    [dedupeWindow]uuid.UUID
	recentIdx int
	recentSet map[uuid.UUID]struct{}
}

func newSession(playerID string, mailboxSize int) *session {
	return &session{
		playerID:  playerID,
		mailbox:   make(chan job, mailboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		recentSet: make(map[uuid.UUID]struct{}, dedupeWindow),
	}
}

func (s *session) seen(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	_, ok := s.recentSet[id]
	return ok
}

// remember adds id to the dedupe ring, evicting the oldest entry
func (s *session) remember(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	if old := s.recent[s.recentIdx]; old != uuid.Nil {
		delete(s.recentSet, old)
	}
	s.recent[s.recentIdx] = id
	s.recentSet[id] = struct{}{}
	s.recentIdx = (s.recentIdx + 1) % dedupeWindow
}

// enqueue hands j to the player's session, starting one if needed. It blocks
// while the mailbox is full.
func (e *Engine) enqueue(ctx context.Context, playerID string, j job) (*session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := e.sessions[playerID]
	if !ok {
		s = newSession(playerID, e.cfg.MailboxSize)
		e.sessions[playerID] = s
		e.wg.Add(1)
		go e.runSession(s)
	}
	s.pending++
	e.mu.Unlock()

	select {
	case s.mailbox <- j:
		return s, nil
	case <-s.stop:
		e.release(s)
		return nil, ErrClosed
	case <-ctx.Done():
		e.release(s)
		return nil, ctx.Err()
	}
}

// do runs fn on the player's session and waits for it to finish
func (e *Engine) do(ctx context.Context, playerID string, fn func(s *session)) error {
	finished := make(chan struct{})
	s, err := e.enqueue(ctx, playerID, func(s *session) {
		defer close(finished)
		fn(s)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (e *Engine) release(s *session) {
	e.mu.Lock()
	s.pending--
	e.mu.Unlock()
}

// runSession is the session goroutine. It exits when stopped, after running
// whatever is already queued, or after sitting idle with nothing pending.
func (e *Engine) runSession(s *session) {
	defer e.wg.Done()
	defer close(s.done)

	idle := e.cfg.IdleTimeout()
	var timeout <-chan time.Time
	var timer *time.Timer
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case j := <-s.mailbox:
			e.runJob(s, j)
			if timer != nil {
				timer.Reset(idle)
			}

		case <-timeout:
			if e.retire(s) {
				e.logger.Debug("Player session idle", "player_id", s.playerID)
				return
			}
			timer.Reset(idle)

		case <-s.stop:
			for {
				select {
				case j := <-s.mailbox:
					e.runJob(s, j)
				default:
					return
				}
			}
		}
	}
}

// retire ends an idle session and releases its quest log. Pending saves are
// flushed first so the next session hydrates the newest records. It reports
// false, leaving the session running, when work arrived or the flush failed.
func (e *Engine) retire(s *session) bool {
	e.mu.Lock()
	busy := s.pending > 0
	e.mu.Unlock()
	if busy {
		return false
	}

	ctx, cancel := context.WithTimeout(e.ctx, closeFlushTimeout)
	defer cancel()
	if err := e.flushSaves(ctx); err != nil {
		e.logger.Warn("Idle session kept, saves not flushed", "player_id", s.playerID, "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s.pending > 0 {
		return false
	}
	delete(e.sessions, s.playerID)
	delete(e.logs, s.playerID)
	s.log = nil
	return true
}

func (e *Engine) runJob(s *session, j job) {
	defer e.release(s)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Session job panicked", "player_id", s.playerID, "panic", r)
		}
	}()
	j(s)
}
