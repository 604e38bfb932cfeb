// Package engine dispatches world events to behavior rules and drives quest
// instances through their lifecycle. Each player is served by a single
// goroutine, so events for one player are handled strictly in arrival order
// while different players proceed in parallel.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/content"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/reward"
)

const (
	// offerTTL is how long an NPC keeps a player on its observer list
	// after offering a quest.
	offerTTL = 10 * time.Minute

	pruneInterval = time.Minute

	defaultMailboxSize = 64

	closeFlushTimeout = 10 * time.Second
)

// Options wires the engine to its collaborators. Inventory is required;
// Dialogue defaults to LogDialogue and a nil Loader or Persister disables
// loading or saving.
type Options struct {
	Content   *content.Set
	Loader    Loader
	Persister Persister
	Inventory Inventory
	Dialogue  Dialogue
	Movement  Movement
	Players   Players
	Config    config.DispatchConfig
	Logger    *slog.Logger
}

// Report describes how one event was handled
type Report struct {
	Event     event.Event
	Fired     []string
	Failures  []*Failure
	Duplicate bool
}

// Failed reports whether a failure of kind was recorded
func (r Report) Failed(kind FailureKind) bool {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Engine is the quest and NPC behavior engine
type Engine struct {
	content atomic.Pointer[content.Set]

	loader    Loader
	persist   Persister
	inventory Inventory
	dialogue  Dialogue
	movement  Movement
	players   Players
	cfg       config.DispatchConfig
	logger    *slog.Logger

	// ctx outlives individual callers; loads and saves use it so a caller
	// giving up does not lose a queued save.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	logs     map[string]*quest.PlayerQuestLog
	closed   bool
	wg       sync.WaitGroup
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	if opts.Inventory == nil {
		return nil, errors.New("engine: inventory is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Dialogue == nil {
		opts.Dialogue = LogDialogue{Logger: opts.Logger}
	}
	if opts.Content == nil {
		opts.Content = content.NewSet(nil, nil, nil, nil)
	}
	if opts.Config.MailboxSize <= 0 {
		opts.Config.MailboxSize = defaultMailboxSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		loader:    opts.Loader,
		persist:   opts.Persister,
		inventory: opts.Inventory,
		dialogue:  opts.Dialogue,
		movement:  opts.Movement,
		players:   opts.Players,
		cfg:       opts.Config,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
		logs:      make(map[string]*quest.PlayerQuestLog),
	}
	e.content.Store(opts.Content)
	return e, nil
}

// Content returns the content generation currently in service
func (e *Engine) Content() *content.Set {
	return e.content.Load()
}

// SetContent swaps in a new content generation. Events already being handled
// finish against the set they started with. Open quest offers carry over to
// NPCs with the same id.
func (e *Engine) SetContent(set *content.Set) {
	if prev := e.content.Load(); prev != nil {
		set.NPCs.CarryObservers(prev.NPCs)
	}
	e.content.Store(set)
}

// Run feeds events from bus into the engine until ctx is done or the bus closes
func (e *Engine) Run(ctx context.Context, bus *event.Bus) error {
	events, cancel := bus.Subscribe(e.cfg.MailboxSize)
	defer cancel()

	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.Submit(ev); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				e.logger.Warn("Event rejected", "event_id", ev.ID, "kind", ev.Kind, "error", err)
			}
		case <-prune.C:
			e.pruneObservers()
		}
	}
}

func (e *Engine) pruneObservers() {
	set := e.content.Load()
	dropped := 0
	for _, id := range set.NPCs.IDs() {
		if n, ok := set.NPCs.Get(id); ok {
			dropped += n.PruneObservers(offerTTL)
		}
	}
	if dropped > 0 {
		e.logger.Debug("Expired quest offers", "count", dropped)
	}
}

// Submit queues ev for its player's session and returns without waiting
func (e *Engine) Submit(ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	_, err := e.enqueue(e.ctx, ev.PlayerID, func(s *session) {
		e.handle(s, ev)
	})
	return err
}

// Dispatch handles ev and waits for the result
func (e *Engine) Dispatch(ctx context.Context, ev event.Event) (Report, error) {
	if err := ev.Validate(); err != nil {
		return Report{Event: ev}, err
	}
	var rep Report
	if err := e.do(ctx, ev.PlayerID, func(s *session) {
		rep = e.handle(s, ev)
	}); err != nil {
		return Report{Event: ev}, err
	}
	return rep, nil
}

// ResolveChoice finishes a quest awaiting a reward choice, granting the
// options at the given 0-based indices
func (e *Engine) ResolveChoice(ctx context.Context, playerID, questType string, indices ...int) (reward.Granted, error) {
	var (
		granted reward.Granted
		resErr  error
	)
	err := e.do(ctx, playerID, func(s *session) {
		d, err := e.begin(s, event.Event{Kind: event.KindChooseReward, PlayerID: playerID})
		if err != nil {
			resErr = err
			return
		}
		granted, resErr = d.resolve(questType, indices)
		d.persistDirty()
	})
	if err != nil {
		return reward.Granted{}, err
	}
	return granted, resErr
}

// Abort abandons an active quest on the player's behalf
func (e *Engine) Abort(ctx context.Context, playerID, questType string) error {
	var abortErr error
	err := e.do(ctx, playerID, func(s *session) {
		d, err := e.begin(s, event.Event{PlayerID: playerID})
		if err != nil {
			abortErr = err
			return
		}
		abortErr = d.abort(questType, "")
		d.persistDirty()
	})
	if err != nil {
		return err
	}
	return abortErr
}

// QuestLog returns the player's records, loading them if needed
func (e *Engine) QuestLog(ctx context.Context, playerID string) ([]quest.Record, error) {
	var (
		records []quest.Record
		logErr  error
	)
	err := e.do(ctx, playerID, func(s *session) {
		log, err := e.hydrate(s)
		if err != nil {
			logErr = err
			return
		}
		records = log.Records()
	})
	if err != nil {
		return nil, err
	}
	return records, logErr
}

// Evict flushes the player's pending saves and drops the cached quest log.
// The next event reloads it from the store.
func (e *Engine) Evict(ctx context.Context, playerID string) error {
	var flushErr error
	err := e.do(ctx, playerID, func(s *session) {
		if flushErr = e.flushSaves(ctx); flushErr != nil {
			return
		}
		e.forget(s)
	})
	if err != nil {
		return err
	}
	return flushErr
}

// flushSaves waits for queued saves to reach the store
func (e *Engine) flushSaves(ctx context.Context) error {
	f, ok := e.persist.(flusher)
	if !ok {
		return nil
	}
	return f.Flush(ctx)
}

func (e *Engine) forget(s *session) {
	s.log = nil
	e.mu.Lock()
	delete(e.logs, s.playerID)
	e.mu.Unlock()
}

// Close stops accepting events, drains every session, and waits for queued
// saves to reach the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		close(s.stop)
	}
	e.wg.Wait()
	defer e.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	if err := e.flushSaves(ctx); err != nil {
		return err
	}
	e.logger.Info("Quest engine stopped", "sessions", len(sessions))
	return nil
}

// handle runs one event through built-in quest handling and the rule set
func (e *Engine) handle(s *session, ev event.Event) Report {
	rep := Report{Event: ev}

	if s.seen(ev.ID) {
		rep.Duplicate = true
		e.logger.Debug("Duplicate event ignored", "event_id", ev.ID, "player_id", ev.PlayerID)
		return rep
	}

	d, err := e.begin(s, ev)
	if err != nil {
		rep.Failures = append(rep.Failures, &Failure{Kind: FailPersistence, Player: ev.PlayerID, Err: err})
		e.logger.Error("Failed to load quest log", "player_id", ev.PlayerID, "error", err)
		return rep
	}
	s.remember(ev.ID)
	d.report = &rep

	d.builtin()
	for _, r := range d.set.Rules.Candidates(ev) {
		if !d.fire(r) {
			continue
		}
		rep.Fired = append(rep.Fired, r.ID)
		if e.cfg.Strict {
			break
		}
	}
	d.persistDirty()

	if len(rep.Fired) > 0 || len(rep.Failures) > 0 {
		e.logger.Debug("Event handled",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"player_id", ev.PlayerID,
			"fired", rep.Fired,
			"failures", len(rep.Failures))
	}
	return rep
}

// begin loads the player's log and opens a dispatch against the current content
func (e *Engine) begin(s *session, ev event.Event) (*dispatch, error) {
	log, err := e.hydrate(s)
	if err != nil {
		return nil, err
	}
	return &dispatch{
		e:      e,
		set:    e.content.Load(),
		log:    log,
		ev:     ev,
		player: s.playerID,
		report: &Report{Event: ev},
		dirty:  make(map[*quest.Instance]bool),
	}, nil
}

// hydrate returns the session's quest log, loading it from the store on first use
func (e *Engine) hydrate(s *session) (*quest.PlayerQuestLog, error) {
	if s.log != nil {
		return s.log, nil
	}

	e.mu.Lock()
	if log, ok := e.logs[s.playerID]; ok {
		e.mu.Unlock()
		s.log = log
		return log, nil
	}
	e.mu.Unlock()

	log := quest.NewPlayerQuestLog(s.playerID)
	if e.loader != nil {
		records, err := e.loader.LoadAll(e.ctx, s.playerID)
		if err != nil {
			return nil, err
		}
		log.Load(records)
		e.logger.Debug("Quest log loaded", "player_id", s.playerID, "records", len(records))
	}

	e.mu.Lock()
	e.logs[s.playerID] = log
	e.mu.Unlock()
	s.log = log
	return log, nil
}
