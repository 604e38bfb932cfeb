package content

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives freshly loaded content
type Sink interface {
	SetContent(*Set)
}

// Reloader polls a content directory and hands a new Set to its sink whenever
// the directory digest changes. A set that fails to load is never installed;
// the sink keeps serving the previous generation.
type Reloader struct {
	dir      string
	interval time.Duration
	sink     Sink
	logger   *slog.Logger

	mu         sync.Mutex
	lastDigest string
}

// NewReloader creates a reloader. current is the digest of the set already
// installed in sink.
func NewReloader(dir string, interval time.Duration, sink Sink, current string, logger *slog.Logger) *Reloader {
	return &Reloader{
		dir:        dir,
		interval:   interval,
		sink:       sink,
		logger:     logger,
		lastDigest: current,
	}
}

// Run polls until ctx is done. A zero interval returns immediately.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Check(); err != nil {
				r.logger.Error("Content reload failed", "dir", r.dir, "error", err)
			}
		}
	}
}

// Check reloads if the directory changed. It reports whether a new set was installed.
func (r *Reloader) Check() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	digest, err := Digest(r.dir)
	if err != nil {
		return false, err
	}
	if digest == r.lastDigest {
		return false, nil
	}

	set, ve, err := LoadDir(r.dir)
	if ve != nil {
		for _, w := range ve.Warnings {
			r.logger.Warn("Content warning", "dir", r.dir, "warning", w)
		}
	}
	if err != nil {
		// Remember the broken digest so it is not re-parsed every tick.
		r.lastDigest = digest
		return false, err
	}

	r.lastDigest = set.Digest
	r.sink.SetContent(set)
	r.logger.Info("Content reloaded",
		"dir", r.dir,
		"quests", set.Quests.Count(),
		"rules", set.Rules.Len(),
		"npcs", set.NPCs.Len(),
		"digest", set.Digest[:12])
	return true, nil
}
