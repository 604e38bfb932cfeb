package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Lister is implemented by stores that can enumerate their players.
type Lister interface {
	Players(ctx context.Context) ([]string, error)
}

// CopyStats counts what Copy did.
type CopyStats struct {
	Players int
	Copied  int
	Skipped int // dst already held the same or a newer revision
}

// Copy writes every record of src into dst. Records dst already holds at the
// same or a newer revision are skipped, so an interrupted copy can be rerun.
// With dryRun set nothing is written and every record counts as copied.
func Copy(ctx context.Context, src interface {
	Store
	Lister
}, dst Store, dryRun bool, logger *slog.Logger) (CopyStats, error) {
	var stats CopyStats

	players, err := src.Players(ctx)
	if err != nil {
		return stats, err
	}
	stats.Players = len(players)

	for _, playerID := range players {
		records, err := src.LoadAll(ctx, playerID)
		if err != nil {
			return stats, err
		}
		for _, rec := range records {
			if dryRun {
				stats.Copied++
				continue
			}
			err := dst.Save(ctx, rec)
			switch {
			case err == nil:
				stats.Copied++
			case errors.Is(err, ErrStaleRevision):
				stats.Skipped++
			default:
				return stats, fmt.Errorf("copy %s/%s: %w", rec.PlayerID, rec.QuestType, err)
			}
		}
		logger.Debug("Copied player records", "player", playerID, "records", len(records))
	}
	return stats, nil
}
