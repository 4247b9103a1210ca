package identity

import (
	"context"
	"io"
	"log/slog"
)

// Collector contributes identifiers, titles or hashes to a KnownSet.
type Collector interface {
	Name() string
	Collect(ctx context.Context, set *KnownSet) error
}

// Gather runs every collector into one set. A failing collector is logged and skipped, so
// the worst case is an empty set where every candidate looks new.
func Gather(ctx context.Context, logger *slog.Logger, collectors ...Collector) *KnownSet {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	set := NewKnownSet()
	for _, c := range collectors {
		before := set.Len()
		if err := c.Collect(ctx, set); err != nil {
			logger.Warn("known source unavailable", "source", c.Name(), "error", err)
			continue
		}
		logger.Debug("known source collected", "source", c.Name(), "added", set.Len()-before)
	}
	return set
}
