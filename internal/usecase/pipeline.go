package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/ports"
)

// ScrapeDeps wires the driven adapters of a scrape run.
type ScrapeDeps struct {
	Source   ports.CandidateSource
	Known    []ports.KnownSource
	Writer   ports.PostWriter
	Tracking ports.TrackingStore
	Logger   *slog.Logger
}

// ScrapeOptions tunes one scrape run.
type ScrapeOptions struct {
	// Force ignores every known identifier and re-emits everything fetched.
	Force bool
}

// ScrapeItem is the outcome for one fetched candidate.
type ScrapeItem struct {
	ID      string
	Source  string
	Title   string
	Verdict identity.Verdict
	Path    string
	Written bool
	Err     error
}

// ScrapeReport summarises a scrape run.
type ScrapeReport struct {
	Known   int
	Fetched int
	Items   []ScrapeItem
}

// Count returns how many items ended with verdict v and no error.
func (r ScrapeReport) Count(v identity.Verdict) int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil && it.Verdict == v {
			n++
		}
	}
	return n
}

// Failed returns the items whose emission failed.
func (r ScrapeReport) Failed() []ScrapeItem {
	var out []ScrapeItem
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// ScrapePipeline fetches candidates, reconciles them against known content, writes posts
// for new and updated items and records them in the tracking store.
type ScrapePipeline struct {
	source   ports.CandidateSource
	known    []ports.KnownSource
	writer   ports.PostWriter
	tracking ports.TrackingStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewScrapePipeline constructs the scrape use case.
func NewScrapePipeline(deps ScrapeDeps) *ScrapePipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ScrapePipeline{
		source:   deps.Source,
		known:    deps.Known,
		writer:   deps.Writer,
		tracking: deps.Tracking,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one scrape. Per-item emission failures end up in the report; only a failed
// fetch or tracking update aborts the run.
func (p *ScrapePipeline) Run(ctx context.Context, opts ScrapeOptions) (ScrapeReport, error) {
	var report ScrapeReport
	if p.source == nil || p.writer == nil {
		return report, fmt.Errorf("scrape pipeline is not configured")
	}

	known := identity.NewKnownSet()
	if opts.Force {
		p.logger.Info("force mode, ignoring known identifiers")
	} else {
		known = identity.Gather(ctx, p.logger, p.known...)
	}
	report.Known = known.Len()

	candidates, err := p.source.Fetch(ctx, known)
	if err != nil {
		return report, fmt.Errorf("fetch candidates: %w", err)
	}
	report.Fetched = len(candidates)

	reconciler := identity.NewReconciler(known, p.logger)
	now := p.now().UTC()
	records := map[[2]string]domain.TrackingRecord{}

	for _, c := range candidates {
		if c.Hash == "" {
			c.Hash = identity.CandidateHash(c)
		}

		item := ScrapeItem{ID: c.ID, Source: c.Source, Title: c.Title, Verdict: reconciler.Classify(c)}
		if item.Verdict != identity.VerdictNew && item.Verdict != identity.VerdictUpdated {
			p.logger.Debug("candidate skipped", "id", c.ID, "source", c.Source, "verdict", item.Verdict)
			report.Items = append(report.Items, item)
			continue
		}

		res, err := p.writer.Emit(c)
		if err != nil {
			item.Err = err
			p.logger.Warn("emit failed", "id", c.ID, "source", c.Source, "error", err)
			report.Items = append(report.Items, item)
			continue
		}
		item.Path, item.Written = res.Path, res.Written

		state := domain.StateEmitted
		if item.Verdict == identity.VerdictUpdated {
			state = domain.StateUpdated
		}
		records[[2]string{c.Source, c.ID}] = domain.TrackingRecord{Hash: c.Hash, State: state, LastScraped: now}
		reconciler.Remember(c)

		p.logger.Info("candidate emitted", "id", c.ID, "source", c.Source, "verdict", item.Verdict, "path", res.Path)
		report.Items = append(report.Items, item)
	}

	if p.tracking == nil || len(records) == 0 {
		return report, nil
	}

	err = p.tracking.Update(ctx, func(state *domain.TrackingState) error {
		for key, rec := range records {
			state.SetRecord(key[0], key[1], rec)
		}
		state.LastUpdated = now
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("update tracking: %w", err)
	}
	return report, nil
}
