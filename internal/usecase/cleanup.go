package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"AdobeDigest/internal/dedup"
	"AdobeDigest/internal/ports"
	"AdobeDigest/internal/throttle"
)

// CleanupDeps wires the driven adapters of a duplicate cleanup.
type CleanupDeps struct {
	Lister  ports.PostLister
	Deleter ports.PostDeleter
	Pacer   *throttle.Pacer
	Logger  *slog.Logger
}

// CleanupOptions tunes one cleanup run.
type CleanupOptions struct {
	// Delete performs the deletions; otherwise the run only reports the plan.
	Delete bool
}

// CleanupFailure is a deletion the API rejected.
type CleanupFailure struct {
	URL    string
	Status int
	Err    error
}

// CleanupReport summarises a cleanup run.
type CleanupReport struct {
	Plan     dedup.Plan
	DryRun   bool
	Deleted  int
	Failures []CleanupFailure
}

// Cleanup finds published posts sharing a title and removes all but one per group.
type Cleanup struct {
	lister  ports.PostLister
	deleter ports.PostDeleter
	pacer   *throttle.Pacer
	logger  *slog.Logger
}

// NewCleanup constructs the cleanup use case.
func NewCleanup(deps CleanupDeps) *Cleanup {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cleanup{lister: deps.Lister, deleter: deps.Deleter, pacer: deps.Pacer, logger: logger}
}

// Run builds the duplicate plan and, when opts.Delete is set, deletes the losers.
func (c *Cleanup) Run(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	report := CleanupReport{DryRun: !opts.Delete}
	if c.lister == nil {
		return report, fmt.Errorf("cleanup has no post lister")
	}

	posts, err := c.lister.Posts(ctx)
	if err != nil {
		return report, fmt.Errorf("list posts: %w", err)
	}
	report.Plan = dedup.Build(posts)
	c.logger.Info("duplicate plan built", "posts", len(posts), "groups", len(report.Plan.Groups), "deletions", report.Plan.Deletions())

	if report.DryRun {
		return report, nil
	}
	if c.deleter == nil {
		return report, fmt.Errorf("cleanup has no deleter")
	}

	for _, g := range report.Plan.Groups {
		for _, d := range g.Delete {
			if err := c.pacer.Wait(ctx); err != nil {
				return report, err
			}
			if err := c.deleter.Delete(ctx, d.Post.URL); err != nil {
				failure := CleanupFailure{URL: d.Post.URL, Err: err}
				var statusErr ports.StatusError
				if errors.As(err, &statusErr) {
					failure.Status = statusErr.StatusCode()
				}
				c.logger.Warn("delete failed", "url", d.Post.URL, "status", failure.Status, "error", err)
				report.Failures = append(report.Failures, failure)
				continue
			}
			c.logger.Info("duplicate deleted", "url", d.Post.URL, "kept", g.Keep.URL)
			report.Deleted++
		}
	}
	return report, nil
}
