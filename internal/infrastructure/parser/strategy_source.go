package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AdobeDigest/internal/config"
	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/ports"
	"AdobeDigest/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
		now:      time.Now,
	}
}

// Fetch runs every enabled source in config order. A failing source is logged and skipped;
// whatever it produced before failing is kept.
func (s *StrategySource) Fetch(ctx context.Context, known *identity.KnownSet) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	now := s.now()
	s.debug("fetch sources", "sources", len(s.sources), "known", known.Len())

	var aggregated []domain.Candidate
	for _, src := range s.sources {
		if src.Disabled {
			s.debug("source disabled", "source", src.Name)
			continue
		}

		strategy, err := s.registry.Resolve(src.Type)
		if err != nil {
			s.warn("source skipped", "source", src.Name, "error", err)
			continue
		}

		results, err := strategy.Scan(ctx, toRequest(src, now, known))
		if err != nil {
			if ctx.Err() != nil {
				return aggregated, ctx.Err()
			}
			s.warn("source failed", "source", src.Name, "type", src.Type, "kept", len(results), "error", err)
		}

		for i := range results {
			if results[i].Source == "" {
				results[i].Source = src.Name
			}
		}
		s.debug("source produced candidates", "source", src.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_candidates", len(aggregated))
	return aggregated, nil
}

func toRequest(src config.SourceConfig, now time.Time, known *identity.KnownSet) scanner.Request {
	return scanner.Request{
		Now:          now,
		SourceName:   src.Name,
		URL:          src.URL,
		SectionID:    src.SectionID,
		Product:      src.Product,
		Prefix:       src.Prefix,
		DisplayName:  src.DisplayName,
		Includes:     src.Includes,
		Keywords:     src.Keywords,
		Categories:   src.Categories,
		Tags:         src.Tags,
		Limit:        src.Limit,
		LookbackDays: src.LookbackDays,
		Extract:      src.Extract,
		Known:        known,
	}
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
