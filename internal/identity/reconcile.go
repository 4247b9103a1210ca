package identity

import (
	"io"
	"log/slog"

	"AdobeDigest/internal/domain"
)

// Verdict is the reconciliation outcome for one candidate.
type Verdict int

const (
	VerdictNew Verdict = iota
	VerdictUpdated
	VerdictUnchanged
	VerdictDuplicate
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictUpdated:
		return "updated"
	case VerdictUnchanged:
		return "unchanged"
	case VerdictDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Reconciler classifies candidates against a KnownSet.
type Reconciler struct {
	known  *KnownSet
	logger *slog.Logger
}

// NewReconciler wraps known; a nil set treats every candidate as new.
func NewReconciler(known *KnownSet, logger *slog.Logger) *Reconciler {
	if known == nil {
		known = NewKnownSet()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{known: known, logger: logger}
}

// Known exposes the underlying set so scanners can skip fetching known items.
func (r *Reconciler) Known() *KnownSet {
	return r.known
}

// Classify decides what to do with c. The identifier check runs first; the title guard
// only applies to identifiers nobody has seen.
func (r *Reconciler) Classify(c domain.Candidate) Verdict {
	if r.known.HasID(c.ID) {
		stored := r.known.Hash(c.Source, c.ID)
		if stored != "" && c.Hash != "" && stored != c.Hash {
			return VerdictUpdated
		}
		return VerdictUnchanged
	}

	if r.known.HasTitle(c.Title) {
		r.logger.Warn("title guard disagrees with identifier guard",
			"id", c.ID,
			"title", c.Title,
			"source", c.Source,
		)
		return VerdictDuplicate
	}

	return VerdictNew
}

// Filter returns the new and updated candidates in input order.
func (r *Reconciler) Filter(candidates []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		switch r.Classify(c) {
		case VerdictNew, VerdictUpdated:
			out = append(out, c)
		}
	}
	return out
}

// Remember marks c as handled so later sources in the same run see it.
func (r *Reconciler) Remember(c domain.Candidate) {
	r.known.AddHash(c.Source, c.ID, c.Hash)
	r.known.AddTitle(c.Title)
}
