package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
)

// Request carries all parameters required to execute a scan of one source.
type Request struct {
	Now          time.Time
	SourceName   string
	URL          string
	SectionID    string
	Product      string
	Prefix       string
	DisplayName  string
	Includes     []string
	Keywords     []string
	Categories   []string
	Tags         []string
	Limit        int
	LookbackDays int
	Extract      bool
	Known        *identity.KnownSet
}

// Seen reports whether id is already known and its detail page can be skipped.
func (r Request) Seen(id string) bool {
	return r.Known.HasID(id)
}

// Scanner captures a single strategy implementation (HelpX, Atom, NVD, release notes).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Candidate, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
