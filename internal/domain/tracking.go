package domain

import (
	"sort"
	"time"
)

// Record states kept per source item.
const (
	StateEmitted = "emitted"
	StateUpdated = "updated"
)

// TrackingState is the persisted document shared by scrape and publish runs.
// IDs lists identifiers confirmed published; Sources keeps scrape state per source.
type TrackingState struct {
	IDs         []string                             `json:"ids"`
	LastUpdated time.Time                            `json:"last_updated"`
	Sources     map[string]map[string]TrackingRecord `json:"sources,omitempty"`
}

// TrackingRecord is the last known scrape state of one item.
type TrackingRecord struct {
	Hash        string    `json:"hash"`
	State       string    `json:"state"`
	LastScraped time.Time `json:"last_scraped"`
}

// HasID reports whether id was confirmed published.
func (s *TrackingState) HasID(id string) bool {
	for _, existing := range s.IDs {
		if existing == id {
			return true
		}
	}
	return false
}

// AddIDs merges ids into the confirmed list, keeping it sorted, and returns how many were new.
func (s *TrackingState) AddIDs(ids ...string) int {
	seen := make(map[string]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		seen[id] = struct{}{}
	}

	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.IDs = append(s.IDs, id)
		added++
	}
	sort.Strings(s.IDs)
	return added
}

// Record returns the scrape state for id under source.
func (s *TrackingState) Record(source, id string) (TrackingRecord, bool) {
	records, ok := s.Sources[source]
	if !ok {
		return TrackingRecord{}, false
	}
	rec, ok := records[id]
	return rec, ok
}

// SetRecord stores the scrape state for id under source.
func (s *TrackingState) SetRecord(source, id string, rec TrackingRecord) {
	if s.Sources == nil {
		s.Sources = map[string]map[string]TrackingRecord{}
	}
	if s.Sources[source] == nil {
		s.Sources[source] = map[string]TrackingRecord{}
	}
	s.Sources[source][id] = rec
}
