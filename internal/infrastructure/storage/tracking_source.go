package storage

import (
	"context"

	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/ports"
)

// TrackingSource exposes a tracking store as a known-identifier signal.
type TrackingSource struct {
	store ports.TrackingStore
}

var _ ports.KnownSource = (*TrackingSource)(nil)

// NewTrackingSource wraps store.
func NewTrackingSource(store ports.TrackingStore) *TrackingSource {
	return &TrackingSource{store: store}
}

// Name identifies the signal in logs.
func (t *TrackingSource) Name() string {
	return "tracking-store"
}

// Collect adds confirmed identifiers and every per-source record with its hash.
func (t *TrackingSource) Collect(ctx context.Context, set *identity.KnownSet) error {
	state, err := t.store.Load(ctx)
	if err != nil {
		return err
	}

	set.AddID(state.IDs...)
	for source, records := range state.Sources {
		for id, rec := range records {
			set.AddHash(source, id, rec.Hash)
		}
	}
	return nil
}
