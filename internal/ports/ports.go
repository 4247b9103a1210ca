package ports

import (
	"context"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
)

// CandidateSource pulls fresh candidates from every configured upstream source.
// Items whose identifiers are already in known may be skipped before their detail fetch.
type CandidateSource interface {
	Fetch(ctx context.Context, known *identity.KnownSet) ([]domain.Candidate, error)
}

// KnownSource contributes identity signals (tracking store, live feed, local files).
type KnownSource = identity.Collector

// TrackingStore persists the tracking document with atomic read-modify-write updates.
type TrackingStore interface {
	Load(ctx context.Context) (domain.TrackingState, error)
	Update(ctx context.Context, fn func(*domain.TrackingState) error) error
}

// PostWriter renders candidates into local post files.
type PostWriter interface {
	Emit(c domain.Candidate) (domain.EmitResult, error)
}

// PostLister lists posts already published on the blog.
type PostLister interface {
	Posts(ctx context.Context) ([]domain.RemotePost, error)
}

// PostDeleter removes a published post by its live URL.
type PostDeleter interface {
	Delete(ctx context.Context, liveURL string) error
}

// BlogClient creates, updates and deletes remote posts.
type BlogClient interface {
	PostDeleter
	Create(ctx context.Context, post domain.Post) (string, error)
	Update(ctx context.Context, liveURL string, post domain.Post) error
}

// StatusError is implemented by remote API errors that carry the HTTP response.
type StatusError interface {
	error
	StatusCode() int
	ResponseBody() string
}

// Notifier streams digests of published posts to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
