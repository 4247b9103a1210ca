package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
)

type memTracking struct {
	mu      sync.Mutex
	state   domain.TrackingState
	updates int
	loadErr error
}

func (m *memTracking) Load(context.Context) (domain.TrackingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.TrackingState{}, m.loadErr
	}
	return m.state, nil
}

func (m *memTracking) Update(_ context.Context, fn func(*domain.TrackingState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return fn(&m.state)
}

type staticSource struct {
	candidates []domain.Candidate
	err        error
	gotKnown   *identity.KnownSet
}

func (s *staticSource) Fetch(_ context.Context, known *identity.KnownSet) ([]domain.Candidate, error) {
	s.gotKnown = known
	return s.candidates, s.err
}

type funcCollector struct {
	name string
	fn   func(*identity.KnownSet)
}

func (f funcCollector) Name() string { return f.name }

func (f funcCollector) Collect(_ context.Context, set *identity.KnownSet) error {
	f.fn(set)
	return nil
}

type recordingWriter struct {
	emitted []string
	fail    map[string]error
}

func (w *recordingWriter) Emit(c domain.Candidate) (domain.EmitResult, error) {
	if err := w.fail[c.ID]; err != nil {
		return domain.EmitResult{}, err
	}
	w.emitted = append(w.emitted, c.ID)
	return domain.EmitResult{Path: "content/" + c.ID + ".md", Written: true}, nil
}

type staticLister struct {
	posts []domain.RemotePost
	err   error
}

func (s staticLister) Posts(context.Context) ([]domain.RemotePost, error) {
	return s.posts, s.err
}

type apiErr struct {
	status int
	body   string
}

func (e *apiErr) Error() string        { return fmt.Sprintf("micropub returned %d", e.status) }
func (e *apiErr) StatusCode() int      { return e.status }
func (e *apiErr) ResponseBody() string { return e.body }

type fakeBlog struct {
	mu      sync.Mutex
	created []string
	updated map[string]string
	deleted []string
	fail    map[string]error
}

func (b *fakeBlog) Create(_ context.Context, post domain.Post) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[post.ID]; err != nil {
		return "", err
	}
	b.created = append(b.created, post.ID)
	return "https://blog.example/" + post.ID, nil
}

func (b *fakeBlog) Update(_ context.Context, liveURL string, post domain.Post) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[post.ID]; err != nil {
		return err
	}
	if b.updated == nil {
		b.updated = map[string]string{}
	}
	b.updated[post.ID] = liveURL
	return nil
}

func (b *fakeBlog) Delete(_ context.Context, liveURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[liveURL]; err != nil {
		return err
	}
	b.deleted = append(b.deleted, liveURL)
	return nil
}

type captureNotifier struct {
	digests []string
}

func (n *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

func writePost(t *testing.T, dir, rel, title, date string) {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := fmt.Sprintf("---\ntitle: %q\ndate: %q\n---\nBody of %s\n", title, date, title)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write post: %v", err)
	}
}
