package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"AdobeDigest/internal/domain"
)

func publishFixture(t *testing.T) (string, staticLister, *memTracking) {
	t.Helper()

	dir := t.TempDir()
	writePost(t, dir, "2025/03/10/apsb25-08.md", "Security update for Adobe Commerce | APSB25-08", "2025-03-10T09:00:00-05:00")
	writePost(t, dir, "2025/03/09/cve.md", "CVE-2025-1111: stored XSS in admin grid", "2025-03-09T09:00:00-05:00")
	writePost(t, dir, "2025/03/08/release.md", "Adobe Commerce 2.4.8 released", "2025-03-08T09:00:00-05:00")
	writePost(t, dir, "2025/03/07/apsb25-01.md", "Security update for Adobe Commerce | APSB25-01", "2025-03-07T09:00:00-05:00")
	writePost(t, dir, "2025/03/06/dup.md", "Known Title", "2025-03-06T09:00:00-05:00")

	feed := staticLister{posts: []domain.RemotePost{
		{URL: "https://blog.example/2025/03/06/abc123.html", Title: "Known title"},
		{URL: "https://blog.example/2025/02/01/apsb25-02-security-update.html", Title: "Older bulletin"},
	}}
	tracking := &memTracking{state: domain.TrackingState{IDs: []string{"APSB25-01"}}}
	return dir, feed, tracking
}

func TestPublishHonoursLimitAndGuards(t *testing.T) {
	t.Parallel()

	dir, feed, tracking := publishFixture(t)
	blog := &fakeBlog{}
	notifier := &captureNotifier{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: tracking, Notifier: notifier})

	report, err := p.Run(context.Background(), PublishOptions{Limit: 2})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if report.Local != 5 || report.Pending != 3 {
		t.Fatalf("unexpected counters: local=%d pending=%d", report.Local, report.Pending)
	}
	if len(blog.created) != 2 || blog.created[0] != "APSB25-08" || blog.created[1] != "CVE-2025-1111" {
		t.Fatalf("expected newest two posts, got %v", blog.created)
	}
	if report.Confirmed != 2 {
		t.Fatalf("expected 2 confirmed, got %d", report.Confirmed)
	}
	want := []string{"APSB25-01", "APSB25-08", "CVE-2025-1111"}
	if strings.Join(tracking.state.IDs, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected tracking ids: %v", tracking.state.IDs)
	}
	if len(notifier.digests) != 1 || !strings.Contains(notifier.digests[0], "APSB25-08") {
		t.Fatalf("unexpected digests: %v", notifier.digests)
	}
}

func TestPublishDefaultLimit(t *testing.T) {
	t.Parallel()

	dir, feed, tracking := publishFixture(t)
	for i := 0; i < 6; i++ {
		day := fmt.Sprintf("2024-12-%02d", i+1)
		writePost(t, dir, fmt.Sprintf("2024/12/%02d/extra-%d.md", i+1, i), fmt.Sprintf("Extra post %d", i), day+"T00:00:00Z")
	}
	blog := &fakeBlog{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: tracking})

	report, err := p.Run(context.Background(), PublishOptions{})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(blog.created) != defaultPublishLimit || report.Pending != 9 {
		t.Fatalf("expected %d creates of 9 pending, got %d of %d", defaultPublishLimit, len(blog.created), report.Pending)
	}
}

func TestPublishRecordsRejectedCalls(t *testing.T) {
	t.Parallel()

	dir, feed, tracking := publishFixture(t)
	blog := &fakeBlog{fail: map[string]error{"CVE-2025-1111": &apiErr{status: 401, body: "invalid token"}}}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: tracking})

	report, err := p.Run(context.Background(), PublishOptions{Limit: 3})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(report.Items) != 3 || report.Succeeded() != 2 {
		t.Fatalf("unexpected items: %+v", report.Items)
	}
	failed := report.Items[1]
	if failed.ID != "CVE-2025-1111" || failed.Status != 401 || failed.Body != "invalid token" {
		t.Fatalf("rejected call not recorded: %+v", failed)
	}
	for _, id := range tracking.state.IDs {
		if id == "CVE-2025-1111" {
			t.Fatalf("rejected post must not be confirmed")
		}
	}
	if !strings.Contains(strings.Join(blog.created, ","), "release") {
		t.Fatalf("run should continue after a rejected call: %v", blog.created)
	}
}

func TestPublishUpdateMode(t *testing.T) {
	t.Parallel()

	dir, _, tracking := publishFixture(t)
	feed := staticLister{posts: []domain.RemotePost{
		{URL: "https://blog.example/2025/03/10/apsb25-08-security-update.html", Title: "Security update for Adobe Commerce | APSB25-08"},
	}}
	blog := &fakeBlog{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: tracking})

	report, err := p.Run(context.Background(), PublishOptions{Update: []string{"apsb25-08", "APSB99-99"}})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(blog.created) != 0 {
		t.Fatalf("update mode must not create posts: %v", blog.created)
	}
	if got := blog.updated["APSB25-08"]; got != "https://blog.example/2025/03/10/apsb25-08-security-update.html" {
		t.Fatalf("unexpected update target: %q", got)
	}
	if len(report.Items) != 2 || report.Items[0].Action != ActionUpdate || report.Items[1].Err == nil {
		t.Fatalf("unexpected items: %+v", report.Items)
	}
}

func TestPublishUpdateSkipsNewerLookalike(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePost(t, dir, "2025/04/08/adobe-commerce-2-4-8.md", "Adobe Commerce 2.4.8", "2025-04-08T09:00:00-05:00")
	feed := staticLister{posts: []domain.RemotePost{
		{URL: "https://blog.example/2025/06/10/adobe-commerce-2-4-8-p1.html", Title: "Adobe Commerce 2.4.8-p1"},
		{URL: "https://blog.example/2025/04/08/adobe-commerce-2-4-8.html", Title: "Adobe Commerce 2.4.8"},
	}}
	blog := &fakeBlog{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: &memTracking{}})

	if _, err := p.Run(context.Background(), PublishOptions{Update: []string{"adobe-commerce-2-4-8"}}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if got := blog.updated["adobe-commerce-2-4-8"]; got != "https://blog.example/2025/04/08/adobe-commerce-2-4-8.html" {
		t.Fatalf("update targeted %q", got)
	}
}

type cancellingBlog struct {
	fakeBlog
	once   sync.Once
	cancel context.CancelFunc
}

func (b *cancellingBlog) Create(ctx context.Context, post domain.Post) (string, error) {
	url, err := b.fakeBlog.Create(ctx, post)
	b.once.Do(b.cancel)
	return url, err
}

func TestPublishConfirmsBeforeCancellation(t *testing.T) {
	t.Parallel()

	dir, feed, tracking := publishFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	blog := &cancellingBlog{cancel: cancel}
	notifier := &captureNotifier{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: feed, Tracking: tracking, Notifier: notifier})

	report, err := p.Run(ctx, PublishOptions{Limit: 3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(blog.created) != 1 || report.Confirmed != 1 {
		t.Fatalf("expected one confirmed create, got created=%v confirmed=%d", blog.created, report.Confirmed)
	}
	if len(notifier.digests) != 0 {
		t.Fatalf("cancelled run must not notify")
	}
}

func TestPublishToleratesFeedOutage(t *testing.T) {
	t.Parallel()

	dir, _, tracking := publishFixture(t)
	blog := &fakeBlog{}
	p := NewPublisher(PublishDeps{ContentDir: dir, Blog: blog, Feed: staticLister{err: errors.New("503")}, Tracking: tracking})

	report, err := p.Run(context.Background(), PublishOptions{Limit: 10})
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	// Without the feed, the title guard has nothing to match.
	if report.Pending != 4 {
		t.Fatalf("expected 4 pending, got %d", report.Pending)
	}
}
