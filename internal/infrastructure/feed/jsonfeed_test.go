package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"AdobeDigest/internal/identity"
)

const sampleFeed = `{
  "version": "https://jsonfeed.org/version/1",
  "items": [
    {
      "url": "https://adobedigest.com/2025/02/11/apsb25-12-magento-security-update.html",
      "title": "APSB25-12 - Adobe Commerce Security Update",
      "date_published": "2025-02-11T00:00:00-05:00",
      "content_html": "<p>Summary</p>"
    },
    {
      "url": "https://adobedigest.com/2025/03/01/23e5ac.html",
      "title": "Magento polyfill supply chain",
      "date_published": "2025-03-01T08:00:00-05:00",
      "content_text": "plain"
    }
  ]
}`

func TestClientPosts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "AdobeDigest/test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/feed+json")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	posts, err := NewClient(server.URL, "AdobeDigest/test", server.Client()).Posts(context.Background())
	if err != nil {
		t.Fatalf("posts returned error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].Content != "<p>Summary</p>" || posts[1].Content != "plain" {
		t.Fatalf("unexpected content: %q %q", posts[0].Content, posts[1].Content)
	}
	want := time.Date(2025, time.February, 11, 5, 0, 0, 0, time.UTC)
	if !posts[0].PublishedAt.Equal(want) {
		t.Fatalf("unexpected date: %v", posts[0].PublishedAt)
	}
}

func TestClientStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, "", server.Client()).Posts(context.Background()); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestSourceCollect(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	set := identity.NewKnownSet()
	if err := NewSource(NewClient(server.URL, "", server.Client())).Collect(context.Background(), set); err != nil {
		t.Fatalf("collect returned error: %v", err)
	}

	if !set.HasID("APSB25-12") {
		t.Fatalf("expected bulletin id from feed")
	}
	if set.HasID("23e5ac") {
		t.Fatalf("hex slug must not become an identifier")
	}
	if !set.HasTitle("  magento POLYFILL supply chain ") {
		t.Fatalf("expected title guard entry")
	}
}

func TestClientPostsAcceptsLooseDates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"url":"https://adobedigest.com/a.html","title":"A","date_published":"2025-03-01T08:00:00"},
			{"url":"https://adobedigest.com/b.html","title":"B","date_published":"2025-03-02"}
		]}`))
	}))
	defer server.Close()

	posts, err := NewClient(server.URL, "", server.Client()).Posts(context.Background())
	if err != nil {
		t.Fatalf("posts returned error: %v", err)
	}
	if !posts[0].PublishedAt.Equal(time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date without offset: %v", posts[0].PublishedAt)
	}
	if !posts[1].PublishedAt.Equal(time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date-only value: %v", posts[1].PublishedAt)
	}
}
