package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestPublishDigestPostsForm(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		path string
		chat string
		text string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		path, chat, text = r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	n := NewNotifier("123:abc", "-100", srv.URL, srv.Client())
	if err := n.PublishDigest(context.Background(), "AdobeDigest published:\n- APSB25-08"); err != nil {
		t.Fatalf("publish digest: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path: %s", path)
	}
	if chat != "-100" || !strings.Contains(text, "APSB25-08") {
		t.Fatalf("unexpected form: chat=%q text=%q", chat, text)
	}
}

func TestPublishDigestReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewNotifier("123:abc", "-100", srv.URL, srv.Client())
	err := n.PublishDigest(context.Background(), "digest")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestPublishDigestRequiresCredentials(t *testing.T) {
	t.Parallel()

	n := NewNotifier("", "", "", nil)
	if err := n.PublishDigest(context.Background(), "digest"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestPublishDigestTruncatesLongMessages(t *testing.T) {
	t.Parallel()

	var got int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		got = len([]rune(r.PostForm.Get("text")))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("t", "c", srv.URL, srv.Client())
	if err := n.PublishDigest(context.Background(), strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("publish digest: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got != maxMessageRunes {
		t.Fatalf("expected %d runes, got %d", maxMessageRunes, got)
	}
}
