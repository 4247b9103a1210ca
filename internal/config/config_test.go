package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adobedigest.yaml")
	raw := `
content_dir: out
microblog:
  publish_limit: 3
  request_delay: 500ms
tracking:
  backend: sqlite
  sqlite_path: state.db
scheduler:
  cronExpression: "30 7 * * *"
  timezone: Europe/Berlin
sources:
  - name: research
    type: Atom-Feed
    url: https://example.org/atom.xml
  - type: nist-nvd
    keywords: [Magento]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MICROBLOG_TOKEN", "secret")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := Load(path)

	if cfg.ContentDir != "out" {
		t.Fatalf("unexpected content dir: %s", cfg.ContentDir)
	}
	if cfg.Microblog.PublishLimit != 3 || cfg.Microblog.RequestDelay != 500*time.Millisecond {
		t.Fatalf("unexpected microblog config: %+v", cfg.Microblog)
	}
	if cfg.Microblog.APIURL != "https://micro.blog/micropub" {
		t.Fatalf("default api url lost: %s", cfg.Microblog.APIURL)
	}
	if cfg.Microblog.Token != "secret" || cfg.Logging.Level != "warn" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Microblog, cfg.Logging)
	}
	if cfg.Tracking.Backend != "sqlite" || cfg.Tracking.SQLitePath != "state.db" || cfg.Tracking.Path != ".tracking.json" {
		t.Fatalf("unexpected tracking config: %+v", cfg.Tracking)
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected timezone: %s", cfg.Scheduler.Location())
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Type != SourceFeed || cfg.Sources[0].Limit != 50 {
		t.Fatalf("feed defaults not applied: %+v", cfg.Sources[0])
	}
	if cfg.Sources[1].Name != "nist-nvd-1" || cfg.Sources[1].LookbackDays != 30 {
		t.Fatalf("nvd defaults not applied: %+v", cfg.Sources[1])
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("ADOBE_DIGEST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load("")
	if len(cfg.Sources) != 4 {
		t.Fatalf("expected default sources, got %d", len(cfg.Sources))
	}
	if cfg.NVD.RequestDelay != 6*time.Second {
		t.Fatalf("unexpected nvd delay: %v", cfg.NVD.RequestDelay)
	}
	if cfg.Site.FeedURL != "https://adobedigest.com/feed.json" {
		t.Fatalf("unexpected feed url: %s", cfg.Site.FeedURL)
	}
}
