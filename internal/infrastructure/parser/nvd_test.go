package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/throttle"
)

func nvdItem(id, description string, metrics map[string]any, published, modified string) map[string]any {
	return map[string]any{
		"cve": map[string]any{
			"id":           id,
			"published":    published,
			"lastModified": modified,
			"descriptions": []map[string]string{
				{"lang": "es", "value": "otra cosa"},
				{"lang": "en", "value": description},
			},
			"metrics": metrics,
			"references": []map[string]string{
				{"url": "https://a.example"}, {"url": "https://b.example"}, {"url": "https://c.example"},
				{"url": "https://d.example"}, {"url": "https://e.example"}, {"url": "https://f.example"},
			},
		},
	}
}

func v31(score float64, severity string) map[string]any {
	return map[string]any{
		"cvssMetricV31": []map[string]any{{"cvssData": map[string]any{"baseScore": score, "baseSeverity": severity}}},
	}
}

func TestNVDScannerScan(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		requests []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		requests = append(requests, q.Get("keywordSearch")+"@"+q.Get("startIndex"))
		mu.Unlock()

		if r.Header.Get("apiKey") != "secret" {
			t.Errorf("missing api key header")
		}
		if q.Get("resultsPerPage") != "100" {
			t.Errorf("unexpected resultsPerPage %s", q.Get("resultsPerPage"))
		}
		if q.Get("lastModStartDate") != "2025-02-28T12:00:00.000" || q.Get("lastModEndDate") != "2025-03-10T12:00:00.000" {
			t.Errorf("unexpected window %s %s", q.Get("lastModStartDate"), q.Get("lastModEndDate"))
		}

		var body map[string]any
		switch q.Get("keywordSearch") + "@" + q.Get("startIndex") {
		case "Magento@0":
			body = map[string]any{"totalResults": 3, "vulnerabilities": []any{
				nvdItem("CVE-2025-0001", "Adobe Commerce versions 2.4.7 are affected by XSS.", v31(9.8, "CRITICAL"), "2025-03-01T10:00:00.000", "2025-03-05T11:00:00.000"),
				nvdItem("CVE-2025-0002", "A flaw in some other product.", v31(5.0, "MEDIUM"), "2025-03-01T10:00:00.000", "2025-03-01T10:00:00.000"),
			}}
		case "Magento@2":
			body = map[string]any{"totalResults": 3, "vulnerabilities": []any{
				nvdItem("CVE-2025-0003", "Magento Open Source is affected.", v31(4.3, "MEDIUM"), "2025-03-02T10:00:00.000", "2025-03-02T10:00:00.000"),
			}}
		case "AEM@0":
			body = map[string]any{"totalResults": 2, "vulnerabilities": []any{
				nvdItem("CVE-2025-0001", "Adobe Commerce versions 2.4.7 are affected by XSS.", v31(9.8, "CRITICAL"), "2025-03-01T10:00:00.000", "2025-03-05T11:00:00.000"),
				nvdItem("CVE-2025-0004", "Adobe Experience Manager (AEM) stored XSS.", map[string]any{
					"cvssMetricV2": []map[string]any{{"baseSeverity": "HIGH", "cvssData": map[string]any{"baseScore": 7}}},
				}, "2025-03-03T10:00:00.000", "2025-03-03T10:00:00.000"),
			}}
		default:
			body = map[string]any{"totalResults": 0, "vulnerabilities": []any{}}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	known := identity.NewKnownSet()
	known.AddID("cve-2025-0003")

	sc := NewNVDScanner(server.Client(), "", server.URL, "secret", throttle.New(0))
	results, err := sc.Scan(context.Background(), scanner.Request{
		Now:          time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
		SourceName:   "nist-nvd",
		Keywords:     []string{"Magento", "AEM"},
		LookbackDays: 10,
		Known:        known,
	})
	if err != nil {
		t.Fatalf("scan returned error: %v", err)
	}

	mu.Lock()
	sequence := strings.Join(requests, ",")
	mu.Unlock()
	if sequence != "Magento@0,Magento@2,AEM@0" {
		t.Fatalf("unexpected request sequence: %s", sequence)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(results))
	}

	c := results[0]
	if c.ID != "CVE-2025-0001" || c.Slug != "nist-cve-2025-0001" {
		t.Fatalf("unexpected id/slug: %s %s", c.ID, c.Slug)
	}
	if c.Title != "CVE-2025-0001 (CRITICAL) CVSS 9.8" {
		t.Fatalf("unexpected title: %s", c.Title)
	}
	if !c.PublishedAt.Equal(time.Date(2025, time.March, 5, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("post should be dated by last modification: %v", c.PublishedAt)
	}
	if c.URL != "https://nvd.nist.gov/vuln/detail/CVE-2025-0001" {
		t.Fatalf("unexpected url: %s", c.URL)
	}
	if c.Sections[0].Lines[0] != "**🔴 Severity: CRITICAL (CVSS 9.8)**\n" {
		t.Fatalf("unexpected severity line: %q", c.Sections[0].Lines[0])
	}
	if got := c.Sections[1].Lines; len(got) != 2 || got[1] != "**Last Modified:** 2025-03-05 ⚠️" {
		t.Fatalf("unexpected date lines: %v", got)
	}
	if got := c.Sections[2].Lines; len(got) != 6 || got[0] != "**References:**" {
		t.Fatalf("expected header plus five references, got %v", got)
	}
	if !strings.Contains(strings.Join(c.Tags, ","), "adobe-commerce,magento") {
		t.Fatalf("missing product tags: %v", c.Tags)
	}

	aem := results[1]
	if aem.Title != "CVE-2025-0004 (HIGH) CVSS 7.0" {
		t.Fatalf("unexpected v2 title: %s", aem.Title)
	}
	if got := aem.Sections[1].Lines; len(got) != 1 || got[0] != "**Published:** 2025-03-03" {
		t.Fatalf("unexpected date lines: %v", got)
	}
	if !strings.Contains(strings.Join(aem.Tags, ","), "adobe-experience-manager,aem") {
		t.Fatalf("missing aem tags: %v", aem.Tags)
	}
}

func TestNVDScannerStopsOnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusForbidden)
	}))
	defer server.Close()

	sc := NewNVDScanner(server.Client(), "", server.URL, "", nil)
	_, err := sc.Scan(context.Background(), scanner.Request{Now: time.Now(), SourceName: "nist-nvd", Keywords: []string{"Magento"}})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestCVSSPrecedence(t *testing.T) {
	t.Parallel()

	score := 6.1
	v2 := 9.0
	metrics := map[string][]nvdMetric{}
	metrics["cvssMetricV2"] = []nvdMetric{{BaseSeverity: "HIGH"}}
	metrics["cvssMetricV2"][0].CVSSData.BaseScore = &v2
	metrics["cvssMetricV30"] = []nvdMetric{{}}
	metrics["cvssMetricV30"][0].CVSSData.BaseScore = &score
	metrics["cvssMetricV30"][0].CVSSData.BaseSeverity = "MEDIUM"

	gotScore, gotSeverity := cvss(metrics)
	if gotScore != "6.1" || gotSeverity != "MEDIUM" {
		t.Fatalf("expected v3.0 metric to win, got %s %s", gotScore, gotSeverity)
	}

	if s, sev := cvss(nil); s != "" || sev != "" {
		t.Fatalf("expected empty metric, got %s %s", s, sev)
	}
}
