package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/scanner"
)

const helpxIndex = `
<html><body>
<h2 id="acrobat">Acrobat</h2>
<table><tr><td><a href="/security/products/acrobat/apsb25-01.html">Acrobat</a></td></tr></table>
<h2 id="magento">Adobe Commerce</h2>
<div><p>intro</p></div>
<table>
  <tr><td><a href="/security/products/magento/apsb25-08.html">Adobe Commerce</a></td></tr>
  <tr><td><a href="/security/products/magento/apsb25-12.html">Adobe Commerce</a></td></tr>
  <tr><td><a href="/security/products/magento/apsb25-12.html">Adobe Commerce</a></td></tr>
  <tr><td><a href="/security/products/magento/notes.html">Notes</a></td></tr>
</table>
</body></html>`

const helpxBulletin = `
<html><body>
<h1 class="page-title">Security update available for Adobe Commerce | APSB25-12</h1>
<table>
  <tr><th>Bulletin ID</th><th>Date Published</th><th>Priority</th></tr>
  <tr><td>APSB25-12</td><td>February 11, 2025</td><td>3</td></tr>
</table>
<h2 id="Summary">Summary</h2>
<p>Adobe has released a security update.</p>
<p>Exploitation could lead to arbitrary code execution.</p>
<h2 id="Affected">Affected Versions</h2>
<table>
  <tr><th>Product</th><th>Version</th></tr>
  <tr><td>Adobe Commerce</td><td>2.4.7-p3 and earlier</td></tr>
  <tr><td>Magento Open Source</td><td>2.4.7-p3 and earlier</td></tr>
</table>
<h2 id="Solution">Solution</h2>
<p>Adobe recommends updating to the latest version.</p>
<h2>Vulnerability Details</h2>
<table>
  <tr><th>Category</th><th>Impact</th><th>Severity</th><th>Auth</th><th>Admin</th><th>Score</th><th>Vector</th><th>CVE</th></tr>
  <tr><td>XSS</td><td>Privilege escalation</td><td>Important</td><td>Yes</td><td>No</td><td>5.4</td><td>AV:N</td><td>CVE-2025-24434</td></tr>
  <tr><td>Improper Authorization</td><td>Security bypass</td><td>Critical</td><td>No</td><td>No</td><td>9.1</td><td>AV:N</td><td>CVE-2025-24435</td></tr>
  <tr><td>Improper Input Validation</td><td>Security bypass</td><td>Critical</td><td>No</td><td>No</td><td>8.2</td><td>AV:N</td><td>CVE-2025-24434</td></tr>
</table>
<h2 id="Acknowledgements">Acknowledgements</h2>
<p>Thanks to researcher one.</p>
<ul><li>researcher two</li></ul>
</body></html>`

func TestHelpXScannerScan(t *testing.T) {
	t.Parallel()

	var bulletinHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/security/security-bulletin.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(helpxIndex))
	})
	mux.HandleFunc("/security/products/magento/apsb25-12.html", func(w http.ResponseWriter, r *http.Request) {
		bulletinHits.Add(1)
		_, _ = w.Write([]byte(helpxBulletin))
	})
	mux.HandleFunc("/security/products/magento/apsb25-08.html", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("known bulletin should not be fetched")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	known := identity.NewKnownSet()
	known.AddID("apsb25-08")

	sc := NewHelpXScanner(server.Client(), "")
	results, err := sc.Scan(context.Background(), scanner.Request{
		Now:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		SourceName: "adobe-commerce",
		URL:        server.URL + "/security/security-bulletin.html",
		SectionID:  "magento",
		Categories: []string{"adobe-commerce"},
		Known:      known,
	})
	if err != nil {
		t.Fatalf("scan returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(results))
	}
	if got := bulletinHits.Load(); got != 1 {
		t.Fatalf("expected one bulletin fetch, got %d", got)
	}

	c := results[0]
	if c.ID != "APSB25-12" {
		t.Fatalf("unexpected id: %s", c.ID)
	}
	if c.Slug != "apsb25-12-magento-security-update" {
		t.Fatalf("unexpected slug: %s", c.Slug)
	}
	if c.Title != "Security update available for Adobe Commerce | APSB25-12" {
		t.Fatalf("unexpected title: %s", c.Title)
	}
	if !c.PublishedAt.Equal(time.Date(2025, time.February, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", c.PublishedAt)
	}
	if c.Severity != "Critical" {
		t.Fatalf("unexpected severity: %s", c.Severity)
	}
	if !strings.HasSuffix(c.URL, "/security/products/magento/apsb25-12.html") {
		t.Fatalf("unexpected url: %s", c.URL)
	}

	wantTags := []string{"APSB25-12", "magento", "adobe-helpx", "adobe", "security-bulletin", "adobe-commerce", "Critical", "CVE-2025-24434", "CVE-2025-24435"}
	if strings.Join(c.Tags, ",") != strings.Join(wantTags, ",") {
		t.Fatalf("unexpected tags: %v", c.Tags)
	}
	if strings.Join(c.Categories, ",") != "security-bulletins,magento,adobe-commerce" {
		t.Fatalf("unexpected categories: %v", c.Categories)
	}

	sections := map[string][]string{}
	for _, s := range c.Sections {
		sections[s.Heading] = s.Lines
	}
	if got := sections["Summary"]; len(got) != 1 || got[0] != "Adobe has released a security update. Exploitation could lead to arbitrary code execution." {
		t.Fatalf("unexpected summary: %v", got)
	}
	if got := sections["CVE Identifiers"]; len(got) != 1 || got[0] != "CVE-2025-24434, CVE-2025-24435" {
		t.Fatalf("unexpected cve list: %v", got)
	}
	if got := sections["Affected Versions"]; len(got) != 2 || got[0] != "- **Adobe Commerce:** 2.4.7-p3 and earlier" {
		t.Fatalf("unexpected affected versions: %v", got)
	}
	if got := sections["Acknowledgements"]; len(got) != 2 || got[1] != "- researcher two" {
		t.Fatalf("unexpected acknowledgements: %v", got)
	}

	vulns := strings.Join(sections["Vulnerability Details"], "\n")
	for _, want := range []string{"**Total Vulnerabilities:** 3", "- **Important:** 1", "- **Critical:** 2", "### 2. CVE-2025-24435", "- **Authentication Required:** No"} {
		if !strings.Contains(vulns, want) {
			t.Fatalf("vulnerability details missing %q:\n%s", want, vulns)
		}
	}
	if strings.Index(vulns, "Important:") > strings.Index(vulns, "Critical:") {
		t.Fatalf("severity breakdown should be sorted descending:\n%s", vulns)
	}
}

func TestHelpXScannerMissingSection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(helpxIndex))
	}))
	defer server.Close()

	sc := NewHelpXScanner(server.Client(), "")
	_, err := sc.Scan(context.Background(), scanner.Request{SourceName: "aem", URL: server.URL, SectionID: "experience-manager"})
	if err == nil || !strings.Contains(err.Error(), "experience-manager") {
		t.Fatalf("expected missing section error, got %v", err)
	}
}

func TestDateFromBulletinID(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		id   string
		want time.Time
	}{
		{"APSB24-03", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"APSB24-17", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{"APSB23-99", time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)},
		{"unknown", now},
	}
	for _, tc := range cases {
		if got := dateFromBulletinID(tc.id, now); !got.Equal(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.id, tc.want, got)
		}
	}
}

func TestParseBulletinFallbacks(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>nothing here</p></body></html>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	b := parseBulletin(doc, bulletinLink{id: "APSB24-40", productName: "Adobe Commerce"}, time.Now())
	if b.title != "APSB24-40 - Adobe Commerce Security Update" {
		t.Fatalf("unexpected fallback title: %s", b.title)
	}
	if !b.published.Equal(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected fallback date: %v", b.published)
	}
	if b.severity != "" || len(b.cves) != 0 {
		t.Fatalf("expected no severity or cves, got %q %v", b.severity, b.cves)
	}
}
