package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/textutil"
)

var (
	bulletinLinkExpr = regexp.MustCompile(`/security/products/.*/apsb\d{2}-\d{2}\.html`)
	bulletinDateExpr = regexp.MustCompile(`(?i)^apsb(\d{2})-(\d{2})`)
	cveIDExpr        = regexp.MustCompile(`CVE-\d{4}-\d{4,7}`)
)

var severityRank = []string{"Critical", "Important", "Moderate", "Low"}

const (
	solutionLimit        = 500
	acknowledgementLimit = 200
)

// HelpXScanner reads the unified Adobe security bulletin page and every bulletin it links
// from one product section.
type HelpXScanner struct {
	fetch fetcher
}

// NewHelpXScanner wires an HTTP client and User-Agent; nil and "" take defaults.
func NewHelpXScanner(client *http.Client, userAgent string) *HelpXScanner {
	return &HelpXScanner{fetch: newFetcher(client, userAgent)}
}

// Name identifies the strategy inside the registry.
func (h *HelpXScanner) Name() string {
	return string(domain.KindHelpX)
}

type bulletinLink struct {
	id          string
	url         string
	productName string
}

type vulnerability struct {
	category string
	impact   string
	severity string
	auth     string
	admin    string
	score    string
	vector   string
	cve      string
}

type bulletin struct {
	title            string
	published        time.Time
	priority         string
	severity         string
	summary          string
	affected         [][2]string
	solution         string
	vulnerabilities  []vulnerability
	cves             []string
	acknowledgements []string
}

// Scan lists the bulletins of req.SectionID and parses those not already known. A bulletin
// that fails to load is reported in the joined error while the rest are still returned.
func (h *HelpXScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("source %s has no url", req.SourceName)
	}
	section := req.SectionID
	if section == "" {
		section = req.SourceName
	}

	index, err := h.fetch.document(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch bulletin index: %w", err)
	}

	links, err := bulletinLinks(index, req.URL, section)
	if err != nil {
		return nil, err
	}

	var (
		results []domain.Candidate
		errs    []error
	)
	for _, link := range links {
		if req.Seen(link.id) {
			continue
		}
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}

		page, err := h.fetch.document(ctx, link.url)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("bulletin %s: %w", link.id, err))
			continue
		}

		b := parseBulletin(page, link, req.Now)
		results = append(results, bulletinCandidate(b, link, section, req))
	}

	return results, errors.Join(errs...)
}

func bulletinLinks(doc *goquery.Document, base, section string) ([]bulletinLink, error) {
	anchor := doc.Find(fmt.Sprintf(`h2[id=%q]`, section)).First()
	if anchor.Length() == 0 {
		return nil, fmt.Errorf("section #%s not found", section)
	}
	table := nextAfter(doc, anchor, "table")
	if table == nil {
		return nil, fmt.Errorf("bulletin table for #%s not found", section)
	}

	var links []bulletinLink
	seen := map[string]struct{}{}
	table.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !bulletinLinkExpr.MatchString(strings.ToLower(href)) {
			return
		}
		id := identity.Canonical(domain.KindHelpX, href)
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		name := textutil.CollapseSpace(a.Text())
		if name == "" {
			name = section
		}
		links = append(links, bulletinLink{id: id, url: resolveURL(base, href), productName: name})
	})
	return links, nil
}

func parseBulletin(doc *goquery.Document, link bulletinLink, now time.Time) bulletin {
	var b bulletin

	b.title = textutil.CollapseSpace(doc.Find("h1.page-title").First().Text())
	if b.title == "" {
		b.title = fmt.Sprintf("%s - %s Security Update", link.id, link.productName)
	}

	tables := doc.Find("table")
	if rows := tables.Eq(0).Find("tr"); rows.Length() > 1 {
		cells := cellTexts(rows.Eq(1), "td, th")
		if len(cells) >= 2 {
			if t, err := time.Parse("January 2, 2006", cells[1]); err == nil {
				b.published = t
			}
		}
		if len(cells) >= 3 {
			b.priority = cells[2]
		}
	}
	if b.published.IsZero() {
		b.published = dateFromBulletinID(link.id, now)
	}

	b.summary = strings.Join(sectionTexts(doc, "Summary", "p"), " ")

	if tables.Length() > 1 {
		dataRows(tables.Eq(1)).Each(func(_ int, row *goquery.Selection) {
			cells := cellTexts(row, "td")
			if len(cells) >= 2 && cells[0] != "" && cells[1] != "" {
				b.affected = append(b.affected, [2]string{cells[0], cells[1]})
			}
		})
	}

	b.solution = strings.Join(sectionTexts(doc, "Solution", "p, ul, ol"), " ")

	b.vulnerabilities = vulnerabilityRows(doc)
	var cves []string
	for _, v := range b.vulnerabilities {
		cves = append(cves, cveIDExpr.FindAllString(v.cve, -1)...)
	}
	b.cves = textutil.Compact(cves)

	b.acknowledgements = sectionTexts(doc, "Acknowledgements", "p, ul")
	b.severity = overallSeverity(b.vulnerabilities)

	return b
}

// sectionTexts collects the texts of siblings matching selector between h2#id and the next h2.
func sectionTexts(doc *goquery.Document, id, selector string) []string {
	heading := doc.Find(fmt.Sprintf(`h2[id=%q]`, id)).First()
	if heading.Length() == 0 {
		return nil
	}
	var texts []string
	heading.NextUntil("h2").Filter(selector).Each(func(_ int, s *goquery.Selection) {
		if text := textutil.CollapseSpace(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

func vulnerabilityRows(doc *goquery.Document) []vulnerability {
	heading := doc.Find("h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "Vulnerability Details"
	}).First()
	table := nextAfter(doc, heading, "table")
	if table == nil {
		return nil
	}

	var vulns []vulnerability
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row, "td")
		if len(cells) < 8 {
			return
		}
		vulns = append(vulns, vulnerability{
			category: cells[0],
			impact:   cells[1],
			severity: cells[2],
			auth:     cells[3],
			admin:    cells[4],
			score:    cells[5],
			vector:   cells[6],
			cve:      cells[7],
		})
	})
	return vulns
}

func overallSeverity(vulns []vulnerability) string {
	present := map[string]bool{}
	for _, v := range vulns {
		present[v.severity] = true
	}
	for _, s := range severityRank {
		if present[s] {
			return s
		}
	}
	return ""
}

// dateFromBulletinID estimates a publish date from APSByy-nn, roughly eight bulletins a month.
func dateFromBulletinID(id string, now time.Time) time.Time {
	m := bulletinDateExpr.FindStringSubmatch(id)
	if m == nil {
		return now
	}
	yy, _ := strconv.Atoi(m[1])
	n, _ := strconv.Atoi(m[2])
	month := min(n/8+1, 12)
	return time.Date(2000+yy, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func bulletinCandidate(b bulletin, link bulletinLink, section string, req scanner.Request) domain.Candidate {
	product := textutil.SlugPart(section)

	tags := []string{link.id, product, "adobe-helpx", "adobe", "security-bulletin", req.SourceName}
	if b.severity != "" {
		tags = append(tags, b.severity)
	}
	tags = append(tags, b.cves[:min(len(b.cves), 10)]...)
	tags = append(tags, req.Tags...)

	return domain.Candidate{
		ID:          link.id,
		Source:      req.SourceName,
		Kind:        domain.KindHelpX,
		Title:       b.title,
		Slug:        fmt.Sprintf("%s-%s-security-update", strings.ToLower(link.id), product),
		URL:         link.url,
		PublishedAt: b.published,
		Categories:  append([]string{"security-bulletins", product}, req.Categories...),
		Tags:        tags,
		Severity:    b.severity,
		Sections:    bulletinSections(b, link),
		LinkLabel:   "Read Full Bulletin on Adobe Security Portal",
	}
}

func bulletinSections(b bulletin, link bulletinLink) []domain.Section {
	info := []string{
		"- **Bulletin ID:** " + link.id,
		"- **Product:** " + link.productName,
		"- **Published:** " + b.published.Format("January 02, 2006"),
	}
	if b.priority != "" {
		info = append(info, "- **Priority:** "+b.priority)
	}
	if b.severity != "" {
		info = append(info, "- **Severity:** "+b.severity)
	}
	if len(b.cves) > 0 {
		info = append(info, fmt.Sprintf("- **CVE Count:** %d", len(b.cves)))
	}

	var affected []string
	for _, av := range b.affected[:min(len(b.affected), 5)] {
		affected = append(affected, fmt.Sprintf("- **%s:** %s", av[0], av[1]))
	}
	if len(b.affected) > 5 {
		affected = append(affected, fmt.Sprintf("- *...and %d more versions*", len(b.affected)-5))
	}

	var solution []string
	if b.solution != "" {
		solution = append(solution, textutil.Truncate(b.solution, solutionLimit))
		if len([]rune(b.solution)) > solutionLimit {
			solution = append(solution, "...")
		}
	}

	var summary []string
	if b.summary != "" {
		summary = []string{b.summary}
	}

	var cves []string
	if len(b.cves) > 0 {
		cves = []string{strings.Join(b.cves, ", ")}
	}

	var acks []string
	for _, ack := range b.acknowledgements[:min(len(b.acknowledgements), 3)] {
		acks = append(acks, "- "+textutil.Truncate(ack, acknowledgementLimit))
	}

	return []domain.Section{
		{Heading: "Summary", Lines: summary},
		{Heading: "Bulletin Information", Lines: info},
		{Heading: "Affected Versions", Lines: affected},
		{Heading: "Solution", Lines: solution},
		{Heading: "Vulnerability Details", Lines: vulnerabilityLines(b.vulnerabilities)},
		{Heading: "CVE Identifiers", Lines: cves},
		{Heading: "Acknowledgements", Lines: acks},
	}
}

func vulnerabilityLines(vulns []vulnerability) []string {
	if len(vulns) == 0 {
		return nil
	}

	lines := []string{fmt.Sprintf("**Total Vulnerabilities:** %d\n", len(vulns))}

	counts := map[string]int{}
	for _, v := range vulns {
		sev := v.severity
		if sev == "" {
			sev = "Unknown"
		}
		counts[sev]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	lines = append(lines, "**Severity Breakdown:**")
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- **%s:** %d", k, counts[k]))
	}
	lines = append(lines, "", "**Key Vulnerabilities:**\n")

	for i, v := range vulns[:min(len(vulns), 3)] {
		lines = append(lines,
			fmt.Sprintf("### %d. %s", i+1, orDefault(v.cve, "Unknown CVE")),
			"- **Category:** "+orDefault(v.category, "N/A"),
			"- **Impact:** "+orDefault(v.impact, "N/A"),
			"- **Severity:** "+orDefault(v.severity, "N/A"),
			"- **CVSS Score:** "+orDefault(v.score, "N/A"),
		)
		if v.auth != "" {
			lines = append(lines, "- **Authentication Required:** "+v.auth)
		}
		lines = append(lines, "")
	}

	if len(vulns) > 3 {
		lines = append(lines, fmt.Sprintf("*...and %d more vulnerabilities*\n", len(vulns)-3))
	}
	return lines
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
