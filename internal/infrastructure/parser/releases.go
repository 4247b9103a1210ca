package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/textutil"
)

const defaultReleaseProduct = "adobe-commerce"

var (
	releaseVersionExpr = regexp.MustCompile(`/(\d+[-.]\d+[-.]\d+(?:[-.]p\d+)?)(?:/|$|\?|#)`)
	versionPartsExpr   = regexp.MustCompile(`^(\d+)[-.](\d+)[-.](\d+)`)
	dateCellExpr       = regexp.MustCompile(`(?i)release|published|date`)

	highlightsExpr = regexp.MustCompile(`(?i)Highlights?|What's New`)
	securityExpr   = regexp.MustCompile(`(?i)Security`)
	platformExpr   = regexp.MustCompile(`(?i)Platform`)
)

type textDatePattern struct {
	expr    *regexp.Regexp
	layouts []string
}

var releaseTextDates = []textDatePattern{
	{regexp.MustCompile(`(?i)Release date[:\s]+([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`), []string{"January 2, 2006", "January 2 2006"}},
	{regexp.MustCompile(`(?i)Released[:\s]+([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`), []string{"January 2, 2006", "January 2 2006"}},
	{regexp.MustCompile(`(?i)Published[:\s]+([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`), []string{"January 2, 2006", "January 2 2006"}},
	{regexp.MustCompile(`(?i)Release date[:\s]+(\d{4}-\d{2}-\d{2})`), []string{"2006-01-02"}},
	{regexp.MustCompile(`(?i)(\d{1,2}\s+[A-Z][a-z]+\s+\d{4})`), []string{"2 January 2006"}},
	{regexp.MustCompile(`(?i)([A-Z][a-z]+\s+\d{4})`), []string{"January 2006"}},
}

var releaseCellLayouts = []string{"January 2, 2006", "January 2006", "2006-01-02", "2 January 2006"}

// ReleaseScanner reads an Experience League versions page and the release notes it links.
type ReleaseScanner struct {
	fetch fetcher
}

// NewReleaseScanner wires an HTTP client and User-Agent; nil and "" take defaults.
func NewReleaseScanner(client *http.Client, userAgent string) *ReleaseScanner {
	return &ReleaseScanner{fetch: newFetcher(client, userAgent)}
}

// Name identifies the strategy inside the registry.
func (r *ReleaseScanner) Name() string {
	return string(domain.KindReleases)
}

type releaseLink struct {
	id      string
	version string
	url     string
}

type releaseNotes struct {
	title      string
	published  time.Time
	summary    string
	highlights []string
	security   []string
	platform   []string
	hash       string
}

// Scan lists release links for req.Product. Known releases are refetched only when a stored
// hash exists to compare against, so edited notes come back as updates.
func (r *ReleaseScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("source %s has no url", req.SourceName)
	}
	product := req.Product
	if product == "" {
		product = defaultReleaseProduct
	}

	index, err := r.fetch.document(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch versions page: %w", err)
	}

	var (
		results []domain.Candidate
		errs    []error
	)
	for _, link := range releaseLinks(index, req.URL, product) {
		if req.Seen(link.id) && req.Known.Hash(req.SourceName, link.id) == "" {
			continue
		}
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}

		page, err := r.fetch.document(ctx, link.url)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("release %s: %w", link.id, err))
			continue
		}

		notes := parseReleaseNotes(page, link, product, req)
		results = append(results, releaseCandidate(notes, link, product, req))
	}

	return results, errors.Join(errs...)
}

func releaseLinks(doc *goquery.Document, base, product string) []releaseLink {
	var links []releaseLink
	seen := map[string]struct{}{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/release/notes/") {
			return
		}
		if !strings.Contains(href, "adobe-commerce") && !strings.Contains(href, "magento-open-source") {
			return
		}
		m := releaseVersionExpr.FindStringSubmatch(href)
		if m == nil {
			return
		}
		version := strings.ReplaceAll(m[1], ".", "-")
		if _, ok := seen[version]; ok {
			return
		}
		seen[version] = struct{}{}

		links = append(links, releaseLink{
			id:      identity.Canonical(domain.KindReleases, product+"-"+version),
			version: version,
			url:     resolveURL(base, href),
		})
	})
	return links
}

func parseReleaseNotes(doc *goquery.Document, link releaseLink, product string, req scanner.Request) releaseNotes {
	var notes releaseNotes

	notes.title = textutil.CollapseSpace(doc.Find("h1").First().Text())
	if notes.title == "" {
		notes.title = fmt.Sprintf("%s %s Release Notes", releaseDisplayName(product, req), link.version)
	}

	notes.published = releaseDate(doc, link.version, req.Now)

	notes.highlights = releaseSection(doc, highlightsExpr, 5)
	notes.security = releaseSection(doc, securityExpr, 3)
	notes.platform = releaseSection(doc, platformExpr, 3)

	if len(notes.highlights) > 0 {
		notes.summary = textutil.Truncate(strings.Join(notes.highlights[:min(len(notes.highlights), 2)], " "), 300)
	} else {
		doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			text := textutil.CollapseSpace(p.Text())
			if len([]rune(text)) > 50 {
				notes.summary = textutil.Truncate(text, 300)
				return false
			}
			return true
		})
	}

	notes.hash = identity.DocumentHash(doc.Selection)
	return notes
}

// releaseDate tries, in order: meta[name=date], dates in the page text, date cells in the
// first three tables, an estimate from the version number, and January 1 of this year.
func releaseDate(doc *goquery.Document, version string, now time.Time) time.Time {
	if content, ok := doc.Find(`meta[name="date"]`).First().Attr("content"); ok && content != "" {
		if t, ok := parseMetaDate(content); ok {
			return t
		}
	}

	text := textutil.CollapseSpace(doc.Text())
	for _, p := range releaseTextDates {
		m := p.expr.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t, ok := parseAny(m[1], p.layouts); ok {
			return t
		}
	}

	if t, ok := tableReleaseDate(doc); ok {
		return t
	}

	if m := versionPartsExpr.FindStringSubmatch(version); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		year := 2024
		if major == 2 {
			year = 2020 + minor
		}
		month := (patch * 3) % 12
		if month == 0 {
			month = 12
		}
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	}

	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

func parseMetaDate(content string) (time.Time, bool) {
	if strings.Contains(content, "T") {
		return parseAny(content, []string{time.RFC3339, "2006-01-02T15:04:05"})
	}
	return parseAny(content, []string{"2006-01-02"})
}

func tableReleaseDate(doc *goquery.Document) (time.Time, bool) {
	var (
		found time.Time
		ok    bool
	)
	doc.Find("table").Slice(0, min(doc.Find("table").Length(), 3)).EachWithBreak(func(_ int, table *goquery.Selection) bool {
		table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := cellTexts(row, "td, th")
			for i, cell := range cells {
				if !dateCellExpr.MatchString(cell) {
					continue
				}
				candidate := cell
				if i+1 < len(cells) {
					candidate = cells[i+1]
				}
				if found, ok = parseAny(candidate, releaseCellLayouts); ok {
					return false
				}
			}
			return true
		})
		return !ok
	})
	return found, ok
}

func parseAny(value string, layouts []string) (time.Time, bool) {
	value = textutil.CollapseSpace(value)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// releaseSection collects up to limit items following the first h2/h3 whose text matches expr.
func releaseSection(doc *goquery.Document, expr *regexp.Regexp, limit int) []string {
	heading := doc.Find("h2, h3").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return expr.MatchString(s.Text())
	}).First()
	if heading.Length() == 0 {
		return nil
	}

	var items []string
	heading.NextUntil("h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "ul":
			s.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
				if text := textutil.CollapseSpace(li.Text()); text != "" {
					items = append(items, text)
				}
				return len(items) < limit
			})
		case "p":
			if text := textutil.CollapseSpace(s.Text()); text != "" {
				items = append(items, text)
			}
		}
		return len(items) < limit
	})
	return items[:min(len(items), limit)]
}

func releaseDisplayName(product string, req scanner.Request) string {
	if req.DisplayName != "" {
		return req.DisplayName
	}
	return textutil.DisplayName(product)
}

func releaseCandidate(notes releaseNotes, link releaseLink, product string, req scanner.Request) domain.Candidate {
	category := textutil.SlugPart(product)
	security := strings.Contains(strings.ToLower(link.version), "p") || len(notes.security) > 0

	tags := []string{link.version, category, "release-notes", req.SourceName}
	if security {
		tags = append(tags, "security-release")
	}
	tags = append(tags, req.Tags...)

	var overview []string
	if notes.summary != "" {
		overview = []string{notes.summary}
	}

	return domain.Candidate{
		ID:          link.id,
		Source:      req.SourceName,
		Kind:        domain.KindReleases,
		Title:       notes.title,
		Slug:        link.id,
		URL:         link.url,
		PublishedAt: notes.published,
		Categories:  append([]string{"releases", category}, req.Categories...),
		Tags:        tags,
		Sections: []domain.Section{
			{Heading: "Overview", Lines: overview},
			{Heading: "Release Information", Lines: []string{
				"- **Version:** " + link.version,
				"- **Product:** " + releaseDisplayName(product, req),
				"- **Released:** " + notes.published.Format("January 02, 2006"),
			}},
			{Heading: "Highlights", Lines: bullets(notes.highlights)},
			{Heading: "Security Enhancements", Lines: bullets(notes.security)},
			{Heading: "Platform Upgrades", Lines: bullets(notes.platform)},
		},
		LinkLabel: "Read Full Release Notes",
		Hash:      notes.hash,
	}
}

func bullets(items []string) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return lines
}
