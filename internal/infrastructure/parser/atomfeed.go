package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/textutil"
)

const feedSummaryLimit = 500

// FeedScanner turns Atom or RSS entries into research posts, optionally filtered by keywords.
type FeedScanner struct {
	fetch     fetcher
	converter *md.Converter
}

// NewFeedScanner wires an HTTP client and User-Agent; nil and "" take defaults.
func NewFeedScanner(client *http.Client, userAgent string) *FeedScanner {
	return &FeedScanner{
		fetch:     newFetcher(client, userAgent),
		converter: md.NewConverter("", true, nil),
	}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return string(domain.KindFeed)
}

// Scan parses the feed at req.URL. The include filter and the known-id check run before
// req.Limit is applied.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("source %s has no url", req.SourceName)
	}

	body, err := f.fetch.get(ctx, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = req.SourceName
	}
	display := req.DisplayName
	if display == "" {
		display = textutil.DisplayName(req.SourceName)
	}

	var results []domain.Candidate
	seen := map[string]struct{}{}
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Untitled"
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		if !matchesIncludes(title+" "+content, req.Includes) {
			continue
		}

		id := feedItemID(prefix, item.Link)
		if _, dup := seen[id]; dup || req.Seen(id) {
			continue
		}
		seen[id] = struct{}{}

		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}

		published := req.Now
		switch {
		case item.UpdatedParsed != nil:
			published = *item.UpdatedParsed
		case item.PublishedParsed != nil:
			published = *item.PublishedParsed
		}

		summary := f.summary(content)
		if summary == "" && req.Extract {
			summary = f.extract(ctx, item.Link)
		}

		var lead []string
		if summary != "" {
			lead = []string{textutil.Ellipsize(summary, feedSummaryLimit)}
		}

		tags := append([]string{"news", "security-research", req.SourceName}, req.Categories...)
		tags = append(tags, req.Tags...)

		results = append(results, domain.Candidate{
			ID:          id,
			Source:      req.SourceName,
			Kind:        domain.KindFeed,
			Title:       title,
			Slug:        id,
			URL:         item.Link,
			PublishedAt: published,
			Categories:  append([]string{"security-research"}, req.Categories...),
			Tags:        tags,
			Sections:    []domain.Section{{Lines: lead}},
			LinkLabel:   "Read Full Article on " + display,
		})
	}

	return results, nil
}

func (f *FeedScanner) summary(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	text, err := f.converter.ConvertString(html)
	if err != nil {
		return textutil.CollapseSpace(html)
	}
	return strings.TrimSpace(text)
}

// extract pulls an excerpt from the article page itself; failures yield "".
func (f *FeedScanner) extract(ctx context.Context, link string) string {
	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	body, err := f.fetch.get(ctx, link, nil)
	if err != nil {
		return ""
	}
	defer body.Close()

	article, err := readability.FromReader(body, pageURL)
	if err != nil {
		return ""
	}
	if excerpt := textutil.CollapseSpace(article.Excerpt); excerpt != "" {
		return excerpt
	}
	return textutil.CollapseSpace(article.TextContent)
}

func matchesIncludes(text string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, kw := range includes {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// feedItemID builds "<prefix>-<tail>" from the last path segment of link.
func feedItemID(prefix, link string) string {
	tail := link
	if i := strings.IndexAny(tail, "?#"); i >= 0 {
		tail = tail[:i]
	}
	tail = strings.TrimSuffix(tail, "/")
	if i := strings.LastIndex(tail, "/"); i >= 0 {
		tail = tail[i+1:]
	}
	tail = strings.ReplaceAll(tail, ".html", "")
	if prefix == "" {
		return tail
	}
	return prefix + "-" + tail
}
