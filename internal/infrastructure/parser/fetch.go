package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AdobeDigest/internal/textutil"
)

const defaultUserAgent = "AdobeDigest/1.0"

// fetcher issues GET requests with a shared client and User-Agent.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(client *http.Client, userAgent string) fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return fetcher{client: client, userAgent: userAgent}
}

// get returns the open body of a 200 response; callers close it.
func (f fetcher) get(ctx context.Context, target string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", hostOf(target), resp.Status)
	}
	return resp.Body, nil
}

func (f fetcher) document(ctx context.Context, target string) (*goquery.Document, error) {
	body, err := f.get(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func hostOf(target string) string {
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		return u.Host
	}
	return target
}

// resolveURL joins href against base the way a browser would.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// nextAfter returns the first element matching selector that follows anchor in document order.
func nextAfter(doc *goquery.Document, anchor *goquery.Selection, selector string) *goquery.Selection {
	if anchor.Length() == 0 {
		return nil
	}
	target := anchor.Get(0)

	var found *goquery.Selection
	passed := false
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Get(0) == target {
			passed = true
			return true
		}
		if passed && s.Is(selector) {
			found = s
			return false
		}
		return true
	})
	return found
}

// cellTexts returns the trimmed text of the cells of a table row.
func cellTexts(row *goquery.Selection, selector string) []string {
	var cells []string
	row.Find(selector).Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, textutil.CollapseSpace(s.Text()))
	})
	return cells
}

// dataRows returns the rows of table after its header row.
func dataRows(table *goquery.Selection) *goquery.Selection {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return rows.Slice(0, 0)
	}
	return rows.Slice(1, goquery.ToEnd)
}
