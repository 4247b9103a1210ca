// Package feed reads the published site's JSON Feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/ports"
)

// Client downloads and decodes a JSON Feed.
type Client struct {
	url       string
	userAgent string
	client    *http.Client
}

var _ ports.PostLister = (*Client)(nil)

// NewClient targets feedURL; a nil client gets a 30 second timeout.
func NewClient(feedURL, userAgent string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: feedURL, userAgent: userAgent, client: client}
}

type jsonFeed struct {
	Items []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		DatePublished string `json:"date_published"`
		ContentHTML   string `json:"content_html"`
		ContentText   string `json:"content_text"`
	} `json:"items"`
}

// Posts returns every feed item in feed order.
func (c *Client) Posts(ctx context.Context) ([]domain.RemotePost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/feed+json, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	var payload jsonFeed
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	posts := make([]domain.RemotePost, 0, len(payload.Items))
	for _, item := range payload.Items {
		content := item.ContentHTML
		if content == "" {
			content = item.ContentText
		}
		posts = append(posts, domain.RemotePost{
			URL:         strings.TrimSpace(item.URL),
			Title:       strings.TrimSpace(item.Title),
			Content:     content,
			Published:   item.DatePublished,
			PublishedAt: domain.ParsePostDate(item.DatePublished),
		})
	}
	return posts, nil
}

// Source feeds published identifiers and titles into a KnownSet.
type Source struct {
	lister ports.PostLister
}

var _ ports.KnownSource = (*Source)(nil)

// NewSource wraps any post lister, normally the feed Client.
func NewSource(lister ports.PostLister) *Source {
	return &Source{lister: lister}
}

// Name labels the source in logs.
func (s *Source) Name() string {
	return "live-feed"
}

// Collect adds every published post to set.
func (s *Source) Collect(ctx context.Context, set *identity.KnownSet) error {
	posts, err := s.lister.Posts(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		set.AddRemote(p)
	}
	return nil
}
