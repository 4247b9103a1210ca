// Package microblog talks to a Micropub endpoint such as micro.blog.
package microblog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
)

const (
	defaultAPIURL      = "https://micro.blog/micropub"
	defaultSourceLimit = 1000
	errorBodyLimit     = 4 << 10
)

// APIError is a non-success response from the Micropub endpoint.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("micropub %s returned %d: %s", e.Op, e.Status, e.Body)
}

// StatusCode returns the HTTP status of the rejected call.
func (e *APIError) StatusCode() int { return e.Status }

// ResponseBody returns the start of the response body.
func (e *APIError) ResponseBody() string { return e.Body }

var _ ports.StatusError = (*APIError)(nil)

// Client issues Micropub create, update, delete and source queries with a bearer token.
type Client struct {
	apiURL      string
	token       string
	userAgent   string
	sourceLimit int
	client      *http.Client
}

var (
	_ ports.BlogClient = (*Client)(nil)
	_ ports.PostLister = (*Client)(nil)
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithSourceLimit caps the q=source listing.
func WithSourceLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sourceLimit = n
		}
	}
}

// NewClient targets apiURL (micro.blog when empty) with token.
func NewClient(apiURL, token string, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	c := &Client{
		apiURL:      apiURL,
		token:       token,
		sourceLimit: defaultSourceLimit,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create publishes post as a form-encoded h-entry and returns the Location of the new post.
// Any 2xx status counts as success.
func (c *Client) Create(ctx context.Context, post domain.Post) (string, error) {
	form := url.Values{}
	form.Set("h", "entry")
	form.Set("name", post.Title)
	form.Set("content", post.Body)
	if post.Date != "" {
		form.Set("published", post.Date)
	}
	for _, cat := range post.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			form.Add("category[]", cat)
		}
	}

	resp, err := c.do(ctx, "create", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header.Get("Location"), nil
}

// Update replaces the title and content of the post at liveURL.
func (c *Client) Update(ctx context.Context, liveURL string, post domain.Post) error {
	payload := map[string]any{
		"action": "update",
		"url":    liveURL,
		"replace": map[string][]string{
			"name":    {post.Title},
			"content": {post.Body},
		},
	}
	return c.postJSON(ctx, "update", payload, isSuccess)
}

// Delete removes the post at liveURL; 200, 201, 202 and 204 count as success.
func (c *Client) Delete(ctx context.Context, liveURL string) error {
	payload := map[string]string{"action": "delete", "url": liveURL}
	return c.postJSON(ctx, "delete", payload, func(status int) bool {
		switch status {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
			return true
		}
		return false
	})
}

type sourceResponse struct {
	Items []struct {
		Properties struct {
			URL       []string `json:"url"`
			Name      []string `json:"name"`
			Content   []any    `json:"content"`
			Published []string `json:"published"`
		} `json:"properties"`
	} `json:"items"`
}

// Posts lists published posts through the Micropub q=source query.
func (c *Client) Posts(ctx context.Context) ([]domain.RemotePost, error) {
	endpoint, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse micropub url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", "source")
	q.Set("limit", strconv.Itoa(c.sourceLimit))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("micropub source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("source", resp)
	}

	var payload sourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode source response: %w", err)
	}

	posts := make([]domain.RemotePost, 0, len(payload.Items))
	for _, item := range payload.Items {
		p := item.Properties
		post := domain.RemotePost{
			URL:         first(p.URL),
			Title:       first(p.Name),
			Published:   first(p.Published),
			PublishedAt: domain.ParsePostDate(first(p.Published)),
		}
		if len(p.Content) > 0 {
			if s, ok := p.Content[0].(string); ok {
				post.Content = s
			}
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (c *Client) postJSON(ctx context.Context, op string, payload any, ok func(int) bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", op, err)
	}

	resp, err := c.do(ctx, op, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return apiError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends an authorized POST. Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, op, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("micropub %s: %w", op, err)
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, apiError(op, resp)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func apiError(op string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
