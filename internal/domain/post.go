package domain

import "time"

// SourceKind names a fetch strategy and the identifier scheme it produces.
type SourceKind string

const (
	KindHelpX    SourceKind = "adobe-helpx"
	KindFeed     SourceKind = "atom-feed"
	KindNVD      SourceKind = "nist-nvd"
	KindReleases SourceKind = "adobe-release-notes"
)

// Section is one body block of a post. An empty Heading renders Lines as a lead paragraph.
type Section struct {
	Heading string
	Lines   []string
}

// Candidate is a freshly fetched item waiting for reconciliation and emission.
type Candidate struct {
	ID          string
	Source      string
	Kind        SourceKind
	Title       string
	Slug        string
	URL         string
	PublishedAt time.Time
	Categories  []string
	Tags        []string
	Severity    string
	Sections    []Section
	LinkLabel   string
	Hash        string
}

// Post is a markdown file read back from the content directory.
type Post struct {
	ID          string
	Title       string
	Date        string
	URL         string
	Categories  []string
	Tags        []string
	Body        string
	Path        string
	PublishedAt time.Time
}

// RemotePost is a published entry addressed by its live URL.
type RemotePost struct {
	URL         string
	Title       string
	Content     string
	Published   string
	PublishedAt time.Time
}

// EmitResult describes one post file produced from a candidate.
type EmitResult struct {
	Path    string
	URL     string
	Written bool
}
