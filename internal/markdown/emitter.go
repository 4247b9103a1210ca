// Package markdown renders candidates into micro.blog post files and reads them back.
package markdown

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/ports"
	"AdobeDigest/internal/textutil"
)

const (
	dateLayout       = "2006-01-02T15:04:05"
	dateOffsetSuffix = "-05:00"
	defaultLinkLabel = "Read Full Article"
)

// Emitter writes post files under a content directory partitioned by year/month/day.
type Emitter struct {
	dir      string
	guidBase string
	logger   *slog.Logger
}

var _ ports.PostWriter = (*Emitter)(nil)

// NewEmitter targets dir; guidBase prefixes the post URL path in the guid field.
func NewEmitter(dir, guidBase string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Emitter{
		dir:      dir,
		guidBase: strings.TrimSuffix(guidBase, "/"),
		logger:   logger,
	}
}

// Emit renders c and writes it unless the file already holds identical bytes.
func (e *Emitter) Emit(c domain.Candidate) (domain.EmitResult, error) {
	rel, urlPath, content := e.Render(c)
	path := filepath.Join(e.dir, filepath.FromSlash(rel))
	res := domain.EmitResult{Path: path, URL: urlPath}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		e.logger.Debug("post unchanged on disk", "path", path)
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("create date dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return res, fmt.Errorf("write post %s: %w", path, err)
	}

	res.Written = true
	e.logger.Info("post written", "path", path, "id", c.ID)
	return res, nil
}

// Render returns the relative file path, the site URL path and the file content for c.
func (e *Emitter) Render(c domain.Candidate) (string, string, []byte) {
	slug := PostSlug(c)
	datePath := c.PublishedAt.Format("2006/01/02")
	urlPath := "/" + datePath + "/" + slug + ".html"

	fields := []field{
		{"layout", "post"},
		{"title", c.Title},
		{"microblog", false},
		{"guid", e.guidBase + urlPath},
		{"date", c.PublishedAt.Format(dateLayout) + dateOffsetSuffix},
		{"type", "post"},
		{"url", urlPath},
		{"categories", c.Categories},
		{"tags", c.Tags},
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	writeFrontMatter(&buf, fields)
	buf.WriteString("---\n")
	buf.WriteString(renderBody(c))
	buf.WriteString("\n")

	return datePath + "/" + slug + ".md", urlPath, buf.Bytes()
}

// PostSlug returns the file slug of c, falling back to its identifier.
func PostSlug(c domain.Candidate) string {
	if c.Slug != "" {
		return c.Slug
	}
	return textutil.SlugPart(c.ID)
}

type field struct {
	key   string
	value any
}

func writeFrontMatter(buf *bytes.Buffer, fields []field) {
	for _, f := range fields {
		switch v := f.value.(type) {
		case bool:
			fmt.Fprintf(buf, "%s: %s\n", f.key, strconv.FormatBool(v))
		case []string:
			fmt.Fprintf(buf, "%s:\n", f.key)
			for _, item := range v {
				if strings.TrimSpace(item) == "" {
					continue
				}
				fmt.Fprintf(buf, "  - \"%s\"\n", quoteEscaper.Replace(item))
			}
		case string:
			if v == "" {
				fmt.Fprintf(buf, "%s: \"\"\n", f.key)
				continue
			}
			fmt.Fprintf(buf, "%s: \"%s\"\n", f.key, quoteEscaper.Replace(v))
		default:
			fmt.Fprintf(buf, "%s: \"%v\"\n", f.key, v)
		}
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func renderBody(c domain.Candidate) string {
	var parts []string
	for _, s := range c.Sections {
		if !hasContent(s.Lines) {
			continue
		}
		if s.Heading != "" {
			parts = append(parts, "## "+s.Heading+"\n")
		}
		parts = append(parts, s.Lines...)
		parts = append(parts, "")
	}

	if c.URL != "" {
		label := c.LinkLabel
		if label == "" {
			label = defaultLinkLabel
		}
		parts = append(parts, "---\n", fmt.Sprintf("[**%s →**](%s)", label, c.URL))
	}

	return strings.Join(parts, "\n")
}

func hasContent(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}
