package markdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/ports"
)

var yearDirExpr = regexp.MustCompile(`^[0-9]{4}$`)

var errNoFrontMatter = errors.New("missing front matter")

type frontMatter struct {
	Title      string   `yaml:"title"`
	Date       string   `yaml:"date"`
	URL        string   `yaml:"url"`
	Categories []string `yaml:"categories"`
	Tags       []string `yaml:"tags"`
}

// ParsePost splits a post file into front matter and body.
func ParsePost(path string, raw []byte) (domain.Post, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	rest, ok := strings.CutPrefix(text, "---\n")
	if !ok {
		return domain.Post{}, errNoFrontMatter
	}

	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if !strings.HasSuffix(rest, "\n---") {
			return domain.Post{}, errNoFrontMatter
		}
		end = len(rest) - len("\n---")
	}
	head := rest[:end]
	body := ""
	if tail := end + len("\n---\n"); tail <= len(rest) {
		body = rest[tail:]
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return domain.Post{}, fmt.Errorf("decode front matter: %w", err)
	}

	post := domain.Post{
		Title:       strings.TrimSpace(fm.Title),
		Date:        fm.Date,
		URL:         fm.URL,
		Categories:  fm.Categories,
		Tags:        fm.Tags,
		Body:        strings.TrimSpace(body),
		Path:        path,
		PublishedAt: domain.ParsePostDate(fm.Date),
	}
	post.ID = identity.PostID(post.Title, post.URL, path)
	return post, nil
}

// LoadPosts reads every post under the year directories of dir, newest first.
// Unreadable files are logged and skipped.
func LoadPosts(dir string, logger *slog.Logger) ([]domain.Post, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}

	var posts []domain.Post
	for _, entry := range entries {
		if !entry.IsDir() || !yearDirExpr.MatchString(entry.Name()) {
			continue
		}

		root := filepath.Join(dir, entry.Name())
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != ".md" {
				return nil
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("skip unreadable post", "path", path, "error", err)
				return nil
			}
			post, err := ParsePost(path, raw)
			if err != nil {
				logger.Warn("skip malformed post", "path", path, "error", err)
				return nil
			}
			posts = append(posts, post)
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", root, walkErr)
		}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].PublishedAt.Equal(posts[j].PublishedAt) {
			return posts[i].PublishedAt.After(posts[j].PublishedAt)
		}
		return posts[i].Path < posts[j].Path
	})
	return posts, nil
}

// LocalSource feeds identifiers and titles of local post files into a known set.
type LocalSource struct {
	dir    string
	logger *slog.Logger
}

var _ ports.KnownSource = (*LocalSource)(nil)

// NewLocalSource reads posts from dir.
func NewLocalSource(dir string, logger *slog.Logger) *LocalSource {
	return &LocalSource{dir: dir, logger: logger}
}

// Name identifies the signal in logs.
func (l *LocalSource) Name() string {
	return "local-files"
}

// Collect adds every local post to set.
func (l *LocalSource) Collect(_ context.Context, set *identity.KnownSet) error {
	posts, err := LoadPosts(l.dir, l.logger)
	if err != nil {
		return err
	}
	for _, p := range posts {
		set.AddPost(p)
	}
	return nil
}
