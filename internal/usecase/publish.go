package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/markdown"
	"AdobeDigest/internal/ports"
	"AdobeDigest/internal/throttle"
)

const defaultPublishLimit = 5

// Publish actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// PublishDeps wires the driven adapters of a publish run.
type PublishDeps struct {
	ContentDir string
	Blog       ports.BlogClient
	Feed       ports.PostLister
	Tracking   ports.TrackingStore
	Notifier   ports.Notifier
	Pacer      *throttle.Pacer
	Logger     *slog.Logger
}

// PublishOptions tunes one publish run.
type PublishOptions struct {
	Limit int
	// Update lists identifiers whose live posts are replaced instead of publishing new ones.
	Update []string
}

// PublishItem is the outcome of one API call.
type PublishItem struct {
	ID     string
	Title  string
	Path   string
	Action string
	URL    string
	Status int
	Body   string
	Err    error
}

// PublishReport summarises a publish run.
type PublishReport struct {
	Local     int
	Pending   int
	Items     []PublishItem
	Confirmed int
}

// Succeeded counts calls that went through.
func (r PublishReport) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// Publisher pushes local posts the blog does not have yet.
type Publisher struct {
	contentDir string
	blog       ports.BlogClient
	feed       ports.PostLister
	tracking   ports.TrackingStore
	notifier   ports.Notifier
	pacer      *throttle.Pacer
	logger     *slog.Logger
	now        func() time.Time
}

// NewPublisher constructs the publish use case.
func NewPublisher(deps PublishDeps) *Publisher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{
		contentDir: deps.ContentDir,
		blog:       deps.Blog,
		feed:       deps.Feed,
		tracking:   deps.Tracking,
		notifier:   deps.Notifier,
		pacer:      deps.Pacer,
		logger:     logger,
		now:        time.Now,
	}
}

// Run publishes up to opts.Limit unknown local posts, newest first, or replaces the posts
// named in opts.Update. A rejected call is recorded and the run moves on.
func (p *Publisher) Run(ctx context.Context, opts PublishOptions) (PublishReport, error) {
	var report PublishReport
	if p.blog == nil {
		return report, fmt.Errorf("publisher has no blog client")
	}

	posts, err := markdown.LoadPosts(p.contentDir, p.logger)
	if err != nil {
		return report, fmt.Errorf("load local posts: %w", err)
	}
	report.Local = len(posts)

	remote := p.remotePosts(ctx)
	known := p.knownSet(ctx, remote)

	if len(opts.Update) > 0 {
		p.update(ctx, opts.Update, posts, remote, &report)
	} else {
		pending := p.pending(posts, known)
		report.Pending = len(pending)

		limit := opts.Limit
		if limit <= 0 {
			limit = defaultPublishLimit
		}
		if len(pending) > limit {
			p.logger.Info("publish limited", "pending", len(pending), "limit", limit)
			pending = pending[:limit]
		}
		p.create(ctx, pending, &report)
	}

	// Calls that already went through are confirmed even when ctx was cancelled mid-run.
	if err := p.confirm(context.WithoutCancel(ctx), &report); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	p.notify(ctx, report)
	return report, nil
}

func (p *Publisher) remotePosts(ctx context.Context) []domain.RemotePost {
	if p.feed == nil {
		return nil
	}
	posts, err := p.feed.Posts(ctx)
	if err != nil {
		p.logger.Warn("live feed unavailable", "error", err)
		return nil
	}
	return posts
}

func (p *Publisher) knownSet(ctx context.Context, remote []domain.RemotePost) *identity.KnownSet {
	known := identity.NewKnownSet()
	if p.tracking != nil {
		state, err := p.tracking.Load(ctx)
		if err != nil {
			p.logger.Warn("tracking store unavailable", "error", err)
		} else {
			known.AddID(state.IDs...)
		}
	}
	for _, r := range remote {
		known.AddRemote(r)
	}
	return known
}

func (p *Publisher) pending(posts []domain.Post, known *identity.KnownSet) []domain.Post {
	var out []domain.Post
	for _, post := range posts {
		switch {
		case post.ID == "":
			p.logger.Warn("post has no identifier", "path", post.Path)
		case known.HasID(post.ID):
		case known.HasTitle(post.Title):
			p.logger.Warn("title guard disagrees with identifier guard", "id", post.ID, "title", post.Title)
		default:
			out = append(out, post)
		}
	}
	return out
}

func (p *Publisher) create(ctx context.Context, posts []domain.Post, report *PublishReport) {
	for _, post := range posts {
		if err := p.pacer.Wait(ctx); err != nil {
			return
		}
		item := PublishItem{ID: post.ID, Title: post.Title, Path: post.Path, Action: ActionCreate}
		item.URL, item.Err = p.blog.Create(ctx, post)
		p.record(report, item)
	}
}

func (p *Publisher) update(ctx context.Context, ids []string, posts []domain.Post, remote []domain.RemotePost, report *PublishReport) {
	for _, id := range ids {
		item := PublishItem{ID: id, Action: ActionUpdate}

		post, ok := findPost(id, posts)
		if !ok {
			item.Err = fmt.Errorf("no local post for %s", id)
			p.record(report, item)
			continue
		}
		item.Title, item.Path = post.Title, post.Path

		liveURL, ok := identity.FindLiveURL(id, remote)
		if !ok {
			item.Err = fmt.Errorf("no live post for %s", id)
			p.record(report, item)
			continue
		}
		item.URL = liveURL

		if err := p.pacer.Wait(ctx); err != nil {
			return
		}
		item.Err = p.blog.Update(ctx, liveURL, post)
		p.record(report, item)
	}
}

func (p *Publisher) record(report *PublishReport, item PublishItem) {
	if item.Err != nil {
		var statusErr ports.StatusError
		if errors.As(item.Err, &statusErr) {
			item.Status = statusErr.StatusCode()
			item.Body = statusErr.ResponseBody()
		}
		p.logger.Warn("publish call failed", "id", item.ID, "action", item.Action, "status", item.Status, "error", item.Err)
	} else {
		p.logger.Info("publish call succeeded", "id", item.ID, "action", item.Action, "url", item.URL)
	}
	report.Items = append(report.Items, item)
}

// confirm adds the identifiers of successful calls to the tracking store.
func (p *Publisher) confirm(ctx context.Context, report *PublishReport) error {
	if p.tracking == nil {
		return nil
	}
	var ids []string
	for _, it := range report.Items {
		if it.Err == nil {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	err := p.tracking.Update(ctx, func(state *domain.TrackingState) error {
		report.Confirmed = state.AddIDs(ids...)
		state.LastUpdated = p.now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update tracking: %w", err)
	}
	return nil
}

func (p *Publisher) notify(ctx context.Context, report PublishReport) {
	if p.notifier == nil || report.Succeeded() == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(report.Items)); err != nil {
		p.logger.Warn("notification failed", "error", err)
	}
}

func buildDigestMessage(items []PublishItem) string {
	var b strings.Builder
	b.WriteString("AdobeDigest published:\n")
	for _, it := range items {
		if it.Err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", it.Title, it.Action)
		if it.URL != "" {
			fmt.Fprintf(&b, "  %s\n", it.URL)
		}
	}
	return b.String()
}

func findPost(id string, posts []domain.Post) (domain.Post, bool) {
	for _, post := range posts {
		if strings.EqualFold(post.ID, id) {
			return post, true
		}
	}
	return domain.Post{}, false
}
