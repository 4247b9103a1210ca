package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"AdobeDigest/internal/config"
	"AdobeDigest/internal/infrastructure/feed"
	"AdobeDigest/internal/infrastructure/microblog"
	"AdobeDigest/internal/infrastructure/parser"
	"AdobeDigest/internal/infrastructure/scheduler"
	"AdobeDigest/internal/infrastructure/storage"
	"AdobeDigest/internal/infrastructure/telegram"
	"AdobeDigest/internal/logging"
	"AdobeDigest/internal/markdown"
	"AdobeDigest/internal/ports"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/throttle"
	"AdobeDigest/internal/usecase"
)

// ErrMissingToken is returned when a command needs the Micropub token and none is configured.
var ErrMissingToken = errors.New("MICROBLOG_TOKEN is not set")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg           config.Config
	logger        *slog.Logger
	httpClient    *http.Client
	tracking      ports.TrackingStore
	closeTracking func() error
	feed          *feed.Client
}

// New opens the tracking store and prepares the shared adapters.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	tracking, closer, err := storage.Open(ctx, cfg.Tracking, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	return &Application{
		cfg:           cfg,
		logger:        baseLogger,
		httpClient:    httpClient,
		tracking:      tracking,
		closeTracking: closer,
		feed:          feed.NewClient(cfg.Site.FeedURL, cfg.HTTP.UserAgent, httpClient),
	}, nil
}

// Close releases the tracking store.
func (a *Application) Close() error {
	if a.closeTracking == nil {
		return nil
	}
	return a.closeTracking()
}

func (a *Application) component(name string) *slog.Logger {
	return a.logger.With("component", name)
}

func (a *Application) registry() *scanner.Registry {
	ua := a.cfg.HTTP.UserAgent
	registry := scanner.NewRegistry()
	registry.Register(parser.NewHelpXScanner(a.httpClient, ua))
	registry.Register(parser.NewFeedScanner(a.httpClient, ua))
	registry.Register(parser.NewNVDScanner(a.httpClient, ua, a.cfg.NVD.APIURL, a.cfg.NVD.APIKey, throttle.New(a.cfg.NVD.RequestDelay)))
	registry.Register(parser.NewReleaseScanner(a.httpClient, ua))
	return registry
}

func (a *Application) microblog() (*microblog.Client, error) {
	if a.cfg.Microblog.Token == "" {
		return nil, ErrMissingToken
	}
	return microblog.NewClient(a.cfg.Microblog.APIURL, a.cfg.Microblog.Token,
		microblog.WithHTTPClient(a.httpClient),
		microblog.WithUserAgent(a.cfg.HTTP.UserAgent),
		microblog.WithSourceLimit(a.cfg.Microblog.SourceLimit),
	), nil
}

func (a *Application) notifier() ports.Notifier {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return nil
	}
	return telegram.NewNotifier(tg.BotToken, tg.ChatID, "", a.httpClient)
}

// Scraper builds the scrape use case over every configured source.
func (a *Application) Scraper() *usecase.ScrapePipeline {
	source := parser.NewStrategySource(a.registry(), a.cfg.Sources, a.component("source"))
	return usecase.NewScrapePipeline(usecase.ScrapeDeps{
		Source: source,
		Known: []ports.KnownSource{
			storage.NewTrackingSource(a.tracking),
			feed.NewSource(a.feed),
			markdown.NewLocalSource(a.cfg.ContentDir, a.component("local-posts")),
		},
		Writer:   markdown.NewEmitter(a.cfg.ContentDir, a.cfg.Site.GUIDBase, a.component("emitter")),
		Tracking: a.tracking,
		Logger:   a.component("scrape"),
	})
}

// Publisher builds the publish use case. It fails without a Micropub token.
func (a *Application) Publisher() (*usecase.Publisher, error) {
	blog, err := a.microblog()
	if err != nil {
		return nil, err
	}
	return usecase.NewPublisher(usecase.PublishDeps{
		ContentDir: a.cfg.ContentDir,
		Blog:       blog,
		Feed:       a.feed,
		Tracking:   a.tracking,
		Notifier:   a.notifier(),
		Pacer:      throttle.New(a.cfg.Microblog.RequestDelay),
		Logger:     a.component("publish"),
	}), nil
}

// Cleanup builds the duplicate cleanup. useAPI lists posts through the Micropub source query
// instead of the public feed, which only carries recent posts.
func (a *Application) Cleanup(useAPI bool) (*usecase.Cleanup, error) {
	blog, err := a.microblog()
	if err != nil {
		return nil, err
	}
	var lister ports.PostLister = a.feed
	if useAPI {
		lister = blog
	}
	return usecase.NewCleanup(usecase.CleanupDeps{
		Lister:  lister,
		Deleter: blog,
		Pacer:   throttle.New(a.cfg.Microblog.RequestDelay),
		Logger:  a.component("cleanup"),
	}), nil
}

// PublishLimit is the configured number of posts per publish run.
func (a *Application) PublishLimit() int {
	return a.cfg.Microblog.PublishLimit
}

// Watch runs scrape followed by publish on the configured cron schedule until ctx is done.
// Publish is skipped when no token is configured.
func (a *Application) Watch(ctx context.Context) error {
	scraper := a.Scraper()
	publisher, err := a.Publisher()
	if err != nil {
		a.logger.Warn("publishing disabled in watch mode", "error", err)
	}

	job := func(ctx context.Context, _ time.Time) error {
		report, err := scraper.Run(ctx, usecase.ScrapeOptions{})
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		a.logger.Info("scrape finished", "fetched", report.Fetched, "failed", len(report.Failed()))
		if publisher == nil {
			return nil
		}
		pub, err := publisher.Run(ctx, usecase.PublishOptions{Limit: a.cfg.Microblog.PublishLimit})
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		a.logger.Info("publish finished", "published", pub.Succeeded(), "calls", len(pub.Items))
		return nil
	}

	cron := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(cron, job, a.component("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("watching", "cron", a.cfg.Scheduler.CronExpression, "next", cron.Next())

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}
