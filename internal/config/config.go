package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "ADOBE_DIGEST_CONFIG"
	microblogTokenEnv  = "MICROBLOG_TOKEN"
	microblogAPIURLEnv = "MICROBLOG_API_URL"
	nvdAPIKeyEnv       = "NVD_API_KEY"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv        = "LOG_LEVEL"
	trackingBackendEnv = "TRACKING_BACKEND"
)

// Source types understood by the scanner registry.
const (
	SourceHelpX    = "adobe-helpx"
	SourceFeed     = "atom-feed"
	SourceNVD      = "nist-nvd"
	SourceReleases = "adobe-release-notes"
)

// Config holds high-level settings required across the application.
type Config struct {
	ContentDir    string             `yaml:"content_dir"`
	Site          SiteConfig         `yaml:"site"`
	Microblog     MicroblogConfig    `yaml:"microblog"`
	NVD           NVDConfig          `yaml:"nvd"`
	HTTP          HTTPConfig         `yaml:"http"`
	Tracking      TrackingConfig     `yaml:"tracking"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// SiteConfig describes the published blog.
type SiteConfig struct {
	FeedURL  string `yaml:"feed_url"`
	GUIDBase string `yaml:"guid_base"`
}

// MicroblogConfig holds Micropub endpoint settings.
type MicroblogConfig struct {
	APIURL       string        `yaml:"api_url"`
	Token        string        `yaml:"token"`
	PublishLimit int           `yaml:"publish_limit"`
	RequestDelay time.Duration `yaml:"request_delay"`
	SourceLimit  int           `yaml:"source_limit"`
}

// NVDConfig configures the CVE API client.
type NVDConfig struct {
	APIURL       string        `yaml:"api_url"`
	APIKey       string        `yaml:"api_key"`
	RequestDelay time.Duration `yaml:"request_delay"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// TrackingConfig selects and configures the tracking store backend.
type TrackingConfig struct {
	Backend    string      `yaml:"backend"`
	Path       string      `yaml:"path"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
	S3         S3Config    `yaml:"s3"`
}

// RedisConfig points at a Redis server holding the tracking document.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// S3Config points at the object holding the tracking document.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Key          string `yaml:"key"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// SchedulerConfig defines when the watch command runs.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SourceConfig describes one upstream source and its scanner strategy.
type SourceConfig struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	URL          string   `yaml:"url"`
	SectionID    string   `yaml:"section_id"`
	Product      string   `yaml:"product"`
	Prefix       string   `yaml:"prefix"`
	DisplayName  string   `yaml:"display_name"`
	Includes     []string `yaml:"includes"`
	Keywords     []string `yaml:"keywords"`
	Categories   []string `yaml:"categories"`
	Tags         []string `yaml:"tags"`
	Limit        int      `yaml:"limit"`
	LookbackDays int      `yaml:"lookback_days"`
	Extract      bool     `yaml:"extract"`
	Disabled     bool     `yaml:"disabled"`
}

// Load reads YAML configuration from path, or from ADOBE_DIGEST_CONFIG when path is empty,
// and applies environment overrides.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.applySourceDefaults()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(microblogTokenEnv); v != "" {
		c.Microblog.Token = v
	}

	if v := os.Getenv(microblogAPIURLEnv); v != "" {
		c.Microblog.APIURL = v
	}

	if v := os.Getenv(nvdAPIKeyEnv); v != "" {
		c.NVD.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(trackingBackendEnv); v != "" {
		c.Tracking.Backend = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) applySourceDefaults() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Type = strings.ToLower(strings.TrimSpace(src.Type))
		if src.Name == "" {
			src.Name = src.Type + "-" + strconv.Itoa(i)
		}
		if src.Type == SourceFeed && src.Limit <= 0 {
			src.Limit = 50
		}
		if src.Type == SourceNVD && src.LookbackDays <= 0 {
			src.LookbackDays = 30
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.ContentDir != "" {
		base.ContentDir = override.ContentDir
	}

	if override.Site.FeedURL != "" {
		base.Site.FeedURL = override.Site.FeedURL
	}
	if override.Site.GUIDBase != "" {
		base.Site.GUIDBase = override.Site.GUIDBase
	}

	if override.Microblog.APIURL != "" {
		base.Microblog.APIURL = override.Microblog.APIURL
	}
	if override.Microblog.Token != "" {
		base.Microblog.Token = override.Microblog.Token
	}
	if override.Microblog.PublishLimit > 0 {
		base.Microblog.PublishLimit = override.Microblog.PublishLimit
	}
	if override.Microblog.RequestDelay > 0 {
		base.Microblog.RequestDelay = override.Microblog.RequestDelay
	}
	if override.Microblog.SourceLimit > 0 {
		base.Microblog.SourceLimit = override.Microblog.SourceLimit
	}

	if override.NVD.APIURL != "" {
		base.NVD.APIURL = override.NVD.APIURL
	}
	if override.NVD.APIKey != "" {
		base.NVD.APIKey = override.NVD.APIKey
	}
	if override.NVD.RequestDelay > 0 {
		base.NVD.RequestDelay = override.NVD.RequestDelay
	}

	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}

	if override.Tracking.Backend != "" {
		base.Tracking.Backend = override.Tracking.Backend
	}
	if override.Tracking.Path != "" {
		base.Tracking.Path = override.Tracking.Path
	}
	if override.Tracking.SQLitePath != "" {
		base.Tracking.SQLitePath = override.Tracking.SQLitePath
	}
	if override.Tracking.Redis.Addr != "" {
		base.Tracking.Redis = override.Tracking.Redis
	}
	if override.Tracking.S3.Bucket != "" {
		base.Tracking.S3 = override.Tracking.S3
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		ContentDir: "content",
		Site: SiteConfig{
			FeedURL:  "https://adobedigest.com/feed.json",
			GUIDBase: "http://adobedigest.micro.blog",
		},
		Microblog: MicroblogConfig{
			APIURL:       "https://micro.blog/micropub",
			PublishLimit: 5,
			RequestDelay: 2 * time.Second,
			SourceLimit:  1000,
		},
		NVD: NVDConfig{
			APIURL:       "https://services.nvd.nist.gov/rest/json/cves/2.0",
			RequestDelay: 6 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "AdobeDigest/1.0 (+https://adobedigest.com)",
		},
		Tracking: TrackingConfig{
			Backend:    "json",
			Path:       ".tracking.json",
			SQLitePath: ".tracking.db",
			Redis:      RedisConfig{Addr: "localhost:6379", Key: "adobedigest:tracking"},
			S3:         S3Config{Key: "adobedigest/tracking.json"},
		},
		Scheduler: SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Logging:   LoggingConfig{Level: "info"},
		Sources: []SourceConfig{
			{
				Name:       "adobe-commerce",
				Type:       SourceHelpX,
				URL:        "https://helpx.adobe.com/security/security-bulletin.html",
				SectionID:  "magento",
				Categories: []string{"adobe-commerce"},
			},
			{
				Name:        "sansec",
				Type:        SourceFeed,
				URL:         "https://sansec.io/atom.xml",
				Prefix:      "sansec",
				DisplayName: "Sansec",
				Tags:        []string{"sansec", "ecommerce-security", "magento", "malware"},
				Limit:       50,
			},
			{
				Name:         "nist-nvd",
				Type:         SourceNVD,
				DisplayName:  "NIST NVD",
				Keywords:     []string{"Adobe Commerce", "Magento", "Adobe Experience Manager"},
				LookbackDays: 30,
			},
			{
				Name:    "adobe-commerce-releases",
				Type:    SourceReleases,
				URL:     "https://experienceleague.adobe.com/en/docs/commerce-operations/release/versions",
				Product: "adobe-commerce",
			},
		},
	}
}
