// 包 config 负责加载与校验应用配置：
// - settings.yaml 提供非敏感配置（可缺省）
// - 密钥只从环境变量读取（可由 .env 文件补充）
// - 每个子命令在发起任何网络请求前调用对应的 Validate*，缺项即失败
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissing 表示缺少必需的配置项（配置错误，致命）。
var ErrMissing = errors.New("missing required configuration")

// ErrVolatileDedup 表示正式发布配置了不落盘的去重存储。
var ErrVolatileDedup = errors.New("DEDUP.type memory is not durable; use json or sqlite when publishing")

type Config struct {
	FeedURL    string    `yaml:"FEED_URL"`
	MaxEntries int       `yaml:"MAX_ENTRIES"`
	DryRun     bool      `yaml:"DRY_RUN"`
	Notion     Notion    `yaml:"NOTION"`
	Translate  Translate `yaml:"TRANSLATE"`
	X          X         `yaml:"X"`
	Dedup      Dedup     `yaml:"DEDUP"`
	HTTP       HTTP      `yaml:"HTTP"`
	Proxy      Proxy     `yaml:"PROXY"`
	LogLevel   string    `yaml:"LOG_LEVEL"`
	LogFormat  string    `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale  string    `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor   string    `yaml:"LOG_COLOR"`  // auto|always|never

	// Secrets 仅来自环境变量，不从 YAML 读取。
	Secrets Secrets `yaml:"-"`
}

type Notion struct {
	BaseURL        string     `yaml:"base_url"`
	Version        string     `yaml:"version"`
	DatabaseID     string     `yaml:"database_id"`
	StatusDraft    string     `yaml:"status_draft"`
	StatusApproved string     `yaml:"status_approved"`
	Properties     Properties `yaml:"properties"`
}

// Properties 为逻辑字段到 Notion 属性名的映射；留空时由 schema 自动发现。
type Properties struct {
	Title    string `yaml:"title"`
	URL      string `yaml:"url"`
	Summary  string `yaml:"summary"`
	Status   string `yaml:"status"`
	Posted   string `yaml:"posted"`
	PostID   string `yaml:"post_id"`
	PostedAt string `yaml:"posted_at"`
}

type Translate struct {
	Disabled   bool   `yaml:"disabled"`
	Endpoint   string `yaml:"endpoint"`
	TargetLang string `yaml:"target_lang"`
	// Concurrency 为入库时并发翻译的条目数。
	Concurrency int `yaml:"concurrency"`
}

type X struct {
	Endpoint   string `yaml:"endpoint"`
	MaxRetries int    `yaml:"max_retries"`
}

type Dedup struct {
	Type string `yaml:"type"` // json (default) | sqlite | memory
	Path string `yaml:"path"`
}

type HTTP struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

type Secrets struct {
	NotionAPIKey    string
	DeepLAPIKey     string
	XAPIKey         string
	XAPISecret      string
	XAccessToken    string
	XAccessSecret   string
	SlackWebhookURL string
}

// Load 读取 YAML（文件不存在时使用空配置），叠加环境变量，填充默认值并做基础校验。
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
			}
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv 读取密钥，并允许环境变量覆盖部分非敏感配置。
func (c *Config) applyEnv() {
	c.Secrets = Secrets{
		NotionAPIKey:    os.Getenv("NOTION_API_KEY"),
		DeepLAPIKey:     os.Getenv("DEEPL_API_KEY"),
		XAPIKey:         os.Getenv("X_API_KEY"),
		XAPISecret:      os.Getenv("X_API_SECRET"),
		XAccessToken:    os.Getenv("X_ACCESS_TOKEN"),
		XAccessSecret:   os.Getenv("X_ACCESS_SECRET"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
	}
	overrideString(&c.FeedURL, "RSS_URL")
	overrideString(&c.Notion.DatabaseID, "NOTION_DATABASE_ID")
	overrideString(&c.Notion.Properties.Title, "NOTION_PROP_TITLE")
	overrideString(&c.Notion.Properties.URL, "NOTION_PROP_URL")
	overrideString(&c.Notion.Properties.Status, "NOTION_PROP_STATUS")
	overrideString(&c.Notion.StatusDraft, "NOTION_STATUS_DEFAULT")
	overrideString(&c.LogLevel, "LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("DRY_RUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		} else {
			c.DryRun = strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
		}
	}
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return errors.New("MAX_ENTRIES must be >= 0")
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 5
	}
	if c.X.MaxRetries < 0 {
		return errors.New("X.max_retries must be >= 0")
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = "https://api.notion.com/v1"
	}
	if c.Notion.Version == "" {
		c.Notion.Version = "2022-06-28"
	}
	if c.Notion.StatusDraft == "" {
		c.Notion.StatusDraft = "draft"
	}
	if c.Notion.StatusApproved == "" {
		c.Notion.StatusApproved = "approved"
	}
	if c.Translate.Endpoint == "" {
		c.Translate.Endpoint = "https://api-free.deepl.com/v2/translate"
	}
	if c.Translate.TargetLang == "" {
		c.Translate.TargetLang = "JA"
	}
	if c.Translate.Concurrency <= 0 {
		c.Translate.Concurrency = 2
	}
	if c.X.Endpoint == "" {
		c.X.Endpoint = "https://api.twitter.com/1.1/statuses/update.json"
	}
	c.Dedup.Type = strings.ToLower(c.Dedup.Type)
	switch c.Dedup.Type {
	case "", "json":
		c.Dedup.Type = "json"
		if c.Dedup.Path == "" {
			c.Dedup.Path = "posted_urls.json"
		}
	case "sqlite":
		if c.Dedup.Path == "" {
			c.Dedup.Path = "./posted_urls.db"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DEDUP.type: %s", c.Dedup.Type)
	}
	// 单次网络调用超时不低于 15 秒
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 30
	}
	if c.HTTP.TimeoutSeconds < 15 {
		c.HTTP.TimeoutSeconds = 15
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "newsrelay/1.0"
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

// TranslationEnabled 报告入库时是否调用翻译。
func (c *Config) TranslationEnabled() bool { return !c.Translate.Disabled }

// ValidateIngest 校验 ingest 子命令所需配置。
func (c *Config) ValidateIngest() error {
	var missing []string
	missing = c.requireNotion(missing)
	if c.FeedURL == "" {
		missing = append(missing, "RSS_URL")
	}
	if c.TranslationEnabled() && c.Secrets.DeepLAPIKey == "" {
		missing = append(missing, "DEEPL_API_KEY")
	}
	return missingErr(missing)
}

// ValidatePublish 校验 publish 子命令所需配置；DRY_RUN 时不要求 X 凭据。
func (c *Config) ValidatePublish() error {
	var missing []string
	missing = c.requireNotion(missing)
	if !c.DryRun {
		for _, kv := range []struct{ key, val string }{
			{"X_API_KEY", c.Secrets.XAPIKey},
			{"X_API_SECRET", c.Secrets.XAPISecret},
			{"X_ACCESS_TOKEN", c.Secrets.XAccessToken},
			{"X_ACCESS_SECRET", c.Secrets.XAccessSecret},
		} {
			if kv.val == "" {
				missing = append(missing, kv.key)
			}
		}
	}
	if err := missingErr(missing); err != nil {
		return err
	}
	// 正式发布必须有跨运行保留的已发布记录
	if !c.DryRun && c.Dedup.Type == "memory" {
		return ErrVolatileDedup
	}
	return nil
}

// ValidateSchema 校验 schema 子命令所需配置。
func (c *Config) ValidateSchema() error {
	return missingErr(c.requireNotion(nil))
}

func (c *Config) requireNotion(missing []string) []string {
	if c.Secrets.NotionAPIKey == "" {
		missing = append(missing, "NOTION_API_KEY")
	}
	if c.Notion.DatabaseID == "" {
		missing = append(missing, "NOTION_DATABASE_ID")
	}
	return missing
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
}
