package cli

import (
	"context"
	"fmt"
	"time"

	"newsrelay/internal/config"
	"newsrelay/internal/fetch"
	"newsrelay/internal/logx"
	"newsrelay/internal/notify"
	"newsrelay/internal/notion"
)

// notionRetries 为 Notion 幂等请求（读取、查询、PATCH）的重试次数；创建页面不重试。
const notionRetries = 2

// deps 为子命令共享的依赖。
type deps struct {
	cfg      *config.Config
	http     *fetch.Client
	notion   *notion.Client
	notifier notify.Notifier
}

// setup 加载 .env 与配置、初始化日志，并执行子命令自己的校验；校验失败时不创建任何客户端。
func setup(opts *RootOptions, validate func(*config.Config) error) (*deps, error) {
	loaded, err := config.LoadEnv(opts.EnvFiles...)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		cfg.DryRun = true
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)
	if len(loaded) > 0 {
		logx.Debugf("已加载环境文件：%v", loaded)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		UserAgent:  cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	nc := notion.New(cl.WithRetry(notionRetries), notion.Options{
		BaseURL:    cfg.Notion.BaseURL,
		Version:    cfg.Notion.Version,
		APIKey:     cfg.Secrets.NotionAPIKey,
		DatabaseID: cfg.Notion.DatabaseID,
	})
	return &deps{
		cfg:      cfg,
		http:     cl,
		notion:   nc,
		notifier: notify.New(cl, cfg.Secrets.SlackWebhookURL),
	}, nil
}

// properties 读取数据库 schema 并按配置提示发现属性映射。
func (rt *deps) properties(ctx context.Context) (*notion.Database, notion.PropertyMap, error) {
	db, err := rt.notion.Database(ctx)
	if err != nil {
		return nil, notion.PropertyMap{}, fmt.Errorf("read notion schema: %w", err)
	}
	p := rt.cfg.Notion.Properties
	pm := notion.Discover(db, notion.PropertyMap{
		Title:    p.Title,
		URL:      p.URL,
		Summary:  p.Summary,
		Status:   p.Status,
		Posted:   p.Posted,
		PostID:   p.PostID,
		PostedAt: p.PostedAt,
	})
	return db, pm, nil
}
