// 包 ingest 负责入库流程编排：
// - 发现并解析订阅（最多 MAX_ENTRIES 条）
// - 以 Notion 数据库为事实来源去重，已存在的链接跳过
// - 有界并发翻译标题与摘要，失败回退原文
// - 按订阅顺序逐条创建草稿页
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"newsrelay/internal/dedup"
	"newsrelay/internal/feeds"
	"newsrelay/internal/fetch"
	"newsrelay/internal/logx"
	"newsrelay/internal/model"
	"newsrelay/internal/translate"
)

// Target 为草稿写入目标（notion.DraftTarget）。
type Target interface {
	CreateDraft(ctx context.Context, e model.Entry) (string, error)
}

// Options 为入库参数。
type Options struct {
	FeedURL     string
	MaxEntries  int
	Concurrency int
	DryRun      bool
}

// Stats 为一轮入库的统计。
type Stats struct {
	Entries int
	Skipped int
	Created int
	Failed  int
	// Drafts 为 DRY_RUN 下将要写入的条目（已翻译）。
	Drafts []model.Entry
}

func (s Stats) String() string {
	return fmt.Sprintf("created %d/%d (skipped %d, failed %d)", s.Created, s.Entries, s.Skipped, s.Failed)
}

// Runner 入库执行器，持有 HTTP 客户端/翻译器/去重存储/写入目标。
type Runner struct {
	opts   Options
	fetch  *fetch.Client
	tr     translate.Translator
	store  dedup.Store
	target Target
}

func New(opts Options, cl *fetch.Client, tr translate.Translator, store dedup.Store, target Target) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if tr == nil {
		tr = translate.Noop{}
	}
	return &Runner{opts: opts, fetch: cl, tr: tr, store: store, target: target}
}

// Run 执行一轮入库。订阅不可用时返回错误；单条失败只计数。
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var st Stats
	feedURL, err := feeds.DiscoverFeed(ctx, r.fetch, r.opts.FeedURL)
	if err != nil {
		logx.Warnf("订阅发现失败，直接按订阅解析：%s 错误=%v", r.opts.FeedURL, err)
		feedURL = r.opts.FeedURL
	}
	entries, err := feeds.ParseFeed(ctx, r.fetch, feedURL, r.opts.MaxEntries)
	if err != nil {
		return st, err
	}
	st.Entries = len(entries)
	if len(entries) == 0 {
		logx.Warnf("订阅中没有条目：%s", feedURL)
		return st, nil
	}
	logx.Infof("[%s] 条目解析完成：%d", hostOf(feedURL), len(entries))

	fresh := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		seen, err := r.store.Contains(ctx, e.Link)
		if err != nil {
			st.Failed++
			logx.Warn("去重查询失败", "url", e.Link, "err", err)
			continue
		}
		if seen || containsLink(fresh, e.Link) {
			st.Skipped++
			logx.Debug("已入库，跳过", "url", e.Link)
			continue
		}
		fresh = append(fresh, e)
	}

	translated := r.translateAll(ctx, fresh)
	for _, e := range translated {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if r.opts.DryRun {
			st.Drafts = append(st.Drafts, e)
			logx.Info("[DRY_RUN] 将创建草稿", "title", e.Title, "url", e.Link)
			continue
		}
		id, err := r.target.CreateDraft(ctx, e)
		if err != nil {
			st.Failed++
			logx.Warn("创建草稿失败", "url", e.Link, "err", err)
			continue
		}
		st.Created++
		logx.Info("已创建草稿", "page", id, "title", e.Title, "url", e.Link)
		if err := r.store.Add(ctx, e.Link); err != nil {
			logx.Warn("记录去重失败", "url", e.Link, "err", err)
		}
	}
	if err := r.store.Flush(ctx); err != nil {
		return st, fmt.Errorf("flush dedup store: %w", err)
	}
	return st, nil
}

// translateAll 以有界并发翻译条目，结果保持原顺序。
func (r *Runner) translateAll(ctx context.Context, in []model.Entry) []model.Entry {
	out := make([]model.Entry, len(in))
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup
	for i, e := range in {
		wg.Add(1)
		sem <- struct{}{}
		i, e := i, e
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = model.Entry{
				Title:   translate.OrSource(ctx, r.tr, e.Title),
				Link:    e.Link,
				Summary: translate.OrSource(ctx, r.tr, e.Summary),
			}
		}()
	}
	wg.Wait()
	return out
}

func containsLink(es []model.Entry, link string) bool {
	link = strings.TrimSpace(link)
	for _, e := range es {
		if strings.TrimSpace(e.Link) == link {
			return true
		}
	}
	return false
}

// hostOf 提取链接的主机名，失败时做字符串兜底，便于日志定位。
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if j := strings.IndexAny(s, "/?#"); j >= 0 {
		s = s[:j]
	}
	return s
}
