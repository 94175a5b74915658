// 包 feeds 负责订阅的发现与解析：
// - DiscoverFeed：RSS_URL 指向 HTML 页面时，通过 <link rel="alternate"> 找到订阅地址
// - ParseFeed：使用 gofeed 解析 RSS/Atom/JSON Feed，归一化为 model.Entry
// 摘要中的 HTML 由 goquery 转为纯文本。
package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"newsrelay/internal/fetch"
	"newsrelay/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// NoTitle 为缺少标题的条目使用的占位标题。
const NoTitle = "(no title)"

// ParseFeed 从订阅地址解析并返回归一化后的条目（最多返回 max 条，0 表示不限制）。
// 缺少链接的条目会被丢弃。
func ParseFeed(ctx context.Context, cl *fetch.Client, feedURL string, max int) ([]model.Entry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	// gofeed 不直接接收自定义 http.Client，因此先用自定义客户端抓取后再交给 gofeed 解析
	resp, err := cl.Get(reqCtx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("GET feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return Entries(feed, max), nil
}

// Entries 将 gofeed 结果转换为 model.Entry 列表。
func Entries(feed *gofeed.Feed, max int) []model.Entry {
	if feed == nil {
		return nil
	}
	out := make([]model.Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		link := strings.TrimSpace(it.Link)
		if link == "" && len(it.Links) > 0 {
			link = strings.TrimSpace(it.Links[0])
		}
		if link == "" {
			continue
		}
		title := PlainText(it.Title)
		if title == "" {
			title = NoTitle
		}
		out = append(out, model.Entry{Title: title, Link: link, Summary: summaryOf(it)})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// summaryOf 依次取 description、content。
func summaryOf(it *gofeed.Item) string {
	if s := PlainText(it.Description); s != "" {
		return s
	}
	return PlainText(it.Content)
}

// PlainText 将 HTML 片段转为纯文本，并折叠多余空白。
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script,style").Remove()
			doc.Find("br").ReplaceWithHtml(" ")
			doc.Find("p,li,div").AppendHtml(" ")
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
