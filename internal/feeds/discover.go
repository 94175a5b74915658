package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"newsrelay/internal/fetch"
	"newsrelay/internal/logx"

	"github.com/PuerkitoBio/goquery"
)

// DiscoverFeed 返回可解析的订阅地址：
// RSS_URL 本身是订阅时原样返回；若为 HTML 页面，则解析 <link rel="alternate"> 声明。
func DiscoverFeed(ctx context.Context, cl *fetch.Client, pageURL string) (string, error) {
	resp, err := cl.Get(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if looksLikeFeed(resp.Header.Get("Content-Type"), b) {
		return pageURL, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var found []string
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		t := strings.ToLower(s.AttrOr("type", ""))
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		if strings.Contains(t, "rss") || strings.Contains(t, "atom") || strings.Contains(t, "feed+json") {
			found = append(found, joinURL(pageURL, href))
		}
	})
	for _, u := range found {
		if probeFeed(ctx, cl, u) {
			logx.Debugf("从 <link> 发现订阅：%s", u)
			return u, nil
		}
	}
	return "", fmt.Errorf("no feed discovered for %s", pageURL)
}

// probeFeed 粗略探测 URL 是否为订阅。
func probeFeed(ctx context.Context, cl *fetch.Client, feedURL string) bool {
	prCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	resp, err := cl.Get(prCtx, feedURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return looksLikeFeed(resp.Header.Get("Content-Type"), head)
}

// looksLikeFeed 依据 Content-Type 与正文开头判断是否为 RSS/Atom/JSON Feed。
func looksLikeFeed(contentType string, head []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return false
	}
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml") {
		return true
	}
	lb := bytes.ToLower(head)
	if len(lb) > 2048 {
		lb = lb[:2048]
	}
	for _, marker := range []string{"<rss", "<feed", "<rdf", "jsonfeed.org/version"} {
		if bytes.Contains(lb, []byte(marker)) {
			return true
		}
	}
	return false
}

// joinURL 将相对路径解析为绝对 URL。
func joinURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return base + ref
	}
	return u.ResolveReference(ru).String()
}
