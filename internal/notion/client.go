// 包 notion 为 Notion REST API 的最小客户端：
// - Database/Discover：读取数据库 schema，按类型发现逻辑字段对应的属性名
// - QueryApproved：分页查询 approved 且未发布的页面
// - CreateDraft / MarkPosted：创建草稿页、回写发布结果
// - URLLookup：按 URL 查询是否已入库（供 dedup.NotionIndex 使用）
// 响应按显式的可选字段结构解析，缺失字段取零值。
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsrelay/internal/fetch"
)

// Options 为客户端参数。
type Options struct {
	BaseURL    string
	Version    string
	APIKey     string
	DatabaseID string
}

type Client struct {
	http *fetch.Client
	// once 不重试，用于非幂等的创建请求
	once    *fetch.Client
	base    string
	version string
	apiKey  string
	dbID    string
}

func New(cl *fetch.Client, o Options) *Client {
	return &Client{
		http:    cl,
		once:    cl.WithRetry(0),
		base:    strings.TrimRight(o.BaseURL, "/"),
		version: o.Version,
		apiKey:  o.APIKey,
		dbID:    o.DatabaseID,
	}
}

// APIError 为 Notion 返回的错误体。
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion: http %d %s: %s", e.Status, e.Code, e.Message)
}

// call 发送可重试的 JSON 请求（GET、查询与 PATCH）。
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, c.http, method, path, body, out)
}

// callOnce 只发送一次，用于创建页面。
func (c *Client) callOnce(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, c.once, method, path, body, out)
}

// send 发送 JSON 请求并解码响应；body 只序列化一次，每次重试重新构造请求。
func (c *Client) send(ctx context.Context, hc *fetch.Client, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		payload = b
	}
	resp, err := hc.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", c.version)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		apiErr.Status = resp.StatusCode
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
