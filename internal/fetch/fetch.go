// 包 fetch 封装共享 HTTP 客户端（代理/超时/有界重试），供订阅抓取与各 API 客户端使用。
// 重试基于 failsafe-go；每次尝试都会重新调用 build 构造请求，
// 因此需要签名的请求在重试时会得到新的 nonce/时间戳。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// StatusError 表示可重试的 HTTP 状态（429/5xx）；Body 为截断后的响应正文。
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status: %s", e.Status)
	}
	return fmt.Sprintf("http status: %s: %s", e.Status, e.Body)
}

// Client 为带有界重试的 HTTP 客户端。
type Client struct {
	http      *http.Client
	retry     int
	backoff   time.Duration
	maxDelay  time.Duration
	userAgent string
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	// Backoff 为首次重试等待时间，之后指数增长至 MaxDelay。
	Backoff   time.Duration
	MaxDelay  time.Duration
	UserAgent string
}

// New 创建客户端，支持 http/https 代理与单次调用超时。
func New(opts Options) (*Client, error) {
	for _, p := range []string{opts.ProxyHTTP, opts.ProxyHTTPS} {
		if p == "" {
			continue
		}
		if _, err := url.Parse(p); err != nil {
			return nil, fmt.Errorf("parse proxy %s: %w", p, err)
		}
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.Backoff {
		opts.MaxDelay = 10 * opts.Backoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newsrelay/1.0"
	}
	return &Client{
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		retry:     opts.Retry,
		backoff:   opts.Backoff,
		maxDelay:  opts.MaxDelay,
		userAgent: opts.UserAgent,
	}, nil
}

// WithRetry 返回共享底层连接、但重试次数不同的副本。
func (c *Client) WithRetry(n int) *Client {
	cp := *c
	if n < 0 {
		n = 0
	}
	cp.retry = n
	return &cp
}

// Do 执行请求：网络错误与 429/5xx 按配置重试，其余状态码原样返回给调用方处理。
// 重试耗尽后返回最后一次的错误（网络错误或 *StatusError）。
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(c.backoff, c.maxDelay).
		WithMaxRetries(c.retry).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool { return retryable(err) }).
		ReturnLastFailure().
		Build()
	resp, err := failsafe.With(policy).WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, &permanentError{fmt.Errorf("new request: %w", err)}
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			defer resp.Body.Close()
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(b),
				RetryAfter: resp.Header.Get("Retry-After"),
			}
		}
		return resp, nil
	})
	return resp, unwrapPermanent(err)
}

// Get 发起 GET 请求；非 2xx 视为错误。
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("http status: %s", resp.Status)
	}
	return resp, nil
}

// permanentError 标记不应重试的错误（如请求构造失败）。
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
