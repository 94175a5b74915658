// 包 social 为 X（Twitter）发帖客户端：
// 使用 v1.1 statuses/update（表单编码 status=...），OAuth1 签名在每次尝试时重新生成。
// 所有失败都以 *Error 返回，调用方按 Kind 决定继续或中止。
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"newsrelay/internal/fetch"
	"newsrelay/internal/oauth1"
)

// Kind 为错误分类。
type Kind string

const (
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindRateLimit Kind = "rate_limit"
	KindResponse  Kind = "response"
)

// Error 为发帖失败；StatusCode 为 0 表示未收到 HTTP 响应。
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("x: ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回 err 的分类；非 *Error 视为 transport。
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}

// Poster 发布一条文本并返回平台上的 post id。
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// Client 通过 fetch.Client 发送签名请求。
type Client struct {
	http     *fetch.Client
	signer   *oauth1.Signer
	endpoint string
}

func New(cl *fetch.Client, signer *oauth1.Signer, endpoint string) *Client {
	return &Client{http: cl, signer: signer, endpoint: endpoint}
}

// response 为 statuses/update 的响应；成功时有 id_str（或数值 id），失败时有 errors。
type response struct {
	IDStr  string       `json:"id_str"`
	ID     *json.Number `json:"id"`
	Errors []apiError   `json:"errors"`
	Detail string       `json:"detail"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r response) postID() string {
	if s := strings.TrimSpace(r.IDStr); s != "" {
		return s
	}
	if r.ID != nil {
		return r.ID.String()
	}
	return ""
}

func (r response) message() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
	}
	if len(msgs) == 0 {
		return r.Detail
	}
	return strings.Join(msgs, "; ")
}

// Post 发送 status=text；成功返回 post id。
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	if c.signer == nil {
		return "", &Error{Kind: KindConfig, Err: oauth1.ErrMissingCredentials}
	}
	params := url.Values{"status": {text}}
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		signed, err := c.signer.Sign(http.MethodPost, c.endpoint, params)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, signed.Method, signed.URL, strings.NewReader(signed.Body))
		if err != nil {
			return nil, err
		}
		for k, v := range signed.Header {
			req.Header[k] = v
		}
		return req, nil
	})
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Err: err}
	}
	var r response
	decodeErr := json.Unmarshal(b, &r)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := r.message()
		if msg == "" {
			msg = snippet(b)
		}
		return "", &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", &Error{Kind: KindResponse, StatusCode: resp.StatusCode, Message: "invalid json: " + snippet(b), Err: decodeErr}
	}
	id := r.postID()
	if id == "" {
		return "", &Error{Kind: KindResponse, StatusCode: resp.StatusCode, Message: "post id missing: " + snippet(b)}
	}
	return id, nil
}

// classify 将 fetch 层错误映射为 *Error。
func classify(err error) *Error {
	if errors.Is(err, oauth1.ErrMissingCredentials) {
		return &Error{Kind: KindConfig, Err: err}
	}
	var se *fetch.StatusError
	if errors.As(err, &se) {
		var r response
		msg := se.Body
		if json.Unmarshal([]byte(se.Body), &r) == nil && r.message() != "" {
			msg = r.message()
		}
		kind := KindTransport
		if se.StatusCode == http.StatusTooManyRequests {
			kind = KindRateLimit
		}
		return &Error{Kind: kind, StatusCode: se.StatusCode, Message: msg, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if r := []rune(s); len(r) > 200 {
		return string(r[:200])
	}
	return s
}
