// 包 notify 通过 Slack Incoming Webhook 发送运行结果。
// 通知失败只记录日志，不影响流水线自身的结果。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsrelay/internal/fetch"
	"newsrelay/internal/logx"
)

// Notifier 发送一条文本消息。
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop 丢弃所有消息（未配置 webhook 时使用）。
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Slack 向 webhook POST {"text": ...}。
type Slack struct {
	http       *fetch.Client
	webhookURL string
}

// New 在 webhookURL 为空时返回 Nop。
func New(cl *fetch.Client, webhookURL string) Notifier {
	if strings.TrimSpace(webhookURL) == "" {
		return Nop{}
	}
	return &Slack{http: cl, webhookURL: webhookURL}
}

func (s *Slack) Notify(ctx context.Context, text string) {
	if err := s.Send(ctx, text); err != nil {
		logx.Warn("Slack 通知失败", "err", err)
	}
}

// Send 发送并返回错误，供需要结果的调用方使用。
func (s *Slack) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	resp, err := s.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: http status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
