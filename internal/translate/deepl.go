// 包 translate 提供文本翻译（DeepL）。
// 翻译失败不会中断入库：调用方通过 OrSource 回退到原文。
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"newsrelay/internal/fetch"
	"newsrelay/internal/logx"
)

// Translator 将文本翻译为目标语言。
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Noop 原样返回输入（翻译关闭时使用）。
type Noop struct{}

func (Noop) Translate(_ context.Context, text string) (string, error) { return text, nil }

// DeepL 调用 DeepL /v2/translate。
type DeepL struct {
	cl         *fetch.Client
	endpoint   string
	apiKey     string
	targetLang string
}

func NewDeepL(cl *fetch.Client, endpoint, apiKey, targetLang string) *DeepL {
	return &DeepL{cl: cl, endpoint: endpoint, apiKey: apiKey, targetLang: strings.ToUpper(targetLang)}
}

// response 为 DeepL 响应；缺失字段按零值处理。
type response struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
	Message string `json:"message"`
}

func (d *DeepL) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", d.targetLang)
	resp, err := d.cl.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("deepl: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("deepl: read body: %w", err)
	}
	var r response
	_ = json.Unmarshal(b, &r)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := r.Message
		if msg == "" {
			msg = strings.TrimSpace(string(b))
		}
		return "", fmt.Errorf("deepl: http status %s: %s", resp.Status, msg)
	}
	if len(r.Translations) == 0 {
		return "", fmt.Errorf("deepl: empty translations")
	}
	return r.Translations[0].Text, nil
}

// OrSource 翻译失败或结果为空时回退到原文，并记录警告。
func OrSource(ctx context.Context, t Translator, text string) string {
	if t == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := t.Translate(ctx, text)
	if err != nil {
		logx.Warn("翻译失败，使用原文", "err", err)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}
