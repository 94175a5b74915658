// 包 compose 负责生成投稿正文：
// - 标题/摘要/链接按行拼接
// - 按平台规则计数（链接一律按 LinkWidth 个字符计）
// - 超长时依次截断摘要、丢弃摘要、截断标题，结果长度始终 <= MaxLen
package compose

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxLen 为平台单条投稿的最大计数长度。
	MaxLen = 280
	// LinkWidth 为短链替换后每个链接的固定计数宽度（t.co）。
	LinkWidth = 23
	// Ellipsis 为截断时追加的单字符省略号。
	Ellipsis = "…"
)

var linkRe = regexp.MustCompile(`https?://\S+`)

// Post 为组装后的投稿正文，Length 为按链接定宽计数后的长度。
type Post struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// Fits 报告正文是否满足长度上限（调用方发送前的兜底校验）。
func (p Post) Fits() bool { return p.Length <= MaxLen && p.Length == EffectiveLength(p.Text) }

// EffectiveLength 返回文本的计数长度：每个链接按 LinkWidth 计，其余按 Unicode 码点计。
func EffectiveLength(s string) int {
	n := utf8.RuneCountInString(s)
	for _, m := range linkRe.FindAllString(s, -1) {
		n += LinkWidth - utf8.RuneCountInString(m)
	}
	return n
}

// Compose 以确定性方式生成不超过 MaxLen 的投稿正文。
func Compose(title, summary, link string) Post {
	title = strings.TrimSpace(title)
	summary = strings.TrimSpace(summary)
	link = strings.TrimSpace(link)

	if title == "" && summary == "" {
		return newPost(link)
	}
	full := joinLines(title, summary, link)
	if EffectiveLength(full) <= MaxLen {
		return newPost(full)
	}

	// 摘要截断：为标题、空摘要行与链接预留位置后剩余的额度
	if summary != "" {
		fixed := EffectiveLength("\n" + link)
		if title != "" {
			fixed = EffectiveLength(title + "\n\n" + link)
		}
		remaining := MaxLen - fixed - 1
		if remaining < 0 {
			remaining = 0
		}
		if short := truncate(summary, remaining); short != "" {
			if cand := joinLines(title, short, link); EffectiveLength(cand) <= MaxLen {
				return newPost(cand)
			}
		}
	}

	if title == "" {
		return newPost(link)
	}
	// 仅保留标题 + 链接；标题额度 = MaxLen - 链接计数 - 换行
	budget := MaxLen - EffectiveLength(link) - 1
	short := truncate(title, budget)
	if short == "" {
		return newPost(link)
	}
	return newPost(joinLines(short, "", link))
}

func newPost(text string) Post {
	return Post{Text: text, Length: EffectiveLength(text)}
}

// joinLines 用换行拼接非空部分。
func joinLines(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// truncate 将 s 截断为计数长度（含省略号）不超过 budget 的最长前缀。
// 未超出时原样返回；额度不足以容纳任何字符时返回空串。
func truncate(s string, budget int) string {
	if EffectiveLength(s) <= budget {
		return s
	}
	if budget < 1 {
		return ""
	}
	r := []rune(s)
	// 前缀以 "http://" 结尾时加省略号会被计为链接，计数长度不单调，只能自长向短逐个度量
	for n := len(r) - 1; n > 0; n-- {
		prefix := strings.TrimRightFunc(string(r[:n]), unicode.IsSpace)
		if prefix == "" {
			return ""
		}
		if cand := prefix + Ellipsis; EffectiveLength(cand) <= budget {
			return cand
		}
	}
	return ""
}
