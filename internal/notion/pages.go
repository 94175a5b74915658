package notion

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"newsrelay/internal/model"
)

// maxText 为单个 rich_text 片段的长度上限（Notion 限制 2000 字符）。
const maxText = 2000

// RichText 为 Notion 富文本片段。写入时使用 Text，读取时使用 PlainText。
type RichText struct {
	Type      string    `json:"type,omitempty"`
	Text      *TextBody `json:"text,omitempty"`
	PlainText string    `json:"plain_text,omitempty"`
}

type TextBody struct {
	Content string `json:"content"`
}

// PropertyValue 为页面属性值；仅与 Type 对应的字段有值。
type PropertyValue struct {
	Type     string      `json:"type,omitempty"`
	Title    []RichText  `json:"title,omitempty"`
	RichText []RichText  `json:"rich_text,omitempty"`
	URL      *string     `json:"url,omitempty"`
	Select   *SelectName `json:"select,omitempty"`
	Status   *SelectName `json:"status,omitempty"`
	Checkbox *bool       `json:"checkbox,omitempty"`
	Date     *DateValue  `json:"date,omitempty"`
}

type SelectName struct {
	Name string `json:"name"`
}

type DateValue struct {
	Start string `json:"start"`
}

// Page 为查询结果中的页面。
type Page struct {
	ID         string                   `json:"id"`
	Archived   bool                     `json:"archived"`
	Properties map[string]PropertyValue `json:"properties"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// Query 执行数据库查询并跟随分页直至 has_more=false。
func (c *Client) Query(ctx context.Context, filter any) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		body := map[string]any{"page_size": 100}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var qr queryResponse
		if err := c.call(ctx, "POST", "/databases/"+c.dbID+"/query", body, &qr); err != nil {
			return pages, err
		}
		pages = append(pages, qr.Results...)
		if !qr.HasMore || qr.NextCursor == "" {
			return pages, nil
		}
		cursor = qr.NextCursor
	}
}

// QueryApproved 查询 status=approved 且 posted 复选框为 false 的页面，按返回顺序转换为记录。
func (c *Client) QueryApproved(ctx context.Context, pm PropertyMap, approved string) ([]model.Record, error) {
	conds := []any{statusEquals(pm, approved)}
	if pm.Posted != "" {
		conds = append(conds, map[string]any{
			"property": pm.Posted,
			"checkbox": map[string]any{"equals": false},
		})
	}
	pages, err := c.Query(ctx, map[string]any{"and": conds})
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(pages))
	for _, p := range pages {
		if p.Archived {
			continue
		}
		out = append(out, ToRecord(p, pm, approved))
	}
	return out, nil
}

func statusEquals(pm PropertyMap, name string) map[string]any {
	typ := pm.StatusType
	if typ == "" {
		typ = "select"
	}
	return map[string]any{
		"property": pm.Status,
		typ:        map[string]any{"equals": name},
	}
}

// ToRecord 将页面转换为候选记录；posted 复选框为 true 时一律视为 posted。
func ToRecord(p Page, pm PropertyMap, approved string) model.Record {
	props := p.Properties
	r := model.Record{
		ID:      p.ID,
		Title:   plain(props[pm.Title].Title),
		Summary: plain(props[pm.Summary].RichText),
		Status:  model.StatusDraft,
	}
	if u := props[pm.URL].URL; u != nil {
		r.URL = strings.TrimSpace(*u)
	}
	if pm.PostID != "" {
		r.ExternalPostID = strings.TrimSpace(plain(props[pm.PostID].RichText))
	}
	if d := props[pm.PostedAt].Date; pm.PostedAt != "" && d != nil && d.Start != "" {
		if t, err := parseDate(d.Start); err == nil {
			r.PostedAt = &t
		}
	}
	status := ""
	if v := props[pm.Status]; v.Select != nil {
		status = v.Select.Name
	} else if v.Status != nil {
		status = v.Status.Name
	}
	switch {
	case pm.Posted != "" && props[pm.Posted].Checkbox != nil && *props[pm.Posted].Checkbox:
		r.Status = model.StatusPosted
	case strings.EqualFold(status, string(model.StatusPosted)):
		r.Status = model.StatusPosted
	case status != "" && status == approved:
		r.Status = model.StatusApproved
	}
	return r
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func plain(rt []RichText) string {
	var b strings.Builder
	for _, t := range rt {
		switch {
		case t.PlainText != "":
			b.WriteString(t.PlainText)
		case t.Text != nil:
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

// texts 将长文本切分为不超过 maxText 字符的片段。
func texts(s string) []RichText {
	if s == "" {
		return []RichText{}
	}
	var out []RichText
	for s != "" {
		n := 0
		cut := len(s)
		for i := range s {
			if n == maxText {
				cut = i
				break
			}
			n++
		}
		out = append(out, RichText{Text: &TextBody{Content: s[:cut]}})
		s = s[cut:]
	}
	return out
}

// truncateText 截断到 maxText 字符以内（标题等单片段字段）。
func truncateText(s string) string {
	if utf8.RuneCountInString(s) <= maxText {
		return s
	}
	return string([]rune(s)[:maxText])
}

type createdPage struct {
	ID string `json:"id"`
}

// CreateDraft 以 status 状态新建页面：标题/链接/摘要属性，正文为摘要与来源链接段落。
func (c *Client) CreateDraft(ctx context.Context, pm PropertyMap, e model.Entry, status string) (string, error) {
	if pm.Title == "" {
		return "", errors.New("notion: no title property")
	}
	props := map[string]PropertyValue{
		pm.Title: {Title: []RichText{{Text: &TextBody{Content: truncateText(e.Title)}}}},
	}
	if pm.URL != "" {
		u := e.Link
		props[pm.URL] = PropertyValue{URL: &u}
	}
	if pm.Summary != "" && e.Summary != "" {
		props[pm.Summary] = PropertyValue{RichText: []RichText{{Text: &TextBody{Content: truncateText(e.Summary)}}}}
	}
	if pm.Status != "" && status != "" {
		if pm.StatusType == "status" {
			props[pm.Status] = PropertyValue{Status: &SelectName{Name: status}}
		} else {
			props[pm.Status] = PropertyValue{Select: &SelectName{Name: status}}
		}
	}
	paragraph := append(texts(e.Summary), RichText{Text: &TextBody{Content: "\n\nSource: " + e.Link}})
	body := map[string]any{
		"parent":     map[string]string{"database_id": c.dbID},
		"properties": props,
		"children": []map[string]any{{
			"object":    "block",
			"type":      "paragraph",
			"paragraph": map[string]any{"rich_text": paragraph},
		}},
	}
	var created createdPage
	if err := c.callOnce(ctx, "POST", "/pages", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ErrNoWriteback 表示数据库中没有可回写发布结果的属性。
var ErrNoWriteback = errors.New("notion: no posted/post id/posted at properties")

// MarkPosted 回写发布结果：posted 复选框、外部 post id 与发布时间（UTC）。
func (c *Client) MarkPosted(ctx context.Context, pm PropertyMap, pageID, postID string, at time.Time) error {
	props := map[string]PropertyValue{}
	if pm.Posted != "" {
		t := true
		props[pm.Posted] = PropertyValue{Checkbox: &t}
	}
	if pm.PostID != "" {
		props[pm.PostID] = PropertyValue{RichText: []RichText{{Text: &TextBody{Content: postID}}}}
	}
	if pm.PostedAt != "" {
		props[pm.PostedAt] = PropertyValue{Date: &DateValue{Start: at.UTC().Format("2006-01-02T15:04:05Z")}}
	}
	if len(props) == 0 {
		return ErrNoWriteback
	}
	return c.call(ctx, "PATCH", "/pages/"+pageID, map[string]any{"properties": props}, nil)
}

// URLLookup 按 URL 属性查询数据库，实现 dedup.URLIndex。
type URLLookup struct {
	c    *Client
	prop string
}

func (c *Client) URLLookup(prop string) *URLLookup { return &URLLookup{c: c, prop: prop} }

func (l *URLLookup) HasURL(ctx context.Context, url string) (bool, error) {
	var qr queryResponse
	body := map[string]any{
		"page_size": 1,
		"filter":    map[string]any{"property": l.prop, "url": map[string]any{"equals": url}},
	}
	if err := l.c.call(ctx, "POST", "/databases/"+l.c.dbID+"/query", body, &qr); err != nil {
		return false, err
	}
	return len(qr.Results) > 0, nil
}

func (l *URLLookup) ListURLs(ctx context.Context) ([]string, error) {
	pages, err := l.c.Query(ctx, map[string]any{"property": l.prop, "url": map[string]any{"is_not_empty": true}})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		if u := p.Properties[l.prop].URL; u != nil && strings.TrimSpace(*u) != "" {
			out = append(out, strings.TrimSpace(*u))
		}
	}
	return out, nil
}

// RecordSource 绑定属性映射与 approved 状态名，供发布器读取与回写记录。
type RecordSource struct {
	c        *Client
	pm       PropertyMap
	approved string
}

func (c *Client) Records(pm PropertyMap, approved string) *RecordSource {
	return &RecordSource{c: c, pm: pm, approved: approved}
}

func (s *RecordSource) QueryApproved(ctx context.Context) ([]model.Record, error) {
	return s.c.QueryApproved(ctx, s.pm, s.approved)
}

func (s *RecordSource) MarkPosted(ctx context.Context, recordID, postID string, at time.Time) error {
	return s.c.MarkPosted(ctx, s.pm, recordID, postID, at)
}

// DraftTarget 绑定属性映射与草稿状态名，供入库流程创建页面。
type DraftTarget struct {
	c      *Client
	pm     PropertyMap
	status string
}

// Drafts 返回草稿写入目标；status 不在选项中时回退为第一个选项。
func (c *Client) Drafts(pm PropertyMap, status string) *DraftTarget {
	return &DraftTarget{c: c, pm: pm, status: pm.DraftStatus(status)}
}

func (d *DraftTarget) CreateDraft(ctx context.Context, e model.Entry) (string, error) {
	return d.c.CreateDraft(ctx, d.pm, e, d.status)
}
