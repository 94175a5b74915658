package notion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"newsrelay/internal/logx"
)

// Database 为 GET /databases/{id} 的响应（仅取所需字段）。
type Database struct {
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title"`
	Properties map[string]PropertySchema `json:"properties"`
}

// PropertySchema 为数据库属性定义；select/status 类型带有选项。
type PropertySchema struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Select *OptionSchema `json:"select,omitempty"`
	Status *OptionSchema `json:"status,omitempty"`
}

type OptionSchema struct {
	Options []Option `json:"options"`
}

type Option struct {
	Name string `json:"name"`
}

// options 返回 select/status 的选项名。
func (p PropertySchema) options() []string {
	var src *OptionSchema
	switch p.Type {
	case "select":
		src = p.Select
	case "status":
		src = p.Status
	}
	if src == nil {
		return nil
	}
	out := make([]string, 0, len(src.Options))
	for _, o := range src.Options {
		out = append(out, o.Name)
	}
	return out
}

// PropertyMap 为逻辑字段到属性名的映射；空串表示数据库中没有对应属性。
type PropertyMap struct {
	Title    string
	URL      string
	Summary  string
	Status   string
	Posted   string
	PostID   string
	PostedAt string

	// StatusType 为 select 或 status（Notion 的两种状态属性）。
	StatusType    string
	StatusOptions []string
}

// Database 读取数据库 schema。
func (c *Client) Database(ctx context.Context) (*Database, error) {
	var db Database
	if err := c.call(ctx, "GET", "/databases/"+c.dbID, nil, &db); err != nil {
		return nil, err
	}
	for name, p := range db.Properties {
		if p.Name == "" {
			p.Name = name
			db.Properties[name] = p
		}
	}
	return &db, nil
}

// Discover 结合显式指定（hints）与属性类型发现字段映射：
// 指定的属性存在且类型匹配时使用之，否则取该类型的第一个属性（按名称排序）。
// Summary/PostID 为 rich_text，只按指定名或常用名匹配，避免误用其他文本列。
func Discover(db *Database, hints PropertyMap) PropertyMap {
	names := make([]string, 0, len(db.Properties))
	for name := range db.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	pick := func(hint string, types ...string) string {
		if p, ok := db.Properties[hint]; ok && hint != "" && hasType(p.Type, types) {
			return hint
		}
		for _, n := range names {
			if hasType(db.Properties[n].Type, types) {
				return n
			}
		}
		return ""
	}
	pickNamed := func(hint string, typ string, fallbacks ...string) string {
		for _, n := range append([]string{hint}, fallbacks...) {
			if p, ok := db.Properties[n]; ok && n != "" && p.Type == typ {
				return n
			}
		}
		return ""
	}

	pm := PropertyMap{
		Title:    pick(hints.Title, "title"),
		URL:      pick(hints.URL, "url"),
		Status:   pick(hints.Status, "select", "status"),
		Posted:   pick(hints.Posted, "checkbox"),
		PostedAt: pick(hints.PostedAt, "date"),
		Summary:  pickNamed(hints.Summary, "rich_text", "Summary"),
		PostID:   pickNamed(hints.PostID, "rich_text", "TweetID", "PostID"),
	}
	if pm.Status != "" {
		p := db.Properties[pm.Status]
		pm.StatusType = p.Type
		pm.StatusOptions = p.options()
	}
	logx.Debug("检测到属性映射",
		"title", pm.Title, "url", pm.URL, "summary", pm.Summary, "status", pm.Status,
		"posted", pm.Posted, "post_id", pm.PostID, "posted_at", pm.PostedAt,
		"status_options", strings.Join(pm.StatusOptions, "|"))
	return pm
}

// DraftStatus 返回新建页面使用的状态名：want 在选项中时使用之，否则取第一个选项；无选项返回空串。
func (pm PropertyMap) DraftStatus(want string) string {
	for _, o := range pm.StatusOptions {
		if o == want {
			return o
		}
	}
	if len(pm.StatusOptions) > 0 {
		return pm.StatusOptions[0]
	}
	return ""
}

// RequireIngest 校验入库所需属性。
func (pm PropertyMap) RequireIngest() error {
	var missing []string
	if pm.Title == "" {
		missing = append(missing, "title")
	}
	if pm.URL == "" {
		missing = append(missing, "url")
	}
	return requireProps(missing)
}

// RequirePublish 校验发布所需属性。
func (pm PropertyMap) RequirePublish() error {
	var missing []string
	if pm.Status == "" {
		missing = append(missing, "select/status")
	}
	if pm.URL == "" {
		missing = append(missing, "url")
	}
	return requireProps(missing)
}

func requireProps(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("notion database lacks properties of type: %s", strings.Join(missing, ", "))
}

func hasType(t string, types []string) bool {
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
