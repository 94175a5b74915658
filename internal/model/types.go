// 包 model 定义流水线共享的数据模型（订阅条目/候选记录/预览）。
package model

import "time"

// Status 为 Notion 中记录的生命周期状态。
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusPosted   Status = "posted"
)

// Entry 为订阅解析后的条目（入库前）。
type Entry struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
}

// Record 为 Notion 数据库中的一条候选记录。
// Status=posted 为终态：发布器不会再次处理。
type Record struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	URL            string     `json:"url"`
	Status         Status     `json:"status"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
}

// Eligible 仅 approved 且尚未发布的记录可进入发布流程。
func (r Record) Eligible() bool {
	return r.Status == StatusApproved && r.ExternalPostID == "" && r.PostedAt == nil
}

// Preview 为 DRY_RUN 下导出的待发文本。
type Preview struct {
	RecordID string `json:"record_id"`
	URL      string `json:"url"`
	Text     string `json:"text"`
	Length   int    `json:"length"`
}

// Export 为预览导出文件的顶层结构。
type Export struct {
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Previews    []Preview `json:"previews"`
}
