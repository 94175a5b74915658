// 包 publish 实现发布状态机：
// eligible → sending → posted | failed。
// posted 为终态，只有确认发帖成功后才回写 Notion 与去重存储（去重存储最后写入）；
// failed 不修改记录，下一轮整体重试。单条失败不会中断批次。
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsrelay/internal/compose"
	"newsrelay/internal/dedup"
	"newsrelay/internal/logx"
	"newsrelay/internal/model"
	"newsrelay/internal/social"
)

// KindInvariant 表示文本组装违反长度上限（程序错误，该记录不发送）。
const KindInvariant = "invariant"

// KindStore 表示查询去重存储失败。
const KindStore = "store"

// Source 为候选记录来源（Notion 数据库）。
type Source interface {
	QueryApproved(ctx context.Context) ([]model.Record, error)
	MarkPosted(ctx context.Context, recordID, postID string, at time.Time) error
}

// Outcome 为单条记录在本轮的结果。
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomePreview Outcome = "preview"
)

// Result 为单条记录的处理结果。
type Result struct {
	RecordID string
	URL      string
	Outcome  Outcome
	PostID   string
	Text     string
	// Kind 为失败分类（social.Kind 或 invariant/store）；Reason 为跳过原因。
	Kind   string
	Reason string
	Err    error
	// WritebackErr 非空表示已发帖但回写 Notion 失败。
	WritebackErr error
}

// Summary 为批次汇总；Eligible 为通过状态与去重检查的记录数。
type Summary struct {
	DryRun          bool
	Eligible        int
	Posted          int
	Failed          int
	Skipped         int
	WritebackFailed int
	Results         []Result
	Previews        []model.Preview
}

// String 返回 "posted X/Y"。
func (s Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("dry run: %d previews/%d", len(s.Previews), s.Eligible)
	}
	return fmt.Sprintf("posted %d/%d", s.Posted, s.Eligible)
}

// Report 生成通知文本：汇总行加至多 limit 条明细。
func (s Summary) Report(limit int) string {
	var b strings.Builder
	b.WriteString(s.String())
	fmt.Fprintf(&b, " (failed %d, skipped %d", s.Failed, s.Skipped)
	if s.WritebackFailed > 0 {
		fmt.Fprintf(&b, ", writeback failed %d", s.WritebackFailed)
	}
	b.WriteString(")")
	n := 0
	for _, r := range s.Results {
		var line string
		switch r.Outcome {
		case OutcomePosted:
			line = fmt.Sprintf("- OK %s → %s", r.RecordID, r.PostID)
			if r.WritebackErr != nil {
				line += fmt.Sprintf(" (notion writeback failed: %v)", r.WritebackErr)
			}
		case OutcomeFailed:
			line = fmt.Sprintf("- NG %s %s [%s]: %v", r.RecordID, r.URL, r.Kind, r.Err)
		case OutcomePreview:
			line = fmt.Sprintf("- %s: %s", r.RecordID, r.Text)
		default:
			continue
		}
		if n == limit {
			b.WriteString("\n…")
			break
		}
		b.WriteString("\n")
		b.WriteString(line)
		n++
	}
	return b.String()
}

// Options 为发布器参数。
type Options struct {
	DryRun bool
	Now    func() time.Time
	// Compose 用于替换文本组装（测试用）；默认 compose.Compose。
	Compose func(title, summary, link string) compose.Post
}

// Publisher 顺序处理候选记录；同一时间只应有一个实例写入去重存储与数据库。
type Publisher struct {
	src     Source
	poster  social.Poster
	store   dedup.Store
	dryRun  bool
	now     func() time.Time
	compose func(title, summary, link string) compose.Post
}

func New(src Source, poster social.Poster, store dedup.Store, opts Options) *Publisher {
	p := &Publisher{src: src, poster: poster, store: store, dryRun: opts.DryRun, now: opts.Now, compose: opts.Compose}
	if p.now == nil {
		p.now = time.Now
	}
	if p.compose == nil {
		p.compose = compose.Compose
	}
	return p
}

// Run 执行一轮发布。返回错误的情况：查询候选失败、去重存储持久化失败、ctx 取消。
// 其余失败均记录在 Summary 中，批次继续。
func (p *Publisher) Run(ctx context.Context) (Summary, error) {
	sum := Summary{DryRun: p.dryRun}
	records, err := p.src.QueryApproved(ctx)
	if err != nil {
		return sum, fmt.Errorf("query approved records: %w", err)
	}
	logx.Infof("候选记录 %d 条", len(records))

	var runErr error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res := p.process(ctx, rec, &sum)
		sum.Results = append(sum.Results, res)
		switch res.Outcome {
		case OutcomePosted:
			sum.Posted++
			if res.WritebackErr != nil {
				sum.WritebackFailed++
			}
		case OutcomeFailed:
			sum.Failed++
		case OutcomeSkipped:
			sum.Skipped++
		}
	}

	// 取消后仍需持久化已发布的 URL
	if !p.dryRun {
		if err := p.store.Flush(context.WithoutCancel(ctx)); err != nil {
			return sum, errors.Join(runErr, fmt.Errorf("flush dedup store: %w", err))
		}
	}
	logx.Info("发布完成", "summary", sum.String(), "failed", sum.Failed, "skipped", sum.Skipped, "writeback_failed", sum.WritebackFailed)
	return sum, runErr
}

func (p *Publisher) process(ctx context.Context, rec model.Record, sum *Summary) Result {
	res := Result{RecordID: rec.ID, URL: strings.TrimSpace(rec.URL)}
	if !rec.Eligible() {
		res.Outcome, res.Reason = OutcomeSkipped, "status "+string(rec.Status)
		logx.Debug("跳过非 approved 记录", "id", rec.ID, "status", rec.Status)
		return res
	}
	if res.URL == "" {
		res.Outcome, res.Reason = OutcomeSkipped, "empty url"
		logx.Warn("跳过缺少 URL 的记录", "id", rec.ID)
		return res
	}
	seen, err := p.store.Contains(ctx, res.URL)
	if err != nil {
		sum.Eligible++
		return p.fail(res, KindStore, err)
	}
	if seen {
		res.Outcome, res.Reason = OutcomeSkipped, "already posted"
		logx.Info("已发布过，跳过", "id", rec.ID, "url", res.URL)
		return res
	}
	sum.Eligible++

	post := p.compose(rec.Title, rec.Summary, res.URL)
	res.Text = post.Text
	if !post.Fits() {
		logx.Error("组装文本超出长度上限，不发送", "id", rec.ID, "url", res.URL, "length", compose.EffectiveLength(post.Text))
		return p.fail(res, KindInvariant, fmt.Errorf("composed post length %d exceeds %d", compose.EffectiveLength(post.Text), compose.MaxLen))
	}

	if p.dryRun {
		res.Outcome = OutcomePreview
		sum.Previews = append(sum.Previews, model.Preview{RecordID: rec.ID, URL: res.URL, Text: post.Text, Length: post.Length})
		return res
	}

	id, err := p.poster.Post(ctx, post.Text)
	if err != nil {
		return p.fail(res, string(social.KindOf(err)), err)
	}
	res.Outcome, res.PostID = OutcomePosted, id
	logx.Info("已发布", "id", rec.ID, "post_id", id, "url", res.URL)

	// 帖子已发出，回写不随 ctx 取消而放弃
	wctx := context.WithoutCancel(ctx)
	if err := p.src.MarkPosted(wctx, rec.ID, id, p.now()); err != nil {
		// 已发帖但数据库未回写：下一轮仍可能查询到该记录，靠本地去重存储拦截。
		res.WritebackErr = err
		logx.Error("回写 Notion 失败，记录可能在下次运行时重复", "id", rec.ID, "post_id", id, "url", res.URL, "err", err)
	}
	if err := p.store.Add(wctx, res.URL); err != nil {
		logx.Error("写入去重存储失败", "id", rec.ID, "url", res.URL, "err", err)
		if res.WritebackErr == nil {
			res.WritebackErr = err
		} else {
			res.WritebackErr = errors.Join(res.WritebackErr, err)
		}
	}
	return res
}

func (p *Publisher) fail(res Result, kind string, err error) Result {
	res.Outcome, res.Kind, res.Err = OutcomeFailed, kind, err
	logx.Warn("发布失败", "id", res.RecordID, "url", res.URL, "kind", kind, "err", err)
	return res
}
