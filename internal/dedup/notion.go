package dedup

import (
	"context"
	"fmt"
)

// URLIndex 为文档数据库中按 URL 查询已有记录的能力（由 notion.Client 实现）。
type URLIndex interface {
	HasURL(ctx context.Context, url string) (bool, error)
	ListURLs(ctx context.Context) ([]string, error)
}

// NotionIndex 为入库侧去重：数据库本身即事实来源，Contains 实时查询。
// Add 只记录本轮已写入的 URL（页面创建本身即持久化），Flush 为空操作。
type NotionIndex struct {
	idx URLIndex
	s   *set
}

func NewNotionIndex(idx URLIndex) *NotionIndex {
	return &NotionIndex{idx: idx, s: newSet(nil)}
}

func (n *NotionIndex) Contains(ctx context.Context, url string) (bool, error) {
	u, err := normalize(url)
	if err != nil {
		return false, err
	}
	if n.s.has(u) {
		return true, nil
	}
	ok, err := n.idx.HasURL(ctx, u)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", u, err)
	}
	return ok, nil
}

func (n *NotionIndex) Add(_ context.Context, url string) error {
	u, err := normalize(url)
	if err != nil {
		return err
	}
	n.s.add(u)
	n.s.takePending()
	return nil
}

// All 返回数据库中的全部 URL 与本轮新增的并集。
func (n *NotionIndex) All(ctx context.Context) ([]string, error) {
	remote, err := n.idx.ListURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	merged := newSet(remote)
	for _, u := range n.s.sorted() {
		merged.add(u)
	}
	return merged.sorted(), nil
}

func (n *NotionIndex) Flush(context.Context) error { return nil }
func (n *NotionIndex) Close() error                { return nil }
