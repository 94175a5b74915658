// 包 dedup 提供“已处理 URL”集合（去重存储）：
// - FileLog：本地 JSON 文件（posted_urls.json）
// - SQLite：本地 sqlite 表
// - Memory：仅内存（DRY_RUN/测试）
// - NotionIndex：实时查询 Notion 数据库（入库侧）
// 集合只增不减；首次运行时后端不存在视为空集合。
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrEmptyURL 表示传入了空 URL。
var ErrEmptyURL = errors.New("dedup: empty url")

// Store 为去重存储的统一接口。
// Add 幂等；本地实现会先缓冲，Flush 时持久化，Contains 立即可见。
type Store interface {
	Contains(ctx context.Context, url string) (bool, error)
	Add(ctx context.Context, url string) error
	All(ctx context.Context) ([]string, error)
	Flush(ctx context.Context) error
	Close() error
}

// Open 按类型打开本地去重存储：json（默认）| sqlite | memory。
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "json":
		return OpenFileLog(path)
	case "sqlite":
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported dedup store type: %s", kind)
	}
}

func normalize(url string) (string, error) {
	u := strings.TrimSpace(url)
	if u == "" {
		return "", ErrEmptyURL
	}
	return u, nil
}

// set 为并发安全的字符串集合，记录待持久化的新增项。
type set struct {
	mu      sync.Mutex
	items   map[string]struct{}
	pending []string
}

func newSet(initial []string) *set {
	s := &set{items: make(map[string]struct{}, len(initial))}
	for _, u := range initial {
		if u = strings.TrimSpace(u); u != "" {
			s.items[u] = struct{}{}
		}
	}
	return s
}

func (s *set) has(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[u]
	return ok
}

// add 返回是否为新元素。
func (s *set) add(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[u]; ok {
		return false
	}
	s.items[u] = struct{}{}
	s.pending = append(s.pending, u)
	return true
}

func (s *set) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for u := range s.items {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// takePending 取出待持久化项；持久化失败时需用 restorePending 放回。
func (s *set) takePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

func (s *set) restorePending(p []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(p, s.pending...)
}

// Memory 为纯内存实现，Flush 为空操作。
type Memory struct{ s *set }

func NewMemory(initial ...string) *Memory { return &Memory{s: newSet(initial)} }

func (m *Memory) Contains(_ context.Context, url string) (bool, error) {
	u, err := normalize(url)
	if err != nil {
		return false, err
	}
	return m.s.has(u), nil
}

func (m *Memory) Add(_ context.Context, url string) error {
	u, err := normalize(url)
	if err != nil {
		return err
	}
	m.s.add(u)
	m.s.takePending()
	return nil
}

func (m *Memory) All(context.Context) ([]string, error) { return m.s.sorted(), nil }
func (m *Memory) Flush(context.Context) error           { return nil }
func (m *Memory) Close() error                          { return nil }
