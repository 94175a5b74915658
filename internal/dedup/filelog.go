package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileLog 以 JSON 数组文件保存已发布 URL（与 posted_urls.json 格式一致）。
// 启动时整体读入，Flush 时整体原子写回（临时文件 + rename）。
type FileLog struct {
	path string
	s    *set
}

// OpenFileLog 读取文件；文件不存在视为空集合，内容损坏则报错。
func OpenFileLog(path string) (*FileLog, error) {
	if path == "" {
		path = "posted_urls.json"
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FileLog{path: path, s: newSet(nil)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dedup log %s: %w", path, err)
	}
	var urls []string
	if len(b) > 0 {
		if err := json.Unmarshal(b, &urls); err != nil {
			return nil, fmt.Errorf("decode dedup log %s: %w", path, err)
		}
	}
	return &FileLog{path: path, s: newSet(urls)}, nil
}

func (f *FileLog) Path() string { return f.path }

func (f *FileLog) Contains(_ context.Context, url string) (bool, error) {
	u, err := normalize(url)
	if err != nil {
		return false, err
	}
	return f.s.has(u), nil
}

func (f *FileLog) Add(_ context.Context, url string) error {
	u, err := normalize(url)
	if err != nil {
		return err
	}
	f.s.add(u)
	return nil
}

func (f *FileLog) All(context.Context) ([]string, error) { return f.s.sorted(), nil }

// Flush 在有新增时重写整个文件。
func (f *FileLog) Flush(_ context.Context) error {
	pending := f.s.takePending()
	if len(pending) == 0 {
		if _, err := os.Stat(f.path); err == nil {
			return nil
		}
	}
	if err := f.write(f.s.sorted()); err != nil {
		f.s.restorePending(pending)
		return err
	}
	return nil
}

func (f *FileLog) write(urls []string) error {
	b, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dedup log: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".dedup-*.json")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}
	return nil
}

func (f *FileLog) Close() error { return nil }
