package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite 以 sqlite 表 seen_urls 保存已发布 URL，基于 modernc.org/sqlite（纯 Go 实现）。
// 新增项先缓冲在内存中，Flush 时在单个事务内写入。
type SQLite struct {
	db *sql.DB
	s  *set
}

// OpenSQLite 打开数据库、执行迁移并载入全部 URL。
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "./posted_urls.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	st := &SQLite{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	urls, err := st.load(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	st.s = newSet(urls)
	return st, nil
}

// migrate 建表，保持幂等。
func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS seen_urls (
            url TEXT PRIMARY KEY,
            created_at TIMESTAMP
        );`)
	if err != nil {
		return fmt.Errorf("exec migrate: %w", err)
	}
	return nil
}

func (s *SQLite) load(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM seen_urls ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("query seen_urls: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan seen_urls: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen_urls: %w", err)
	}
	return out, nil
}

func (s *SQLite) Contains(_ context.Context, url string) (bool, error) {
	u, err := normalize(url)
	if err != nil {
		return false, err
	}
	return s.s.has(u), nil
}

func (s *SQLite) Add(_ context.Context, url string) error {
	u, err := normalize(url)
	if err != nil {
		return err
	}
	s.s.add(u)
	return nil
}

func (s *SQLite) All(context.Context) ([]string, error) { return s.s.sorted(), nil }

// Flush 将缓冲的新增 URL 写入（已存在则忽略）。
func (s *SQLite) Flush(ctx context.Context) error {
	pending := s.s.takePending()
	if len(pending) == 0 {
		return nil
	}
	if err := s.insert(ctx, pending); err != nil {
		s.s.restorePending(pending)
		return err
	}
	return nil
}

func (s *SQLite) insert(ctx context.Context, urls []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	now := time.Now()
	for _, u := range urls {
		if _, err := tx.ExecContext(ctx, `INSERT INTO seen_urls(url, created_at) VALUES(?, ?) ON CONFLICT(url) DO NOTHING`, u, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert url %s: %w", u, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
