package dedup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// contract 对每种本地实现执行相同的契约检查。
func contract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := st.Contains(ctx, "https://ex/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Add(ctx, "https://ex/a"))
	require.NoError(t, st.Add(ctx, "https://ex/a"))
	require.NoError(t, st.Add(ctx, " https://ex/b "))

	ok, err = st.Contains(ctx, "https://ex/a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Contains(ctx, "https://ex/b")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := st.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ex/a", "https://ex/b"}, all)

	assert.ErrorIs(t, st.Add(ctx, "  "), ErrEmptyURL)
	_, err = st.Contains(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestMemory_Contract(t *testing.T) {
	contract(t, NewMemory())
}

func TestFileLog_Contract(t *testing.T) {
	st, err := OpenFileLog(filepath.Join(t.TempDir(), "posted_urls.json"))
	require.NoError(t, err)
	contract(t, st)
}

func TestSQLite_Contract(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "seen.db"))
	require.NoError(t, err)
	defer st.Close()
	contract(t, st)
}

func TestFileLog_MissingFileIsEmptyAndFlushPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "posted_urls.json")
	ctx := context.Background()

	st, err := OpenFileLog(path)
	require.NoError(t, err)
	all, err := st.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, st.Add(ctx, "https://ex/2"))
	require.NoError(t, st.Add(ctx, "https://ex/1"))
	// 未 Flush 前文件不存在
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, st.Flush(ctx))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["https://ex/1","https://ex/2"]`, string(b))

	reopened, err := OpenFileLog(path)
	require.NoError(t, err)
	ok, err := reopened.Contains(ctx, "https://ex/2")
	require.NoError(t, err)
	assert.True(t, ok)

	// 追加后再次写回仍保留旧项
	require.NoError(t, reopened.Add(ctx, "https://ex/3"))
	require.NoError(t, reopened.Flush(ctx))
	again, err := OpenFileLog(path)
	require.NoError(t, err)
	all, err = again.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ex/1", "https://ex/2", "https://ex/3"}, all)
}

func TestFileLog_CorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posted_urls.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := OpenFileLog(path)
	require.Error(t, err)
}

func TestFileLog_EmptyFileIsEmptySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posted_urls.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	st, err := OpenFileLog(path)
	require.NoError(t, err)
	all, _ := st.All(context.Background())
	assert.Empty(t, all)
}

func TestSQLite_FlushSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.db")
	ctx := context.Background()

	st, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Add(ctx, "https://ex/a"))
	require.NoError(t, st.Flush(ctx))
	require.NoError(t, st.Add(ctx, "https://ex/unflushed"))
	require.NoError(t, st.Close())

	st2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer st2.Close()
	all, err := st2.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ex/a"}, all)
}

func TestOpen_Kinds(t *testing.T) {
	dir := t.TempDir()
	st, err := Open("", filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileLog{}, st)

	st, err = Open("SQLite", filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, st)
	require.NoError(t, st.Close())

	st, err = Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open("redis", "")
	assert.Error(t, err)
}

type mockIndex struct{ mock.Mock }

func (m *mockIndex) HasURL(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

func (m *mockIndex) ListURLs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func TestNotionIndex_QueriesLiveAndRemembersAdds(t *testing.T) {
	ctx := context.Background()
	idx := new(mockIndex)
	idx.On("HasURL", ctx, "https://ex/remote").Return(true, nil).Once()
	idx.On("HasURL", ctx, "https://ex/new").Return(false, nil).Once()
	idx.On("ListURLs", ctx).Return([]string{"https://ex/remote"}, nil)

	n := NewNotionIndex(idx)
	ok, err := n.Contains(ctx, "https://ex/remote")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = n.Contains(ctx, "https://ex/new")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, n.Add(ctx, "https://ex/new"))
	// 已在本轮记录的 URL 不再查询远端
	ok, err = n.Contains(ctx, "https://ex/new")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := n.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ex/new", "https://ex/remote"}, all)
	require.NoError(t, n.Flush(ctx))
	idx.AssertExpectations(t)
}

func TestNotionIndex_LookupError(t *testing.T) {
	ctx := context.Background()
	idx := new(mockIndex)
	idx.On("HasURL", ctx, "https://ex/x").Return(false, errors.New("boom"))
	_, err := NewNotionIndex(idx).Contains(ctx, "https://ex/x")
	assert.ErrorContains(t, err, "boom")
}
