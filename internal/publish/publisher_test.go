package publish

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"newsrelay/internal/compose"
	"newsrelay/internal/dedup"
	"newsrelay/internal/model"
	"newsrelay/internal/social"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type mockSource struct{ mock.Mock }

func (m *mockSource) QueryApproved(ctx context.Context) ([]model.Record, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]model.Record)
	return recs, args.Error(1)
}

func (m *mockSource) MarkPosted(ctx context.Context, recordID, postID string, at time.Time) error {
	return m.Called(ctx, recordID, postID, at).Error(0)
}

type mockPoster struct{ mock.Mock }

func (m *mockPoster) Post(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func approved(id, title, url string) model.Record {
	return model.Record{ID: id, Title: title, Summary: "summary of " + id, URL: url, Status: model.StatusApproved}
}

func newPublisher(src Source, poster social.Poster, store dedup.Store, dry bool) *Publisher {
	return New(src, poster, store, Options{DryRun: dry, Now: func() time.Time { return fixedNow }})
}

func TestRun_OneFailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	recs := []model.Record{
		approved("p1", "One", "https://e/1"),
		approved("p2", "Two", "https://e/2"),
		approved("p3", "Three", "https://e/3"),
	}
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return(recs, nil)
	src.On("MarkPosted", mock.Anything, "p1", "101", fixedNow).Return(nil).Once()
	src.On("MarkPosted", mock.Anything, "p3", "103", fixedNow).Return(nil).Once()

	poster := &mockPoster{}
	poster.On("Post", mock.Anything, compose.Compose("One", "summary of p1", "https://e/1").Text).Return("101", nil)
	poster.On("Post", mock.Anything, compose.Compose("Two", "summary of p2", "https://e/2").Text).
		Return("", &social.Error{Kind: social.KindTransport, StatusCode: 503, Message: "over capacity"})
	poster.On("Post", mock.Anything, compose.Compose("Three", "summary of p3", "https://e/3").Text).Return("103", nil)

	store := dedup.NewMemory()
	sum, err := newPublisher(src, poster, store, false).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "posted 2/3", sum.String())
	assert.Equal(t, 3, sum.Eligible)
	assert.Equal(t, 2, sum.Posted)
	assert.Equal(t, 1, sum.Failed)
	src.AssertNumberOfCalls(t, "MarkPosted", 2)
	src.AssertExpectations(t)
	poster.AssertExpectations(t)

	failed := sum.Results[1]
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.Equal(t, "p2", failed.RecordID)
	assert.Equal(t, "https://e/2", failed.URL)
	assert.Equal(t, string(social.KindTransport), failed.Kind)

	all, _ := store.All(ctx)
	assert.Equal(t, []string{"https://e/1", "https://e/3"}, all)
}

// fakeNotion 模拟数据库：MarkPosted 成功后记录不再出现在 approved 查询中。
type fakeNotion struct {
	mu        sync.Mutex
	records   []model.Record
	writeback error
	marked    map[string]string
}

func (f *fakeNotion) QueryApproved(context.Context) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if _, ok := f.marked[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeNotion) MarkPosted(_ context.Context, id, postID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeback != nil {
		return f.writeback
	}
	if f.marked == nil {
		f.marked = map[string]string{}
	}
	f.marked[id] = postID
	return nil
}

type countingPoster struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingPoster) Post(_ context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return "id-" + string(rune('0'+len(c.texts))), nil
}

func TestRun_IdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posted_urls.json")
	src := &fakeNotion{records: []model.Record{approved("p1", "One", "https://e/1"), approved("p2", "Two", "https://e/2")}}
	poster := &countingPoster{}

	for run := 0; run < 2; run++ {
		store, err := dedup.OpenFileLog(path)
		require.NoError(t, err)
		sum, err := newPublisher(src, poster, store, false).Run(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Close())
		if run == 0 {
			assert.Equal(t, "posted 2/2", sum.String())
		} else {
			assert.Equal(t, "posted 0/0", sum.String())
		}
	}
	assert.Len(t, poster.texts, 2)
}

func TestRun_WritebackFailureStillGuardsNextRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posted_urls.json")
	src := &fakeNotion{
		records:   []model.Record{approved("p1", "One", "https://e/1")},
		writeback: errors.New("notion: http 409 conflict_error"),
	}
	poster := &countingPoster{}

	store, err := dedup.OpenFileLog(path)
	require.NoError(t, err)
	sum, err := newPublisher(src, poster, store, false).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Posted)
	assert.Equal(t, 1, sum.WritebackFailed)
	require.Error(t, sum.Results[0].WritebackErr)
	assert.Contains(t, sum.Report(10), "notion writeback failed")

	// 数据库仍返回该记录，本地去重存储阻止重复发帖
	store, err = dedup.OpenFileLog(path)
	require.NoError(t, err)
	sum, err = newPublisher(src, poster, store, false).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Posted)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, "already posted", sum.Results[0].Reason)
	assert.Len(t, poster.texts, 1)
}

func TestRun_SkipsIneligible(t *testing.T) {
	ctx := context.Background()
	posted := time.Now()
	recs := []model.Record{
		{ID: "d", Title: "Draft", URL: "https://e/d", Status: model.StatusDraft},
		{ID: "p", Title: "Posted", URL: "https://e/p", Status: model.StatusPosted},
		{ID: "a", Title: "Approved but stamped", URL: "https://e/a", Status: model.StatusApproved, PostedAt: &posted},
		{ID: "n", Title: "No url", URL: "  ", Status: model.StatusApproved},
		approved("seen", "Seen", "https://e/seen"),
	}
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return(recs, nil)
	poster := &mockPoster{}

	sum, err := newPublisher(src, poster, dedup.NewMemory("https://e/seen"), false).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Skipped)
	assert.Equal(t, 0, sum.Eligible)
	assert.Equal(t, "posted 0/0", sum.String())
	poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
	src.AssertNotCalled(t, "MarkPosted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_InvariantViolationIsNeverSent(t *testing.T) {
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return([]model.Record{approved("p1", "One", "https://e/1")}, nil)
	poster := &mockPoster{}
	p := New(src, poster, dedup.NewMemory(), Options{Compose: func(title, summary, link string) compose.Post {
		text := strings.Repeat("x", 300)
		return compose.Post{Text: text, Length: 300}
	}})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, KindInvariant, sum.Results[0].Kind)
	assert.Equal(t, "posted 0/1", sum.String())
	poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestRun_DryRunMakesNoWrites(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return([]model.Record{
		approved("p1", "One", "https://e/1"),
		approved("p2", strings.Repeat("T", 400), "https://e/2"),
	}, nil)
	poster := &mockPoster{}
	store := dedup.NewMemory()

	sum, err := newPublisher(src, poster, store, true).Run(ctx)
	require.NoError(t, err)
	require.Len(t, sum.Previews, 2)
	assert.Equal(t, "dry run: 2 previews/2", sum.String())
	assert.LessOrEqual(t, sum.Previews[1].Length, compose.MaxLen)
	assert.True(t, strings.HasSuffix(strings.Split(sum.Previews[1].Text, "\n")[0], compose.Ellipsis))
	poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
	src.AssertNotCalled(t, "MarkPosted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	all, _ := store.All(ctx)
	assert.Empty(t, all)
}

func TestRun_QueryFailure(t *testing.T) {
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return(nil, errors.New("notion down"))
	_, err := newPublisher(src, &mockPoster{}, dedup.NewMemory(), false).Run(context.Background())
	assert.ErrorContains(t, err, "notion down")
}

type failingFlush struct{ *dedup.Memory }

func (failingFlush) Flush(context.Context) error { return errors.New("disk full") }

func TestRun_FlushFailureIsReturned(t *testing.T) {
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return([]model.Record{approved("p1", "One", "https://e/1")}, nil)
	src.On("MarkPosted", mock.Anything, "p1", "1", fixedNow).Return(nil)
	poster := &mockPoster{}
	poster.On("Post", mock.Anything, mock.Anything).Return("1", nil)

	sum, err := newPublisher(src, poster, failingFlush{dedup.NewMemory()}, false).Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, sum.Posted)
}

func TestRun_CancelledContextStopsBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &mockSource{}
	src.On("QueryApproved", mock.Anything).Return([]model.Record{
		approved("p1", "One", "https://e/1"),
		approved("p2", "Two", "https://e/2"),
	}, nil)
	src.On("MarkPosted", mock.Anything, "p1", "1", fixedNow).Return(nil)
	poster := &mockPoster{}
	poster.On("Post", mock.Anything, mock.Anything).Return("1", nil).Run(func(mock.Arguments) { cancel() }).Once()

	sum, err := newPublisher(src, poster, dedup.NewMemory(), false).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Posted)
	assert.Len(t, sum.Results, 1)
}

func TestSummary_Report(t *testing.T) {
	sum := Summary{Eligible: 3, Posted: 1, Failed: 1, Skipped: 1, Results: []Result{
		{RecordID: "p1", Outcome: OutcomePosted, PostID: "101"},
		{RecordID: "p2", URL: "https://e/2", Outcome: OutcomeFailed, Kind: "rate_limit", Err: errors.New("x: rate_limit")},
		{RecordID: "p3", Outcome: OutcomeSkipped},
	}}
	assert.Equal(t, "posted 1/3 (failed 1, skipped 1)\n- OK p1 → 101\n- NG p2 https://e/2 [rate_limit]: x: rate_limit", sum.Report(10))
	assert.Equal(t, "posted 1/3 (failed 1, skipped 1)\n- OK p1 → 101\n…", sum.Report(1))
}
