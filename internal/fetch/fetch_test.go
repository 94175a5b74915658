package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, retry int) *Client {
	t.Helper()
	cl, err := New(Options{Timeout: 2 * time.Second, Retry: retry, Backoff: time.Millisecond, MaxDelay: 2 * time.Millisecond, UserAgent: "test-agent/1.0"})
	require.NoError(t, err)
	return cl
}

func TestGet_UserAgentAndSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := newClient(t, 0).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "test-agent/1.0", gotUA)
}

func TestDo_RebuildsRequestOnEveryRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var builds int32
	resp, err := newClient(t, 2).Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		atomic.AddInt32(&builds, 1)
		return http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, nil)
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(3), atomic.LoadInt32(&builds))
}

func TestDo_ExhaustedRetriesReturnStatusError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errors":[{"message":"over capacity"}]}`))
	}))
	defer srv.Close()

	_, err := newClient(t, 1).Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "60", se.RetryAfter)
	assert.Contains(t, se.Body, "over capacity")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := newClient(t, 3).Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_BuildErrorIsPermanent(t *testing.T) {
	var builds int32
	boom := errors.New("no credentials")
	_, err := newClient(t, 3).Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		atomic.AddInt32(&builds, 1)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestGet_NotFoundIsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := newClient(t, 0).Get(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "404")
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()
	cl, err := New(Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = cl.Get(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestWithRetry_Copies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cl := newClient(t, 2)
	_, err := cl.WithRetry(-1).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.SwapInt32(&calls, 0), "negative retries clamp to a single attempt")

	_, err = cl.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "the original keeps its retries")
}
