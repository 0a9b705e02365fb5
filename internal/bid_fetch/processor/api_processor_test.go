package processor

import (
	"bid-fetch/internal/bid_fetch/model"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const okBody = `{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},
"body":{"items":[{"bidNtceNo":"R25BK00000001","bidNtceNm":"AI 플랫폼 구축"}],"numOfRows":10,"pageNo":1,"totalCount":"1"}}}`

type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordedSleep) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestClient(t *testing.T, srv *httptest.Server, sleeps *recordedSleep) *SearchClient {
	c := NewSearchClient(zaptest.NewLogger(t), srv.Client(), srv.URL, "secret-key")
	c.Sleep = sleeps.sleep
	return c
}

func validParams() model.SearchParams {
	return model.SearchParams{Keyword: "인공지능", StartDate: "20250101", EndDate: "20250131", NumRows: 10}
}

func TestSearchSendsQuery(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &recordedSleep{})
	env, err := c.Search(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, "/getBidPblancListInfoThng", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "secret-key", q.Get("serviceKey"))
	assert.Equal(t, "json", q.Get("type"))
	assert.Equal(t, "10", q.Get("numOfRows"))
	assert.Equal(t, "1", q.Get("pageNo"))
	assert.Equal(t, "인공지능", q.Get("bidNtceNm"))
	assert.Equal(t, "202501010000", q.Get("inqryBgnDt"))
	assert.Equal(t, "202501312359", q.Get("inqryEndDt"))
	assert.Empty(t, q.Get("ntceInsttNm"))

	assert.Equal(t, 1, env.TotalCount())
	items, err := env.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "R25BK00000001", items[0].Number())
}

func TestSearchRetriesWithLinearBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sleeps := &recordedSleep{}
	c := newTestClient(t, srv, sleeps)
	_, err := c.Search(context.Background(), validParams())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 5, apiErr.Attempts)
	assert.Contains(t, err.Error(), "5 consecutive attempts")

	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}, sleeps.all())
}

func TestSearchRetriesMalformedBodyThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			_, _ = w.Write([]byte("<html>gateway</html>"))
		case 2:
			_, _ = w.Write([]byte(`{"nkoneps":{}}`))
		default:
			_, _ = w.Write([]byte(okBody))
		}
	}))
	defer srv.Close()

	sleeps := &recordedSleep{}
	c := newTestClient(t, srv, sleeps)
	env, err := c.Search(context.Background(), validParams())
	require.NoError(t, err)
	assert.True(t, env.OK())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.all())
}

func TestSearchResultCodeIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"30","resultMsg":"SERVICE KEY IS NOT REGISTERED ERROR."}}}`))
	}))
	defer srv.Close()

	sleeps := &recordedSleep{}
	c := newTestClient(t, srv, sleeps)
	_, err := c.Search(context.Background(), validParams())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultCode)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "30", apiErr.ResultCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeps.all())
}

func TestSearchStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewSearchClient(zaptest.NewLogger(t), srv.Client(), srv.URL, "k")
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	_, err := c.Search(ctx, validParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchPassesInstitution(t *testing.T) {
	var inst string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inst = r.URL.Query().Get("ntceInsttNm")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := validParams()
	p.Institution = "조달청"
	_, err := newTestClient(t, srv, &recordedSleep{}).Search(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "조달청", inst)
}
