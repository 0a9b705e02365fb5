package api

import (
	"archive/zip"
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/model"
	"bid-fetch/internal/bid_fetch/processor"
	"bid-fetch/internal/bid_fetch/search"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSearcher struct {
	lib     *files.Library
	results map[string]*model.SearchResult
	runErr  error
	ran     []model.SearchParams
}

func (f *fakeSearcher) Run(_ context.Context, p model.SearchParams) (*model.SearchResult, error) {
	f.ran = append(f.ran, p)
	if f.runErr != nil {
		return nil, f.runErr
	}
	r := &model.SearchResult{
		SearchID:     "3f2a",
		SearchParams: p,
		SearchDir:    f.lib.SearchDir("3f2a"),
		JSONFile:     filepath.Join(f.lib.SearchDir("3f2a"), "3f2a_search_results.json"),
		TotalCount:   1,
		Items:        []model.BidItem{{BidNtceNo: "R25BK001", BidNtceNm: "클라우드 전환", Attachments: []model.DownloadedAttachment{}}},
		Timestamp:    time.Now(),
	}
	f.results[r.SearchID] = r
	return r, nil
}

func (f *fakeSearcher) Get(_ context.Context, id string) (*model.SearchResult, error) {
	r, ok := f.results[id]
	if !ok {
		return nil, search.ErrNotFound
	}
	return r, nil
}

func (f *fakeSearcher) Progress(id string) (model.SearchProgress, error) {
	if _, ok := f.results[id]; !ok {
		return model.SearchProgress{}, search.ErrNotFound
	}
	return model.SearchProgress{SearchID: id, TotalBids: 4, ProcessedBids: 1, CurrentStep: model.StepDownloading, StartTime: time.Now()}, nil
}

func (f *fakeSearcher) Statistics(ctx context.Context, id string) (model.SearchStatistics, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return model.SearchStatistics{}, err
	}
	return model.Statistics(r), nil
}

func (f *fakeSearcher) Package(ctx context.Context, id string) ([]files.ZipEntry, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return f.lib.PlanDirArchive(id)
}

func (f *fakeSearcher) History(context.Context, int) ([]model.SearchSummary, error) {
	out := []model.SearchSummary{}
	for _, r := range f.results {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (f *fakeSearcher) CachedCount() int { return len(f.results) }

func newTestServer(t *testing.T) (*gin.Engine, *fakeSearcher, *files.Library) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lib, err := files.NewLibrary(t.TempDir(), 1024, 0)
	require.NoError(t, err)
	fs := &fakeSearcher{lib: lib, results: map[string]*model.SearchResult{}}
	srv := &Server{Log: zaptest.NewLogger(t), Searches: fs, Library: lib, CORSOrigins: []string{"*"}}
	return srv.Router(), fs, lib
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func put(t *testing.T, p string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestSearchSuccess(t *testing.T) {
	r, fs, _ := newTestServer(t)

	w := do(r, http.MethodPost, "/api/search", `{"keyword":"클라우드","start_date":"20250101","end_date":"20250115"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "3f2a", body["search_id"])
	assert.Equal(t, float64(1), body["total_count"])
	assert.Len(t, body["results"], 1)
	assert.NotEmpty(t, body["json_file"])

	require.Len(t, fs.ran, 1)
	assert.Equal(t, model.DefaultRows, fs.ran[0].NumRows)

	w = do(r, http.MethodGet, "/api/search/3f2a/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3f2a", decode(t, w)["search_id"])
}

func TestSearchValidation(t *testing.T) {
	r, fs, _ := newTestServer(t)
	long := strings.Repeat("가", 101)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing keyword", `{"start_date":"20250101","end_date":"20250115"}`, "keyword is required"},
		{"keyword too long", `{"keyword":"` + long + `","start_date":"20250101","end_date":"20250115"}`, "keyword"},
		{"bad date", `{"keyword":"a","start_date":"2025-01-01","end_date":"20250115"}`, "start_date must be a valid YYYYMMDD date"},
		{"impossible date", `{"keyword":"a","start_date":"20250230","end_date":"20250315"}`, "start_date"},
		{"start after end", `{"keyword":"a","start_date":"20250201","end_date":"20250115"}`, "after"},
		{"too many rows", `{"keyword":"a","start_date":"20250101","end_date":"20250115","num_rows":501}`, "num_rows"},
		{"not json", `keyword=a`, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/search", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tc.want)
		})
	}
	assert.Empty(t, fs.ran, "validation happens before the search runs")
}

func TestSearchRemoteFailure(t *testing.T) {
	r, fs, _ := newTestServer(t)
	fs.runErr = &processor.APIError{Attempts: 5, Err: processor.ErrRetriesExhausted}

	w := do(r, http.MethodPost, "/api/search", `{"keyword":"a","start_date":"20250101","end_date":"20250101"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "API request failed after 5 consecutive attempts", body["error"])
}

func TestUnknownSearchID(t *testing.T) {
	r, _, _ := newTestServer(t)
	for _, p := range []string{"results", "status", "statistics", "package"} {
		w := do(r, http.MethodGet, "/api/search/nope/"+p, "")
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}

func TestSearchStatusStatisticsHistory(t *testing.T) {
	r, _, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/search", `{"keyword":"a","start_date":"20250101","end_date":"20250101"}`).Code)

	w := do(r, http.MethodGet, "/api/search/3f2a/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, float64(25), status["progress_percent"])
	assert.Equal(t, model.StepDownloading, status["current_step"])

	w = do(r, http.MethodGet, "/api/search/3f2a/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["statistics"].(map[string]any)
	assert.Equal(t, float64(1), stats["total_notices"])

	w = do(r, http.MethodGet, "/api/search/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestSearchPackage(t *testing.T) {
	r, _, lib := newTestServer(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/search", `{"keyword":"a","start_date":"20250101","end_date":"20250101"}`).Code)

	w := do(r, http.MethodGet, "/api/search/3f2a/package", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "empty directory")

	put(t, filepath.Join(lib.SearchDir("3f2a"), "R25BK001_공고서.hwp"), "hwp")
	w = do(r, http.MethodGet, "/api/search/3f2a/package", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "R25BK001_공고서.hwp", zr.File[0].Name)
}

func TestDownloadFiles(t *testing.T) {
	r, _, lib := newTestServer(t)
	put(t, filepath.Join(lib.Dir(files.TypeAttachment), "doc.pdf"), "%PDF-1.4")
	put(t, filepath.Join(lib.Dir(files.TypeAttachment), "huge.pdf"), strings.Repeat("x", 2048))
	put(t, filepath.Join(lib.Dir(files.TypeReport), "search_report_a_id1.json"), `{"ok":true}`)
	put(t, filepath.Join(lib.Dir(files.TypeJSON), "id1_search_results.json"), `{}`)

	w := do(r, http.MethodGet, "/api/download/attachment/doc.pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	w = do(r, http.MethodGet, "/api/download/attachment/doc.pdf?inline=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inline", w.Header().Get("Content-Disposition"))

	w = do(r, http.MethodGet, "/api/download/attachment/huge.pdf", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(r, http.MethodGet, "/api/download/attachment/missing.pdf", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w), "error")

	w = do(r, http.MethodGet, "/api/download/report/search_report_a_id1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/download/json/id1_search_results.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := do(r, http.MethodGet, "/api/download/json/..%5C..%5Cetc%5Cpasswd", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/download/attachment/..", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/download/json/..%5Cconfig.yaml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeleteAndUsage(t *testing.T) {
	r, _, lib := newTestServer(t)
	put(t, filepath.Join(lib.Dir(files.TypeJSON), "id1_search_results.json"), "{}")
	put(t, filepath.Join(lib.Dir(files.TypeJSON), "id2_search_results.json"), "{}")

	w := do(r, http.MethodGet, "/api/download/list/json?search_id=id1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(r, http.MethodGet, "/api/download/list/pictures", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/download/disk-usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	total := decode(t, w)["total"].(map[string]any)
	assert.Equal(t, float64(2), total["file_count"])

	w = do(r, http.MethodDelete, "/api/download/json/id1_search_results.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = do(r, http.MethodDelete, "/api/download/json/id1_search_results.json", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchResultsZip(t *testing.T) {
	r, _, lib := newTestServer(t)

	w := do(r, http.MethodGet, "/api/download/search-results/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	put(t, filepath.Join(lib.Dir(files.TypeJSON), "abc_search_results.json"), "{}")
	put(t, filepath.Join(lib.Dir(files.TypeReport), "search_report_k_abc.json"), "{}")
	w = do(r, http.MethodGet, "/api/download/search-results/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "search_results_abc.zip")
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)
}

func TestCleanupEndpoint(t *testing.T) {
	r, _, lib := newTestServer(t)
	old := filepath.Join(lib.Dir(files.TypeReport), "old.json")
	put(t, old, "{}")
	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	w := do(r, http.MethodPost, "/api/download/cleanup?older_than_days=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/download/cleanup?file_type=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/download/cleanup?file_type=report&older_than_days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["deleted_count"])
	assert.NoFileExists(t, old)
}

func TestHealthAndSystemInfo(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/system/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, float64(0), info["cached_searches"])
	assert.Contains(t, info, "disk_usage")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(&processor.APIError{Err: processor.ErrResultCode}))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInvalidParams))
	assert.Equal(t, http.StatusNotFound, statusFor(files.ErrNothingToDownload))
	assert.Equal(t, http.StatusInternalServerError, statusFor(os.ErrPermission))
}
