package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/ledger"
	"github.com/primorial/fortunate/internal/observability"
	"github.com/primorial/fortunate/internal/service"
	"github.com/primorial/fortunate/internal/storage"
)

type fakeService struct {
	mu      sync.Mutex
	values  map[int]uint64
	workers []int
	block   bool
}

func newFakeService() *fakeService {
	return &fakeService{values: map[int]uint64{1: 3, 2: 5, 3: 7, 4: 13, 5: 23}}
}

func (f *fakeService) Find(ctx context.Context, n, workers int) (*service.Result, error) {
	f.mu.Lock()
	f.workers = append(f.workers, workers)
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, errors.NewSearchError(errors.CodeSearchCancelled, "search cancelled", ctx.Err())
	}
	v, ok := f.values[n]
	if !ok {
		return nil, errors.NewInvalidIndex(fmt.Sprintf("index %d out of range", n))
	}
	return &service.Result{Entry: &ledger.Entry{
		Index:            n,
		Fortunate:        v,
		Elapsed:          1500 * time.Millisecond,
		RangesTested:     4,
		CandidatesTested: 11,
		Workers:          2,
		RunID:            "run-" + fmt.Sprint(n),
	}}, nil
}

func (f *fakeService) Results(ctx context.Context, from, to int) ([]*ledger.Entry, error) {
	if from < 1 || to < from {
		return nil, errors.NewValidationError(errors.CodeInvalidIndex, "invalid range")
	}
	var entries []*ledger.Entry
	for n := from; n <= to; n++ {
		if v, ok := f.values[n]; ok {
			entries = append(entries, &ledger.Entry{Index: n, Fortunate: v})
		}
	}
	return entries, nil
}

func (f *fakeService) Stats() observability.Snapshot {
	return observability.Snapshot{Batches: 7}
}

type fakeGate struct{ closed bool }

func (g *fakeGate) Acquire() (func(), bool) {
	if g.closed {
		return nil, false
	}
	return func() {}, true
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/fortunate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFindHandler_Success(t *testing.T) {
	svc := newFakeService()
	router := NewRouter(svc, nil, "", nil, context.Background())

	rec := post(t, router, `{"n": 5, "workers": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ResultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.N != 5 || resp.Fortunate != 23 || resp.ElapsedMs != 1500 || resp.CandidatesTested != 11 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.RequestID == "" || rec.Header().Get("X-Request-ID") != resp.RequestID {
		t.Errorf("expected the request ID in body and header, got %q / %q", resp.RequestID, rec.Header().Get("X-Request-ID"))
	}
	if len(svc.workers) != 1 || svc.workers[0] != 3 {
		t.Errorf("expected workers=3 to reach the service, got %v", svc.workers)
	}
}

func TestFindHandler_Errors(t *testing.T) {
	router := NewRouter(newFakeService(), nil, "", nil, context.Background())

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"invalid index", `{"n": 0}`, http.StatusBadRequest, errors.CodeInvalidIndex},
		{"out of range", `{"n": 99}`, http.StatusBadRequest, errors.CodeInvalidIndex},
		{"negative workers", `{"n": 5, "workers": -1}`, http.StatusBadRequest, errors.CodeInvalidConfig},
		{"bad json", `{"n":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, router, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/fortunate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestFindHandler_BaseContextCancelsSearch(t *testing.T) {
	svc := newFakeService()
	svc.block = true
	base, cancel := context.WithCancel(context.Background())
	router := NewRouter(svc, nil, "", nil, base)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- post(t, router, `{"n": 5}`) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case rec := <-done:
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search was not cancelled")
	}
}

func TestShutdownMiddleware_Rejects(t *testing.T) {
	gate := &fakeGate{closed: true}
	router := NewRouter(newFakeService(), nil, "", gate, context.Background())

	rec := post(t, router, `{"n": 5}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Errorf("health should stay up during shutdown, got %d", health.Code)
	}
}

func TestResultsHandler(t *testing.T) {
	router := NewRouter(newFakeService(), nil, "", nil, context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results?from=2&to=4", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ResultsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 3 || resp.Results[0].Fortunate != 5 || !resp.Results[0].Cached {
		t.Errorf("unexpected results %+v", resp.Results)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results?from=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/results?from=5&to=1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a reversed range, got %d", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	router := NewRouter(newFakeService(), nil, "", nil, context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"batches":7`) || !strings.Contains(rec.Body.String(), `"active":[]`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestReportsHandler(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	store.Put(context.Background(), "reports/sweep-1-5-abcd1234.md", []byte("# F(1-5) Sweep\n"), "text/markdown")
	router := NewRouter(newFakeService(), store, "reports/", nil, context.Background())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	var list ReportsResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Reports) != 1 || list.Reports[0] != "sweep-1-5-abcd1234.md" {
		t.Fatalf("unexpected listing %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/sweep-1-5-abcd1234.md", nil))
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("# F(1-5) Sweep")) {
		t.Errorf("unexpected report response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/missing.md", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := DefaultMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.RequestID != "req-1" {
		t.Errorf("expected the caller's request ID, got %q", resp.RequestID)
	}
}
