package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/ledger"
	"github.com/primorial/fortunate/internal/observability"
	"github.com/primorial/fortunate/internal/service"
	"github.com/primorial/fortunate/internal/storage"
)

// FortunateService is the search service behind the API.
type FortunateService interface {
	Find(ctx context.Context, n, workers int) (*service.Result, error)
	Results(ctx context.Context, from, to int) ([]*ledger.Entry, error)
	Stats() observability.Snapshot
}

// FindRequest represents a search request.
type FindRequest struct {
	N       int `json:"n"`
	Workers int `json:"workers,omitempty"`
}

// ResultResponse describes one proven F(n).
type ResultResponse struct {
	N                 int    `json:"n"`
	Fortunate         uint64 `json:"fortunate"`
	ElapsedMs         int64  `json:"elapsed_ms"`
	RangesTested      uint64 `json:"ranges_tested"`
	CandidatesTested  uint64 `json:"candidates_tested"`
	CandidatesSkipped uint64 `json:"candidates_skipped"`
	Workers           int    `json:"workers"`
	Cached            bool   `json:"cached"`
	RunID             string `json:"run_id"`
	RequestID         string `json:"request_id,omitempty"`
}

// ResultsResponse is the body of GET /v1/results.
type ResultsResponse struct {
	Results   []ResultResponse `json:"results"`
	RequestID string           `json:"request_id"`
}

// ReportsResponse is the body of GET /v1/reports.
type ReportsResponse struct {
	Reports   []string `json:"reports"`
	RequestID string   `json:"request_id"`
}

func resultResponse(e *ledger.Entry, cached bool) ResultResponse {
	return ResultResponse{
		N:                 e.Index,
		Fortunate:         e.Fortunate,
		ElapsedMs:         e.Elapsed.Milliseconds(),
		RangesTested:      e.RangesTested,
		CandidatesTested:  e.CandidatesTested,
		CandidatesSkipped: e.CandidatesSkipped,
		Workers:           e.Workers,
		Cached:            cached,
		RunID:             e.RunID,
	}
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidIndex, errors.CodeInvalidConfig:
		return http.StatusBadRequest
	case errors.CodeResultNotFound:
		return http.StatusNotFound
	case errors.CodeSearchCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// FindHandler handles POST /v1/fortunate requests.
type FindHandler struct {
	svc  FortunateService
	base context.Context
}

// NewFindHandler creates a find handler. Searches are cancelled when either
// the client goes away or base ends.
func NewFindHandler(svc FortunateService, base context.Context) *FindHandler {
	if base == nil {
		base = context.Background()
	}
	return &FindHandler{svc: svc, base: base}
}

// ServeHTTP handles the find HTTP request.
func (h *FindHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req FindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if req.Workers < 0 {
		writeError(w, http.StatusBadRequest, "workers must not be negative", errors.CodeInvalidConfig, requestID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	res, err := h.svc.Find(ctx, req.N, req.Workers)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), errors.GetCode(err), requestID)
		return
	}

	resp := resultResponse(res.Entry, res.Cached)
	resp.RequestID = requestID
	writeJSON(w, http.StatusOK, resp)
}

// ResultsHandler handles GET /v1/results?from=&to= requests.
type ResultsHandler struct {
	svc FortunateService
}

// NewResultsHandler creates a results handler.
func NewResultsHandler(svc FortunateService) *ResultsHandler {
	return &ResultsHandler{svc: svc}
}

// ServeHTTP handles the results HTTP request.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	from, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be an integer", errors.CodeInvalidIndex, requestID)
		return
	}
	to := from
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "to must be an integer", errors.CodeInvalidIndex, requestID)
			return
		}
	}

	entries, err := h.svc.Results(r.Context(), from, to)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), errors.GetCode(err), requestID)
		return
	}

	resp := ResultsResponse{Results: []ResultResponse{}, RequestID: requestID}
	for _, e := range entries {
		resp.Results = append(resp.Results, resultResponse(e, true))
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatsHandler handles GET /v1/stats requests.
type StatsHandler struct {
	svc FortunateService
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(svc FortunateService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// ServeHTTP handles the stats HTTP request.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", GetRequestID(r.Context()))
		return
	}
	snap := h.svc.Stats()
	if snap.Active == nil {
		snap.Active = []observability.ActiveRun{}
	}
	if snap.Indices == nil {
		snap.Indices = []observability.IndexStats{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// ReportsHandler serves sweep reports: GET /v1/reports lists them and
// GET /v1/reports/<name> returns one as markdown.
type ReportsHandler struct {
	store  storage.ObjectStorage
	prefix string
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(store storage.ObjectStorage, prefix string) *ReportsHandler {
	return &ReportsHandler{store: store, prefix: prefix}
}

// ServeHTTP handles the reports HTTP request.
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/v1/reports"), "/")
	if name == "" {
		objects, err := h.store.ListObjects(r.Context(), h.prefix)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "", requestID)
			return
		}
		resp := ReportsResponse{Reports: []string{}, RequestID: requestID}
		for _, o := range objects {
			resp.Reports = append(resp.Reports, strings.TrimPrefix(o, h.prefix))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid report name", "", requestID)
		return
	}
	data, err := h.store.Get(r.Context(), h.prefix+name)
	if stderrors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "report not found", "", requestID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "", requestID)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter mounts every API route behind DefaultMiddleware. store may be
// nil, in which case report routes are not mounted.
func NewRouter(svc FortunateService, store storage.ObjectStorage, reportPrefix string, gate Gate, base context.Context) http.Handler {
	mux := http.NewServeMux()
	mw := DefaultMiddleware(gate)

	mux.Handle("/v1/fortunate", mw(NewFindHandler(svc, base)))
	mux.Handle("/v1/results", mw(NewResultsHandler(svc)))
	mux.Handle("/v1/stats", mw(NewStatsHandler(svc)))
	if store != nil {
		reports := mw(NewReportsHandler(store, reportPrefix))
		mux.Handle("/v1/reports", reports)
		mux.Handle("/v1/reports/", reports)
	}
	mux.HandleFunc("/health", HealthHandler)
	return mux
}
