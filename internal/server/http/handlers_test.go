package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholium/harvest-service/internal/database"
	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/papersources"
	"github.com/scholium/harvest-service/internal/pipeline"
	"github.com/scholium/harvest-service/internal/repository"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// stubSource implements papersources.PaperSource for HTTP handler tests.
type stubSource struct {
	typ    domain.SourceType
	papers []domain.HarvestedPaper
	err    string
}

func (s *stubSource) Search(_ context.Context, _ papersources.SearchParams) domain.HarvestResult {
	return domain.HarvestResult{
		Source:     s.typ,
		Papers:     s.papers,
		TotalFound: len(s.papers),
		Err:        s.err,
	}
}

func (s *stubSource) SourceType() domain.SourceType { return s.typ }
func (s *stubSource) Name() string                  { return string(s.typ) }
func (s *stubSource) IsEnabled() bool               { return true }
func (s *stubSource) Close()                        {}

// mockRunRepo implements repository.RunRepository for HTTP handler tests.
type mockRunRepo struct {
	createFn func(ctx context.Context, run *domain.HarvestRun) error
	updateFn func(ctx context.Context, runID string, update domain.RunUpdate) error
	getFn    func(ctx context.Context, runID string) (*domain.HarvestRun, error)
	listFn   func(ctx context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error)
}

func (m *mockRunRepo) CreateRun(ctx context.Context, run *domain.HarvestRun) error {
	if m.createFn != nil {
		return m.createFn(ctx, run)
	}
	return nil
}

func (m *mockRunRepo) UpdateRun(ctx context.Context, runID string, update domain.RunUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, runID, update)
	}
	return nil
}

func (m *mockRunRepo) GetRun(ctx context.Context, runID string) (*domain.HarvestRun, error) {
	if m.getFn != nil {
		return m.getFn(ctx, runID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRunRepo) ListRuns(ctx context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, 0, nil
}

// mockPaperRepo implements repository.PaperRepository for HTTP handler tests.
type mockPaperRepo struct {
	listFn    func(ctx context.Context, filter repository.PaperFilter) ([]*domain.CanonicalPaper, int64, error)
	getByIDFn func(ctx context.Context, id int64) (*domain.CanonicalPaper, error)
}

func (m *mockPaperRepo) Upsert(_ context.Context, _ *domain.HarvestedPaper) (*domain.CanonicalPaper, bool, error) {
	return nil, false, nil
}

func (m *mockPaperRepo) UpsertBatch(_ context.Context, papers []domain.HarvestedPaper) (*repository.BatchUpsertResult, error) {
	return &repository.BatchUpsertResult{New: len(papers)}, nil
}

func (m *mockPaperRepo) ResolvePaper(_ context.Context, _ *domain.HarvestedPaper) (*domain.CanonicalPaper, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaperRepo) Resolve(_ context.Context, _ string) (int64, error) {
	return 0, domain.ErrNotFound
}

func (m *mockPaperRepo) FindByIdentifier(_ context.Context, _ domain.IdentifierType, _ string) (*domain.CanonicalPaper, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaperRepo) GetByID(ctx context.Context, id int64) (*domain.CanonicalPaper, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaperRepo) UpsertIdentifier(_ context.Context, _ int64, _ domain.IdentifierType, _ string, _ domain.SourceType) error {
	return nil
}

func (m *mockPaperRepo) AddSource(_ context.Context, _ int64, _ domain.SourceType) error {
	return nil
}

func (m *mockPaperRepo) List(ctx context.Context, filter repository.PaperFilter) ([]*domain.CanonicalPaper, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

// stubHealth implements healthChecker with a fixed status.
type stubHealth struct {
	health database.HealthStatus
}

func (h *stubHealth) Health(_ context.Context) database.HealthStatus {
	return h.health
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestHTTPServer creates a Server configured for testing with mocked dependencies.
func newTestHTTPServer(
	orchestrator *pipeline.Orchestrator,
	runRepo repository.RunRepository,
	paperRepo repository.PaperRepository,
	db healthChecker,
) *Server {
	s := &Server{
		orchestrator: orchestrator,
		runRepo:      runRepo,
		paperRepo:    paperRepo,
		db:           db,
		logger:       zerolog.Nop(),
	}
	s.router = s.buildRouter()
	return s
}

// newTestOrchestrator builds a real orchestrator over stub sources and mock
// repositories.
func newTestOrchestrator(runRepo repository.RunRepository, paperRepo repository.PaperRepository, sources ...papersources.PaperSource) *pipeline.Orchestrator {
	registry := papersources.NewRegistry()
	for _, src := range sources {
		registry.Register(src)
	}
	return pipeline.NewOrchestrator(registry, paperRepo, runRepo, zerolog.Nop())
}

// serveHTTP dispatches a request through the test server's router and returns the recorder.
func serveHTTP(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, r)
	return rr
}

// decodeJSON decodes a JSON response body into the given target.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func healthyDB() *stubHealth {
	return &stubHealth{health: database.HealthStatus{Status: "healthy"}}
}

// ---------------------------------------------------------------------------
// Tests: startHarvest
// ---------------------------------------------------------------------------

func TestStartHarvest_Success(t *testing.T) {
	source := &stubSource{typ: domain.SourceTypeArXiv, papers: []domain.HarvestedPaper{
		{Title: "Attention Is All You Need", ArXivID: "1706.03762", Source: domain.SourceTypeArXiv},
	}}
	runRepo := &mockRunRepo{}
	paperRepo := &mockPaperRepo{}
	srv := newTestHTTPServer(newTestOrchestrator(runRepo, paperRepo, source), runRepo, paperRepo, healthyDB())

	body := `{"keywords":["transformers"],"sources":["arxiv"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/harvests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp startHarvestResponse
	decodeJSON(t, rr, &resp)

	if !strings.HasPrefix(resp.RunID, "harvest-") {
		t.Errorf("expected run_id with harvest- prefix, got %q", resp.RunID)
	}
	if resp.Status != string(domain.RunStatusRunning) {
		t.Errorf("expected status %q, got %q", domain.RunStatusRunning, resp.Status)
	}
	if resp.Message == "" {
		t.Error("expected message to be set")
	}
}

func TestStartHarvest_MissingKeywords(t *testing.T) {
	runRepo := &mockRunRepo{}
	paperRepo := &mockPaperRepo{}
	srv := newTestHTTPServer(newTestOrchestrator(runRepo, paperRepo), runRepo, paperRepo, healthyDB())

	body := `{"keywords":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/harvests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStartHarvest_InvalidJSON(t *testing.T) {
	runRepo := &mockRunRepo{}
	paperRepo := &mockPaperRepo{}
	srv := newTestHTTPServer(newTestOrchestrator(runRepo, paperRepo), runRepo, paperRepo, healthyDB())

	req := httptest.NewRequest(http.MethodPost, "/v1/harvests", bytes.NewBufferString("{invalid json"))
	req.Header.Set("Content-Type", "application/json")

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["error"] != "invalid JSON request body" {
		t.Errorf("expected error message 'invalid JSON request body', got %q", resp["error"])
	}
}

func TestStartHarvest_UnsupportedSource(t *testing.T) {
	runRepo := &mockRunRepo{}
	paperRepo := &mockPaperRepo{}
	srv := newTestHTTPServer(newTestOrchestrator(runRepo, paperRepo), runRepo, paperRepo, healthyDB())

	body := `{"keywords":["transformers"],"sources":["pubmed"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/harvests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStartHarvest_RunRecordCreated(t *testing.T) {
	created := make(chan *domain.HarvestRun, 1)
	runRepo := &mockRunRepo{
		createFn: func(_ context.Context, run *domain.HarvestRun) error {
			created <- run
			return nil
		},
	}
	paperRepo := &mockPaperRepo{}
	source := &stubSource{typ: domain.SourceTypeOpenAlex}
	srv := newTestHTTPServer(newTestOrchestrator(runRepo, paperRepo, source), runRepo, paperRepo, healthyDB())

	body := `{"keywords":["graph neural networks"],"sources":["openalex"],"max_results_per_source":10}`
	req := httptest.NewRequest(http.MethodPost, "/v1/harvests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp startHarvestResponse
	decodeJSON(t, rr, &resp)

	select {
	case run := <-created:
		if run.RunID != resp.RunID {
			t.Errorf("expected run record for %s, got %s", resp.RunID, run.RunID)
		}
		if run.MaxPerSource != 10 {
			t.Errorf("expected max_per_source 10, got %d", run.MaxPerSource)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run record creation")
	}
}

// ---------------------------------------------------------------------------
// Tests: getHarvest
// ---------------------------------------------------------------------------

func TestGetHarvest_Success(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	completed := time.Now()

	runRepo := &mockRunRepo{
		getFn: func(_ context.Context, runID string) (*domain.HarvestRun, error) {
			if runID != "harvest-20260829-120000-deadbeef" {
				return nil, domain.NewNotFoundError("harvest run", runID)
			}
			return &domain.HarvestRun{
				RunID:              runID,
				Status:             domain.RunStatusSuccess,
				Keywords:           []string{"transformers"},
				Sources:            []domain.SourceType{domain.SourceTypeArXiv},
				MaxPerSource:       50,
				PapersFound:        12,
				PapersNew:          9,
				PapersDeduplicated: 3,
				StartedAt:          started,
				CompletedAt:        &completed,
			}, nil
		},
	}
	srv := newTestHTTPServer(nil, runRepo, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/harvests/harvest-20260829-120000-deadbeef", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp runResponse
	decodeJSON(t, rr, &resp)

	if resp.RunID != "harvest-20260829-120000-deadbeef" {
		t.Errorf("unexpected run_id %q", resp.RunID)
	}
	if resp.Status != string(domain.RunStatusSuccess) {
		t.Errorf("expected status success, got %q", resp.Status)
	}
	if resp.PapersFound != 12 || resp.PapersNew != 9 || resp.PapersDeduplicated != 3 {
		t.Errorf("unexpected counts: %+v", resp)
	}
	if resp.Duration == "" {
		t.Error("expected duration to be set for a completed run")
	}
}

func TestGetHarvest_NotFound(t *testing.T) {
	runRepo := &mockRunRepo{
		getFn: func(_ context.Context, runID string) (*domain.HarvestRun, error) {
			return nil, domain.NewNotFoundError("harvest run", runID)
		},
	}
	srv := newTestHTTPServer(nil, runRepo, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/harvests/harvest-20260829-000000-00000000", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tests: listHarvests
// ---------------------------------------------------------------------------

func TestListHarvests_Success(t *testing.T) {
	now := time.Now()
	runs := []*domain.HarvestRun{
		{RunID: "harvest-a", Status: domain.RunStatusSuccess, Keywords: []string{"crispr"}, StartedAt: now.Add(-time.Hour)},
		{RunID: "harvest-b", Status: domain.RunStatusRunning, Keywords: []string{"mrna"}, StartedAt: now},
	}

	var capturedLimit, capturedOffset int
	runRepo := &mockRunRepo{
		listFn: func(_ context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error) {
			capturedLimit, capturedOffset = limit, offset
			return runs, 2, nil
		},
	}
	srv := newTestHTTPServer(nil, runRepo, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/harvests?page_size=10", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp listRunsResponse
	decodeJSON(t, rr, &resp)

	if len(resp.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(resp.Runs))
	}
	if resp.TotalCount != 2 {
		t.Errorf("expected total_count 2, got %d", resp.TotalCount)
	}
	if resp.NextPageToken != "" {
		t.Errorf("expected empty next_page_token, got %q", resp.NextPageToken)
	}
	if capturedLimit != 10 || capturedOffset != 0 {
		t.Errorf("expected limit 10 offset 0, got %d/%d", capturedLimit, capturedOffset)
	}
}

func TestListHarvests_Pagination(t *testing.T) {
	runRepo := &mockRunRepo{
		listFn: func(_ context.Context, limit, offset int) ([]*domain.HarvestRun, int64, error) {
			return []*domain.HarvestRun{
				{RunID: "harvest-a", Status: domain.RunStatusSuccess},
				{RunID: "harvest-b", Status: domain.RunStatusSuccess},
			}, 5, nil
		},
	}
	srv := newTestHTTPServer(nil, runRepo, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/harvests?page_size=2", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp listRunsResponse
	decodeJSON(t, rr, &resp)

	if resp.NextPageToken == "" {
		t.Fatal("expected non-empty next_page_token for paginated results")
	}
	if resp.TotalCount != 5 {
		t.Errorf("expected total_count 5, got %d", resp.TotalCount)
	}
}

// ---------------------------------------------------------------------------
// Tests: listPapers
// ---------------------------------------------------------------------------

func TestListPapers_Success(t *testing.T) {
	now := time.Now()
	papers := []*domain.CanonicalPaper{
		{
			ID:            1,
			Title:         "Attention Is All You Need",
			ArXivID:       "1706.03762",
			Year:          2017,
			Venue:         "NeurIPS",
			CitationCount: 100000,
			PrimarySource: domain.SourceTypeArXiv,
			Sources:       []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeOpenAlex},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}

	var capturedFilter repository.PaperFilter
	paperRepo := &mockPaperRepo{
		listFn: func(_ context.Context, filter repository.PaperFilter) ([]*domain.CanonicalPaper, int64, error) {
			capturedFilter = filter
			return papers, 1, nil
		},
	}
	srv := newTestHTTPServer(nil, &mockRunRepo{}, paperRepo, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers?source=arxiv&year_from=2015&venue=NeurIPS", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp listPapersResponse
	decodeJSON(t, rr, &resp)

	if len(resp.Papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(resp.Papers))
	}
	p := resp.Papers[0]
	if p.Title != "Attention Is All You Need" {
		t.Errorf("unexpected title %q", p.Title)
	}
	if p.PrimarySource != "arxiv" {
		t.Errorf("expected primary_source arxiv, got %q", p.PrimarySource)
	}
	if len(p.Sources) != 2 {
		t.Errorf("expected 2 sources, got %v", p.Sources)
	}

	if capturedFilter.Source == nil || *capturedFilter.Source != domain.SourceTypeArXiv {
		t.Errorf("expected source filter arxiv, got %v", capturedFilter.Source)
	}
	if capturedFilter.YearFrom != 2015 {
		t.Errorf("expected year_from 2015, got %d", capturedFilter.YearFrom)
	}
	if capturedFilter.Venue != "NeurIPS" {
		t.Errorf("expected venue NeurIPS, got %q", capturedFilter.Venue)
	}
}

func TestListPapers_UnsupportedSource(t *testing.T) {
	srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers?source=pubmed", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListPapers_InvalidYear(t *testing.T) {
	srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers?year_from=abc", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tests: getPaper
// ---------------------------------------------------------------------------

func TestGetPaper_Success(t *testing.T) {
	paperRepo := &mockPaperRepo{
		getByIDFn: func(_ context.Context, id int64) (*domain.CanonicalPaper, error) {
			if id != 42 {
				return nil, domain.ErrNotFound
			}
			return &domain.CanonicalPaper{ID: 42, Title: "Deep Residual Learning", DOI: "10.1109/cvpr.2016.90"}, nil
		},
	}
	srv := newTestHTTPServer(nil, &mockRunRepo{}, paperRepo, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers/42", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp paperResponse
	decodeJSON(t, rr, &resp)
	if resp.ID != 42 || resp.Title != "Deep Residual Learning" {
		t.Errorf("unexpected paper response: %+v", resp)
	}
}

func TestGetPaper_InvalidID(t *testing.T) {
	srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers/not-a-number", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetPaper_NotFound(t *testing.T) {
	srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

	req := httptest.NewRequest(http.MethodGet, "/v1/papers/999", nil)

	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tests: health endpoints
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

		rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		db := &stubHealth{health: database.HealthStatus{Status: "unhealthy", Error: "connection refused"}}
		srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, db)

		rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestReadyz(t *testing.T) {
	srv := newTestHTTPServer(nil, &mockRunRepo{}, &mockPaperRepo{}, healthyDB())

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ready" {
		t.Errorf("expected status ready, got %q", resp["status"])
	}
}

// ---------------------------------------------------------------------------
// Tests: helper functions
// ---------------------------------------------------------------------------

func TestWriteDomainError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"not found wrapped", domain.NewNotFoundError("run", "harvest-x"), http.StatusNotFound},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"validation error", domain.NewValidationError("keywords", "must not be empty"), http.StatusBadRequest},
		{"already exists", domain.ErrAlreadyExists, http.StatusConflict},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"service unavailable", domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"internal error", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)
			if rr.Code != tc.expectedStatus {
				t.Errorf("expected status %d, got %d", tc.expectedStatus, rr.Code)
			}
		})
	}
}

func TestParsePaginationParams(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		limit, offset := parsePaginationParams(req)
		if limit != defaultPageSize {
			t.Errorf("expected default limit %d, got %d", defaultPageSize, limit)
		}
		if offset != 0 {
			t.Errorf("expected offset 0, got %d", offset)
		}
	})

	t.Run("custom page size", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test?page_size=25", nil)
		limit, _ := parsePaginationParams(req)
		if limit != 25 {
			t.Errorf("expected limit 25, got %d", limit)
		}
	})

	t.Run("page size capped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test?page_size=500", nil)
		limit, _ := parsePaginationParams(req)
		if limit != maxPageSize {
			t.Errorf("expected max limit %d, got %d", maxPageSize, limit)
		}
	})

	t.Run("valid page token decodes to offset", func(t *testing.T) {
		token := encodePageToken(0, 75, 200)
		req := httptest.NewRequest(http.MethodGet, "/test?page_token="+token, nil)
		_, offset := parsePaginationParams(req)
		if offset != 75 {
			t.Errorf("expected offset 75 from decoded page_token, got %d", offset)
		}
	})

	t.Run("invalid page token keeps offset at zero", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test?page_token=not-valid-base64!!!", nil)
		_, offset := parsePaginationParams(req)
		if offset != 0 {
			t.Errorf("expected offset 0 for invalid page_token, got %d", offset)
		}
	})
}

func TestEncodePageToken(t *testing.T) {
	if token := encodePageToken(0, 10, 25); token == "" {
		t.Error("expected non-empty token when more results available")
	}
	if token := encodePageToken(0, 10, 5); token != "" {
		t.Errorf("expected empty token when no more results, got %q", token)
	}
	if token := encodePageToken(0, 10, 10); token != "" {
		t.Errorf("expected empty token at exact boundary, got %q", token)
	}
}
