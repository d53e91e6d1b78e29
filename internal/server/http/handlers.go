package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/pipeline"
	"github.com/scholium/harvest-service/internal/repository"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// startHarvest handles POST /v1/harvests.
// It starts a harvest run asynchronously and returns its run ID.
func (s *Server) startHarvest(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeHarvestConfig(w, r)
	if !ok {
		return
	}

	// The run outlives the request: keep context values, drop the deadline.
	events := s.orchestrator.Run(context.WithoutCancel(r.Context()), cfg)

	// The first event carries the run ID. A final event this early means the
	// run failed before harvesting started.
	first, open := <-events
	if !open {
		writeError(w, http.StatusInternalServerError, "harvest produced no events")
		return
	}
	if first.Final != nil {
		writeError(w, http.StatusInternalServerError, first.Final.Errors["pipeline"])
		return
	}

	go s.drainRun(events)

	writeJSON(w, http.StatusAccepted, startHarvestResponse{
		RunID:   first.RunID,
		Status:  string(domain.RunStatusRunning),
		Message: "harvest started",
	})
}

// drainRun consumes the remaining events of a detached run so its completion
// is logged even with no client attached.
func (s *Server) drainRun(events <-chan pipeline.Event) {
	for event := range events {
		if event.Final != nil {
			s.logger.Info().
				Str("run_id", event.Final.RunID).
				Str("status", string(event.Final.Status)).
				Int("papers_new", event.Final.PapersNew).
				Msg("detached harvest run finished")
		}
	}
}

// getHarvest handles GET /v1/harvests/{runID}.
func (s *Server) getHarvest(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	run, err := s.runRepo.GetRun(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainRunToResponse(run))
}

// listHarvests handles GET /v1/harvests.
// It returns a paginated list of harvest runs, newest first.
func (s *Server) listHarvests(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	runs, totalCount, err := s.runRepo.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]runResponse, len(runs))
	for i, run := range runs {
		responses[i] = domainRunToResponse(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          responses,
		NextPageToken: encodePageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// listPapers handles GET /v1/papers.
// It returns a paginated list of canonical papers with optional filters.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	filter := repository.PaperFilter{
		Limit:  limit,
		Offset: offset,
		Venue:  r.URL.Query().Get("venue"),
	}

	if sourceParam := r.URL.Query().Get("source"); sourceParam != "" {
		source := domain.SourceType(sourceParam)
		if !source.IsValid() {
			writeError(w, http.StatusBadRequest, "unsupported source: "+sourceParam)
			return
		}
		filter.Source = &source
	}

	if yearFrom := r.URL.Query().Get("year_from"); yearFrom != "" {
		year, parseErr := strconv.Atoi(yearFrom)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "year_from must be an integer")
			return
		}
		filter.YearFrom = year
	}
	if yearTo := r.URL.Query().Get("year_to"); yearTo != "" {
		year, parseErr := strconv.Atoi(yearTo)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "year_to must be an integer")
			return
		}
		filter.YearTo = year
	}

	papers, totalCount, err := s.paperRepo.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]paperResponse, len(papers))
	for i, p := range papers {
		responses[i] = domainPaperToResponse(p)
	}

	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:        responses,
		NextPageToken: encodePageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getPaper handles GET /v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paperID, err := strconv.ParseInt(chi.URLParam(r, "paperID"), 10, 64)
	if err != nil || paperID <= 0 {
		writeError(w, http.StatusBadRequest, "paper_id must be a positive integer")
		return
	}

	paper, getErr := s.paperRepo.GetByID(r.Context(), paperID)
	if getErr != nil {
		writeDomainError(w, getErr)
		return
	}

	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}

// decodeHarvestConfig reads, decodes, and validates a harvest config request
// body, writing the error response itself on failure.
func decodeHarvestConfig(w http.ResponseWriter, r *http.Request) (domain.HarvestConfig, bool) {
	var cfg domain.HarvestConfig

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return cfg, false
	}

	if err := json.Unmarshal(body, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return cfg, false
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		writeDomainError(w, err)
		return cfg, false
	}
	return cfg, true
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodePageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodePageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
