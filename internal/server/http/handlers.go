package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/research-report-service/internal/domain"
	"github.com/helixir/research-report-service/internal/repository"
	"github.com/helixir/research-report-service/internal/temporal"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// startRunRequest is the JSON request body for starting a research report run.
type startRunRequest struct {
	Topic                  string  `json:"topic" validate:"required,max=10000"`
	SectionCount           int     `json:"section_count" validate:"omitempty,min=1,max=10"`
	SearchDepth            int     `json:"search_depth" validate:"omitempty,min=1,max=5"`
	ConcurrencyLimit       int     `json:"concurrency_limit" validate:"omitempty,min=1,max=10"`
	MinSectionSuccessRatio float64 `json:"min_section_success_ratio" validate:"omitempty,gt=0,lte=1"`
}

// startRun handles POST /api/v1/runs.
// It creates a pipeline run record and starts the Temporal workflow.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if err := s.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid field: %s", strings.ToLower(verrs[0].Field())))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	// Fill defaults and re-check the domain bounds.
	research := domain.ResearchRequest{
		Topic:        req.Topic,
		SectionCount: req.SectionCount,
		SearchDepth:  req.SearchDepth,
	}
	if research.SectionCount == 0 {
		research.SectionCount = s.runDefaults.SectionCount
	}
	if research.SearchDepth == 0 {
		research.SearchDepth = s.runDefaults.SearchDepth
	}
	research.Normalize()
	if err := research.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	cfg := s.runDefaults
	cfg.SectionCount = research.SectionCount
	cfg.SearchDepth = research.SearchDepth
	if req.ConcurrencyLimit > 0 {
		cfg.ConcurrencyLimit = req.ConcurrencyLimit
	}
	if req.MinSectionSuccessRatio > 0 {
		cfg.MinSectionSuccessRatio = req.MinSectionSuccessRatio
	}

	runID := uuid.New()
	now := time.Now().UTC()
	run := &domain.PipelineRun{
		ID:            runID,
		Topic:         research.Topic,
		Status:        domain.RunStatusPending,
		Configuration: cfg,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		writeDomainError(w, err)
		return
	}

	workflowID, temporalRunID, err := s.workflowClient.StartResearchWorkflow(ctx, s.workflowFunc, temporal.ResearchWorkflowInput{
		RunID:  runID,
		Topic:  research.Topic,
		Config: cfg,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to start workflow")
		writeDomainError(w, err)
		return
	}

	// Best-effort: the workflow ID is derivable from the run ID either way.
	if err := s.runRepo.SetWorkflowIDs(ctx, runID, workflowID, temporalRunID); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("failed to record workflow IDs")
	}

	if s.metrics != nil {
		s.metrics.RecordRunStarted()
	}

	writeJSON(w, http.StatusAccepted, startRunResponse{
		RunID:      runID.String(),
		WorkflowID: workflowID,
		Status:     string(domain.RunStatusPending),
		CreatedAt:  now,
	})
}

// getRun handles GET /api/v1/runs/{runID}.
// For active runs it augments the persisted state with live progress from the
// workflow query handler, best effort.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := runToStatusResponse(run)

	if run.IsActive() && run.TemporalWorkflowID != "" {
		var progress workflowProgressView
		qerr := s.workflowClient.QueryWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID, temporal.QueryProgress, &progress)
		if qerr == nil {
			resp.Progress = progressToResponse(progress)
		} else {
			s.logger.Debug().Err(qerr).Str("run_id", runID.String()).Msg("progress query failed")
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// getReport handles GET /api/v1/runs/{runID}/report.
// The report is only served for completed runs; a partial artifact is never
// exposed as a finished report.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if run.Status != domain.RunStatusCompleted || run.Report == nil {
		writeDomainError(w, domain.ErrReportNotReady)
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{
		RunID:    run.ID.String(),
		Topic:    run.Topic,
		Markdown: run.Report.Markdown,
		Metadata: run.Report.Metadata,
	})
}

// cancelRun handles DELETE /api/v1/runs/{runID}.
// It requests cancellation by signalling the workflow; the workflow persists
// the cancelled status before exiting.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if run.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "run is already in terminal state")
		return
	}

	if err := s.workflowClient.CancelRun(ctx, run.TemporalWorkflowID, run.TemporalRunID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cancelRunResponse{
		Success: true,
		Message: "cancellation requested",
		Status:  string(run.Status),
	})
}

// listRuns handles GET /api/v1/runs.
// It returns a paginated list of run summaries with optional filters.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := parsePaginationParams(r)

	filter := repository.RunFilter{
		Limit:  limit,
		Offset: offset,
	}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.RunStatus(statusParam)
		if !domain.IsValidRunStatus(status) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status: %s", statusParam))
			return
		}
		filter.Status = []domain.RunStatus{status}
	}

	if createdAfter := r.URL.Query().Get("created_after"); createdAfter != "" {
		t, parseErr := time.Parse(time.RFC3339, createdAfter)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid created_after format: expected RFC3339")
			return
		}
		filter.CreatedAfter = &t
	}
	if createdBefore := r.URL.Query().Get("created_before"); createdBefore != "" {
		t, parseErr := time.Parse(time.RFC3339, createdBefore)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid created_before format: expected RFC3339")
			return
		}
		filter.CreatedBefore = &t
	}

	runs, totalCount, err := s.runRepo.List(ctx, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]runSummaryResponse, len(runs))
	for i, run := range runs {
		summaries[i] = runToSummary(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          summaries,
		NextPageToken: encodePageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// writeDomainError maps domain and temporal errors to HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrReportNotReady):
		writeError(w, http.StatusConflict, "report not ready")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "workflow already started")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
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
