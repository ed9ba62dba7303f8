package httpserver

import (
	"time"

	"github.com/helixir/research-report-service/internal/domain"
)

// Run response types for JSON serialization.

type startRunResponse struct {
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type runStatusResponse struct {
	RunID       string               `json:"run_id"`
	Topic       string               `json:"topic"`
	Status      string               `json:"status"`
	Progress    *progressResponse    `json:"progress,omitempty"`
	Failure     *failureResponse     `json:"failure,omitempty"`
	Plan        *domain.ResearchPlan `json:"plan,omitempty"`
	Config      configResponse       `json:"configuration"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Duration    string               `json:"duration,omitempty"`
}

// workflowProgressView mirrors the coordinator workflow's progress query
// result. Field names must match the workflow's progress struct for the
// query payload to decode.
type workflowProgressView struct {
	Status            string
	Stage             string
	SectionsPlanned   int
	SectionsCompleted int
	SectionsFailed    int
	SectionsInFlight  int
}

type progressResponse struct {
	Stage             string `json:"stage"`
	SectionsPlanned   int    `json:"sections_planned"`
	SectionsCompleted int    `json:"sections_completed"`
	SectionsFailed    int    `json:"sections_failed"`
	SectionsInFlight  int    `json:"sections_in_flight"`
}

type failureResponse struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type configResponse struct {
	SectionCount           int     `json:"section_count"`
	SearchDepth            int     `json:"search_depth"`
	ConcurrencyLimit       int     `json:"concurrency_limit"`
	MinSectionSuccessRatio float64 `json:"min_section_success_ratio"`
}

type runSummaryResponse struct {
	RunID       string     `json:"run_id"`
	Topic       string     `json:"topic"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

type listRunsResponse struct {
	Runs          []runSummaryResponse `json:"runs"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	TotalCount    int                  `json:"total_count"`
}

type reportResponse struct {
	RunID    string                `json:"run_id"`
	Topic    string                `json:"topic"`
	Markdown string                `json:"markdown"`
	Metadata domain.ReportMetadata `json:"metadata"`
}

type cancelRunResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Converter functions

func runToStatusResponse(run *domain.PipelineRun) runStatusResponse {
	resp := runStatusResponse{
		RunID:  run.ID.String(),
		Topic:  run.Topic,
		Status: string(run.Status),
		Plan:   run.Plan,
		Config: configResponse{
			SectionCount:           run.Configuration.SectionCount,
			SearchDepth:            run.Configuration.SearchDepth,
			ConcurrencyLimit:       run.Configuration.ConcurrencyLimit,
			MinSectionSuccessRatio: run.Configuration.MinSectionSuccessRatio,
		},
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	if run.Failure != nil {
		resp.Failure = &failureResponse{
			Stage:   string(run.Failure.Stage),
			Kind:    string(run.Failure.Kind),
			Message: run.Failure.Message,
		}
	}
	if d := run.Duration(); d > 0 {
		resp.Duration = d.String()
	}
	return resp
}

func progressToResponse(p workflowProgressView) *progressResponse {
	return &progressResponse{
		Stage:             p.Stage,
		SectionsPlanned:   p.SectionsPlanned,
		SectionsCompleted: p.SectionsCompleted,
		SectionsFailed:    p.SectionsFailed,
		SectionsInFlight:  p.SectionsInFlight,
	}
}

func runToSummary(run *domain.PipelineRun) runSummaryResponse {
	resp := runSummaryResponse{
		RunID:       run.ID.String(),
		Topic:       run.Topic,
		Status:      string(run.Status),
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	if d := run.Duration(); d > 0 {
		resp.Duration = d.String()
	}
	return resp
}
