package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/research-report-service/internal/domain"
)

// txBeginner is implemented by types that can begin a transaction
// (*pgxpool.Pool, *database.DB). Status updates use SELECT FOR UPDATE and
// wrap themselves in a transaction when the underlying DBTX is a pool.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// validStatusTransitions defines the allowed forward transitions of the run
// state machine. Failed and cancelled are reachable from every non-terminal
// state and are handled in isValidStatusTransition.
var validStatusTransitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunStatusPending:     {domain.RunStatusPlanning},
	domain.RunStatusPlanning:    {domain.RunStatusResearching},
	domain.RunStatusResearching: {domain.RunStatusReporting},
	domain.RunStatusReporting:   {domain.RunStatusCompleted},
}

// Compile-time interface verification.
var _ RunRepository = (*PgRunRepository)(nil)

// PgRunRepository is a PostgreSQL implementation of RunRepository.
type PgRunRepository struct {
	db DBTX
}

// NewPgRunRepository creates a new PostgreSQL run repository.
func NewPgRunRepository(db DBTX) *PgRunRepository {
	return &PgRunRepository{db: db}
}

const runColumns = `id, topic, status,
	configuration, plan, report,
	failure_stage, failure_kind, failure_message,
	temporal_workflow_id, temporal_run_id,
	created_at, updated_at, started_at, completed_at`

// Create inserts a new pipeline run.
func (r *PgRunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == uuid.Nil {
		return domain.NewValidationError("id", "run ID is required")
	}
	if run.Topic == "" {
		return domain.NewValidationError("topic", "topic is required")
	}

	configJSON, err := json.Marshal(run.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	planJSON, err := marshalNullable(run.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	reportJSON, err := marshalNullable(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (
			id, topic, status,
			configuration, plan, report,
			failure_stage, failure_kind, failure_message,
			temporal_workflow_id, temporal_run_id,
			created_at, updated_at, started_at, completed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14, $15
		)`

	var failureStage, failureKind, failureMessage *string
	if run.Failure != nil {
		failureStage = nullString(string(run.Failure.Stage))
		failureKind = nullString(string(run.Failure.Kind))
		failureMessage = nullString(run.Failure.Message)
	}

	_, err = r.db.Exec(ctx, query,
		run.ID, run.Topic, run.Status,
		configJSON, planJSON, reportJSON,
		failureStage, failureKind, failureMessage,
		nullString(run.TemporalWorkflowID), nullString(run.TemporalRunID),
		run.CreatedAt, run.UpdatedAt, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("run", run.ID.String())
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Get retrieves a pipeline run by its ID.
func (r *PgRunRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM pipeline_runs WHERE id = $1`, runColumns)

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", id.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// GetByWorkflowID retrieves a pipeline run by its Temporal workflow ID.
func (r *PgRunRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*domain.PipelineRun, error) {
	if workflowID == "" {
		return nil, domain.NewValidationError("workflow_id", "workflow ID is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM pipeline_runs WHERE temporal_workflow_id = $1`, runColumns)

	run, err := scanRun(r.db.QueryRow(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", workflowID)
		}
		return nil, fmt.Errorf("failed to get run by workflow ID: %w", err)
	}

	return run, nil
}

// List retrieves pipeline runs matching the filter criteria.
func (r *PgRunRepository) List(ctx context.Context, filter RunFilter) ([]*domain.PipelineRun, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.CreatedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIndex))
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if filter.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pipeline_runs WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s FROM pipeline_runs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		runColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.PipelineRun, 0, filter.Limit)
	for rows.Next() {
		run, err := scanRunFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, totalCount, nil
}

// UpdateStatus transitions the run to the given status with transition
// validation under a row lock.
func (r *PgRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus) error {
	return r.withRowLock(ctx, id, func(tx *PgRunRepository, current domain.RunStatus) error {
		if !isValidStatusTransition(current, status) {
			return fmt.Errorf("invalid status transition from %s to %s: %w",
				current, status, domain.ErrInvalidInput)
		}

		now := time.Now().UTC()
		query := `
			UPDATE pipeline_runs
			SET status = $1,
				updated_at = $2,
				started_at = CASE WHEN $1 = 'planning' AND started_at IS NULL THEN $2 ELSE started_at END,
				completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') AND completed_at IS NULL THEN $2 ELSE completed_at END
			WHERE id = $3`

		if _, err := tx.db.Exec(ctx, query, status, now, id); err != nil {
			return fmt.Errorf("failed to update run status: %w", err)
		}
		return nil
	})
}

// SetWorkflowIDs records the Temporal workflow and run IDs.
func (r *PgRunRepository) SetWorkflowIDs(ctx context.Context, id uuid.UUID, workflowID, temporalRunID string) error {
	query := `
		UPDATE pipeline_runs
		SET temporal_workflow_id = $1,
			temporal_run_id = $2,
			updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(ctx, query,
		nullString(workflowID), nullString(temporalRunID), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set workflow IDs: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}

	return nil
}

// SavePlan stores the research plan produced by the planning stage.
func (r *PgRunRepository) SavePlan(ctx context.Context, id uuid.UUID, plan *domain.ResearchPlan) error {
	if plan == nil {
		return domain.NewValidationError("plan", "plan cannot be nil")
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	query := `UPDATE pipeline_runs SET plan = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, planJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}

	return nil
}

// SaveSectionResult upserts the outcome of one section sub-pipeline.
func (r *PgRunRepository) SaveSectionResult(ctx context.Context, runID uuid.UUID, result *domain.SectionResult) error {
	if result == nil {
		return domain.NewValidationError("result", "section result cannot be nil")
	}

	sourcesJSON, err := json.Marshal(result.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	queriesJSON, err := json.Marshal(result.QueriesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal queries: %w", err)
	}

	query := `
		INSERT INTO section_results (
			run_id, section_index, title, content,
			sources, queries_used, status, error, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, section_index) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			sources = EXCLUDED.sources,
			queries_used = EXCLUDED.queries_used,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`

	_, err = r.db.Exec(ctx, query,
		runID, result.Index, result.Title, result.Content,
		sourcesJSON, queriesJSON, result.Status, nullString(result.Error), result.CompletedAt,
	)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return domain.NewNotFoundError("run", runID.String())
		}
		return fmt.Errorf("failed to save section result: %w", err)
	}

	return nil
}

// ListSectionResults returns all section results for a run in index order.
func (r *PgRunRepository) ListSectionResults(ctx context.Context, runID uuid.UUID) ([]*domain.SectionResult, error) {
	query := `
		SELECT section_index, title, content, sources, queries_used, status, error, completed_at
		FROM section_results
		WHERE run_id = $1
		ORDER BY section_index ASC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list section results: %w", err)
	}
	defer rows.Close()

	var results []*domain.SectionResult
	for rows.Next() {
		var (
			result       domain.SectionResult
			sourcesJSON  []byte
			queriesJSON  []byte
			errorMessage *string
		)
		if err := rows.Scan(
			&result.Index, &result.Title, &result.Content,
			&sourcesJSON, &queriesJSON, &result.Status, &errorMessage, &result.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan section result: %w", err)
		}

		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &result.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		if len(queriesJSON) > 0 {
			if err := json.Unmarshal(queriesJSON, &result.QueriesUsed); err != nil {
				return nil, fmt.Errorf("failed to unmarshal queries: %w", err)
			}
		}
		if errorMessage != nil {
			result.Error = *errorMessage
		}

		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating section results: %w", err)
	}

	return results, nil
}

// SaveReport stores the final report artifact.
func (r *PgRunRepository) SaveReport(ctx context.Context, id uuid.UUID, report *domain.Report) error {
	if report == nil {
		return domain.NewValidationError("report", "report cannot be nil")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `UPDATE pipeline_runs SET report = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, reportJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}

	return nil
}

// RecordFailure marks the run as failed with the originating stage and
// error classification.
func (r *PgRunRepository) RecordFailure(ctx context.Context, id uuid.UUID, failure domain.FailureInfo) error {
	return r.withRowLock(ctx, id, func(tx *PgRunRepository, current domain.RunStatus) error {
		if current.IsTerminal() {
			return fmt.Errorf("cannot fail run in terminal status %s: %w",
				current, domain.ErrInvalidInput)
		}

		now := time.Now().UTC()
		query := `
			UPDATE pipeline_runs
			SET status = 'failed',
				failure_stage = $1,
				failure_kind = $2,
				failure_message = $3,
				updated_at = $4,
				completed_at = $4
			WHERE id = $5`

		if _, err := tx.db.Exec(ctx, query,
			string(failure.Stage), string(failure.Kind), failure.Message, now, id); err != nil {
			return fmt.Errorf("failed to record failure: %w", err)
		}
		return nil
	})
}

// withRowLock locks the run row, reads its current status, and applies fn
// within a transaction. When the underlying DBTX is a pool a transaction is
// opened; when it is already a transaction the lock joins it.
func (r *PgRunRepository) withRowLock(ctx context.Context, id uuid.UUID, fn func(tx *PgRunRepository, current domain.RunStatus) error) error {
	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgRunRepository{db: tx}
		if err := txRepo.lockAndRun(ctx, id, fn); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	return r.lockAndRun(ctx, id, fn)
}

func (r *PgRunRepository) lockAndRun(ctx context.Context, id uuid.UUID, fn func(tx *PgRunRepository, current domain.RunStatus) error) error {
	var current domain.RunStatus
	err := r.db.QueryRow(ctx,
		`SELECT status FROM pipeline_runs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("run", id.String())
		}
		return fmt.Errorf("failed to lock run: %w", err)
	}

	return fn(r, current)
}

// isValidStatusTransition validates a transition of the run state machine.
// Failed and cancelled are reachable from any non-terminal state.
func isValidStatusTransition(from, to domain.RunStatus) bool {
	if from.IsTerminal() {
		return false
	}

	if to == domain.RunStatusFailed || to == domain.RunStatusCancelled {
		return true
	}

	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// isPgForeignKeyViolation checks if the error is a PostgreSQL foreign key violation.
func isPgForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return false
}

// runScanDest holds the destination pointers for scanning a PipelineRun row.
type runScanDest struct {
	run                domain.PipelineRun
	configJSON         []byte
	planJSON           []byte
	reportJSON         []byte
	failureStage       *string
	failureKind        *string
	failureMessage     *string
	temporalWorkflowID *string
	temporalRunID      *string
}

// destinations returns the slice of pointers for Scan, matching runColumns.
func (d *runScanDest) destinations() []interface{} {
	return []interface{}{
		&d.run.ID, &d.run.Topic, &d.run.Status,
		&d.configJSON, &d.planJSON, &d.reportJSON,
		&d.failureStage, &d.failureKind, &d.failureMessage,
		&d.temporalWorkflowID, &d.temporalRunID,
		&d.run.CreatedAt, &d.run.UpdatedAt, &d.run.StartedAt, &d.run.CompletedAt,
	}
}

// finalize performs post-scan processing: nullable fields and JSONB columns.
func (d *runScanDest) finalize() (*domain.PipelineRun, error) {
	if d.temporalWorkflowID != nil {
		d.run.TemporalWorkflowID = *d.temporalWorkflowID
	}
	if d.temporalRunID != nil {
		d.run.TemporalRunID = *d.temporalRunID
	}

	if d.failureStage != nil || d.failureKind != nil || d.failureMessage != nil {
		d.run.Failure = &domain.FailureInfo{}
		if d.failureStage != nil {
			d.run.Failure.Stage = domain.StageName(*d.failureStage)
		}
		if d.failureKind != nil {
			d.run.Failure.Kind = domain.ErrorKind(*d.failureKind)
		}
		if d.failureMessage != nil {
			d.run.Failure.Message = *d.failureMessage
		}
	}

	if len(d.configJSON) > 0 {
		if err := json.Unmarshal(d.configJSON, &d.run.Configuration); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
		}
	}

	if len(d.planJSON) > 0 {
		var plan domain.ResearchPlan
		if err := json.Unmarshal(d.planJSON, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		d.run.Plan = &plan
	}

	if len(d.reportJSON) > 0 {
		var report domain.Report
		if err := json.Unmarshal(d.reportJSON, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		d.run.Report = &report
	}

	return &d.run, nil
}

// scanRun scans a single row into a PipelineRun.
func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var dest runScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanRunFromRows scans the current row from pgx.Rows into a PipelineRun.
func scanRunFromRows(rows pgx.Rows) (*domain.PipelineRun, error) {
	var dest runScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// marshalNullable marshals v unless it is a nil pointer, in which case the
// column stays NULL.
func marshalNullable(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case *domain.ResearchPlan:
		if val == nil {
			return nil, nil
		}
	case *domain.Report:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
