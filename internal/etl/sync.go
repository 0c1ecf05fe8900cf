package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"datapipe/internal/metadata"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → destination.Write.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch = "file_watch" // TriggerConfig is a file path
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusRunning = "running"
)

// Pipeline holds the configuration for a single ETL sync.
type Pipeline struct {
	ID            string            `json:"id" yaml:"id,omitempty"`
	Name          string            `json:"name" yaml:"name"`
	SourceType    string            `json:"sourceType" yaml:"source"`
	SourceCfg     SourceConfig      `json:"sourceConfig" yaml:"source_config"`
	Transforms    []TransformConfig `json:"transforms,omitempty" yaml:"transforms,omitempty"`
	Target        Target            `json:"target" yaml:"target"`
	SyncMode      SyncMode          `json:"syncMode" yaml:"sync_mode"`
	TriggerType   string            `json:"triggerType" yaml:"trigger"`
	TriggerConfig string            `json:"triggerConfig,omitempty" yaml:"trigger_config,omitempty"`
	Enabled       bool              `json:"enabled" yaml:"enabled"`
	LastRunAt     time.Time         `json:"lastRunAt" yaml:"-"`
	LastStatus    string            `json:"lastStatus" yaml:"-"` // "success" | "error" | "running" | ""
	LastError     string            `json:"lastError" yaml:"-"`
	CreatedAt     time.Time         `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time         `json:"updatedAt" yaml:"-"`
}

// Validate checks the parts of a pipeline that do not need a source.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: pipeline name is required", metadata.ErrInvalidArgument)
	}
	if p.SourceType == "" {
		return fmt.Errorf("%w: pipeline %s: source is required", metadata.ErrInvalidArgument, p.Name)
	}
	if p.SyncMode == "" {
		p.SyncMode = SyncReplace
	}
	if !p.SyncMode.Valid() {
		return fmt.Errorf("%w: pipeline %s: unknown sync mode %q", metadata.ErrInvalidArgument, p.Name, p.SyncMode)
	}
	if p.TriggerType == "" {
		p.TriggerType = TriggerManual
	}
	switch p.TriggerType {
	case TriggerManual:
	case TriggerSchedule, TriggerFileWatch:
		if p.TriggerConfig == "" {
			return fmt.Errorf("%w: pipeline %s: %s trigger needs trigger_config", metadata.ErrInvalidArgument, p.Name, p.TriggerType)
		}
	default:
		return fmt.Errorf("%w: pipeline %s: unknown trigger %q", metadata.ErrInvalidArgument, p.Name, p.TriggerType)
	}
	if _, err := BuildTransformers(p.Transforms); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	return nil
}

// SyncResult is the outcome of running a pipeline.
type SyncResult struct {
	PipelineID  string        `json:"pipelineId"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	// Fields is the schema of the written rows, set on success.
	Fields *metadata.FieldList `json:"-"`
}

// SyncRunLog is a historical record of a pipeline run.
type SyncRunLog struct {
	ID          string    `json:"id"`
	PipelineID  string    `json:"pipelineId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// Plan is the schema of a pipeline at every stage, derived without reading
// any rows.
type Plan struct {
	Source *metadata.FieldList   `json:"-"`
	Stages []*metadata.FieldList `json:"-"`
	Output *metadata.FieldList   `json:"-"`
}

// ── Engine ─────────────────────────────────────────────────
// The Engine orchestrates sync execution.

// Engine runs pipelines using the registered sources and a destination.
type Engine struct {
	Dest   Destination
	Logger log.Logger
}

func (e *Engine) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}

// prepare resolves the source, discovers its schema and prepares the
// transform chain.
func (e *Engine) prepare(ctx context.Context, sourceType string, cfg SourceConfig, transforms []TransformConfig) (Source, *Plan, []Transformer, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := source.Spec().Validate(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", metadata.ErrInvalidArgument, err)
	}
	ts, err := BuildTransformers(transforms)
	if err != nil {
		return nil, nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("discover: %w", err)
	}
	stages, err := PrepareChain(schema, ts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("prepare: %w", err)
	}

	plan := &Plan{Source: schema, Stages: stages, Output: schema}
	if len(stages) > 0 {
		plan.Output = stages[len(stages)-1]
	}
	return source, plan, ts, nil
}

// Plan discovers the source schema and derives the schema produced by each
// transform without reading rows.
func (e *Engine) Plan(ctx context.Context, p *Pipeline) (*Plan, error) {
	_, plan, _, err := e.prepare(ctx, p.SourceType, p.SourceCfg, p.Transforms)
	return plan, err
}

// RunSync executes a pipeline end-to-end.
func (e *Engine) RunSync(ctx context.Context, p *Pipeline) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{PipelineID: p.ID}
	fail := func(stage string, err error) (*SyncResult, error) {
		result.Status = StatusError
		result.Error = fmt.Sprintf("%s: %s", stage, err)
		result.Duration = time.Since(start)
		level.Error(e.logger()).Log("msg", "pipeline failed", "pipeline", p.Name, "stage", stage, "err", err)
		return result, err
	}

	// 1. Resolve source, discover schema and plan the transform chain.
	source, plan, ts, err := e.prepare(ctx, p.SourceType, p.SourceCfg, p.Transforms)
	if err != nil {
		return fail("plan", err)
	}

	// 2. Read rows from source.
	rows, err := collect(ctx, source, p.SourceCfg, plan.Source, -1)
	result.RowsRead = len(rows)
	if err != nil {
		return fail("read", err)
	}

	// 3. Transform.
	rows, err = ApplyTransformers(rows, ts)
	if err != nil {
		return fail("transform", err)
	}

	// 4. Write to destination.
	written, err := e.Dest.Write(ctx, p.Target, plan.Output, rows, p.SyncMode)
	result.RowsWritten = written
	if err != nil {
		return fail("write", err)
	}

	result.Status = StatusSuccess
	result.Fields = plan.Output
	result.Duration = time.Since(start)
	level.Info(e.logger()).Log("msg", "pipeline finished", "pipeline", p.Name,
		"rows_read", result.RowsRead, "rows_written", written, "duration", result.Duration)
	return result, nil
}

// Preview reads the source, applies transforms and returns up to maxRows
// rows with their schema. Without transforms reading stops after maxRows.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, transforms []TransformConfig, maxRows int) (*Dataset, error) {
	source, plan, ts, err := e.prepare(ctx, sourceType, cfg, transforms)
	if err != nil {
		return nil, err
	}

	limit := -1
	if len(ts) == 0 {
		limit = maxRows
	}
	rows, err := collect(ctx, source, cfg, plan.Source, limit)
	if err != nil {
		return nil, err
	}
	rows, err = ApplyTransformers(rows, ts)
	if err != nil {
		return nil, err
	}
	if maxRows >= 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return &Dataset{Fields: plan.Output, Rows: rows}, nil
}

// errRowLimit stops a source early once enough rows were read.
var errRowLimit = errors.New("row limit reached")

// collect drains a source into memory. A negative limit reads everything.
func collect(ctx context.Context, source Source, cfg SourceConfig, fields *metadata.FieldList, limit int) ([]Row, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rowCh, errCh := source.Read(ctx, cfg)

	var rows []Row
	for row := range rowCh {
		if limit >= 0 && len(rows) >= limit {
			cancel(errRowLimit)
			break
		}
		if len(row) != fields.Len() {
			cancel(nil)
			for range rowCh {
			}
			return rows, fmt.Errorf("row %d has %d values, schema has %d: %w",
				len(rows), len(row), fields.Len(), metadata.ErrInvalidArgument)
		}
		rows = append(rows, row)
	}

	// Drain remaining rows so the source goroutine can exit.
	for range rowCh {
	}
	if err := <-errCh; err != nil && !errors.Is(context.Cause(ctx), errRowLimit) {
		return rows, err
	}
	return rows, nil
}
