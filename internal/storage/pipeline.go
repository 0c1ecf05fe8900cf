package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// PipelineStore implements persistence for pipeline definitions and run logs.
type PipelineStore struct {
	db *DB
}

// NewPipelineStore creates a new PipelineStore.
func NewPipelineStore(db *DB) *PipelineStore {
	return &PipelineStore{db: db}
}

const pipelineColumns = `id, name, source_type, source_config, transforms, target_connection, target_table,
	sync_mode, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

// ── Pipeline CRUD ──────────────────────────────────────────

func (s *PipelineStore) Create(p *etl.Pipeline) error {
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	srcCfg, transforms, err := encodePipeline(p)
	if err != nil {
		return err
	}

	_, err = s.db.conn.Exec(
		`INSERT INTO pipelines (id, name, source_type, source_config, transforms, target_connection, target_table,
		 sync_mode, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SourceType, srcCfg, transforms, p.Target.Connection, p.Target.Table,
		p.SyncMode, p.TriggerType, p.TriggerConfig, p.Enabled,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline %s: %w", p.Name, err)
	}
	return nil
}

func (s *PipelineStore) Get(id string) (*etl.Pipeline, error) {
	p, err := scanPipeline(s.db.conn.QueryRow(`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return p, err
}

// GetByName returns the pipeline with the given name.
func (s *PipelineStore) GetByName(name string) (*etl.Pipeline, error) {
	p, err := scanPipeline(s.db.conn.QueryRow(`SELECT `+pipelineColumns+` FROM pipelines WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %q: %w", name, ErrNotFound)
	}
	return p, err
}

func (s *PipelineStore) Update(p *etl.Pipeline) error {
	p.UpdatedAt = time.Now().UTC()
	srcCfg, transforms, err := encodePipeline(p)
	if err != nil {
		return err
	}

	res, err := s.db.conn.Exec(
		`UPDATE pipelines SET name=?, source_type=?, source_config=?, transforms=?,
		 target_connection=?, target_table=?, sync_mode=?, trigger_type=?, trigger_config=?,
		 enabled=?, updated_at=? WHERE id=?`,
		p.Name, p.SourceType, srcCfg, transforms,
		p.Target.Connection, p.Target.Table, p.SyncMode,
		p.TriggerType, p.TriggerConfig, p.Enabled,
		p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update pipeline %s: %w", p.Name, err)
	}
	return expectOne(res, p.ID)
}

func (s *PipelineStore) UpdateStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE pipelines SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (s *PipelineStore) Delete(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM pipeline_runs WHERE pipeline_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM pipelines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (s *PipelineStore) List() ([]etl.Pipeline, error) {
	return s.query(`SELECT ` + pipelineColumns + ` FROM pipelines ORDER BY created_at ASC, name ASC`)
}

// ListTriggered returns pipelines that are enabled with a schedule or
// file watch trigger.
func (s *PipelineStore) ListTriggered() ([]etl.Pipeline, error) {
	return s.query(`SELECT `+pipelineColumns+` FROM pipelines
		WHERE enabled = 1 AND trigger_type IN (?, ?)
		ORDER BY created_at ASC, name ASC`, etl.TriggerSchedule, etl.TriggerFileWatch)
}

func (s *PipelineStore) query(q string, args ...any) ([]etl.Pipeline, error) {
	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pipelines []etl.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row scanner) (*etl.Pipeline, error) {
	p := &etl.Pipeline{}
	var srcCfg, transforms string
	var lastRun sql.NullTime
	if err := row.Scan(
		&p.ID, &p.Name, &p.SourceType, &srcCfg, &transforms,
		&p.Target.Connection, &p.Target.Table, &p.SyncMode,
		&p.TriggerType, &p.TriggerConfig, &p.Enabled,
		&lastRun, &p.LastStatus, &p.LastError,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.LastRunAt = lastRun.Time

	if err := json.Unmarshal([]byte(srcCfg), &p.SourceCfg); err != nil {
		return nil, fmt.Errorf("pipeline %s: source config: %w", p.Name, err)
	}
	if err := json.Unmarshal([]byte(transforms), &p.Transforms); err != nil {
		return nil, fmt.Errorf("pipeline %s: transforms: %w", p.Name, err)
	}
	return p, nil
}

func encodePipeline(p *etl.Pipeline) (string, string, error) {
	srcCfg := etl.SourceConfig{}
	if p.SourceCfg != nil {
		srcCfg = p.SourceCfg
	}
	cfg, err := json.Marshal(srcCfg)
	if err != nil {
		return "", "", fmt.Errorf("encode source config: %w", err)
	}
	transforms := p.Transforms
	if transforms == nil {
		transforms = []etl.TransformConfig{}
	}
	ts, err := json.Marshal(transforms)
	if err != nil {
		return "", "", fmt.Errorf("encode transforms: %w", err)
	}
	return string(cfg), string(ts), nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return nil
}

// ── Output schema ──────────────────────────────────────────
// The field list written by the last successful run, stored as a list of
// field attribute maps.

// SaveOutputFields records the field list a pipeline last wrote.
func (s *PipelineStore) SaveOutputFields(id string, fields *metadata.FieldList) error {
	attrs := make([]map[string]any, 0, fields.Len())
	for _, f := range fields.Slice() {
		attrs = append(attrs, f.Attributes())
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode output fields: %w", err)
	}
	res, err := s.db.conn.Exec(`UPDATE pipelines SET output_fields=? WHERE id=?`, string(raw), id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

// OutputFields returns the field list a pipeline last wrote, or an empty
// list when it never ran successfully.
func (s *PipelineStore) OutputFields(id string) (*metadata.FieldList, error) {
	var raw string
	err := s.db.conn.QueryRow(`SELECT output_fields FROM pipelines WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var attrs []any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("decode output fields: %w", err)
	}
	return metadata.FieldListOf(attrs...)
}

// ── Run Logs ───────────────────────────────────────────────

func (s *PipelineStore) CreateRunLog(log *etl.SyncRunLog) error {
	log.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO pipeline_runs (id, pipeline_id, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.PipelineID, log.StartedAt, log.FinishedAt, log.Status, log.RowsRead, log.RowsWritten, log.Error,
	)
	return err
}

func (s *PipelineStore) ListRunLogs(pipelineID string, limit int) ([]etl.SyncRunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, pipeline_id, started_at, finished_at, status, rows_read, rows_written, error
		 FROM pipeline_runs WHERE pipeline_id = ? ORDER BY started_at DESC LIMIT ?`,
		pipelineID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.SyncRunLog
	for rows.Next() {
		var l etl.SyncRunLog
		if err := rows.Scan(&l.ID, &l.PipelineID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
