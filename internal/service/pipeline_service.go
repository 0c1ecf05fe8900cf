package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/robfig/cron/v3"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
	"datapipe/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: business logic for pipelines
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned when a pipeline is started while a run of
// it is in flight.
var ErrAlreadyRunning = errors.New("pipeline is already running")

const (
	defaultRunTimeout      = 5 * time.Minute
	defaultPreviewTimeout  = 30 * time.Second
	defaultDiscoverTimeout = 15 * time.Second
	defaultPreviewRows     = 10
	fileWatchDebounce      = 500 * time.Millisecond
	runLogLimit            = 50
)

// PipelineService manages pipeline definitions, runs, scheduling and file
// watching. Observers are notified through the EventEmitter.
type PipelineService struct {
	store   *storage.PipelineStore
	dest    etl.Destination
	emitter EventEmitter
	logger  log.Logger
	metrics *Metrics
	running runningGuard

	// RunTimeout bounds a single pipeline run.
	RunTimeout time.Duration

	// watcher / cron lifecycle
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService creates a PipelineService ready for use. A nil emitter
// logs events; nil metrics are kept unregistered.
func NewPipelineService(
	store *storage.PipelineStore,
	dest etl.Destination,
	emitter EventEmitter,
	logger log.Logger,
	metrics *Metrics,
) *PipelineService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "component", "pipelines")
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &PipelineService{
		store:      store,
		dest:       dest,
		emitter:    emitter,
		logger:     logger,
		metrics:    metrics,
		RunTimeout: defaultRunTimeout,
	}
}

func (s *PipelineService) engine() *etl.Engine {
	return &etl.Engine{Dest: s.dest, Logger: s.logger}
}

// ── Pipeline CRUD ──────────────────────────────────────────

func (s *PipelineService) validate(p *etl.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := etl.GetSource(p.SourceType); err != nil {
		return fmt.Errorf("%w: %s", metadata.ErrInvalidArgument, err)
	}
	if p.TriggerType == etl.TriggerSchedule {
		if _, err := cron.ParseStandard(p.TriggerConfig); err != nil {
			return fmt.Errorf("%w: pipeline %s: schedule %q: %s", metadata.ErrInvalidArgument, p.Name, p.TriggerConfig, err)
		}
	}
	return nil
}

func (s *PipelineService) Create(ctx context.Context, p *etl.Pipeline) (*etl.Pipeline, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.store.Create(p); err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	s.RestartWatchers(ctx)
	return p, nil
}

func (s *PipelineService) Get(id string) (*etl.Pipeline, error) {
	return s.store.Get(id)
}

// Resolve returns the pipeline with the given ID or, failing that, name.
func (s *PipelineService) Resolve(ref string) (*etl.Pipeline, error) {
	p, err := s.store.Get(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return s.store.GetByName(ref)
	}
	return p, err
}

func (s *PipelineService) List() ([]etl.Pipeline, error) {
	return s.store.List()
}

func (s *PipelineService) Update(ctx context.Context, p *etl.Pipeline) error {
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.store.Update(p); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *PipelineService) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// Apply creates or updates pipelines by name, so declarations from the
// configuration file can be loaded on every start. Watchers are restarted
// once at the end.
func (s *PipelineService) Apply(ctx context.Context, pipelines []etl.Pipeline) error {
	for i := range pipelines {
		p := pipelines[i]
		if err := s.validate(&p); err != nil {
			return err
		}
		existing, err := s.store.GetByName(p.Name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = s.store.Create(&p)
		case err == nil:
			p.ID = existing.ID
			err = s.store.Update(&p)
		}
		if err != nil {
			return fmt.Errorf("apply pipeline %s: %w", p.Name, err)
		}
	}
	s.RestartWatchers(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunPipeline executes a single pipeline synchronously, records a run log
// and notifies the emitter.
func (s *PipelineService) RunPipeline(ctx context.Context, id string) (*etl.SyncResult, error) {
	// Prevent concurrent execution of the same pipeline.
	if !s.running.TryLock(id) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	defer s.running.Unlock(id)
	s.metrics.running.Inc()
	defer s.metrics.running.Dec()

	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateStatus(id, etl.StatusRunning, ""); err != nil {
		level.Warn(s.logger).Log("msg", "failed to mark pipeline running", "pipeline", p.Name, "err", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.RunTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine().RunSync(runCtx, p)
	finished := time.Now()
	s.metrics.observe(p.Name, result, finished.Sub(start))

	runLog := &etl.SyncRunLog{
		PipelineID:  id,
		StartedAt:   start.UTC(),
		FinishedAt:  finished.UTC(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		runLog.Error = errMsg
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		level.Warn(s.logger).Log("msg", "failed to store run log", "pipeline", p.Name, "err", err)
	}
	if err := s.store.UpdateStatus(id, result.Status, errMsg); err != nil {
		level.Warn(s.logger).Log("msg", "failed to store pipeline status", "pipeline", p.Name, "err", err)
	}

	if runErr != nil {
		s.emitter.Emit(ctx, EventPipelineFailed, map[string]string{
			"pipelineId": id,
			"error":      errMsg,
		})
		return result, runErr
	}

	if result.Fields != nil {
		if err := s.store.SaveOutputFields(id, result.Fields); err != nil {
			level.Warn(s.logger).Log("msg", "failed to store output fields", "pipeline", p.Name, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventPipelineCompleted, map[string]string{"pipelineId": id})
	s.emitter.Emit(ctx, EventTableUpdated, map[string]string{
		"pipelineId": id,
		"connection": p.Target.Connection,
		"table":      p.Target.Table,
	})
	return result, nil
}

// ListSources returns the available source descriptors.
func (s *PipelineService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the last run logs of a pipeline, newest first.
func (s *PipelineService) ListRunLogs(id string) ([]etl.SyncRunLog, error) {
	return s.store.ListRunLogs(id, runLogLimit)
}

// OutputFields returns the schema a pipeline last wrote.
func (s *PipelineService) OutputFields(id string) (*metadata.FieldList, error) {
	return s.store.OutputFields(id)
}

// ── Plan / Preview / Schema Discovery ──────────────────────

// PlanPipeline derives the schema of every stage of a pipeline.
func (s *PipelineService) PlanPipeline(ctx context.Context, id string) (*etl.Plan, error) {
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	planCtx, cancel := context.WithTimeout(ctx, defaultDiscoverTimeout)
	defer cancel()
	return s.engine().Plan(planCtx, p)
}

// PreviewSource reads up to maxRows rows of a source through transforms.
// A non-positive maxRows uses a default of 10.
func (s *PipelineService) PreviewSource(ctx context.Context, sourceType string, cfg etl.SourceConfig, transforms []etl.TransformConfig, maxRows int) (*etl.Dataset, error) {
	if maxRows <= 0 {
		maxRows = defaultPreviewRows
	}
	previewCtx, cancel := context.WithTimeout(ctx, defaultPreviewTimeout)
	defer cancel()
	return s.engine().Preview(previewCtx, sourceType, cfg, transforms, maxRows)
}

// DiscoverSchema returns the field list of a source.
func (s *PipelineService) DiscoverSchema(ctx context.Context, sourceType string, cfg etl.SourceConfig) (*metadata.FieldList, error) {
	source, err := etl.GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	if err := source.Spec().Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", metadata.ErrInvalidArgument, err)
	}

	discCtx, cancel := context.WithTimeout(ctx, defaultDiscoverTimeout)
	defer cancel()
	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled, triggered pipelines.
func (s *PipelineService) RestartWatchers(ctx context.Context) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()

	pipelines, err := s.store.ListTriggered()
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to list triggered pipelines", "err", err)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	s.startCronLocked(runCtx, pipelines)
	s.startFileWatchLocked(runCtx, pipelines)
}

func (s *PipelineService) startCronLocked(ctx context.Context, pipelines []etl.Pipeline) {
	c := cron.New()
	scheduled := 0
	for _, p := range pipelines {
		if p.TriggerType != etl.TriggerSchedule || p.TriggerConfig == "" {
			continue
		}
		id, name := p.ID, p.Name
		_, err := c.AddFunc(p.TriggerConfig, func() {
			level.Info(s.logger).Log("msg", "scheduled run", "pipeline", name)
			if _, err := s.RunPipeline(ctx, id); err != nil {
				level.Error(s.logger).Log("msg", "scheduled run failed", "pipeline", name, "err", err)
			}
		})
		if err != nil {
			level.Error(s.logger).Log("msg", "invalid schedule", "pipeline", name, "expr", p.TriggerConfig, "err", err)
			continue
		}
		scheduled++
	}
	if scheduled == 0 {
		return
	}
	c.Start()
	s.cronSched = c
	level.Info(s.logger).Log("msg", "scheduled pipelines", "count", scheduled)
}

func (s *PipelineService) startFileWatchLocked(ctx context.Context, pipelines []etl.Pipeline) {
	pathToPipeline := make(map[string]string)
	for _, p := range pipelines {
		if p.TriggerType != etl.TriggerFileWatch || p.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(p.TriggerConfig)
		if err != nil {
			level.Error(s.logger).Log("msg", "bad watch path", "pipeline", p.Name, "path", p.TriggerConfig, "err", err)
			continue
		}
		pathToPipeline[absPath] = p.ID
	}
	if len(pathToPipeline) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to create file watcher", "err", err)
		return
	}
	s.watcher = watcher

	// Directories are watched so that files replaced by rename are seen.
	watchedDirs := make(map[string]bool)
	for absPath := range pathToPipeline {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			level.Error(s.logger).Log("msg", "failed to watch directory", "dir", dir, "err", err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				id, ok := pathToPipeline[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[id]; exists {
					t.Stop()
				}
				timers[id] = time.AfterFunc(fileWatchDebounce, func() {
					level.Info(s.logger).Log("msg", "file changed", "path", absPath, "pipeline", id)
					if _, err := s.RunPipeline(ctx, id); err != nil {
						level.Error(s.logger).Log("msg", "file triggered run failed", "pipeline", id, "err", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				level.Error(s.logger).Log("msg", "file watcher error", "err", err)
			}
		}
	}()

	level.Info(s.logger).Log("msg", "watching files", "count", len(pathToPipeline))
}

// Running returns the IDs of the pipelines currently running.
func (s *PipelineService) Running() []string {
	return s.running.Running()
}

// WaitRunning blocks until all running pipelines finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *PipelineService) Stop() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()
}

func (s *PipelineService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
