package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

func newTestStore(t *testing.T) *PipelineStore {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "catalog", "datapipe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPipelineStore(db)
}

func samplePipeline(name string) *etl.Pipeline {
	return &etl.Pipeline{
		Name:       name,
		SourceType: "csv_file",
		SourceCfg:  etl.SourceConfig{"filePath": "/data/sales.csv", "hasHeader": "true"},
		Transforms: []etl.TransformConfig{
			{Type: "limit", Config: etl.Options{"count": 10}},
		},
		Target:      etl.Target{Connection: "warehouse", Table: "sales"},
		SyncMode:    etl.SyncAppend,
		TriggerType: etl.TriggerManual,
	}
}

func TestPipelineStore_CRUD(t *testing.T) {
	s := newTestStore(t)

	p := samplePipeline("sales")
	require.NoError(t, s.Create(p))
	require.NotEmpty(t, p.ID)

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Name)
	assert.Equal(t, etl.Target{Connection: "warehouse", Table: "sales"}, got.Target)
	assert.Equal(t, etl.SyncAppend, got.SyncMode)
	assert.Equal(t, "/data/sales.csv", got.SourceCfg.String("filePath"))
	require.Len(t, got.Transforms, 1)
	assert.Equal(t, 10, got.Transforms[0].Config.Int("count", 0))
	assert.True(t, got.LastRunAt.IsZero())

	byName, err := s.GetByName("sales")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	got.Enabled = true
	got.TriggerType = etl.TriggerSchedule
	got.TriggerConfig = "*/5 * * * *"
	require.NoError(t, s.Update(got))

	triggered, err := s.ListTriggered()
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, "*/5 * * * *", triggered[0].TriggerConfig)

	require.NoError(t, s.Delete(p.ID))
	_, err = s.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(p.ID), ErrNotFound)
}

func TestPipelineStore_UniqueName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(samplePipeline("sales")))
	assert.Error(t, s.Create(samplePipeline("sales")))

	require.NoError(t, s.Create(samplePipeline("other")))
	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	triggered, err := s.ListTriggered()
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestPipelineStore_Status(t *testing.T) {
	s := newTestStore(t)
	p := samplePipeline("sales")
	require.NoError(t, s.Create(p))

	require.NoError(t, s.UpdateStatus(p.ID, etl.StatusError, "boom"))
	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusError, got.LastStatus)
	assert.Equal(t, "boom", got.LastError)
	assert.False(t, got.LastRunAt.IsZero())

	assert.ErrorIs(t, s.UpdateStatus("missing", etl.StatusSuccess, ""), ErrNotFound)
}

func TestPipelineStore_RunLogs(t *testing.T) {
	s := newTestStore(t)
	p := samplePipeline("sales")
	require.NoError(t, s.Create(p))

	start := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateRunLog(&etl.SyncRunLog{
			PipelineID:  p.ID,
			StartedAt:   start.Add(time.Duration(i) * time.Second),
			FinishedAt:  start.Add(time.Duration(i)*time.Second + 100*time.Millisecond),
			Status:      etl.StatusSuccess,
			RowsRead:    i,
			RowsWritten: i,
		}))
	}

	logs, err := s.ListRunLogs(p.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].RowsRead)
	assert.Equal(t, 1, logs[1].RowsRead)
}

func TestPipelineStore_OutputFields(t *testing.T) {
	s := newTestStore(t)
	p := samplePipeline("sales")
	require.NoError(t, s.Create(p))

	empty, err := s.OutputFields(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	region := metadata.NewField("region", metadata.StorageString, metadata.AnalyticalNominal)
	region.Size = 32
	region.Label = "Region"
	total := metadata.NewField("total", metadata.StorageNumber, metadata.AnalyticalMeasure)
	fields, err := metadata.NewFieldList(region, total)
	require.NoError(t, err)
	require.NoError(t, s.SaveOutputFields(p.ID, fields))

	got, err := s.OutputFields(p.ID)
	require.NoError(t, err)
	assert.True(t, fields.Equal(got), "got %s", got)

	_, err = s.OutputFields("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
