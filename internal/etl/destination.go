package etl

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"datapipe/internal/dbclient"
	"datapipe/internal/metadata"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes rows into a target system. Rows always travel
// with the field list describing them.
//
// Pattern: Singer target protocol.

// SyncMode determines how rows are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop the target, create it from the schema, insert fresh
	SyncAppend  SyncMode = "append"  // create the target when missing, add rows
)

// Valid reports whether m is a known sync mode.
func (m SyncMode) Valid() bool { return m == SyncReplace || m == SyncAppend }

// Target names a table or collection on a configured connection.
type Target struct {
	Connection string `json:"connection" yaml:"connection"`
	Table      string `json:"table" yaml:"table"`
}

func (t Target) String() string { return t.Connection + "." + t.Table }

// Destination writes rows to a target system.
type Destination interface {
	Write(ctx context.Context, target Target, fields *metadata.FieldList, rows []Row, mode SyncMode) (int, error)
}

// ConnectorProvider opens database connectors by connection name. Each call
// returns a fresh connector which the caller must close.
type ConnectorProvider interface {
	Open(ctx context.Context, name string) (dbclient.Connector, error)
}

// ── Table Destination ──────────────────────────────────────
// Writes rows into a table of one of the configured database connections.

// TableWriter implements Destination on top of dbclient connectors.
type TableWriter struct {
	Connections ConnectorProvider
	Logger      log.Logger
}

func (w *TableWriter) Write(ctx context.Context, target Target, fields *metadata.FieldList, rows []Row, mode SyncMode) (int, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: unknown sync mode %q", metadata.ErrInvalidArgument, mode)
	}
	if err := checkArity(fields, rows); err != nil {
		return 0, err
	}

	conn, err := w.Connections.Open(ctx, target.Connection)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", target.Connection, err)
	}
	defer conn.Close()

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = row
	}
	written, err := conn.WriteTable(ctx, target.Table, fields, values, mode == SyncReplace)
	if err != nil {
		return written, fmt.Errorf("write %s: %w", target, err)
	}

	if w.Logger != nil {
		level.Debug(w.Logger).Log("msg", "rows written", "target", target.String(), "mode", mode, "rows", written)
	}
	return written, nil
}

// ── Memory Destination ─────────────────────────────────────

// MemoryWriter keeps written datasets in memory, keyed by target. It backs
// dry runs and tests.
type MemoryWriter struct {
	mu     sync.Mutex
	tables map[Target]*Dataset
}

func (w *MemoryWriter) Write(_ context.Context, target Target, fields *metadata.FieldList, rows []Row, mode SyncMode) (int, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: unknown sync mode %q", metadata.ErrInvalidArgument, mode)
	}
	if err := checkArity(fields, rows); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tables == nil {
		w.tables = map[Target]*Dataset{}
	}

	ds, ok := w.tables[target]
	if !ok || mode == SyncReplace {
		ds = &Dataset{Fields: fields.Copy()}
		w.tables[target] = ds
	} else if !ds.Fields.Equal(fields) {
		return 0, fmt.Errorf("%w: %s has fields %s, rows have %s",
			metadata.ErrConflictingConfiguration, target, ds.Fields, fields)
	}
	ds.Rows = append(ds.Rows, rows...)
	return len(rows), nil
}

// Table returns the dataset written to target.
func (w *MemoryWriter) Table(target Target) (*Dataset, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ds, ok := w.tables[target]
	return ds, ok
}
