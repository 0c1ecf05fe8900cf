package sources

import (
	"context"
	"fmt"

	"datapipe/internal/dbclient"
	"datapipe/internal/domain"
	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// ── Database Source ────────────────────────────────────────
// Reads the result of a query on one of the configured connections.
// Reuses the dbclient.Connector infrastructure through a provider which
// opens a fresh connector for every Discover and Read.

const (
	discoverSampleSize = 100
	readPageSize       = 500
)

// DBProvider opens connectors by connection name.
type DBProvider = etl.ConnectorProvider

var dbProvider DBProvider

// SetDBProvider is called by the app at startup.
func SetDBProvider(p DBProvider) { dbProvider = p }

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "connection", Label: "Connection", Type: "connection", Required: true, Help: "Name of a configured connection"},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SQL query, or a MongoDB command document"},
		},
	}
}

func openQuery(ctx context.Context, cfg etl.SourceConfig, fetchSize int) (dbclient.Connector, *dbclient.QueryPage, error) {
	if dbProvider == nil {
		return nil, nil, fmt.Errorf("database provider not initialized")
	}
	name, query := cfg.String("connection"), cfg.String("query")
	if name == "" || query == "" {
		return nil, nil, fmt.Errorf("connection and query are required")
	}

	conn, err := dbProvider.Open(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	page, err := conn.Execute(ctx, query, fetchSize)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("execute: %w", err)
	}
	if page.IsWrite {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: query does not return rows", metadata.ErrInvalidArgument)
	}
	return conn, page, nil
}

// Discover samples the first rows of the query. Column types reported by
// the driver decide the storage type; columns without one are typed from
// the sampled values.
func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*metadata.FieldList, error) {
	conn, page, err := openQuery(ctx, cfg, discoverSampleSize)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return pageFields(conn.Driver(), page)
}

func pageFields(driver domain.DatabaseDriver, page *dbclient.QueryPage) (*metadata.FieldList, error) {
	fields := &metadata.FieldList{}
	for i, col := range page.Columns {
		f := metadata.NewField(col, metadata.StorageUnset, metadata.AnalyticalUnset)
		if i < len(page.ColumnTypes) && page.ColumnTypes[i] != "" {
			f.StorageType = dbclient.StorageTypeForSQL(page.ColumnTypes[i])
			f.ConcreteStorageType = dbclient.ColumnType{Driver: driver, Name: page.ColumnTypes[i]}
		}
		if !f.StorageType.IsSet() || f.StorageType == metadata.StorageUnknown {
			st := metadata.StorageUnset
			for _, row := range page.Rows {
				if i < len(row) {
					st = metadata.WidenStorageType(st, storageTypeOf(row[i]))
				}
			}
			if !st.IsSet() {
				st = metadata.StorageString
			}
			f.StorageType = st
		}
		if err := fields.Append(f); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		conn, page, err := openQuery(ctx, cfg, discoverSampleSize)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		// Rows follow the discovered schema, which is the first page's
		// columns. Later pages are aligned by column name.
		fields, err := pageFields(conn.Driver(), page)
		if err != nil {
			errCh <- err
			return
		}

		for {
			if err := emitPage(ctx, out, fields, page); err != nil {
				errCh <- err
				return
			}
			if !page.HasMore {
				return
			}
			page, err = conn.FetchMore(ctx, readPageSize)
			if err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
		}
	}()

	return out, errCh
}

func emitPage(ctx context.Context, out chan<- etl.Row, fields *metadata.FieldList, page *dbclient.QueryPage) error {
	index := fields.IndexMap()
	for _, values := range page.Rows {
		row := make(etl.Row, fields.Len())
		for i, col := range page.Columns {
			if j, ok := index[col]; ok && i < len(values) {
				row[j] = values[i]
			}
		}
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
