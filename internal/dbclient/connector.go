package dbclient

import (
	"context"
	"fmt"

	"github.com/go-kit/log"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

const defaultFetchSize = 50

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns []string `json:"columns"`
	// ColumnTypes holds the database type name of each column when the
	// driver reports one.
	ColumnTypes  []string `json:"columnTypes,omitempty"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
	IsWrite      bool     `json:"isWrite"`
	AffectedRows int      `json:"affectedRows"`
}

// SchemaInfo lists the tables of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
}

// Connector abstracts interaction with an external database.
type Connector interface {
	// Driver returns the engine behind the connector.
	Driver() domain.DatabaseDriver

	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a query and returns the first batch of rows.
	// For reads: opens a cursor and fetches fetchSize rows.
	// For writes: executes and returns affected rows count.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect lists every table with its columns.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Describe returns the schema of one table as a field list. Each field
	// carries its ColumnType as concrete storage type.
	Describe(ctx context.Context, table string) (*metadata.FieldList, error)

	// WriteTable creates table from fields when missing and inserts rows,
	// which must be aligned with fields. With replace the table is dropped
	// first. It returns the number of rows written.
	WriteTable(ctx context.Context, table string, fields *metadata.FieldList, rows [][]any, replace bool) (int, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
func NewConnector(conn *domain.DatabaseConnection, logger log.Logger) (Connector, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "component", "dbclient", "connection", conn.Name, "driver", conn.Driver)

	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn, logger)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector(domain.DatabaseDriverMySQL, buildMySQLDSN(conn), logger)
	case domain.DatabaseDriverPostgres:
		return newSQLConnector(domain.DatabaseDriverPostgres, buildPostgresDSN(conn), logger)
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, logger)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDriver, conn.Driver)
	}
}
