package dbclient

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

// ErrNoCursor is returned by FetchMore when no read query is open.
var ErrNoCursor = errors.New("no active cursor, execute a query first")

// ErrNoSuchTable is returned by Describe for an unknown table.
var ErrNoSuchTable = errors.New("no such table")

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driver domain.DatabaseDriver
	db     *sql.DB
	logger log.Logger

	mu          sync.Mutex
	activeRows  *sql.Rows
	lastAccess  time.Time
	columns     []string
	columnTypes []string
	fetched     int
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driver domain.DatabaseDriver, dsn string, logger log.Logger) (*sqlConnector, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driver: driver, db: db, logger: logger}, nil
}

func (c *sqlConnector) Driver() domain.DatabaseDriver { return c.driver }

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// isReadQuery detects if a query is a read (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN, PRAGMA).
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

func (c *sqlConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCursorLocked()

	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	if !isReadQuery(query) {
		return c.execWrite(ctx, query)
	}
	return c.execRead(ctx, query, fetchSize)
}

func (c *sqlConnector) execWrite(ctx context.Context, query string) (*QueryPage, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	affected, _ := result.RowsAffected()
	level.Debug(c.logger).Log("msg", "executed write", "affected", affected)
	return &QueryPage{
		IsWrite:      true,
		AffectedRows: int(affected),
	}, nil
}

// execRead opens a cursor. The cursor outlives this call, so ctx only
// bounds the query start; rows are read with FetchMore's context.
func (c *sqlConnector) execRead(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}
	types := make([]string, len(cols))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			types[i] = ct.DatabaseTypeName()
		}
	}

	c.activeRows = rows
	c.columns = cols
	c.columnTypes = types
	c.fetched = 0
	c.lastAccess = time.Now()

	return c.fetchBatchLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeRows == nil {
		return nil, ErrNoCursor
	}
	if err := ctx.Err(); err != nil {
		c.closeCursorLocked()
		return nil, err
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	c.lastAccess = time.Now()
	return c.fetchBatchLocked(fetchSize)
}

// fetchBatchLocked reads up to fetchSize rows from the active cursor.
// Must be called while holding c.mu.
func (c *sqlConnector) fetchBatchLocked(fetchSize int) (*QueryPage, error) {
	var resultRows [][]any
	numCols := len(c.columns)

	for i := 0; i < fetchSize; i++ {
		if !c.activeRows.Next() {
			break
		}
		values := make([]any, numCols)
		ptrs := make([]any, numCols)
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := c.activeRows.Scan(ptrs...); err != nil {
			c.closeCursorLocked()
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]any, numCols)
		for j, v := range values {
			row[j] = normalizeValue(v)
		}
		resultRows = append(resultRows, row)
	}

	if err := c.activeRows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w", err)
	}

	c.fetched += len(resultRows)

	hasMore := true
	if len(resultRows) < fetchSize {
		hasMore = false
		c.closeCursorLocked()
	}

	return &QueryPage{
		Columns:      c.columns,
		ColumnTypes:  c.columnTypes,
		Rows:         resultRows,
		TotalFetched: c.fetched,
		HasMore:      hasMore,
	}, nil
}

// normalizeValue converts driver values into plain Go values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tableNames, err := c.listTables(ctx)
	if err != nil {
		return nil, err
	}

	schema := &SchemaInfo{}
	for _, tbl := range tableNames {
		cols, err := c.describeColumns(ctx, tbl)
		if err != nil {
			level.Warn(c.logger).Log("msg", "describe table failed", "table", tbl, "err", err)
			schema.Tables = append(schema.Tables, TableInfo{Name: tbl})
			continue
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: tbl, Columns: cols})
	}
	return schema, nil
}

func (c *sqlConnector) Describe(ctx context.Context, table string) (*metadata.FieldList, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cols, err := c.describeColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	fields := &metadata.FieldList{}
	for _, col := range cols {
		if err := fields.Append(fieldForColumn(c.driver, col)); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
	}
	return fields, nil
}

func (c *sqlConnector) listTables(ctx context.Context) ([]string, error) {
	var query string
	switch c.driver {
	case domain.DatabaseDriverSQLite:
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case domain.DatabaseDriverMySQL:
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`
	default:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// describeColumns returns the columns of table in ordinal order. An unknown
// table yields no columns.
func (c *sqlConnector) describeColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	if c.driver == domain.DatabaseDriverSQLite {
		return c.describeSQLite(ctx, table)
	}
	return c.describeInfoSchema(ctx, table)
}

// describeSQLite uses PRAGMA table_info.
func (c *sqlConnector) describeSQLite(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := c.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(c.driver, table)+")")
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols = append(cols, ColumnInfo{Name: name, Type: colType, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

// describeInfoSchema works for MySQL and Postgres via INFORMATION_SCHEMA.
func (c *sqlConnector) describeInfoSchema(ctx context.Context, table string) ([]ColumnInfo, error) {
	var query string
	if c.driver == domain.DatabaseDriverMySQL {
		query = `SELECT c.COLUMN_NAME, c.COLUMN_TYPE, c.COLUMN_KEY = 'PRI'
			FROM INFORMATION_SCHEMA.COLUMNS c
			WHERE c.TABLE_SCHEMA = DATABASE() AND c.TABLE_NAME = ` + placeholder(c.driver, 1) + `
			ORDER BY c.ORDINAL_POSITION`
	} else {
		query = `SELECT c.column_name,
				CASE WHEN c.data_type = 'character varying' AND c.character_maximum_length IS NOT NULL
					THEN 'varchar(' || c.character_maximum_length || ')' ELSE c.data_type END,
				EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage k
						ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
					WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = c.table_name
						AND tc.table_schema = c.table_schema AND k.column_name = c.column_name
				)
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = ` + placeholder(c.driver, 1) + `
			ORDER BY c.ordinal_position`
	}

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		if err := rows.Scan(&ci.Name, &ci.Type, &ci.PrimaryKey); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		cols = append(cols, ci)
	}
	return cols, rows.Err()
}

func (c *sqlConnector) WriteTable(ctx context.Context, table string, fields *metadata.FieldList, rows [][]any, replace bool) (int, error) {
	if fields.Len() == 0 {
		return 0, fmt.Errorf("write %s: %w: no fields", table, metadata.ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	quoted := quoteIdent(c.driver, table)
	if replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
			return 0, fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, c.createTableSQL(table, fields)); err != nil {
		return 0, fmt.Errorf("create %s: %w", table, err)
	}

	cols := make([]string, fields.Len())
	binds := make([]string, fields.Len())
	for i, name := range fields.Names() {
		cols[i] = quoteIdent(c.driver, name)
		binds[i] = placeholder(c.driver, i+1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoted, strings.Join(cols, ", "), strings.Join(binds, ", ")))
	if err != nil {
		return 0, fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != fields.Len() {
			return 0, fmt.Errorf("write %s: row %d: %w: has %d values, schema has %d",
				table, i, metadata.ErrInvalidArgument, len(row), fields.Len())
		}
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = bindValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert into %s row %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	level.Debug(c.logger).Log("msg", "wrote table", "table", table, "rows", len(rows), "replace", replace)
	return len(rows), nil
}

func (c *sqlConnector) createTableSQL(table string, fields *metadata.FieldList) string {
	defs := make([]string, 0, fields.Len())
	for _, f := range fields.Slice() {
		defs = append(defs, quoteIdent(c.driver, f.Name)+" "+SQLTypeFor(c.driver, f))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(c.driver, table), strings.Join(defs, ", "))
}

// bindValue encodes values database/sql can not bind directly.
func bindValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
	return v
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.activeRows != nil {
		c.activeRows.Close()
		c.activeRows = nil
	}
}
