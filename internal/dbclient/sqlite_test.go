package dbclient

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

func openTestSQLite(t *testing.T) Connector {
	t.Helper()
	conn, err := NewConnector(&domain.DatabaseConnection{
		Name:   "test",
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSQLiteExecuteAndFetch(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)
	require.NoError(t, conn.TestConnection(ctx))

	page, err := conn.Execute(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name VARCHAR(20), price REAL)", 0)
	require.NoError(t, err)
	assert.True(t, page.IsWrite)

	page, err = conn.Execute(ctx, "INSERT INTO items (name, price) VALUES ('a', 1.5), ('b', 2.5), ('c', 3.5)", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.AffectedRows)

	page, err = conn.Execute(ctx, "SELECT id, name, price FROM items ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price"}, page.Columns)
	assert.Len(t, page.ColumnTypes, 3)
	assert.Len(t, page.Rows, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, []any{int64(1), "a", 1.5}, page.Rows[0])

	page, err = conn.FetchMore(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, 3, page.TotalFetched)

	_, err = conn.FetchMore(ctx, 2)
	require.ErrorIs(t, err, ErrNoCursor)
}

func TestSQLiteDescribe(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	_, err := conn.Execute(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name VARCHAR(20), price REAL, notes TEXT)", 0)
	require.NoError(t, err)

	fields, err := conn.Describe(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price", "notes"}, fields.Names())

	name, err := fields.Field("name")
	require.NoError(t, err)
	assert.Equal(t, metadata.StorageString, name.StorageType)
	assert.Equal(t, 20, name.Size)
	assert.Equal(t, ColumnType{Driver: domain.DatabaseDriverSQLite, Name: "VARCHAR(20)"}, name.ConcreteStorageType)

	id, err := fields.Field("id")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"primary_key": true}, id.Info)

	_, err = conn.Describe(ctx, "missing")
	require.ErrorIs(t, err, ErrNoSuchTable)

	schema, err := conn.Introspect(ctx)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "items", schema.Tables[0].Name)
	assert.Len(t, schema.Tables[0].Columns, 4)
}

func TestSQLiteWriteTable(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	fields, err := metadata.FieldListOf(
		[]any{"region", "string"},
		[]any{"total", "number"},
		[]any{"tags", "array"},
	)
	require.NoError(t, err)

	n, err := conn.WriteTable(ctx, "totals", fields, [][]any{
		{"north", 10.5, []any{"a"}},
		{"south", 4.0, nil},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = conn.WriteTable(ctx, "totals", fields, [][]any{{"east", 1.0, nil}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := conn.Execute(ctx, "SELECT region, total, tags FROM totals ORDER BY region", 10)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"east", 1.0, nil},
		{"north", 10.5, `["a"]`},
		{"south", 4.0, nil},
	}, page.Rows)

	n, err = conn.WriteTable(ctx, "totals", fields, [][]any{{"west", 2.0, nil}}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	page, err = conn.Execute(ctx, "SELECT count(*) FROM totals", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Rows[0][0])

	_, err = conn.WriteTable(ctx, "totals", fields, [][]any{{"short"}}, false)
	require.ErrorIs(t, err, metadata.ErrInvalidArgument)
}
