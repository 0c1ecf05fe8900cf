package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/dbclient"
	"datapipe/internal/domain"
	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, typ string, cfg etl.SourceConfig) (*metadata.FieldList, []etl.Row) {
	t.Helper()
	src, err := etl.GetSource(typ)
	require.NoError(t, err)

	fields, err := src.Discover(context.Background(), cfg)
	require.NoError(t, err)

	rowCh, errCh := src.Read(context.Background(), cfg)
	var rows []etl.Row
	for row := range rowCh {
		require.Len(t, row, fields.Len())
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	return fields, rows
}

func storageTypes(fields *metadata.FieldList) []metadata.StorageType {
	var out []metadata.StorageType
	for _, f := range fields.Slice() {
		out = append(out, f.StorageType)
	}
	return out
}

// ─────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────

func TestRegisteredSources(t *testing.T) {
	var types []string
	for _, spec := range etl.ListSources() {
		types = append(types, spec.Type)
	}
	assert.Equal(t, []string{"csv_file", "database", "http", "json_file"}, types)
}

// ─────────────────────────────────────────────────────────────
// CSV
// ─────────────────────────────────────────────────────────────

func TestCSVSource(t *testing.T) {
	path := writeFile(t, "people.csv", "id,name,score,active\n1,alice,9.5,true\n2,bob,,false\n3,carol,7,true\n")

	fields, rows := readAll(t, "csv_file", etl.SourceConfig{"filePath": path})
	assert.Equal(t, []string{"id", "name", "score", "active"}, fields.Names())
	assert.Equal(t, []metadata.StorageType{
		metadata.StorageInteger, metadata.StorageString, metadata.StorageNumber, metadata.StorageBoolean,
	}, storageTypes(fields))
	assert.Equal(t, []etl.Row{
		{int64(1), "alice", 9.5, true},
		{int64(2), "bob", nil, false},
		{int64(3), "carol", 7.0, true},
	}, rows)
}

func TestCSVSource_NoHeader(t *testing.T) {
	path := writeFile(t, "plain.csv", "a;1\nb;2\n")

	fields, rows := readAll(t, "csv_file", etl.SourceConfig{"filePath": path, "delimiter": ";", "hasHeader": "false"})
	assert.Equal(t, []string{"col_1", "col_2"}, fields.Names())
	assert.Equal(t, []etl.Row{{"a", int64(1)}, {"b", int64(2)}}, rows)
}

func TestCSVSource_MixedColumn(t *testing.T) {
	path := writeFile(t, "mixed.csv", "code\n007\nA1\n")

	fields, rows := readAll(t, "csv_file", etl.SourceConfig{"filePath": path})
	assert.Equal(t, []metadata.StorageType{metadata.StorageUnknown}, storageTypes(fields))
	assert.Equal(t, []etl.Row{{"007"}, {"A1"}}, rows)
}

func TestCSVSource_Errors(t *testing.T) {
	src, err := etl.GetSource("csv_file")
	require.NoError(t, err)

	_, err = src.Discover(context.Background(), etl.SourceConfig{})
	assert.Error(t, err)

	_, err = src.Discover(context.Background(), etl.SourceConfig{"filePath": writeFile(t, "empty.csv", "")})
	assert.Error(t, err)

	_, err = src.Discover(context.Background(), etl.SourceConfig{"filePath": writeFile(t, "dup.csv", "a,a\n1,2\n")})
	assert.ErrorIs(t, err, metadata.ErrDuplicateField)
}

// ─────────────────────────────────────────────────────────────
// JSON
// ─────────────────────────────────────────────────────────────

const nestedJSON = `{"data": {"items": [
	{"b": 1, "a": "x"},
	{"a": "y", "c": {"k": true}, "b": 2.5, "d": [1, 2]}
]}}`

func TestJSONSource(t *testing.T) {
	path := writeFile(t, "items.json", nestedJSON)

	fields, rows := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "data.items"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, fields.Names())
	assert.Equal(t, []metadata.StorageType{
		metadata.StorageString, metadata.StorageNumber, metadata.StorageObject, metadata.StorageArray,
	}, storageTypes(fields))
	require.Len(t, rows, 2)
	assert.Equal(t, etl.Row{"x", int64(1), nil, nil}, rows[0])
	assert.Equal(t, etl.Row{"y", 2.5, map[string]any{"k": true}, []any{int64(1), int64(2)}}, rows[1])
}

func TestJSONSource_BadPath(t *testing.T) {
	src, err := etl.GetSource("json_file")
	require.NoError(t, err)

	path := writeFile(t, "items.json", nestedJSON)
	_, err = src.Discover(context.Background(), etl.SourceConfig{"filePath": path, "dataPath": "data.missing"})
	assert.Error(t, err)

	_, err = src.Discover(context.Background(), etl.SourceConfig{"filePath": writeFile(t, "scalars.json", "[1, 2]")})
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────
// HTTP
// ─────────────────────────────────────────────────────────────

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "login": "ana"}, {"id": 2, "login": "bo"}]`))
	}))
	defer srv.Close()

	cfg := etl.SourceConfig{"url": srv.URL, "headers": map[string]any{"Authorization": "Bearer token"}}
	fields, rows := readAll(t, "http", cfg)
	assert.Equal(t, []string{"id", "login"}, fields.Names())
	assert.Equal(t, []etl.Row{{int64(1), "ana"}, {int64(2), "bo"}}, rows)

	src, err := etl.GetSource("http")
	require.NoError(t, err)
	_, err = src.Discover(context.Background(), etl.SourceConfig{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
}

// ─────────────────────────────────────────────────────────────
// Database
// ─────────────────────────────────────────────────────────────

type sqliteProvider struct{ path string }

func (p sqliteProvider) Open(_ context.Context, name string) (dbclient.Connector, error) {
	if name != "local" {
		return nil, errors.New("unknown connection " + name)
	}
	return dbclient.NewConnector(&domain.DatabaseConnection{
		Name:   name,
		Driver: domain.DatabaseDriverSQLite,
		Host:   p.path,
	}, nil)
}

func seedSQLite(t *testing.T, rows int) sqliteProvider {
	t.Helper()
	p := sqliteProvider{path: filepath.Join(t.TempDir(), "source.db")}
	conn, err := p.Open(context.Background(), "local")
	require.NoError(t, err)
	defer conn.Close()

	fields, err := metadata.FieldListOf(
		[]any{"id", "integer"},
		[]any{"name", "string"},
		[]any{"price", "number"},
	)
	require.NoError(t, err)
	values := make([][]any, rows)
	for i := range values {
		values[i] = []any{int64(i + 1), string(rune('a' + i%26)), float64(i) + 0.5}
	}
	_, err = conn.WriteTable(context.Background(), "items", fields, values, true)
	require.NoError(t, err)

	SetDBProvider(p)
	t.Cleanup(func() { SetDBProvider(nil) })
	return p
}

func TestDatabaseSource(t *testing.T) {
	seedSQLite(t, 3)

	cfg := etl.SourceConfig{"connection": "local", "query": "SELECT id, name, price, price * 2 AS doubled FROM items ORDER BY id"}
	fields, rows := readAll(t, "database", cfg)
	assert.Equal(t, []string{"id", "name", "price", "doubled"}, fields.Names())
	assert.Equal(t, []metadata.StorageType{
		metadata.StorageInteger, metadata.StorageText, metadata.StorageNumber, metadata.StorageNumber,
	}, storageTypes(fields))

	id, err := fields.Field("id")
	require.NoError(t, err)
	ct, ok := id.ConcreteStorageType.(dbclient.ColumnType)
	require.True(t, ok)
	assert.Equal(t, domain.DatabaseDriverSQLite, ct.Driver)

	assert.Equal(t, []etl.Row{
		{int64(1), "a", 0.5, 1.0},
		{int64(2), "b", 1.5, 3.0},
		{int64(3), "c", 2.5, 5.0},
	}, rows)
}

func TestDatabaseSource_Paging(t *testing.T) {
	seedSQLite(t, discoverSampleSize+readPageSize+7)

	_, rows := readAll(t, "database", etl.SourceConfig{"connection": "local", "query": "SELECT id FROM items ORDER BY id"})
	require.Len(t, rows, discoverSampleSize+readPageSize+7)
	assert.Equal(t, int64(discoverSampleSize+readPageSize+7), rows[len(rows)-1][0])
}

func TestDatabaseSource_Errors(t *testing.T) {
	src, err := etl.GetSource("database")
	require.NoError(t, err)

	SetDBProvider(nil)
	_, err = src.Discover(context.Background(), etl.SourceConfig{"connection": "local", "query": "SELECT 1"})
	assert.Error(t, err)

	seedSQLite(t, 1)
	_, err = src.Discover(context.Background(), etl.SourceConfig{"connection": "other", "query": "SELECT 1"})
	assert.Error(t, err)

	_, err = src.Discover(context.Background(), etl.SourceConfig{"connection": "local", "query": "DELETE FROM items"})
	assert.ErrorIs(t, err, metadata.ErrInvalidArgument)
}
