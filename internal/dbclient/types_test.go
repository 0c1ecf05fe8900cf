package dbclient

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

func TestStorageTypeForSQL(t *testing.T) {
	tests := map[string]metadata.StorageType{
		"INTEGER":                  metadata.StorageInteger,
		"bigint unsigned":          metadata.StorageInteger,
		"int(11)":                  metadata.StorageInteger,
		"tinyint(1)":               metadata.StorageBoolean,
		"varchar(255)":             metadata.StorageString,
		"character varying":        metadata.StorageString,
		"TEXT":                     metadata.StorageText,
		"numeric(10,2)":            metadata.StorageNumber,
		"double precision":         metadata.StorageNumber,
		"timestamp with time zone": metadata.StorageDatetime,
		"DATE":                     metadata.StorageDate,
		"bytea":                    metadata.StorageBinary,
		"jsonb":                    metadata.StorageObject,
		"_INT4":                    metadata.StorageArray,
		"integer[]":                metadata.StorageArray,
		"":                         metadata.StorageUnknown,
		"NATIVE CHARACTER(70)":     metadata.StorageText,
		"MEDIUMINTEGER":            metadata.StorageInteger,
		"geometry":                 metadata.StorageUnknown,
	}
	for typeName, expected := range tests {
		t.Run(typeName, func(t *testing.T) {
			assert.Equal(t, expected, StorageTypeForSQL(typeName))
		})
	}
}

func TestSQLTypeSize(t *testing.T) {
	assert.Equal(t, 255, sqlTypeSize("VARCHAR(255)"))
	assert.Equal(t, 0, sqlTypeSize("TEXT"))
	assert.Equal(t, 0, sqlTypeSize("numeric(10,2)"))
}

func TestSQLTypeFor(t *testing.T) {
	f := metadata.NewField("amount", metadata.StorageNumber, metadata.AnalyticalUnset)
	assert.Equal(t, "REAL", SQLTypeFor(domain.DatabaseDriverSQLite, f))
	assert.Equal(t, "DOUBLE", SQLTypeFor(domain.DatabaseDriverMySQL, f))
	assert.Equal(t, "DOUBLE PRECISION", SQLTypeFor(domain.DatabaseDriverPostgres, f))

	f.ConcreteStorageType = ColumnType{Driver: domain.DatabaseDriverPostgres, Name: "numeric(12,4)"}
	assert.Equal(t, "numeric(12,4)", SQLTypeFor(domain.DatabaseDriverPostgres, f))
	assert.Equal(t, "DOUBLE", SQLTypeFor(domain.DatabaseDriverMySQL, f))

	name := &metadata.Field{Name: "name", StorageType: metadata.StorageString, Size: 40}
	assert.Equal(t, "VARCHAR(40)", SQLTypeFor(domain.DatabaseDriverMySQL, name))
	assert.Equal(t, "TEXT", SQLTypeFor(domain.DatabaseDriverSQLite, name))

	untyped := &metadata.Field{Name: "x"}
	assert.Equal(t, "TEXT", SQLTypeFor(domain.DatabaseDriverPostgres, untyped))
}

func TestPlaceholderAndQuoting(t *testing.T) {
	assert.Equal(t, "$2", placeholder(domain.DatabaseDriverPostgres, 2))
	assert.Equal(t, "?", placeholder(domain.DatabaseDriverMySQL, 2))
	assert.Equal(t, "`we``ird`", quoteIdent(domain.DatabaseDriverMySQL, "we`ird"))
	assert.Equal(t, `"we""ird"`, quoteIdent(domain.DatabaseDriverSQLite, `we"ird`))
}

func TestBuildDSNs(t *testing.T) {
	conn := &domain.DatabaseConnection{
		Name: "warehouse", Driver: domain.DatabaseDriverMySQL,
		Host: "db.local", Username: "etl", Password: "s3cret", Database: "sales",
	}
	cfg, err := mysql.ParseDSN(buildMySQLDSN(conn))
	require.NoError(t, err)
	assert.Equal(t, "etl", cfg.User)
	assert.Equal(t, "s3cret", cfg.Passwd)
	assert.Equal(t, "db.local:3306", cfg.Addr)
	assert.Equal(t, "sales", cfg.DBName)
	assert.True(t, cfg.ParseTime)

	conn.Password = "with space"
	assert.Equal(t,
		"host=db.local port=5432 user=etl password='with space' dbname=sales sslmode=disable",
		buildPostgresDSN(conn))
}

func TestBuildMongoURI(t *testing.T) {
	uri, db := buildMongoURI(&domain.DatabaseConnection{
		Host: "mongo.local", Username: "app", Password: "pw",
		Options: map[string]string{"replicaSet": "rs0", "authSource": "admin"},
	})
	assert.Equal(t, "mongodb://app:pw@mongo.local:27017/?authSource=admin&replicaSet=rs0", uri)
	assert.Equal(t, "test", db)

	uri, db = buildMongoURI(&domain.DatabaseConnection{
		Host: "mongodb+srv://app:<password>@cluster0.example.net/shop?retryWrites=true", Password: "pw",
	})
	assert.Equal(t, "mongodb+srv://app:pw@cluster0.example.net/shop?retryWrites=true", uri)
	assert.Equal(t, "shop", db)
}
