package dbclient

import (
	"strconv"
	"strings"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

// ColumnType is the concrete storage type of a field read from a database.
// It is only meaningful to the driver that reported it.
type ColumnType struct {
	Driver domain.DatabaseDriver `json:"driver"`
	Name   string                `json:"name"`
}

func (c ColumnType) String() string { return string(c.Driver) + ":" + c.Name }

// sqlStorageTypes maps normalized SQL type names (no length, upper case)
// to storage types.
var sqlStorageTypes = map[string]metadata.StorageType{
	"INT": metadata.StorageInteger, "INTEGER": metadata.StorageInteger,
	"TINYINT": metadata.StorageInteger, "SMALLINT": metadata.StorageInteger,
	"MEDIUMINT": metadata.StorageInteger, "BIGINT": metadata.StorageInteger,
	"INT2": metadata.StorageInteger, "INT4": metadata.StorageInteger, "INT8": metadata.StorageInteger,
	"SERIAL": metadata.StorageInteger, "BIGSERIAL": metadata.StorageInteger,
	"UNSIGNED BIG INT": metadata.StorageInteger,

	"REAL": metadata.StorageNumber, "FLOAT": metadata.StorageNumber,
	"DOUBLE": metadata.StorageNumber, "DOUBLE PRECISION": metadata.StorageNumber,
	"FLOAT4": metadata.StorageNumber, "FLOAT8": metadata.StorageNumber,
	"NUMERIC": metadata.StorageNumber, "DECIMAL": metadata.StorageNumber,
	"MONEY": metadata.StorageNumber,

	"BOOL": metadata.StorageBoolean, "BOOLEAN": metadata.StorageBoolean, "BIT": metadata.StorageBoolean,

	"DATE":      metadata.StorageDate,
	"TIME":      metadata.StorageTime,
	"TIMETZ":    metadata.StorageTime,
	"DATETIME":  metadata.StorageDatetime,
	"TIMESTAMP": metadata.StorageDatetime, "TIMESTAMPTZ": metadata.StorageDatetime,

	"CHAR": metadata.StorageString, "VARCHAR": metadata.StorageString,
	"NCHAR": metadata.StorageString, "NVARCHAR": metadata.StorageString,
	"CHARACTER": metadata.StorageString, "CHARACTER VARYING": metadata.StorageString,
	"BPCHAR": metadata.StorageString, "UUID": metadata.StorageString, "ENUM": metadata.StorageString,

	"TEXT": metadata.StorageText, "CLOB": metadata.StorageText, "TINYTEXT": metadata.StorageText,
	"MEDIUMTEXT": metadata.StorageText, "LONGTEXT": metadata.StorageText,

	"BLOB": metadata.StorageBinary, "BYTEA": metadata.StorageBinary, "BINARY": metadata.StorageBinary,
	"VARBINARY": metadata.StorageBinary, "LONGBLOB": metadata.StorageBinary, "MEDIUMBLOB": metadata.StorageBinary,

	"JSON": metadata.StorageObject, "JSONB": metadata.StorageObject,

	"POINT": metadata.StorageGeopoint,
}

// normalizeSQLType upper-cases a type name and splits off its parenthesized
// arguments: "varchar(255)" gives ("VARCHAR", "255").
func normalizeSQLType(typeName string) (string, string) {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	args := ""
	if open := strings.IndexByte(t, '('); open >= 0 {
		if end := strings.IndexByte(t[open:], ')'); end > 0 {
			args = t[open+1 : open+end]
			t = strings.TrimSpace(t[:open] + t[open+end+1:])
		}
	}
	t = strings.TrimSuffix(t, " UNSIGNED")
	t = strings.TrimSuffix(t, " WITH TIME ZONE")
	t = strings.TrimSuffix(t, " WITHOUT TIME ZONE")
	return t, args
}

// StorageTypeForSQL maps a SQL column type, as reported by the information
// schema, PRAGMA table_info or database/sql, to a storage type.
func StorageTypeForSQL(typeName string) metadata.StorageType {
	t, args := normalizeSQLType(typeName)
	switch {
	case t == "":
		return metadata.StorageUnknown
	case t == "TINYINT" && args == "1":
		return metadata.StorageBoolean
	case strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "_") || t == "ARRAY":
		return metadata.StorageArray
	}
	if st, ok := sqlStorageTypes[t]; ok {
		return st
	}
	// SQLite type affinity rules for declared types outside the table.
	switch {
	case strings.Contains(t, "INT"):
		return metadata.StorageInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return metadata.StorageText
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return metadata.StorageNumber
	}
	return metadata.StorageUnknown
}

// sqlTypeSize returns the length argument of a string type, e.g. 255 for
// VARCHAR(255).
func sqlTypeSize(typeName string) int {
	t, args := normalizeSQLType(typeName)
	if StorageTypeForSQL(t) != metadata.StorageString || args == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return 0
	}
	return n
}

// fieldForColumn builds the field describing a database column.
func fieldForColumn(driver domain.DatabaseDriver, col ColumnInfo) *metadata.Field {
	f := metadata.NewField(col.Name, StorageTypeForSQL(col.Type), metadata.AnalyticalUnset)
	f.ConcreteStorageType = ColumnType{Driver: driver, Name: col.Type}
	f.Size = sqlTypeSize(col.Type)
	if col.PrimaryKey {
		f.Info = map[string]any{"primary_key": true}
	}
	return f
}

// SQLTypeFor returns the column type used to store f with driver. A
// ColumnType recorded by the same driver is reused as is; otherwise the
// type is derived from the storage type.
func SQLTypeFor(driver domain.DatabaseDriver, f *metadata.Field) string {
	if ct, ok := f.ConcreteStorageType.(ColumnType); ok && ct.Driver == driver && ct.Name != "" {
		return ct.Name
	}

	mysql := driver == domain.DatabaseDriverMySQL
	postgres := driver == domain.DatabaseDriverPostgres
	switch f.StorageType {
	case metadata.StorageString:
		switch {
		case mysql:
			return "VARCHAR(" + strconv.Itoa(sizeOr(f.Size, 255)) + ")"
		case postgres && f.Size > 0:
			return "VARCHAR(" + strconv.Itoa(f.Size) + ")"
		}
		return "TEXT"
	case metadata.StorageInteger:
		if mysql || postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case metadata.StorageNumber:
		switch {
		case mysql:
			return "DOUBLE"
		case postgres:
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case metadata.StorageBoolean:
		if mysql || postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	case metadata.StorageDatetime:
		switch {
		case mysql:
			return "DATETIME"
		case postgres:
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	case metadata.StorageDate:
		if mysql || postgres {
			return "DATE"
		}
		return "TEXT"
	case metadata.StorageTime:
		if mysql || postgres {
			return "TIME"
		}
		return "TEXT"
	case metadata.StorageBinary:
		switch {
		case mysql:
			return "LONGBLOB"
		case postgres:
			return "BYTEA"
		}
		return "BLOB"
	case metadata.StorageObject, metadata.StorageArray:
		switch {
		case mysql:
			return "JSON"
		case postgres:
			return "JSONB"
		}
		return "TEXT"
	}
	if mysql {
		return "LONGTEXT"
	}
	return "TEXT"
}

func sizeOr(size, def int) int {
	if size > 0 {
		return size
	}
	return def
}

// placeholder returns the bind parameter for the n-th argument (1-based).
func placeholder(driver domain.DatabaseDriver, n int) string {
	if driver == domain.DatabaseDriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// quoteIdent quotes a table or column name for driver.
func quoteIdent(driver domain.DatabaseDriver, name string) string {
	if driver == domain.DatabaseDriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
