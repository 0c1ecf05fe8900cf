package dbclient

import (
	"github.com/go-kit/log"

	"datapipe/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(conn *domain.DatabaseConnection, logger log.Logger) (*sqlConnector, error) {
	dsn := conn.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return newSQLConnector(domain.DatabaseDriverSQLite, dsn, logger)
}
