package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// pragmas applied to every handle OpenDB returns. WAL lets catalog reads
// proceed while the job queue writes; foreign keys back the order lines.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// OpenDB opens the workspace's SQLite file through otelsql, so every query
// issued by the persistence backend and by River is traced and the
// connection pool is exported as metrics.
func OpenDB(dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", dataSourceName,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	// The handle is shared between the backend and the job queue; SQLite
	// serializes writers, so a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	); err != nil {
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}
