package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
)

var inspectedTables = []string{
	"users",
	"employees",
	"customers",
	"properties",
	"property_images",
	"contracts",
	"down_payments",
	"expenses",
}

// Health describes a database file as found on disk.
type Health struct {
	Path          string         `json:"path"`
	SizeBytes     int64          `json:"size_bytes"`
	SchemaVersion int            `json:"schema_version"`
	Current       bool           `json:"current"`
	Integrity     string         `json:"integrity"`
	Counts        map[string]int `json:"counts"`
}

// Inspect opens path read-only and reports its schema version, the result of
// SQLite's quick_check and per-table row counts. Unlike Open it never creates,
// migrates or seeds the file.
func Inspect(ctx context.Context, path string) (*Health, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect database: %w", err)
	}

	db, err := sql.Open("sqlite", readOnlyDataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("inspect database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	health := &Health{
		Path:      path,
		SizeBytes: info.Size(),
		Counts:    map[string]int{},
	}

	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&health.Integrity); err != nil {
		return nil, fmt.Errorf("inspect database: quick_check: %w", err)
	}

	var metaTables int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'app_meta'`).Scan(&metaTables); err != nil {
		return nil, fmt.Errorf("inspect database: %w", err)
	}
	if metaTables > 0 {
		if health.SchemaVersion, err = readSchemaVersion(ctx, db); err != nil {
			return nil, fmt.Errorf("inspect database: %w", err)
		}
	}
	health.Current = health.SchemaVersion == CurrentSchemaVersion()
	if health.SchemaVersion == 0 {
		return health, nil
	}

	for _, table := range inspectedTables {
		var count int
		// Table names come from the fixed list above.
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("inspect database: count %s: %w", table, err)
		}
		health.Counts[table] = count
	}
	return health, nil
}

func readOnlyDataSourceName(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String() + "?mode=ro&_pragma=busy_timeout(5000)"
}
