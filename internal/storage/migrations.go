package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

const schemaVersionMetaKey = "schema_version"

type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

var defaultMigrations = []Migration{
	{
		Version:     1,
		Description: "create entity tables",
		Up: func(tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					username TEXT NOT NULL UNIQUE COLLATE NOCASE,
					password_hash TEXT NOT NULL,
					full_name TEXT NOT NULL,
					email TEXT,
					is_admin INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					last_login_at TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS employees (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					full_name TEXT NOT NULL,
					phone TEXT,
					email TEXT,
					position TEXT,
					salary TEXT NOT NULL DEFAULT '0',
					join_date TEXT NOT NULL,
					status TEXT NOT NULL,
					note TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS customers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					full_name TEXT NOT NULL,
					phone TEXT,
					email TEXT,
					id_number TEXT,
					address TEXT,
					note TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS properties (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					listing_code TEXT NOT NULL,
					type TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT,
					address TEXT,
					city TEXT,
					area TEXT NOT NULL DEFAULT '0',
					price TEXT NOT NULL DEFAULT '0',
					rooms INTEGER,
					bathrooms INTEGER,
					floor INTEGER,
					total_floors INTEGER,
					built_year INTEGER,
					status TEXT NOT NULL,
					employee_id INTEGER,
					source_url TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					FOREIGN KEY(employee_id) REFERENCES employees(id)
				)`,
				`CREATE TABLE IF NOT EXISTS property_images (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					file_path TEXT NOT NULL,
					is_main INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL,
					FOREIGN KEY(property_id) REFERENCES properties(id)
				)`,
				`CREATE TABLE IF NOT EXISTS contracts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					property_id INTEGER NOT NULL,
					customer_id INTEGER NOT NULL,
					employee_id INTEGER NOT NULL,
					contract_number TEXT NOT NULL,
					contract_type TEXT NOT NULL,
					amount TEXT NOT NULL,
					start_date TEXT NOT NULL,
					sign_date TEXT NOT NULL,
					end_date TEXT,
					status TEXT NOT NULL,
					note TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					FOREIGN KEY(property_id) REFERENCES properties(id),
					FOREIGN KEY(customer_id) REFERENCES customers(id),
					FOREIGN KEY(employee_id) REFERENCES employees(id)
				)`,
				`CREATE TABLE IF NOT EXISTS down_payments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					contract_id INTEGER NOT NULL,
					amount TEXT NOT NULL,
					payment_date TEXT NOT NULL,
					method TEXT NOT NULL,
					payment_type TEXT,
					payment_number TEXT,
					note TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					FOREIGN KEY(contract_id) REFERENCES contracts(id)
				)`,
				`CREATE TABLE IF NOT EXISTS expenses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category TEXT NOT NULL,
					description TEXT,
					amount TEXT NOT NULL,
					expense_date TEXT NOT NULL,
					employee_id INTEGER,
					property_id INTEGER,
					status TEXT NOT NULL,
					note TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					FOREIGN KEY(employee_id) REFERENCES employees(id),
					FOREIGN KEY(property_id) REFERENCES properties(id)
				)`,
				`CREATE TABLE IF NOT EXISTS company_info (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					name TEXT NOT NULL,
					address TEXT,
					phone TEXT,
					email TEXT,
					website TEXT,
					tax_number TEXT,
					logo_path TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
			}
			for _, stmt := range statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("apply migration v1 statement: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "add reference and ordering indexes",
		Up: func(tx *sql.Tx) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_properties_employee_id ON properties(employee_id)`,
				`CREATE INDEX IF NOT EXISTS idx_properties_updated_at ON properties(updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_property_images_property_id ON property_images(property_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contracts_property_id ON contracts(property_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contracts_customer_id ON contracts(customer_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contracts_employee_id ON contracts(employee_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contracts_sign_date ON contracts(sign_date)`,
				`CREATE INDEX IF NOT EXISTS idx_down_payments_contract_id ON down_payments(contract_id)`,
				`CREATE INDEX IF NOT EXISTS idx_expenses_employee_id ON expenses(employee_id)`,
				`CREATE INDEX IF NOT EXISTS idx_expenses_property_id ON expenses(property_id)`,
				`CREATE INDEX IF NOT EXISTS idx_expenses_expense_date ON expenses(expense_date)`,
			}
			for _, stmt := range statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("apply migration v2 statement: %w", err)
				}
			}
			return nil
		},
	},
}

func DefaultMigrations() []Migration {
	out := make([]Migration, len(defaultMigrations))
	copy(out, defaultMigrations)
	return out
}

func CurrentSchemaVersion() int {
	return maxMigrationVersion(defaultMigrations)
}

// RunMigrations applies every migration newer than the recorded schema
// version, each in its own transaction. An up-to-date database is only read.
func RunMigrations(ctx context.Context, db *sql.DB, migrations []Migration) error {
	if db == nil {
		return fmt.Errorf("run migrations: db is nil")
	}

	if err := ensureMigrationTables(ctx, db); err != nil {
		return err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	current, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	maxVersion := maxMigrationVersion(ordered)
	if current > maxVersion {
		return fmt.Errorf("%w: db=%d code=%d", ErrSchemaTooNew, current, maxVersion)
	}

	for _, migration := range ordered {
		if migration.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration v%d (%s): %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_migrations(version, applied_at) VALUES (?, ?)`, migration.Version, fmtTime(nowUTC())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record schema migration v%d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO app_meta(key, value) VALUES(?, ?)`, schemaVersionMetaKey, strconv.Itoa(migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update schema version v%d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", migration.Version, err)
		}
	}

	return nil
}

func ensureMigrationTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS app_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure migration tables: %w", err)
		}
	}
	return nil
}

// readSchemaVersion treats a missing schema_version row as version 0.
func readSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var versionStr string
	err := db.QueryRowContext(ctx, `SELECT value FROM app_meta WHERE key = ?`, schemaVersionMetaKey).Scan(&versionStr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", versionStr, err)
	}
	return version, nil
}

func maxMigrationVersion(migrations []Migration) int {
	max := 0
	for _, migration := range migrations {
		if migration.Version > max {
			max = migration.Version
		}
	}
	return max
}
