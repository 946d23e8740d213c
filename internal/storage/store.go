package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/agencydesk/agencydesk/internal/crypto"
	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout   = 5 * time.Second
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
	defaultAdminFullName = "Administrator"
	maxOpenConns         = 4
	maxIdleConns         = 2
)

// Options tunes Open. The zero value is usable: it hashes with the default
// Argon2 parameters, seeds admin/admin123 and logs nowhere.
type Options struct {
	Logger               *slog.Logger
	Hasher               *crypto.PasswordHasher
	DefaultAdminUsername string
	DefaultAdminPassword string
	BusyTimeout          time.Duration
}

// Store is the persistence façade. It is constructed explicitly and handed
// to callers; there is no package-level instance.
type Store struct {
	db     *sql.DB
	path   string
	opts   Options
	logger *slog.Logger

	Users      UserRepository
	Employees  EmployeeRepository
	Customers  CustomerRepository
	Properties PropertyRepository
	Contracts  ContractRepository
	Payments   DownPaymentRepository
	Expenses   ExpenseRepository
	Company    CompanyRepository
}

// Open creates the database file and its parent directory when absent,
// applies pending migrations and seeds the default administrator when the
// users table is empty. Opening an initialized database performs no writes.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open storage: empty path")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Hasher == nil {
		hasher, err := crypto.NewPasswordHasher(crypto.DefaultArgon2Params())
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		opts.Hasher = hasher
	}
	if opts.DefaultAdminUsername == "" {
		opts.DefaultAdminUsername = DefaultAdminUsername
	}
	if opts.DefaultAdminPassword == "" {
		opts.DefaultAdminPassword = DefaultAdminPassword
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open storage: create parent dir: %w", err)
	}

	db, err := openDB(ctx, path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:     db,
		path:   path,
		opts:   opts,
		logger: opts.Logger.With("component", "storage"),
	}
	store.bind(db)

	if err := store.seedDefaultAdmin(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func openDB(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if err := RunMigrations(ctx, db, DefaultMigrations()); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("set db file permissions: %w", err)
	}
	return db, nil
}

func (s *Store) bind(db *sql.DB) {
	s.Users = &userRepository{db: db}
	s.Employees = &employeeRepository{db: db}
	s.Customers = &customerRepository{db: db}
	s.Properties = &propertyRepository{db: db, logger: s.logger}
	s.Contracts = &contractRepository{db: db}
	s.Payments = &downPaymentRepository{db: db}
	s.Expenses = &expenseRepository{db: db}
	s.Company = &companyRepository{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// dataSourceName applies the pragmas on every pooled connection. The
// rollback journal keeps the main file complete between transactions, which
// raw file-copy backups rely on.
func dataSourceName(path string, busyTimeout time.Duration) string {
	return path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(DELETE)" +
		"&_pragma=busy_timeout(" + strconv.FormatInt(busyTimeout.Milliseconds(), 10) + ")"
}
