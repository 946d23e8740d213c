package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	replaceTempFilePattern = ".restore-*.db"
	replacedSuffix         = ".replaced"
)

// ErrBusy reports that another connection held a write lock for longer than
// the busy timeout.
var ErrBusy = errors.New("database is busy")

// sidecarSuffixes are the files SQLite may keep next to a database. They
// travel with the main file when it is moved aside.
var sidecarSuffixes = []string{"", "-journal", "-wal", "-shm"}

// WithFileLock holds SQLite's reserved lock on the database at path while fn
// runs, so no writer can change the file mid-copy. Readers are not blocked.
// The file is never created, migrated or seeded.
func WithFileLock(ctx context.Context, path string, busyTimeout time.Duration, fn func() error) error {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	db, err := sql.Open("sqlite", lockDataSourceName(path, busyTimeout))
	if err != nil {
		return fmt.Errorf("lock database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("lock database: %w", classifyLockError(err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("lock database: %w", classifyLockError(err))
	}
	fnErr := fn()
	if _, err := conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`); err != nil && fnErr == nil {
		return fmt.Errorf("lock database: release: %w", err)
	}
	return fnErr
}

// ReplaceFile swaps the database at path for a copy of src and checks that
// the result opens and migrates. On failure the previous file, if there was
// one, is put back unchanged.
func ReplaceFile(ctx context.Context, path, src string, busyTimeout time.Duration) error {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	staged, err := stageCopy(path, src)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(staged) }()

	db, err := swapIn(ctx, path, staged, busyTimeout)
	if err != nil {
		return err
	}
	return db.Close()
}

// stageCopy copies src next to path so the final swap is a rename on the
// same file system.
func stageCopy(path, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("replace database: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("replace database: create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+replaceTempFilePattern)
	if err != nil {
		return "", fmt.Errorf("replace database: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("replace database: copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("replace database: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("replace database: close temp file: %w", err)
	}
	return tmpPath, nil
}

// swapIn moves the current database and its sidecar files aside, renames
// staged into place and opens it. The moved files are deleted on success and
// renamed back on failure.
func swapIn(ctx context.Context, path, staged string, busyTimeout time.Duration) (*sql.DB, error) {
	aside := path + replacedSuffix
	moved, err := moveAside(path, aside)
	if err != nil {
		return nil, errors.Join(err, moveBack(path, aside, moved))
	}

	if err := os.Rename(staged, path); err != nil {
		return nil, errors.Join(fmt.Errorf("replace database: rename: %w", err), moveBack(path, aside, moved))
	}

	db, err := openDB(ctx, path, busyTimeout)
	if err != nil {
		rejected := fmt.Errorf("replace database: open replacement: %w", err)
		for _, suffix := range sidecarSuffixes {
			if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, errors.Join(rejected, fmt.Errorf("replace database: remove rejected file: %w", err))
			}
		}
		return nil, errors.Join(rejected, moveBack(path, aside, moved))
	}

	for _, suffix := range moved {
		_ = os.Remove(aside + suffix)
	}
	return db, nil
}

func moveAside(path, aside string) ([]string, error) {
	var moved []string
	for _, suffix := range sidecarSuffixes {
		err := os.Rename(path+suffix, aside+suffix)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("replace database: move %s aside: %w", filepath.Base(path+suffix), err)
		}
		moved = append(moved, suffix)
	}
	return moved, nil
}

func moveBack(path, aside string, moved []string) error {
	var errs []error
	for _, suffix := range moved {
		if err := os.Rename(aside+suffix, path+suffix); err != nil {
			errs = append(errs, fmt.Errorf("replace database: restore %s: %w", filepath.Base(path+suffix), err))
		}
	}
	return errors.Join(errs...)
}

func classifyLockError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

// lockDataSourceName opens an existing file read-write. mode=rw makes a
// missing file an error instead of creating it.
func lockDataSourceName(path string, busyTimeout time.Duration) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String() + "?mode=rw&_pragma=busy_timeout(" + strconv.FormatInt(busyTimeout.Milliseconds(), 10) + ")"
}
