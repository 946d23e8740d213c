package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
)

const (
	backupFileExt        = ".db"
	backupTimeLayout     = "20060102_150405"
	preRestoreLabel      = "pre_restore"
	maxBackupNameAttempt = 1000
)

var (
	backupLabelUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	backupNamePattern = regexp.MustCompile(`(\d{8}_\d{6})(?:_\d+)?\.db$`)
)

// BackupService copies the live database file in and out of a backup
// directory. Backups are plain SQLite files that any SQLite tool can open.
// It works on file paths and never opens the live database through
// storage.Open, so a damaged or missing live file can still be restored over.
type BackupService struct {
	dbPath      string
	dir         string
	busyTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// BackupOptions tunes NewBackupService. The zero value waits for the storage
// default busy timeout and logs nowhere.
type BackupOptions struct {
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

func NewBackupService(dbPath, dir string, opts BackupOptions) *BackupService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BackupService{
		dbPath:      dbPath,
		dir:         dir,
		busyTimeout: opts.BusyTimeout,
		logger:      logger.With("component", "backup"),
		now:         time.Now,
	}
}

func (s *BackupService) Dir() string {
	return s.dir
}

// Create copies the live database to <label_>YYYYMMDD_HHMMSS.db while
// holding its write lock. A numeric suffix is added when a backup with the
// same name already exists.
func (s *BackupService) Create(ctx context.Context, label string) (*BackupInfo, error) {
	if err := s.checkPaths(); err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	if _, err := os.Stat(s.dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, s.dbPath)
		}
		return nil, fmt.Errorf("create backup: stat live db: %w", err)
	}
	info, _, err := s.snapshot(ctx, label, s.now())
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	return info, nil
}

// Restore replaces the live database with the backup at path once the
// confirmer agrees. The live file, when there is one, is first saved as a
// pre_restore backup, which is returned. Declining leaves everything
// untouched. A backup that does not open as a current or older agencydesk
// database is rejected and the live file is put back.
func (s *BackupService) Restore(ctx context.Context, path string, confirmer Confirmer) (*BackupInfo, error) {
	if err := s.checkPaths(); err != nil {
		return nil, fmt.Errorf("restore backup: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: backup path is required", ErrValidation)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, path)
		}
		return nil, fmt.Errorf("restore backup: stat backup: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrBackupNotFound, path)
	}

	if confirmer == nil {
		return nil, ErrRestoreDeclined
	}
	prompt := fmt.Sprintf("Restore %s over %s? The current data will be replaced.", filepath.Base(path), s.dbPath)
	ok, err := confirmer.Confirm(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("restore backup: confirm: %w", err)
	}
	if !ok {
		return nil, ErrRestoreDeclined
	}

	preRestore, err := s.savePreRestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore backup: %w", err)
	}

	// Open stores on the old file keep reading it until they are reopened.
	if err := storage.ReplaceFile(ctx, s.dbPath, path, s.busyTimeout); err != nil {
		return preRestore, fmt.Errorf("restore backup: %w", err)
	}

	s.logger.Info("backup restored", "source", path)
	return preRestore, nil
}

// savePreRestore keeps the live file before it is replaced. A live file that
// SQLite cannot lock, because it is damaged or not a database at all, is
// still copied byte for byte. A missing live file yields no backup.
func (s *BackupService) savePreRestore(ctx context.Context) (*BackupInfo, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat live db: %w", err)
	}

	createdAt := s.now()
	info, locked, err := s.snapshot(ctx, preRestoreLabel, createdAt)
	if err == nil {
		return info, nil
	}
	if locked || errors.Is(err, storage.ErrBusy) || ctx.Err() != nil {
		return nil, err
	}

	s.logger.Warn("live database could not be locked, saving a raw copy", "path", s.dbPath, "error", err)
	return s.copyLive(preRestoreLabel, createdAt)
}

// snapshot copies the live file under SQLite's write lock. locked reports
// whether the lock was taken, which tells a failed copy apart from a file
// SQLite refused to open.
func (s *BackupService) snapshot(ctx context.Context, label string, createdAt time.Time) (*BackupInfo, bool, error) {
	var info *BackupInfo
	locked := false
	err := storage.WithFileLock(ctx, s.dbPath, s.busyTimeout, func() error {
		locked = true
		var err error
		info, err = s.copyLive(label, createdAt)
		return err
	})
	if err != nil {
		return nil, locked, err
	}
	return info, true, nil
}

func (s *BackupService) copyLive(label string, createdAt time.Time) (*BackupInfo, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	dst, out, err := s.claimName(backupBaseName(label, createdAt))
	if err != nil {
		return nil, err
	}
	sum, size, err := copyInto(out, s.dbPath)
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	s.logger.Info("backup created", "path", dst, "size_bytes", size)
	return &BackupInfo{
		Name:      filepath.Base(dst),
		Path:      dst,
		CreatedAt: createdAt,
		SizeBytes: size,
		SHA256:    sum,
	}, nil
}

func (s *BackupService) checkPaths() error {
	if s == nil || strings.TrimSpace(s.dbPath) == "" {
		return fmt.Errorf("%w: database path is required", ErrValidation)
	}
	if strings.TrimSpace(s.dir) == "" {
		return fmt.Errorf("%w: backup directory is required", ErrValidation)
	}
	return nil
}

// List returns the backups in the backup directory, newest first. A missing
// directory yields an empty list.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}

	out := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != backupFileExt {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list backups: stat %s: %w", name, err)
		}
		out = append(out, BackupInfo{
			Name:      name,
			Path:      filepath.Join(s.dir, name),
			CreatedAt: backupCreatedAt(name, fi.ModTime()),
			SizeBytes: fi.Size(),
			modTime:   fi.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.After(out[j].modTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Prune deletes all but the newest keep backups and returns what it removed.
func (s *BackupService) Prune(ctx context.Context, keep int) ([]BackupInfo, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: keep must not be negative", ErrValidation)
	}
	backups, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	removed := make([]BackupInfo, 0, len(backups)-keep)
	for _, backup := range backups[keep:] {
		if err := os.Remove(backup.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("prune backups: %w", err)
		}
		removed = append(removed, backup)
	}
	s.logger.Info("backups pruned", "removed", len(removed), "kept", keep)
	return removed, nil
}

// claimName creates the first free backup file derived from base. The file
// is opened exclusively so concurrent backups never share a name.
func (s *BackupService) claimName(base string) (string, *os.File, error) {
	for attempt := 0; attempt < maxBackupNameAttempt; attempt++ {
		name := base + backupFileExt
		if attempt > 0 {
			name = base + "_" + strconv.Itoa(attempt) + backupFileExt
		}
		dst := filepath.Join(s.dir, name)
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return dst, out, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return "", nil, fmt.Errorf("create backup file: %w", err)
	}
	return "", nil, fmt.Errorf("no free backup file name for %s", base)
}

// copyInto copies src into out, closes out and returns the SHA-256 and size
// of what was written.
func copyInto(out *os.File, src string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		_ = out.Close()
		return "", 0, fmt.Errorf("open live db: %w", err)
	}
	defer in.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("copy live db: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

func backupBaseName(label string, at time.Time) string {
	label = strings.Trim(backupLabelUnsafe.ReplaceAllString(strings.TrimSpace(label), "_"), "_-")
	stamp := at.Format(backupTimeLayout)
	if label == "" {
		return stamp
	}
	return label + "_" + stamp
}

func backupCreatedAt(name string, fallback time.Time) time.Time {
	match := backupNamePattern.FindStringSubmatch(name)
	if match == nil {
		return fallback
	}
	at, err := time.ParseInLocation(backupTimeLayout, match[1], time.Local)
	if err != nil {
		return fallback
	}
	return at
}
