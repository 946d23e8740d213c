package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestBackupService(t *testing.T, store *storage.Store, at ...time.Time) *BackupService {
	t.Helper()
	return newPathBackupService(t, store.Path(), at...)
}

func newPathBackupService(t *testing.T, dbPath string, at ...time.Time) *BackupService {
	t.Helper()
	svc := NewBackupService(dbPath, filepath.Join(t.TempDir(), "Backups"), BackupOptions{})
	if len(at) > 0 {
		i := 0
		svc.now = func() time.Time {
			current := at[min(i, len(at)-1)]
			i++
			return current
		}
	}
	return svc
}

func openAppTestStore(t *testing.T, path string) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), path, storage.Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBackupCreateNamesFileFromLabelAndTime(t *testing.T) {
	t.Parallel()

	store := newAppTestStore(t)
	at := time.Date(2024, 7, 4, 18, 5, 9, 0, time.Local)
	svc := newTestBackupService(t, store, at)

	info, err := svc.Create(context.Background(), " nightly run! ")
	require.NoError(t, err)
	require.Equal(t, "nightly_run_20240704_180509.db", info.Name)
	require.Equal(t, filepath.Join(svc.Dir(), info.Name), info.Path)
	require.Len(t, info.SHA256, 64)

	live, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	copied, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	require.Equal(t, live, copied)
	require.Equal(t, int64(len(live)), info.SizeBytes)

	second, err := svc.Create(context.Background(), "nightly run")
	require.NoError(t, err)
	require.Equal(t, "nightly_run_20240704_180509_1.db", second.Name)

	unlabeled, err := svc.Create(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "20240704_180509.db", unlabeled.Name)
}

func TestBackupCreateFailsWhenDatabaseMissing(t *testing.T) {
	t.Parallel()

	store := newAppTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, os.Remove(store.Path()))

	svc := newTestBackupService(t, store)
	_, err := svc.Create(context.Background(), "")
	require.ErrorIs(t, err, ErrDatabaseMissing)
}

func TestBackupRestoreRoundTripIsByteIdentical(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	svc := newTestBackupService(t, store,
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local),
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local),
	)

	mustCustomer(t, store, "Kept")
	backup, err := svc.Create(ctx, "manual")
	require.NoError(t, err)
	backupBytes, err := os.ReadFile(backup.Path)
	require.NoError(t, err)

	mustCustomer(t, store, "Added After Backup")
	customers, err := store.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.NoError(t, store.Close())

	preRestore, err := svc.Restore(ctx, backup.Path, AlwaysConfirm)
	require.NoError(t, err)
	require.NotNil(t, preRestore)
	require.True(t, strings.HasPrefix(preRestore.Name, "pre_restore_"))
	_, err = os.Stat(preRestore.Path)
	require.NoError(t, err)

	live, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, backupBytes, live)

	restored := openAppTestStore(t, store.Path())
	customers, err = restored.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "Kept", customers[0].FullName)
	require.NoError(t, restored.Close())

	snapshot := openAppTestStore(t, preRestore.Path)
	customers, err = snapshot.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 2)
}

func TestBackupRestoreDeclinedChangesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	svc := newTestBackupService(t, store)

	backup, err := svc.Create(ctx, "before")
	require.NoError(t, err)
	mustCustomer(t, store, "Unsaved")

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var prompted string
	decline := ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		prompted = prompt
		return false, nil
	})
	_, err = svc.Restore(ctx, backup.Path, decline)
	require.ErrorIs(t, err, ErrRestoreDeclined)
	require.Contains(t, prompted, backup.Name)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, before, after)

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	_, err = svc.Restore(ctx, backup.Path, nil)
	require.ErrorIs(t, err, ErrRestoreDeclined)
}

func TestBackupRestoreMissingFile(t *testing.T) {
	t.Parallel()

	store := newAppTestStore(t)
	svc := newTestBackupService(t, store)

	called := false
	confirm := ConfirmFunc(func(context.Context, string) (bool, error) {
		called = true
		return true, nil
	})
	_, err := svc.Restore(context.Background(), filepath.Join(t.TempDir(), "absent.db"), confirm)
	require.ErrorIs(t, err, ErrBackupNotFound)
	require.False(t, called)
}

func TestBackupListNewestFirstAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	svc := newTestBackupService(t, store,
		time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local),
		time.Date(2024, 3, 3, 8, 0, 0, 0, time.Local),
		time.Date(2024, 3, 2, 8, 0, 0, 0, time.Local),
	)

	for _, label := range []string{"first", "third", "second"} {
		_, err := svc.Create(ctx, label)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(svc.Dir(), "notes.txt"), []byte("ignored"), 0o600))

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	require.Equal(t, []string{
		"third_20240303_080000.db",
		"second_20240302_080000.db",
		"first_20240301_080000.db",
	}, []string{backups[0].Name, backups[1].Name, backups[2].Name})

	removed, err := svc.Prune(ctx, 1)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	backups, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, "third_20240303_080000.db", backups[0].Name)

	_, err = svc.Prune(ctx, -1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestBackupListMissingDirectoryIsEmpty(t *testing.T) {
	t.Parallel()

	store := newAppTestStore(t)
	svc := newTestBackupService(t, store)

	backups, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, backups)
}

func TestBackupRestoreOverCorruptLiveFileKeepsItsBytes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	mustCustomer(t, store, "Recovered")
	dbPath := store.Path()
	svc := newPathBackupService(t, dbPath,
		time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local),
		time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local),
	)
	backup, err := svc.Create(ctx, "good")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	garbage := []byte("definitely not SQLite: the disk ate this file")
	require.NoError(t, os.WriteFile(dbPath, garbage, 0o600))
	_, err = storage.Open(ctx, dbPath, storage.Options{Hasher: newTestHasher(t)})
	require.Error(t, err)

	preRestore, err := svc.Restore(ctx, backup.Path, AlwaysConfirm)
	require.NoError(t, err)
	require.NotNil(t, preRestore)
	saved, err := os.ReadFile(preRestore.Path)
	require.NoError(t, err)
	require.Equal(t, garbage, saved)

	reopened := openAppTestStore(t, dbPath)
	customers, err := reopened.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "Recovered", customers[0].FullName)
}

func TestBackupRestoreWithoutLiveFileSkipsPreRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	dbPath := store.Path()
	svc := newPathBackupService(t, dbPath)
	backup, err := svc.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, os.Remove(dbPath))

	preRestore, err := svc.Restore(ctx, backup.Path, AlwaysConfirm)
	require.NoError(t, err)
	require.Nil(t, preRestore)

	live, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	want, err := os.ReadFile(backup.Path)
	require.NoError(t, err)
	require.Equal(t, want, live)

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestBackupRestoreRejectsNonDatabaseThenRestoresPreRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newAppTestStore(t)
	mustCustomer(t, store, "Original")
	dbPath := store.Path()
	require.NoError(t, store.Close())
	svc := newPathBackupService(t, dbPath,
		time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local),
		time.Date(2024, 6, 1, 9, 5, 0, 0, time.Local),
	)
	before, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	notes := filepath.Join(t.TempDir(), "notes.db")
	require.NoError(t, os.WriteFile(notes, []byte("quarterly notes"), 0o600))

	preRestore, err := svc.Restore(ctx, notes, AlwaysConfirm)
	require.Error(t, err)
	require.NotNil(t, preRestore)

	after, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	require.Equal(t, before, after)

	live := openAppTestStore(t, dbPath)
	customers, err := live.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	mustCustomer(t, live, "Added After Failed Restore")
	require.NoError(t, live.Close())

	_, err = svc.Restore(ctx, preRestore.Path, AlwaysConfirm)
	require.NoError(t, err)

	live = openAppTestStore(t, dbPath)
	customers, err = live.Customers.List(ctx, storage.PersonFilter{})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "Original", customers[0].FullName)
}

func TestBackupRestoreRequiresPaths(t *testing.T) {
	t.Parallel()

	svc := NewBackupService("", t.TempDir(), BackupOptions{})
	_, err := svc.Restore(context.Background(), "x.db", AlwaysConfirm)
	require.ErrorIs(t, err, ErrValidation)

	svc = NewBackupService(filepath.Join(t.TempDir(), "agencydesk.db"), " ", BackupOptions{})
	_, err = svc.Create(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)
}
