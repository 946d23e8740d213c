package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplaceFileSwapsDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	mustCreateCustomer(t, store, "Before Snapshot")
	snapshot := filepath.Join(t.TempDir(), "snapshot.db")
	copyFile(t, store.Path(), snapshot)
	mustCreateCustomer(t, store, "After Snapshot")
	closeStoreNoErr(t, store)

	require.NoError(t, ReplaceFile(ctx, store.Path(), snapshot, time.Second))
	requireNoSwapLeftovers(t, store.Path())

	live, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	want, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	require.Equal(t, want, live)

	reopened, err := Open(ctx, store.Path(), Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	defer closeStoreNoErr(t, reopened)
	list, err := reopened.Customers.List(ctx, PersonFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Before Snapshot", list[0].FullName)
}

func TestReplaceFileRejectsNewerSchemaAndKeepsLiveFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	mustCreateCustomer(t, store, "Live Customer")
	closeStoreNoErr(t, store)
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	future := filepath.Join(t.TempDir(), "future.db")
	db, err := sql.Open("sqlite", future)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))
	_, err = db.Exec(`UPDATE app_meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion()+1)
	require.NoError(t, err)
	closeNoErr(t, db)

	err = ReplaceFile(ctx, store.Path(), future, time.Second)
	require.ErrorIs(t, err, ErrSchemaTooNew)
	requireNoSwapLeftovers(t, store.Path())

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, before, after)

	reopened, err := Open(ctx, store.Path(), Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	defer closeStoreNoErr(t, reopened)
	list, err := reopened.Customers.List(ctx, PersonFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Live Customer", list[0].FullName)
}

func TestReplaceFileMissingSourceLeavesLiveFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	closeStoreNoErr(t, store)
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	err = ReplaceFile(context.Background(), store.Path(), filepath.Join(t.TempDir(), "absent.db"), time.Second)
	require.ErrorIs(t, err, os.ErrNotExist)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, before, after)
	requireNoSwapLeftovers(t, store.Path())
}

func TestReplaceFilePutsPreviousFileBackOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	live := filepath.Join(dir, "agency.db")
	junk := []byte("not sqlite at all")
	require.NoError(t, os.WriteFile(live, junk, 0o600))

	notes := filepath.Join(t.TempDir(), "notes.db")
	require.NoError(t, os.WriteFile(notes, []byte("also not sqlite"), 0o600))

	require.Error(t, ReplaceFile(ctx, live, notes, time.Second))
	got, err := os.ReadFile(live)
	require.NoError(t, err)
	require.Equal(t, junk, got)
	requireNoSwapLeftovers(t, live)

	good := filepath.Join(t.TempDir(), "good.db")
	store, err := Open(ctx, good, Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	mustCreateCustomer(t, store, "From Backup")
	closeStoreNoErr(t, store)

	require.NoError(t, ReplaceFile(ctx, live, good, time.Second))
	requireNoSwapLeftovers(t, live)
	store, err = Open(ctx, live, Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	defer closeStoreNoErr(t, store)
	list, err := store.Customers.List(ctx, PersonFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReplaceFileCreatesMissingLiveFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newTestStore(t)
	require.NoError(t, source.Close())

	live := filepath.Join(t.TempDir(), "nested", "agency.db")
	require.NoError(t, ReplaceFile(ctx, live, source.Path(), time.Second))

	got, err := os.ReadFile(live)
	require.NoError(t, err)
	want, err := os.ReadFile(source.Path())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestWithFileLockNeverCreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.db")
	called := false
	err := WithFileLock(context.Background(), path, time.Second, func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
	_, statErr := os.Stat(path)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestWithFileLockReportsBusyWriter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	conn, err := store.DB().Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.NoError(t, err)
	defer func() { _, _ = conn.ExecContext(ctx, `ROLLBACK`) }()

	called := false
	err = WithFileLock(ctx, store.Path(), 50*time.Millisecond, func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrBusy)
	require.False(t, called)
}

func requireNoSwapLeftovers(t *testing.T, path string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), replacedSuffix)
		require.NotContains(t, entry.Name(), ".restore-")
	}
}
