package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/agencydesk/agencydesk/internal/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRunMigrationsAppliesAllSequentially(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	err := RunMigrations(context.Background(), db, DefaultMigrations())
	require.NoError(t, err)

	require.Equal(t, CurrentSchemaVersion(), mustSchemaVersion(t, db))

	expected := []string{
		"app_meta",
		"schema_migrations",
		"users",
		"employees",
		"customers",
		"properties",
		"property_images",
		"contracts",
		"down_payments",
		"expenses",
		"company_info",
	}
	for _, table := range expected {
		require.Truef(t, tableExists(t, db, table), "expected table %s to exist", table)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))
	require.NoError(t, RunMigrations(ctx, db, DefaultMigrations()))

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, len(DefaultMigrations()), applied)
}

func TestRunMigrationsIsAtomic(t *testing.T) {
	t.Parallel()

	db := openRawTestDB(t)
	defer closeNoErr(t, db)

	migrations := []Migration{
		{
			Version:     1,
			Description: "create a",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE test_a (id INTEGER PRIMARY KEY)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "create b then fail",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec(`CREATE TABLE test_b (id INTEGER PRIMARY KEY)`); err != nil {
					return err
				}
				return errors.New("boom")
			},
		},
	}

	err := RunMigrations(context.Background(), db, migrations)
	require.Error(t, err)
	require.Equal(t, 1, mustSchemaVersion(t, db))
	require.True(t, tableExists(t, db, "test_a"))
	require.False(t, tableExists(t, db, "test_b"))
}

func TestOpenRefusesNewerSchemaVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agency.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(context.Background(), db, DefaultMigrations()))
	_, err = db.Exec(`UPDATE app_meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion()+1)
	require.NoError(t, err)
	closeNoErr(t, db)

	store, err := Open(context.Background(), path, Options{Hasher: newTestHasher(t)})
	if store != nil {
		t.Cleanup(func() { _ = store.Close() })
	}
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "agency.db")
	store, err := Open(context.Background(), path, Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	defer closeStoreNoErr(t, store)

	_, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, path, store.Path())
}

func TestOpenEnforcesForeignKeysOnEveryConnection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conns := make([]*sql.Conn, 0, maxOpenConns)
	for i := 0; i < maxOpenConns; i++ {
		conn, err := store.DB().Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&enabled))
		require.Equal(t, 1, enabled)
		require.NoError(t, conn.Close())
	}
}

func TestBootstrapSeedsSingleDefaultAdmin(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agency.db")
	ctx := context.Background()
	hasher := newTestHasher(t)

	store, err := Open(ctx, path, Options{Hasher: hasher})
	require.NoError(t, err)

	users, err := store.Users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	admin := users[0]
	require.Equal(t, DefaultAdminUsername, admin.Username)
	require.Equal(t, "Administrator", admin.FullName)
	require.True(t, admin.IsAdmin)
	require.True(t, admin.IsActive)
	require.Nil(t, admin.LastLoginAt)
	require.True(t, crypto.VerifyPassword(DefaultAdminPassword, admin.PasswordHash))
	closeStoreNoErr(t, store)

	reopened, err := Open(ctx, path, Options{Hasher: hasher})
	require.NoError(t, err)
	defer closeStoreNoErr(t, reopened)

	count, err := reopened.Users.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestBootstrapSkipsSeedWhenUsersExist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agency.db")
	ctx := context.Background()
	hasher := newTestHasher(t)

	store, err := Open(ctx, path, Options{Hasher: hasher, DefaultAdminUsername: "owner", DefaultAdminPassword: "s3cret-pass"})
	require.NoError(t, err)

	owner, err := store.Users.GetByUsername(ctx, "owner")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword("s3cret-pass", owner.PasswordHash))
	closeStoreNoErr(t, store)

	reopened, err := Open(ctx, path, Options{Hasher: hasher})
	require.NoError(t, err)
	defer closeStoreNoErr(t, reopened)

	_, err = reopened.Users.GetByUsername(ctx, DefaultAdminUsername)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReopenDoesNotModifyDatabaseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agency.db")
	ctx := context.Background()
	hasher := newTestHasher(t)

	store, err := Open(ctx, path, Options{Hasher: hasher})
	require.NoError(t, err)
	closeStoreNoErr(t, store)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	reopened, err := Open(ctx, path, Options{Hasher: hasher})
	require.NoError(t, err)
	closeStoreNoErr(t, reopened)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDatabaseFilePermissions0600OnUnix(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not meaningful on windows")
	}

	store := newTestStore(t)
	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTimestampsAutoPopulatedAndUpdatedAtChanges(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	customer := mustCreateCustomer(t, store, "Timestamp Check")
	require.False(t, customer.CreatedAt.IsZero())
	require.Equal(t, customer.CreatedAt, customer.UpdatedAt)

	before, err := store.Customers.Get(ctx, customer.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	customer.Phone = "+1 555 0100"
	require.NoError(t, store.Customers.Update(ctx, customer))

	after, err := store.Customers.Get(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt))
	require.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	t.Parallel()

	require.Equal(t, `%50\%\_off%`, likePattern(" 50%_off "))
	require.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestReferenceErrorListsDependentsSorted(t *testing.T) {
	t.Parallel()

	err := error(&ReferenceError{Entity: "employee", ID: 4, Dependents: map[string]int{"properties": 2, "contracts": 1}})
	require.ErrorIs(t, err, ErrReferenced)
	require.Equal(t, "employee 4 is referenced by contracts=1, properties=2", err.Error())

	var refErr *ReferenceError
	require.True(t, errors.As(err, &refErr))
	require.Equal(t, 2, refErr.Dependents["properties"])
}

func openRawTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", rawDBPath(t))
	require.NoError(t, err)
	return db
}

func rawDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "raw.db")
}

func mustSchemaVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	version, err := readSchemaVersion(context.Background(), db)
	require.NoError(t, err)
	return version
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func newTestHasher(t *testing.T) *crypto.PasswordHasher {
	t.Helper()
	hasher, err := crypto.NewPasswordHasher(crypto.Argon2Params{
		Memory:      crypto.MinArgon2MemoryKiB,
		Iterations:  1,
		Parallelism: 1,
		SaltLen:     16,
		KeyLen:      32,
	})
	require.NoError(t, err)
	return hasher
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agency.db")
	store, err := Open(context.Background(), path, Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func closeStoreNoErr(t *testing.T, store *Store) {
	t.Helper()
	require.NoError(t, store.Close())
}

func closeNoErr(t *testing.T, db *sql.DB) {
	t.Helper()
	require.NoError(t, db.Close())
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o600))
}

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, raw)
	require.NoError(t, err)
	return d
}

func mustCreateEmployee(t *testing.T, store *Store, name string) *Employee {
	t.Helper()
	employee := &Employee{
		FullName: name,
		Position: "Agent",
		Salary:   decimal.RequireFromString("1500.00"),
		JoinDate: date(t, "2023-01-15"),
	}
	require.NoError(t, store.Employees.Create(context.Background(), employee))
	return employee
}

func mustCreateCustomer(t *testing.T, store *Store, name string) *Customer {
	t.Helper()
	customer := &Customer{FullName: name, IDNumber: "ID-" + name}
	require.NoError(t, store.Customers.Create(context.Background(), customer))
	return customer
}

func mustCreateProperty(t *testing.T, store *Store, title string, employeeID *int64) *Property {
	t.Helper()
	property := &Property{
		ListingCode: "L-" + title,
		Type:        "apartment",
		Title:       title,
		City:        "Tirana",
		Area:        decimal.RequireFromString("84.5"),
		Price:       decimal.RequireFromString("125000"),
		EmployeeID:  employeeID,
	}
	require.NoError(t, store.Properties.Create(context.Background(), property))
	return property
}

func mustCreateContract(t *testing.T, store *Store, number string, propertyID, customerID, employeeID int64, signDate string) *Contract {
	t.Helper()
	contract := &Contract{
		PropertyID:     propertyID,
		CustomerID:     customerID,
		EmployeeID:     employeeID,
		ContractNumber: number,
		Type:           ContractTypeSale,
		Amount:         decimal.RequireFromString("100000"),
		StartDate:      date(t, signDate),
		SignDate:       date(t, signDate),
	}
	require.NoError(t, store.Contracts.Create(context.Background(), contract))
	return contract
}

func TestInspectReportsSchemaAndCountsWithoutWriting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	mustCreateCustomer(t, store, "Inspected")
	path := store.Path()
	closeStoreNoErr(t, store)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	health, err := Inspect(ctx, path)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion(), health.SchemaVersion)
	require.True(t, health.Current)
	require.Equal(t, "ok", health.Integrity)
	require.Equal(t, 1, health.Counts["users"])
	require.Equal(t, 1, health.Counts["customers"])
	require.Equal(t, 0, health.Counts["properties"])

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestInspectMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
