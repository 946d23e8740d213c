package app

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agencydesk/agencydesk/internal/crypto"
	"github.com/agencydesk/agencydesk/internal/media"
	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

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

func newAppTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "agencydesk.db")
	store, err := storage.Open(context.Background(), path, storage.Options{Hasher: newTestHasher(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestMediaStore(t *testing.T) *media.Store {
	t.Helper()
	images, err := media.NewStore(filepath.Join(t.TempDir(), "Images"), media.Options{})
	require.NoError(t, err)
	return images
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, raw)
	require.NoError(t, err)
	return d
}

func mustCustomer(t *testing.T, store *storage.Store, name string) *storage.Customer {
	t.Helper()
	customer := &storage.Customer{FullName: name}
	require.NoError(t, store.Customers.Create(context.Background(), customer))
	return customer
}

func mustEmployee(t *testing.T, store *storage.Store, name string) *storage.Employee {
	t.Helper()
	employee := &storage.Employee{FullName: name, JoinDate: mustDate(t, "2022-09-01")}
	require.NoError(t, store.Employees.Create(context.Background(), employee))
	return employee
}

func mustProperty(t *testing.T, store *storage.Store, title string, status storage.PropertyStatus) *storage.Property {
	t.Helper()
	property := &storage.Property{
		ListingCode: "L-" + title,
		Type:        "apartment",
		Title:       title,
		Price:       decimal.RequireFromString("90000"),
		Status:      status,
	}
	require.NoError(t, store.Properties.Create(context.Background(), property))
	return property
}

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}
