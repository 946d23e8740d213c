package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserUsernameUniqueOnCreate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	agent := &User{Username: "agent", PasswordHash: "x", FullName: "Agent One", IsActive: true}
	require.NoError(t, store.Users.Create(ctx, agent))
	require.NotZero(t, agent.ID)

	dup := &User{Username: "AGENT", PasswordHash: "x", FullName: "Agent Two", IsActive: true}
	err := store.Users.Create(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicate)

	count, err := store.Users.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestUserUsernameUniqueOnUpdate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &User{Username: "first", PasswordHash: "x", FullName: "First", IsActive: true}
	second := &User{Username: "second", PasswordHash: "x", FullName: "Second", IsActive: true}
	require.NoError(t, store.Users.Create(ctx, first))
	require.NoError(t, store.Users.Create(ctx, second))

	second.Username = "first"
	require.ErrorIs(t, store.Users.Update(ctx, second), ErrDuplicate)

	first.FullName = "First Renamed"
	require.NoError(t, store.Users.Update(ctx, first))

	loaded, err := store.Users.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "First Renamed", loaded.FullName)
	require.Equal(t, "x", loaded.PasswordHash)
}

func TestUserLastActiveAdminGuard(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	admin, err := store.Users.GetByUsername(ctx, DefaultAdminUsername)
	require.NoError(t, err)

	require.ErrorIs(t, store.Users.Delete(ctx, admin.ID), ErrLastAdmin)

	admin.IsActive = false
	require.ErrorIs(t, store.Users.Update(ctx, admin), ErrLastAdmin)

	deputy := &User{Username: "deputy", PasswordHash: "x", FullName: "Deputy", IsAdmin: true, IsActive: true}
	require.NoError(t, store.Users.Create(ctx, deputy))
	require.NoError(t, store.Users.Update(ctx, admin))
	require.ErrorIs(t, store.Users.Delete(ctx, deputy.ID), ErrLastAdmin)
	require.NoError(t, store.Users.Delete(ctx, admin.ID))
}

func TestUserPasswordAndLastLogin(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "clerk", PasswordHash: "old", FullName: "Clerk", IsActive: true}
	require.NoError(t, store.Users.Create(ctx, user))

	require.NoError(t, store.Users.UpdatePassword(ctx, user.ID, "new"))
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Users.TouchLastLogin(ctx, user.ID, at))

	loaded, err := store.Users.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new", loaded.PasswordHash)
	require.NotNil(t, loaded.LastLoginAt)
	require.True(t, at.Equal(*loaded.LastLoginAt))

	require.ErrorIs(t, store.Users.UpdatePassword(ctx, 9999, "new"), ErrNotFound)
	require.ErrorIs(t, store.Users.TouchLastLogin(ctx, 9999, at), ErrNotFound)
}

func TestUserListOrderedByFullName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Zana", "Besa"} {
		require.NoError(t, store.Users.Create(ctx, &User{Username: name, PasswordHash: "x", FullName: name, IsActive: true}))
	}

	users, err := store.Users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, []string{"Administrator", "Besa", "Zana"}, []string{users[0].FullName, users[1].FullName, users[2].FullName})
}

func TestUserValidation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, store.Users.Create(ctx, &User{Username: " ", PasswordHash: "x", FullName: "Blank"}), ErrValidation)
	require.ErrorIs(t, store.Users.Create(ctx, &User{Username: "nohash", FullName: "No Hash"}), ErrValidation)
}
