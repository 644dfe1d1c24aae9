package users

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/userdb/userdb/internal/database"
)

func newTestStore(t *testing.T) *UserStoreImpl {
	t.Helper()
	store, err := Connect(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "users.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func mustAdd(t *testing.T, store *UserStoreImpl, name, email string) *User {
	t.Helper()
	result, err := store.AddUser(context.Background(), name, email)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, result.Outcome)
	return result.User
}

func assertUnique(t *testing.T, users []*User) {
	t.Helper()
	names := make(map[string]bool)
	emails := make(map[string]bool)
	for _, u := range users {
		assert.False(t, names[u.Name], "duplicate name %q", u.Name)
		assert.False(t, emails[u.Email], "duplicate email %q", u.Email)
		names[u.Name] = true
		emails[u.Email] = true
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, store, "alice", "a@x.com")
	require.NoError(t, store.EnsureSchema(ctx))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAddUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.AddUser(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.EqualValues(t, 1, result.Affected)
	require.NotNil(t, result.User)
	assert.NotZero(t, result.User.ID)
	assert.Equal(t, "alice", result.User.Name)
	assert.Equal(t, "a@x.com", result.User.Email)
}

func TestAddUserBlockedByDuplicates(t *testing.T) {
	t.Run("SameName", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()
		mustAdd(t, store, "alice", "a@x.com")

		result, err := store.AddUser(ctx, "alice", "b@y.com")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyExists, result.Outcome)
		assert.Nil(t, result.User)

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "a@x.com", users[0].Email)
	})

	t.Run("SameEmail", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()
		mustAdd(t, store, "alice", "a@x.com")

		result, err := store.AddUser(ctx, "bob", "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyExists, result.Outcome)

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "alice", users[0].Name)
	})
}

// missCheck inserts a conflicting row right after the existence check of AddUser
// runs, so the check misses it and the insert hits the unique constraint.
type missCheck struct {
	store *UserStoreImpl
	row   *UserSchema
	fired atomic.Bool
}

func (h *missCheck) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *missCheck) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Operation() != "SELECT" || !h.fired.CompareAndSwap(false, true) {
		return
	}
	if _, err := h.store.db.NewInsert().Model(h.row).Exec(ctx); err != nil {
		panic(err)
	}
}

func TestAddUserLosingRaceIsDuplicateConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.db.AddQueryHook(&missCheck{store: store, row: &UserSchema{Name: "alice", Email: "first@x.com"}})

	result, err := store.AddUser(ctx, "alice", "second@x.com")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrDuplicateConflict)
	assert.NotErrorIs(t, err, ErrQuery)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "first@x.com", users[0].Email)
}

func TestAddUserConcurrentSameName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		errs    = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := store.AddUser(ctx, "alice", "alice"+strconv.Itoa(i)+"@x.com")
			if err != nil {
				errs <- err
				return
			}
			if result.Outcome == OutcomeCreated {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrDuplicateConflict)
	}
	assert.EqualValues(t, 1, created.Load())

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assertUnique(t, users)
}

func TestUpdateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := mustAdd(t, store, "alice", "a@x.com")

	result, err := store.UpdateUser(ctx, alice.ID, "alicia", "alicia@x.com")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, result.Outcome)
	assert.Equal(t, &User{ID: alice.ID, Name: "alicia", Email: "alicia@x.com"}, result.User)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alicia", users[0].Name)
	assert.Equal(t, "alicia@x.com", users[0].Email)
}

func TestUpdateUserNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.UpdateUser(ctx, 9999, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.Zero(t, result.Affected)

	mustAdd(t, store, "alice", "a@x.com")
	result, err = store.UpdateUser(ctx, 9999, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
}

func TestUpdateUserDuplicateConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, store, "alice", "a@x.com")
	bob := mustAdd(t, store, "bob", "b@y.com")

	result, err := store.UpdateUser(ctx, bob.ID, "alice", "b@y.com")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrDuplicateConflict)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, bob, users[1])
	assertUnique(t, users)
}

func TestDeleteUserByAnyIdentifier(t *testing.T) {
	for _, tc := range []struct {
		name       string
		identifier func(u *User) string
	}{
		{"ByID", func(u *User) string { return strconv.FormatInt(u.ID, 10) }},
		{"ByName", func(u *User) string { return u.Name }},
		{"ByEmail", func(u *User) string { return u.Email }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t)
			ctx := context.Background()
			alice := mustAdd(t, store, "alice", "a@x.com")
			mustAdd(t, store, "bob", "b@y.com")

			result, err := store.DeleteUser(ctx, tc.identifier(alice))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDeleted, result.Outcome)
			assert.EqualValues(t, 1, result.Affected)

			users, err := store.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, "bob", users[0].Name)
		})
	}
}

func TestDeleteUserNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, store, "alice", "a@x.com")

	result, err := store.DeleteUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.Zero(t, result.Affected)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestDeleteUserMatchesAcrossFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := mustAdd(t, store, "alice", "a@x.com")
	// a user whose name is the other user's id
	mustAdd(t, store, strconv.FormatInt(first.ID, 10), "numeric@x.com")

	result, err := store.DeleteUser(ctx, strconv.FormatInt(first.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, result.Outcome)
	assert.EqualValues(t, 2, result.Affected)
}

func TestListUsersOrderedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	mustAdd(t, store, "zed", "z@x.com")
	mustAdd(t, store, "alice", "a@x.com")
	mustAdd(t, store, "mike", "m@x.com")
	_, err = store.DeleteUser(ctx, "alice")
	require.NoError(t, err)
	mustAdd(t, store, "bob", "b@x.com")

	users, err = store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for i := 1; i < len(users); i++ {
		assert.Less(t, users[i-1].ID, users[i].ID)
	}
	assert.Equal(t, []string{"zed", "mike", "bob"}, []string{users[0].Name, users[1].Name, users[2].Name})
}

func TestSearchUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, store, "alice", "a@x.com")
	mustAdd(t, store, "bob", "bob@Example.org")
	mustAdd(t, store, "carol", "c@example.org")

	found, err := store.SearchUsers(ctx, "ALICE")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Name)

	found, err = store.SearchUsers(ctx, "example")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "bob", found[0].Name)
	assert.Equal(t, "carol", found[1].Name)

	found, err = store.SearchUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, found, 3)

	found, err = store.SearchUsers(ctx, "nomatch")
	require.NoError(t, err)
	assert.Empty(t, found)

	mustAdd(t, store, "Ärger", "u@x.com")
	found, err = store.SearchUsers(ctx, "ärger")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ärger", found[0].Name)

	found, err = store.SearchUsers(ctx, "ÄRG")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seen := make(map[int64]bool)
	for _, name := range []string{"alice", "bob"} {
		u := mustAdd(t, store, name, name+"@x.com")
		seen[u.ID] = true
	}

	result, err := store.AddUser(ctx, "carol", "carol@x.com")
	require.NoError(t, err)
	assert.False(t, seen[result.User.ID], "id %d was reused", result.User.ID)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)

	matches := 0
	for _, u := range users {
		if u.Name == "carol" && u.Email == "carol@x.com" {
			matches++
			assert.Equal(t, result.User.ID, u.ID)
		}
	}
	assert.Equal(t, 1, matches)
	assertUnique(t, users)
}

func TestCloseIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.ListUsers(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.AddUser(ctx, "alice", "a@x.com")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.EnsureSchema(ctx), ErrClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrClosed)
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	_, err := Connect(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "missing", "dir", "users.db"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestQueryErrorWithoutSchema(t *testing.T) {
	store, err := Connect(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "empty.db"),
	})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ListUsers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuery)
	assert.NotErrorIs(t, err, ErrDuplicateConflict)
}
