package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saves.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestStoreSlotLifecycle(t *testing.T) {
	// Setup
	store, _ := openTestStore(t)
	ctx := context.Background()

	// Test case 1: empty slot
	_, ok, err := store.GetSlot(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Test case 2: insert then overwrite
	require.NoError(t, store.PutSlot(ctx, 0, []byte(`{"v":1}`)))
	require.NoError(t, store.PutSlot(ctx, 0, []byte(`{"v":2}`)))
	data, ok, err := store.GetSlot(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":2}`, string(data))

	// Test case 3: slots are independent
	require.NoError(t, store.PutSlot(ctx, 4, []byte(`{"v":4}`)))
	data, _, err = store.GetSlot(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, `{"v":4}`, string(data))

	// Test case 4: delete, including an empty slot
	require.NoError(t, store.DeleteSlot(ctx, 0))
	require.NoError(t, store.DeleteSlot(ctx, 3))
	_, ok, err = store.GetSlot(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Test case 5: empty payload rejected
	assert.Error(t, store.PutSlot(ctx, 1, nil))
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutSlot(ctx, 2, []byte("saved")))
	require.NoError(t, store.Close())

	// Migrations are not re-applied on an existing database
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, ok, err := reopened.GetSlot(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "saved", string(data))

	var count int
	require.NoError(t, reopened.sqlDB.QueryRow(`SELECT COUNT(1) FROM `+migrationTable).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStoreErrors(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)

	var nilStore *Store
	ctx := context.Background()
	assert.Error(t, nilStore.PutSlot(ctx, 0, []byte("x")))
	_, _, err = nilStore.GetSlot(ctx, 0)
	assert.Error(t, err)
	assert.Error(t, nilStore.DeleteSlot(ctx, 0))
	assert.NoError(t, nilStore.Close())

	store, _ := openTestStore(t)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.PutSlot(cancelled, 0, []byte("x")), context.Canceled)
}

func TestApplyMigrationsOrderAndSkip(t *testing.T) {
	store, _ := openTestStore(t)
	migrationsFS := fstest.MapFS{
		"002_notes.sql": {Data: []byte("-- +migrate Up\nINSERT INTO notes (body) VALUES ('second');\n-- +migrate Down\nDELETE FROM notes;")},
		"001_notes.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE notes (body TEXT);\n-- +migrate Down\nDROP TABLE notes;")},
		"003_empty.sql": {Data: []byte("-- +migrate Up\n-- +migrate Down\n")},
		"readme.txt":    {Data: []byte("ignored")},
	}

	require.NoError(t, applyMigrations(store.sqlDB, migrationsFS))
	require.NoError(t, applyMigrations(store.sqlDB, migrationsFS))

	var count int
	require.NoError(t, store.sqlDB.QueryRow(`SELECT COUNT(1) FROM notes`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExtractUp(t *testing.T) {
	assert.Equal(t, "CREATE TABLE t (x INT);", extractUp("-- +migrate Up\nCREATE TABLE t (x INT);\n-- +migrate Down\nDROP TABLE t;"))
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
	assert.Equal(t, "", extractUp("-- +migrate Up\n-- +migrate Down\nDROP TABLE t;"))
}
