package boltdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/models"
)

// createTestStorage создает временное хранилище для тестов
func createTestStorage(t *testing.T) (*Storage, func()) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		if store.db != nil {
			err := store.Close()
			require.NoError(t, err)
		}
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Errorf("failed to remove tmpDir: %v", err)
		}
	}

	return store, cleanup
}

// createTestRecord создает тестовую запись
func createTestRecord(name string, version int64, data string) *models.StoredRecord {
	return &models.StoredRecord{
		Name:      name,
		Data:      json.RawMessage(data),
		Version:   version,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestStorage_SaveAndGetRecord(t *testing.T) {
	tests := []struct {
		record *models.StoredRecord
		name   string
	}{
		{
			name:   "object record",
			record: createTestRecord("users/alice", 3, `{"name":"alice","age":30}`),
		},
		{
			name:   "array record",
			record: createTestRecord("lists/todo", 1, `["a","b"]`),
		},
		{
			name: "record created offline",
			record: func() *models.StoredRecord {
				r := createTestRecord("drafts/1", 0, `{}`)
				r.CreatedOffline = true
				return r
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()

			ctx := context.Background()
			require.NoError(t, store.SaveRecord(ctx, tt.record))

			// Проверяем, что запись можно получить обратно
			got, err := store.GetRecord(ctx, tt.record.Name)
			require.NoError(t, err)
			assert.Equal(t, tt.record.Name, got.Name)
			assert.Equal(t, tt.record.Version, got.Version)
			assert.Equal(t, tt.record.CreatedOffline, got.CreatedOffline)
			assert.JSONEq(t, string(tt.record.Data), string(got.Data))
		})
	}
}

func TestStorage_SaveRecord_Overwrites(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, createTestRecord("a", 1, `{"v":1}`)))
	require.NoError(t, store.SaveRecord(ctx, createTestRecord("a", 2, `{"v":2}`)))

	got, err := store.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `{"v":2}`, string(got.Data))
}

func TestStorage_SaveRecord_SetsUpdatedAt(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	record := &models.StoredRecord{Name: "a", Data: json.RawMessage(`{}`), Version: 1}
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())
	assert.True(t, record.UpdatedAt.IsZero(), "caller's record is not mutated")
}

func TestStorage_GetRecord_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_DeleteRecord(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, createTestRecord("a", 1, `{}`)))
	require.NoError(t, store.DeleteRecord(ctx, "a"))

	_, err := store.GetRecord(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	// Удаление отсутствующей записи не ошибка
	assert.NoError(t, store.DeleteRecord(ctx, "a"))
}

func TestStorage_ListNames_SkipsReserved(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, createTestRecord("b", 1, `{}`)))
	require.NoError(t, store.SaveRecord(ctx, createTestRecord("a", 1, `{}`)))
	require.NoError(t, store.SaveRecord(ctx, createTestRecord("__dirty_records", 0, `{"a":true}`)))

	names, err := store.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestStorage_Closed(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "second close is a no-op")

	assert.ErrorIs(t, store.SaveRecord(ctx, createTestRecord("a", 1, `{}`)), storage.ErrStorageClosed)
	_, err := store.GetRecord(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.DeleteRecord(ctx, "a"), storage.ErrStorageClosed)
	_, err = store.ListNames(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveRecord(ctx, createTestRecord("a", 7, `{"x":1}`)))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFormat, []byte("99"))
	}))
	require.NoError(t, store.Close())

	_, err = New(context.Background(), dbPath)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNew_LockedByAnotherProcess(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = New(context.Background(), dbPath)
	assert.Error(t, err)
}
