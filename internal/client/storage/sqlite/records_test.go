package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/models"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)

	return s, func() {
		assert.NoError(t, s.Close())
	}
}

func TestStorage_SaveAndGetRecord(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	tests := []struct {
		record *models.StoredRecord
		name   string
	}{
		{
			name: "object",
			record: &models.StoredRecord{
				Name:      "users/alice",
				Data:      json.RawMessage(`{"name":"alice"}`),
				Version:   4,
				UpdatedAt: time.Unix(1700000000, 0),
			},
		},
		{
			name: "empty object",
			record: &models.StoredRecord{
				Name:    "drafts/1",
				Data:    json.RawMessage(`{}`),
				Version: 1,
			},
		},
		{
			name: "created offline",
			record: &models.StoredRecord{
				Name:           "drafts/2",
				Data:           json.RawMessage(`{}`),
				Version:        0,
				CreatedOffline: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SaveRecord(ctx, tt.record))

			got, err := s.GetRecord(ctx, tt.record.Name)
			require.NoError(t, err)
			assert.Equal(t, tt.record.Name, got.Name)
			assert.Equal(t, tt.record.Version, got.Version)
			assert.Equal(t, tt.record.CreatedOffline, got.CreatedOffline)
			assert.JSONEq(t, string(tt.record.Data), string(got.Data))
			if !tt.record.UpdatedAt.IsZero() {
				assert.Equal(t, tt.record.UpdatedAt.Unix(), got.UpdatedAt.Unix())
			}
		})
	}
}

func TestStorage_SaveRecord_Upsert(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.SaveRecord(ctx, &models.StoredRecord{Name: "a", Data: json.RawMessage(`{"v":1}`), Version: 1, CreatedOffline: true}))
	require.NoError(t, s.SaveRecord(ctx, &models.StoredRecord{Name: "a", Data: json.RawMessage(`{"v":2}`), Version: 2}))

	got, err := s.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.False(t, got.CreatedOffline)
	assert.JSONEq(t, `{"v":2}`, string(got.Data))
}

func TestStorage_GetRecord_NotFound(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.SaveRecord(ctx, &models.StoredRecord{Name: "a", Data: json.RawMessage(`{}`), Version: 1}))
	require.NoError(t, s.DeleteRecord(ctx, "a"))
	require.NoError(t, s.DeleteRecord(ctx, "a"))

	_, err := s.GetRecord(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_ListNames(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, name := range []string{"b", "a", "__dirty_records", "_single"} {
		require.NoError(t, s.SaveRecord(ctx, &models.StoredRecord{Name: name, Data: json.RawMessage(`{}`)}))
	}

	names, err := s.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"_single", "a", "b"}, names)
}

func TestStorage_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRecord(ctx, &models.StoredRecord{Name: "a", Data: json.RawMessage(`[1]`), Version: 1}))
	names, err := s.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}
