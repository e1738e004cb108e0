package offline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/recordsync/internal/client/storage/storagetest"
	"github.com/iudanet/recordsync/internal/models"
	"github.com/iudanet/recordsync/internal/timer"
)

func newTestStore() (*Store, *storagetest.Memory, *timer.Manual) {
	mem := storagetest.NewMemory()
	sched := timer.NewManual()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mem, sched, logger), mem, sched
}

func TestStore_GetNeverPersisted(t *testing.T) {
	s, _, sched := newTestStore()

	called := false
	s.Get("missing", func(version int64, data any) {
		called = true
		assert.Equal(t, models.NoVersion, version)
		assert.Nil(t, data)
	})

	assert.False(t, called, "колбэк вызывается асинхронно")
	sched.Flush()
	assert.True(t, called)
}

func TestStore_SetThenGet(t *testing.T) {
	s, mem, sched := newTestStore()

	var setErr error
	s.Set("a", 3, map[string]any{"x": 1.0}, func(err error) { setErr = err })

	var (
		gotVersion int64
		gotData    any
	)
	s.Get("a", func(version int64, data any) {
		gotVersion, gotData = version, data
	})
	sched.Flush()

	require.NoError(t, setErr)
	assert.Equal(t, int64(3), gotVersion)
	assert.Equal(t, map[string]any{"x": 1.0}, gotData)
	assert.JSONEq(t, `{"x":1}`, string(mem.Records["a"].Data))
}

func TestStore_SaveThenLoadKeepsCreatedOffline(t *testing.T) {
	s, mem, sched := newTestStore()

	s.Save("a", Entry{Data: map[string]any{}, Version: 0, CreatedOffline: true}, nil)

	var got Entry
	s.Load("a", func(entry Entry) { got = entry })
	sched.Flush()

	assert.Equal(t, Entry{Data: map[string]any{}, Version: 0, CreatedOffline: true}, got)
	assert.True(t, mem.Records["a"].CreatedOffline)

	// Set сбрасывает признак
	s.Set("a", 1, map[string]any{}, nil)
	s.Load("a", func(entry Entry) { got = entry })
	sched.Flush()

	assert.False(t, got.CreatedOffline)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_OperationsRunInOrder(t *testing.T) {
	s, mem, sched := newTestStore()

	var order []string
	s.Set("a", 1, "first", func(error) { order = append(order, "set1") })
	s.Delete("a", func(error) { order = append(order, "delete") })
	s.Set("a", 2, "second", func(error) { order = append(order, "set2") })
	s.Get("a", func(version int64, data any) {
		order = append(order, "get")
		assert.Equal(t, int64(2), version)
		assert.Equal(t, "second", data)
	})
	sched.Flush()

	assert.Equal(t, []string{"set1", "delete", "set2", "get"}, order)
	assert.Len(t, mem.SaveRecordCalls(), 2)
}

func TestStore_Errors(t *testing.T) {
	s, mem, sched := newTestStore()
	errDisk := errors.New("disk failure")

	mem.SaveRecordFunc = func(ctx context.Context, record *models.StoredRecord) error {
		return errDisk
	}
	mem.GetRecordFunc = func(ctx context.Context, name string) (*models.StoredRecord, error) {
		return nil, errDisk
	}

	var setErr error
	s.Set("a", 1, map[string]any{}, func(err error) { setErr = err })

	var gotVersion int64
	s.Get("a", func(version int64, data any) { gotVersion = version })
	sched.Flush()

	assert.ErrorIs(t, setErr, errDisk)
	assert.Equal(t, models.NoVersion, gotVersion, "ошибка чтения трактуется как отсутствие записи")
}

func TestStore_CorruptedRecord(t *testing.T) {
	s, mem, sched := newTestStore()
	mem.Records["a"] = &models.StoredRecord{Name: "a", Data: json.RawMessage(`{broken`), Version: 2}

	var gotData any = "unset"
	s.Get("a", func(version int64, data any) { gotData = data })
	sched.Flush()

	assert.Nil(t, gotData)
}

func TestStore_Names(t *testing.T) {
	s, _, sched := newTestStore()

	s.Set("b", 1, 1, nil)
	s.Set("a", 1, 1, nil)
	s.Set("__dirty_records", 0, map[string]bool{}, nil)

	var names []string
	s.Names(func(got []string, err error) {
		require.NoError(t, err)
		names = got
	})
	sched.Flush()

	assert.Equal(t, []string{"a", "b"}, names)
}

func TestStore_BarrierWaitsForQueuedOperations(t *testing.T) {
	s, mem, sched := newTestStore()

	var order []string
	s.Set("a", 1, map[string]any{}, func(error) { order = append(order, "set") })
	s.Delete("b", func(error) { order = append(order, "delete") })
	s.Barrier(func() {
		order = append(order, "barrier")
		assert.Contains(t, mem.Records, "a")
	})
	sched.Flush()

	assert.Equal(t, []string{"set", "delete", "barrier"}, order)
}
