package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/config"
	"github.com/iudanet/recordsync/pkg/api"
)

func TestCore_SetValidation(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 1, map[string]any{})

	tests := []struct {
		name  string
		path  string
		value any
	}{
		{name: "scalar without path", path: "", value: 5},
		{name: "path with spaces", path: "a b", value: 1},
		{name: "trailing dot", path: "a.", value: 1},
		{name: "not json", path: "a", value: func() {}},
		{name: "index overflows", path: "a[9223372036854775807]", value: 1},
		{name: "index too large", path: "a[100000000]", value: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.Set(tt.path, tt.value, nil)
			assert.ErrorIs(t, err, event.ErrInvalidArgs)
		})
	}

	assert.ErrorIs(t, core.Erase("", nil), event.ErrInvalidArgs)
	assert.ErrorIs(t, core.Erase("a[9223372036854775807]", nil), event.ErrInvalidArgs)
	assert.Empty(t, f.conn.Sent())
}

func TestCore_SetOnline(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

	var got []error
	require.NoError(t, core.Set("a", 2, func(err error) { got = append(got, err) }))

	require.Len(t, f.conn.Sent(), 1)
	sent := f.conn.Last()
	assert.Equal(t, api.ActionPatch, sent.Action)
	assert.Equal(t, "a", sent.Path)
	assert.Equal(t, 2.0, sent.Data)
	assert.Equal(t, int64(4), sent.Version)
	assert.True(t, sent.IsWriteAck)
	assert.Equal(t, int64(4), core.Version())
	assert.Empty(t, got)

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionWriteAcknowledgement, Name: "doc", CorrelationID: sent.CorrelationID})
	assert.Equal(t, []error{nil}, got)

	require.NoError(t, core.Set("", map[string]any{"b": true}, nil))
	sent = f.conn.Last()
	assert.Equal(t, api.ActionUpdate, sent.Action)
	assert.Equal(t, map[string]any{"b": true}, sent.Data)
	assert.False(t, sent.IsWriteAck)
	assert.Equal(t, int64(5), sent.Version)

	require.NoError(t, core.Erase("b", nil))
	sent = f.conn.Last()
	assert.Equal(t, api.ActionErase, sent.Action)
	assert.Equal(t, "b", sent.Path)
	assert.Equal(t, map[string]any{}, core.Get(""))

	// офлайн-хранилище пишет в фоне
	f.sched.Flush()
	assert.JSONEq(t, `{}`, string(f.store.Records["doc"].Data))
	assert.Equal(t, int64(6), f.store.Records["doc"].Version)
}

func TestCore_SetSameValueIsNotSent(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

	var got []error
	require.NoError(t, core.Set("a", 1, func(err error) { got = append(got, err) }))
	f.sched.Flush()

	assert.Equal(t, []error{nil}, got)
	assert.Empty(t, f.conn.Sent())
	assert.Equal(t, int64(3), core.Version())
}

func TestCore_WriteRejectedByServer(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

	var ackErr error
	var recordErrs []error
	core.OnError("owner", func(err error) { recordErrs = append(recordErrs, err) })
	require.NoError(t, core.Set("a", 2, func(err error) { ackErr = err }))

	f.receive(&api.Message{
		Topic:          api.TopicRecord,
		Action:         api.ActionMessagePermissionError,
		Name:           "doc",
		CorrelationID:  f.conn.Last().CorrelationID,
		OriginalAction: api.ActionPatch,
		IsError:        true,
	})

	assert.ErrorIs(t, ackErr, event.ErrPermissionDenied)
	require.Len(t, recordErrs, 1)
	assert.ErrorIs(t, recordErrs[0], event.ErrPermissionDenied)
}

func TestCore_PendingAckFailsOnConnectionLoss(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{})

	var got error
	require.NoError(t, core.Set("a", 1, func(err error) { got = err }))

	f.conn.Lose()
	assert.ErrorIs(t, got, event.ErrClientOffline)
}

func TestCore_AckTimeout(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{})

	var got error
	require.NoError(t, core.Set("a", 1, func(err error) { got = err }))

	f.sched.Advance(f.opts.AckTimeout)
	assert.ErrorIs(t, got, event.ErrResponseTimeout)
}

func TestCore_WritesBeforeReadyAreCoalesced(t *testing.T) {
	f := newFixture(t, true)
	core := f.open(t, "doc")

	var got []error
	cb := func(err error) { got = append(got, err) }
	require.NoError(t, core.Set("a", 1, cb))
	require.NoError(t, core.Set("b", 2, cb))
	require.NoError(t, core.Erase("c", nil))
	assert.Equal(t, []api.Action{api.ActionSubscribeCreateAndRead}, f.conn.Actions())

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionReadResponse, Name: "doc", Version: 1, Data: map[string]any{"c": 0.0}})

	require.Equal(t, []api.Action{api.ActionSubscribeCreateAndRead, api.ActionUpdate}, f.conn.Actions())
	sent := f.conn.Last()
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, sent.Data)
	assert.Equal(t, int64(2), sent.Version)
	assert.True(t, sent.IsWriteAck)

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionWriteAcknowledgement, Name: "doc", CorrelationID: sent.CorrelationID})
	assert.Equal(t, []error{nil, nil}, got)
}

func TestCore_OfflineWriteOnCleanRecord(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})
	f.sched.Flush()
	require.Equal(t, int64(3), f.store.Records["doc"].Version)
	require.False(t, core.IsDirty())

	f.conn.Lose()

	var got []error
	require.NoError(t, core.Set("a", 2, func(err error) { got = append(got, err) }))
	f.sched.Flush()

	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], event.ErrClientOffline)
	assert.True(t, core.IsDirty())
	assert.Equal(t, int64(4), core.Version())
	assert.Equal(t, int64(4), f.store.Records["doc"].Version)
	assert.JSONEq(t, `{"a":2}`, string(f.store.Records["doc"].Data))
	assert.Empty(t, f.conn.Sent())

	// повторное ожидание не вызывает колбэк снова
	f.sched.Advance(f.opts.AckTimeout)
	assert.Len(t, got, 1)
}

func TestCore_OfflineWritesReuseVersion(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{})

	f.conn.Lose()
	require.NoError(t, core.Set("a", 1, nil))
	require.NoError(t, core.Set("b", 2, nil))

	assert.Equal(t, int64(4), core.Version())
	assert.True(t, core.IsDirty())
	assert.Empty(t, f.conn.Sent())

	f.conn.Reestablish()
	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionHeadResponse, Name: "doc", Version: 3})

	assert.Equal(t, StateReady, core.State())
	assert.False(t, core.IsDirty())
	sent := f.conn.Last()
	assert.Equal(t, api.ActionUpdate, sent.Action)
	assert.Equal(t, int64(4), sent.Version)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, sent.Data)
}

func TestCore_ReadOnly(t *testing.T) {
	f := newFixture(t, true, func(o *config.Options) {
		o.ReadOnly = true
		o.WriteWhitelist = []string{"scratch/"}
	})
	core := f.ready(t, "doc", 1, map[string]any{})

	var got []error
	cb := func(err error) { got = append(got, err) }
	require.NoError(t, core.Set("a", 1, cb))
	require.NoError(t, core.Delete(cb))
	f.sched.Flush()

	assert.Equal(t, []error{event.ErrRecordReadOnly, event.ErrRecordReadOnly}, got)
	assert.Empty(t, f.conn.Sent())
	assert.Nil(t, core.Get("a"))

	scratch := f.ready(t, "scratch/1", 1, map[string]any{})
	require.NoError(t, scratch.Set("a", 1, nil))
	assert.Equal(t, api.ActionPatch, f.conn.Last().Action)
}

func TestCore_VersionExists(t *testing.T) {
	tests := []struct {
		name       string
		strategy   string
		wantA      any
		wantResend bool
	}{
		{name: "remote wins", strategy: config.StrategyRemoteWins, wantA: 5.0},
		{name: "local wins", strategy: config.StrategyLocalWins, wantA: 2.0, wantResend: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true, withStrategy(tt.strategy))
			core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

			var got []error
			require.NoError(t, core.Set("a", 2, func(err error) { got = append(got, err) }))
			cid := f.conn.Last().CorrelationID
			f.conn.Reset()

			f.receive(&api.Message{
				Topic:         api.TopicRecord,
				Action:        api.ActionVersionExists,
				Name:          "doc",
				CorrelationID: cid,
				Version:       4,
				Data:          map[string]any{"a": 5.0},
				IsError:       true,
			})

			assert.Equal(t, StateReady, core.State())
			assert.Equal(t, tt.wantA, core.Get("a"))

			if !tt.wantResend {
				assert.Empty(t, f.conn.Sent())
				assert.Equal(t, int64(4), core.Version())
				assert.Equal(t, []error{nil}, got)
				return
			}

			require.Len(t, f.conn.Sent(), 1)
			sent := f.conn.Last()
			assert.Equal(t, api.ActionUpdate, sent.Action)
			assert.Equal(t, int64(5), sent.Version)
			assert.Empty(t, got)

			f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionWriteAcknowledgement, Name: "doc", CorrelationID: sent.CorrelationID})
			assert.Equal(t, []error{nil}, got)
		})
	}
}

func TestCore_VersionExistsWithoutData(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

	require.NoError(t, core.Set("a", 2, nil))
	f.conn.Reset()

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionVersionExists, Name: "doc", Version: 4, IsError: true})

	assert.Equal(t, StateMerging, core.State())
	assert.Equal(t, []api.Action{api.ActionRead}, f.conn.Actions())
}

func TestCore_Delete(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{"a": 1.0})

	deleted := false
	core.OnDeleted("owner", func() { deleted = true })

	var got []error
	require.NoError(t, core.Delete(func(err error) { got = append(got, err) }))
	assert.Equal(t, StateDeleting, core.State())
	assert.Equal(t, []api.Action{api.ActionDelete}, f.conn.Actions())

	// запись в удаляемую запись отклоняется
	var writeErr error
	require.NoError(t, core.Set("a", 2, func(err error) { writeErr = err }))
	f.sched.Flush()
	assert.ErrorIs(t, writeErr, event.ErrRecordDeleted)

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionDeleteSuccess, Name: "doc"})

	assert.Equal(t, StateDeleted, core.State())
	assert.Equal(t, []error{nil}, got)
	assert.True(t, deleted)
	assert.True(t, core.IsDestroyed())
	assert.NotContains(t, f.store.Records, "doc")
	assert.Empty(t, f.handler.Names())

	assert.ErrorIs(t, core.Set("a", 3, nil), event.ErrRecordDestroyed)
	assert.ErrorIs(t, core.Delete(nil), event.ErrRecordDestroyed)
}

func TestCore_DeleteFailure(t *testing.T) {
	tests := []struct {
		name    string
		fail    func(f *fixture)
		wantErr error
	}{
		{
			name: "timeout",
			fail: func(f *fixture) {
				f.sched.Advance(f.opts.DeleteTimeout)
			},
			wantErr: event.ErrResponseTimeout,
		},
		{
			name: "denied",
			fail: func(f *fixture) {
				f.receive(&api.Message{
					Topic:          api.TopicRecord,
					Action:         api.ActionMessageDenied,
					Name:           "doc",
					OriginalAction: api.ActionDelete,
					IsError:        true,
				})
			},
			wantErr: event.ErrMessageDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			core := f.ready(t, "doc", 3, map[string]any{})

			var got error
			var recordErrs []error
			core.OnError("owner", func(err error) { recordErrs = append(recordErrs, err) })
			require.NoError(t, core.Delete(func(err error) { got = err }))

			tt.fail(f)

			assert.Equal(t, StateReady, core.State())
			assert.ErrorIs(t, got, tt.wantErr)
			require.Len(t, recordErrs, 1)
			assert.ErrorIs(t, recordErrs[0], tt.wantErr)
			assert.False(t, core.IsDestroyed())
		})
	}
}

func TestCore_DeleteOffline(t *testing.T) {
	f := newFixture(t, false)
	core := f.open(t, "doc")

	var got error
	require.NoError(t, core.Delete(func(err error) { got = err }))
	f.sched.Flush()

	assert.ErrorIs(t, got, event.ErrClientOffline)
	assert.Equal(t, StateReady, core.State())
}

func TestCore_DeleteBeforeReadyIsDeferred(t *testing.T) {
	f := newFixture(t, true)
	core := f.open(t, "doc")

	require.NoError(t, core.Delete(nil))
	assert.Equal(t, StateSubscribing, core.State())

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionReadResponse, Name: "doc", Version: 1, Data: map[string]any{}})

	assert.Equal(t, StateDeleting, core.State())
	assert.Equal(t, api.ActionDelete, f.conn.Last().Action)
}

func TestCore_DeletedRemotely(t *testing.T) {
	f := newFixture(t, true)
	core := f.ready(t, "doc", 3, map[string]any{})

	deleted := false
	core.OnDeleted("owner", func() { deleted = true })

	f.receive(&api.Message{Topic: api.TopicRecord, Action: api.ActionDeleted, Name: "doc"})

	assert.Equal(t, StateDeleted, core.State())
	assert.True(t, deleted)
	assert.Empty(t, f.handler.Names())
}
