package merge

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/recordsync/internal/client/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constant(value string) Strategy {
	return func(c Conflict, done Done) { done(value, nil) }
}

func TestService_Lookup(t *testing.T) {
	s := NewService(constant("default"), testLogger())
	s.SetStrategy("users/alice", constant("exact"))
	s.SetPatternStrategy(regexp.MustCompile(`^users/`), constant("users"))
	s.SetPatternStrategy(regexp.MustCompile(`^users/b`), constant("never"))

	tests := []struct {
		name   string
		record string
		want   string
	}{
		{name: "exact name wins", record: "users/alice", want: "exact"},
		{name: "first matching pattern", record: "users/bob", want: "users"},
		{name: "default", record: "orders/1", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got any
			s.Merge(Conflict{Name: tt.record}, func(merged any, err error) {
				require.NoError(t, err)
				got = merged
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_NoStrategy(t *testing.T) {
	s := NewService(nil, testLogger())

	_, ok := s.Lookup("a")
	assert.False(t, ok)

	var gotErr error
	s.Merge(Conflict{Name: "a"}, func(merged any, err error) { gotErr = err })
	assert.ErrorIs(t, gotErr, event.ErrNoMergeStrategy)

	s.SetDefault(RemoteWins)
	_, ok = s.Lookup("a")
	assert.True(t, ok)
}

func TestBuiltinStrategies(t *testing.T) {
	c := Conflict{
		Name:          "a",
		LocalData:     map[string]any{"side": "local"},
		LocalVersion:  4,
		RemoteData:    map[string]any{"side": "remote"},
		RemoteVersion: 5,
	}

	tests := []struct {
		strategy Strategy
		want     any
		name     string
	}{
		{name: "remote wins", strategy: RemoteWins, want: c.RemoteData},
		{name: "local wins", strategy: LocalWins, want: c.LocalData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			tt.strategy(c, func(merged any, err error) {
				calls++
				require.NoError(t, err)
				assert.Equal(t, tt.want, merged)
			})
			assert.Equal(t, 1, calls, "встроенные стратегии синхронны")
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"remote-wins", "local-wins"} {
		strategy, err := ByName(name)
		require.NoError(t, err)
		assert.NotNil(t, strategy)
	}

	_, err := ByName("newest")
	assert.Error(t, err)
}

func TestService_StrategyCompletesOnce(t *testing.T) {
	errMerge := errors.New("cannot merge")
	s := NewService(func(c Conflict, done Done) {
		done(nil, errMerge)
		done("late", nil)
	}, testLogger())

	var results []error
	s.Merge(Conflict{Name: "a"}, func(merged any, err error) { results = append(results, err) })

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0], errMerge)
}

func TestService_AsyncStrategy(t *testing.T) {
	var pending Done
	s := NewService(func(c Conflict, done Done) { pending = done }, testLogger())

	var got any
	s.Merge(Conflict{Name: "a"}, func(merged any, err error) { got = merged })
	assert.Nil(t, got)

	pending("merged", nil)
	assert.Equal(t, "merged", got)
}
