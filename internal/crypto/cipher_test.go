package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()

	key := make([]byte, KeySize)
	_, _ = rand.Read(key)

	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid key", key: make([]byte, 32)},
		{name: "too short", key: make([]byte, 16), wantErr: true},
		{name: "too long", key: make([]byte, 64), wantErr: true},
		{name: "nil key", key: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "encryption key must be 32 bytes")
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSealer_SealOpen(t *testing.T) {
	s := newTestSealer(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "json object", plaintext: []byte(`{"a":1}`)},
		{name: "empty document", plaintext: []byte{}},
		{name: "unicode", plaintext: []byte(`{"имя":"значение"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal("rec", tt.plaintext)
			require.NoError(t, err)
			assert.Len(t, sealed, NonceSize+len(tt.plaintext)+16)

			opened, err := s.Open("rec", sealed)
			require.NoError(t, err)
			assert.Equal(t, string(tt.plaintext), string(opened))
		})
	}
}

func TestSealer_Open_Errors(t *testing.T) {
	s := newTestSealer(t)
	sealed, err := s.Seal("rec", []byte("payload"))
	require.NoError(t, err)

	other := newTestSealer(t)

	tests := []struct {
		sealer *Sealer
		name   string
		record string
		data   []byte
	}{
		{name: "too short", sealer: s, record: "rec", data: make([]byte, 5)},
		{name: "wrong name", sealer: s, record: "other", data: sealed},
		{name: "wrong key", sealer: other, record: "rec", data: sealed},
		{name: "corrupted", sealer: s, record: "rec", data: append([]byte{}, sealed[:len(sealed)-1]...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.record, tt.data)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestSealer_Randomness(t *testing.T) {
	s := newTestSealer(t)

	first, err := s.Seal("rec", []byte("same"))
	require.NoError(t, err)
	second, err := s.Seal("rec", []byte("same"))
	require.NoError(t, err)

	// Разные nonce дают разный шифротекст
	assert.NotEqual(t, first, second)
}
