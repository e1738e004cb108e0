package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoredRecord_Clone(t *testing.T) {
	original := &StoredRecord{
		Name:      "users/alice",
		Data:      json.RawMessage(`{"age":30}`),
		Version:        4,
		CreatedOffline: true,
		UpdatedAt:      time.Now(),
	}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	// Изменение копии не затрагивает оригинал
	clone.Data[2] = 'X'
	clone.Version = 5
	assert.Equal(t, json.RawMessage(`{"age":30}`), original.Data)
	assert.Equal(t, int64(4), original.Version)
}
