package storage

import (
	"errors"
	"strings"
)

// Common client storage errors
var (
	// ErrRecordNotFound indicates that record was never persisted
	ErrRecordNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)

// ReservedPrefix префикс служебных имён (индекс dirty, соль шифрования).
// Такие имена не попадают в ListNames.
const ReservedPrefix = "__"

// IsReserved сообщает, является ли имя служебным
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}
