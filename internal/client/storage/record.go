package storage

import (
	"context"

	"github.com/iudanet/recordsync/internal/models"
)

//go:generate moq -out recordstore_mock.go . RecordStore

// RecordStore defines interface for persisting records on client
type RecordStore interface {
	// SaveRecord stores or replaces a record
	SaveRecord(ctx context.Context, record *models.StoredRecord) error

	// GetRecord retrieves a record by name
	// Returns ErrRecordNotFound if record was never persisted
	GetRecord(ctx context.Context, name string) (*models.StoredRecord, error)

	// DeleteRecord removes a record
	// Deleting a missing record is not an error
	DeleteRecord(ctx context.Context, name string) error

	// ListNames returns names of all persisted records except reserved ones
	ListNames(ctx context.Context) ([]string, error)
}
