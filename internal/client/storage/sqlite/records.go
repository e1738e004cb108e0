package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/models"
)

// SaveRecord inserts or replaces a record
func (s *Storage) SaveRecord(ctx context.Context, record *models.StoredRecord) error {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO records (name, data, version, created_offline, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			created_offline = excluded.created_offline,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Name,
		[]byte(record.Data),
		record.Version,
		record.CreatedOffline,
		updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by name
func (s *Storage) GetRecord(ctx context.Context, name string) (*models.StoredRecord, error) {
	query := `
		SELECT name, data, version, created_offline, updated_at
		FROM records
		WHERE name = ?
	`

	var (
		record    models.StoredRecord
		data      []byte
		updatedAt int64
	)

	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&record.Name,
		&data,
		&record.Version,
		&record.CreatedOffline,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	record.Data = data
	record.UpdatedAt = time.Unix(updatedAt, 0)

	return &record, nil
}

// DeleteRecord removes a record; deleting a missing record is not an error
func (s *Storage) DeleteRecord(ctx context.Context, name string) error {
	query := `DELETE FROM records WHERE name = ?`

	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	return nil
}

// ListNames returns names of persisted records except reserved ones
func (s *Storage) ListNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM records WHERE name NOT LIKE ? ESCAPE '\' ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, `\_\_%`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan record name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return names, nil
}
