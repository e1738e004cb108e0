// Package storagetest содержит хранилище записей в памяти для тестов.
package storagetest

import (
	"context"
	"sort"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/models"
)

// Memory RecordStoreMock, сохраняющий записи в map.
// Отдельные методы можно переопределить через поля Func мока.
type Memory struct {
	*storage.RecordStoreMock
	Records map[string]*models.StoredRecord
}

// NewMemory создает пустое хранилище
func NewMemory() *Memory {
	m := &Memory{Records: make(map[string]*models.StoredRecord)}
	m.RecordStoreMock = &storage.RecordStoreMock{
		SaveRecordFunc: func(ctx context.Context, record *models.StoredRecord) error {
			m.Records[record.Name] = record.Clone()
			return nil
		},
		GetRecordFunc: func(ctx context.Context, name string) (*models.StoredRecord, error) {
			record, ok := m.Records[name]
			if !ok {
				return nil, storage.ErrRecordNotFound
			}
			return record.Clone(), nil
		},
		DeleteRecordFunc: func(ctx context.Context, name string) error {
			delete(m.Records, name)
			return nil
		},
		ListNamesFunc: func(ctx context.Context) ([]string, error) {
			names := make([]string, 0, len(m.Records))
			for name := range m.Records {
				if !storage.IsReserved(name) {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			return names, nil
		},
	}
	return m
}
