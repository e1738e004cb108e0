// Package sealed оборачивает RecordStore шифрованием документов записей.
// Имена и версии остаются открытыми, данные хранятся как
// base64-строка с AES-256-GCM шифротекстом.
package sealed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/crypto"
	"github.com/iudanet/recordsync/internal/models"
)

// SaltRecord служебное имя, под которым хранится соль деривации ключа
const SaltRecord = storage.ReservedPrefix + "sealed_salt"

// Store шифрует Data перед записью во вложенное хранилище
type Store struct {
	inner  storage.RecordStore
	sealer *crypto.Sealer
}

// Open создает Store поверх inner. При первом открытии генерируется
// и сохраняется соль, при последующих она читается из inner.
func Open(ctx context.Context, inner storage.RecordStore, passphrase string) (*Store, error) {
	salt, err := loadSalt(ctx, inner)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, err
	}

	return &Store{inner: inner, sealer: sealer}, nil
}

func loadSalt(ctx context.Context, inner storage.RecordStore) ([]byte, error) {
	record, err := inner.GetRecord(ctx, SaltRecord)
	if err == nil {
		var salt []byte
		if err := json.Unmarshal(record.Data, &salt); err != nil {
			return nil, fmt.Errorf("failed to decode salt: %w", err)
		}
		return salt, nil
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	// []byte кодируется в JSON как base64-строка
	data, err := json.Marshal(salt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode salt: %w", err)
	}

	if err := inner.SaveRecord(ctx, &models.StoredRecord{Name: SaltRecord, Data: data}); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}

	return salt, nil
}

// SaveRecord шифрует документ и сохраняет запись
func (s *Store) SaveRecord(ctx context.Context, record *models.StoredRecord) error {
	sealed, err := s.sealer.Seal(record.Name, record.Data)
	if err != nil {
		return fmt.Errorf("failed to seal record %q: %w", record.Name, err)
	}

	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("failed to encode sealed record: %w", err)
	}

	stored := record.Clone()
	stored.Data = data

	return s.inner.SaveRecord(ctx, stored)
}

// GetRecord читает и расшифровывает запись
func (s *Store) GetRecord(ctx context.Context, name string) (*models.StoredRecord, error) {
	record, err := s.inner.GetRecord(ctx, name)
	if err != nil {
		return nil, err
	}

	var sealed []byte
	if err := json.Unmarshal(record.Data, &sealed); err != nil {
		return nil, fmt.Errorf("failed to decode sealed record %q: %w", name, err)
	}

	plaintext, err := s.sealer.Open(name, sealed)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", name, err)
	}

	record.Data = plaintext
	return record, nil
}

// DeleteRecord удаляет запись из вложенного хранилища
func (s *Store) DeleteRecord(ctx context.Context, name string) error {
	return s.inner.DeleteRecord(ctx, name)
}

// ListNames возвращает имена записей вложенного хранилища
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	return s.inner.ListNames(ctx)
}
