// Package boltdb хранит офлайн-копии записей в одном файле BoltDB.
package boltdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// formatVersion версия раскладки buckets
	formatVersion = 1

	// openTimeout ожидание блокировки файла, которую держит другой процесс
	openTimeout = time.Second
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyFormat     = []byte("format")
)

// ErrUnsupportedFormat файл создан несовместимой версией хранилища
var ErrUnsupportedFormat = errors.New("unsupported storage format")

// Storage офлайн-хранилище записей в BoltDB. Каждая запись хранится
// JSON-значением под своим именем в bucket records.
type Storage struct {
	db *bbolt.DB
}

// New открывает или создаёт файл dbPath.
// Если файл занят другим процессом дольше openTimeout, возвращается ошибка.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}
	if err := storage.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return storage, nil
}

// Close закрывает файл. Повторный вызов ничего не делает.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// init создаёт buckets и проверяет версию формата
func (s *Storage) init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return fmt.Errorf("failed to create records bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}

		current := []byte(strconv.Itoa(formatVersion))
		stored := meta.Get(keyFormat)
		if stored == nil {
			return meta.Put(keyFormat, current)
		}
		if string(stored) != string(current) {
			return fmt.Errorf("%w: %s, expected %s", ErrUnsupportedFormat, stored, current)
		}
		return nil
	})
}
