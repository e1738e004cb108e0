// Package offline предоставляет асинхронный доступ к локальному хранилищу
// записей из логического потока клиента.
//
// Операции выполняются строго по очереди: следующая начинается только
// после завершения предыдущей, поэтому записи одного имени не переупорядочиваются.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/models"
	"github.com/iudanet/recordsync/internal/timer"
)

// GetCallback получает версию и данные записи.
// version == models.NoVersion и data == nil означают, что запись не сохранялась.
type GetCallback func(version int64, data any)

// Entry сохранённая копия записи
type Entry struct {
	Data    any
	Version int64
	// CreatedOffline запись создана без соединения и сервер о ней ещё не знает
	CreatedOffline bool
}

// LoadCallback получает сохранённую копию записи.
// Version == models.NoVersion означает, что запись не сохранялась.
type LoadCallback func(entry Entry)

// DoneCallback получает результат записи или удаления
type DoneCallback func(err error)

// Store асинхронный адаптер над storage.RecordStore
type Store struct {
	records   storage.RecordStore
	scheduler timer.Scheduler
	logger    *slog.Logger
	queue     []operation
	busy      bool
}

// operation выполняется вне логического потока, finish внутри него
type operation struct {
	run    func(ctx context.Context)
	finish func()
}

// New создает адаптер над records
func New(records storage.RecordStore, scheduler timer.Scheduler, logger *slog.Logger) *Store {
	return &Store{
		records:   records,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Get читает запись. Ошибки чтения логируются и трактуются как отсутствие записи.
func (s *Store) Get(name string, cb GetCallback) {
	s.Load(name, func(entry Entry) { cb(entry.Version, entry.Data) })
}

// Load читает запись вместе с признаками.
// Ошибки чтения логируются и трактуются как отсутствие записи.
func (s *Store) Load(name string, cb LoadCallback) {
	entry := Entry{Version: models.NoVersion}

	s.enqueue(operation{
		run: func(ctx context.Context) {
			record, err := s.records.GetRecord(ctx, name)
			if err != nil {
				if !errors.Is(err, storage.ErrRecordNotFound) {
					s.logger.Error("Failed to read offline record",
						"record", name,
						"error", err)
				}
				return
			}

			var decoded any
			if err := json.Unmarshal(record.Data, &decoded); err != nil {
				s.logger.Error("Corrupted offline record",
					"record", name,
					"error", err)
				return
			}
			entry = Entry{
				Data:           decoded,
				Version:        record.Version,
				CreatedOffline: record.CreatedOffline,
			}
		},
		finish: func() { cb(entry) },
	})
}

// Set сохраняет версию и данные записи
func (s *Store) Set(name string, version int64, data any, cb DoneCallback) {
	s.Save(name, Entry{Data: data, Version: version}, cb)
}

// Save сохраняет копию записи
func (s *Store) Save(name string, entry Entry, cb DoneCallback) {
	var result error

	s.enqueue(operation{
		run: func(ctx context.Context) {
			raw, err := json.Marshal(entry.Data)
			if err != nil {
				result = fmt.Errorf("failed to encode record %q: %w", name, err)
				return
			}

			result = s.records.SaveRecord(ctx, &models.StoredRecord{
				Name:           name,
				Data:           raw,
				Version:        entry.Version,
				CreatedOffline: entry.CreatedOffline,
				UpdatedAt:      time.Now(),
			})
		},
		finish: func() { s.done(cb, result) },
	})
}

// Delete удаляет запись
func (s *Store) Delete(name string, cb DoneCallback) {
	var result error

	s.enqueue(operation{
		run: func(ctx context.Context) {
			result = s.records.DeleteRecord(ctx, name)
		},
		finish: func() { s.done(cb, result) },
	})
}

// Names возвращает имена сохранённых записей
func (s *Store) Names(cb func(names []string, err error)) {
	var (
		names  []string
		result error
	)

	s.enqueue(operation{
		run: func(ctx context.Context) {
			names, result = s.records.ListNames(ctx)
		},
		finish: func() { cb(names, result) },
	})
}

// Barrier вызывает cb после завершения всех ранее поставленных операций
func (s *Store) Barrier(cb func()) {
	s.enqueue(operation{
		run:    func(context.Context) {},
		finish: cb,
	})
}

func (s *Store) done(cb DoneCallback, err error) {
	if err != nil {
		s.logger.Error("Offline store operation failed", "error", err)
	}
	if cb != nil {
		cb(err)
	}
}

func (s *Store) enqueue(op operation) {
	s.queue = append(s.queue, op)
	if !s.busy {
		s.next()
	}
}

// next запускает голову очереди
func (s *Store) next() {
	if len(s.queue) == 0 {
		s.busy = false
		return
	}
	s.busy = true

	op := s.queue[0]
	s.queue = s.queue[1:]

	s.scheduler.Background(
		func() { op.run(context.Background()) },
		func() {
			op.finish()
			s.next()
		},
	)
}
