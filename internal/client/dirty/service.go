// Package dirty отслеживает записи с неподтверждёнными локальными изменениями.
package dirty

import (
	"log/slog"
	"sort"
	"time"

	"github.com/iudanet/recordsync/internal/client/offline"
	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/timer"
)

// RecordName служебное имя, под которым хранится индекс
const RecordName = storage.ReservedPrefix + "dirty_records"

// Service хранит индекс dirty-записей в памяти и периодически сбрасывает его
// в офлайн-хранилище. Он единственный, кто пишет RecordName.
type Service struct {
	store     *offline.Store
	scheduler timer.Scheduler
	logger    *slog.Logger
	dirty     map[string]bool
	waiting   []func()
	interval  time.Duration
	flush     timer.Handle
	changed   bool
	loaded    bool
	loading   bool
}

// NewService создает сервис. Индекс читается из хранилища при первом WhenLoaded.
func NewService(store *offline.Store, scheduler timer.Scheduler, flushInterval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		dirty:     make(map[string]bool),
		interval:  flushInterval,
	}
}

// IsDirty сообщает, есть ли у записи неподтверждённые изменения
func (s *Service) IsDirty(name string) bool {
	return s.dirty[name]
}

// SetDirty меняет отметку и планирует сброс индекса на диск.
// Частые переключения в пределах интервала объединяются в одну запись.
func (s *Service) SetDirty(name string, isDirty bool) {
	if s.dirty[name] == isDirty {
		return
	}
	if isDirty {
		s.dirty[name] = true
	} else {
		delete(s.dirty, name)
	}

	s.changed = true
	s.armFlush()
}

// armFlush взводит таймер сброса. До загрузки индекс на диск не пишется,
// иначе неполный индекс затёр бы сохранённый.
func (s *Service) armFlush() {
	if s.loaded && s.changed && s.flush == 0 {
		s.flush = s.scheduler.AfterFunc(s.interval, s.save)
	}
}

// Names возвращает отсортированный список dirty-записей
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.dirty))
	for name := range s.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WhenLoaded вызывает cb после загрузки индекса, ровно один раз
func (s *Service) WhenLoaded(cb func()) {
	if s.loaded {
		cb()
		return
	}
	s.waiting = append(s.waiting, cb)

	if !s.loading {
		s.loading = true
		s.store.Get(RecordName, s.onLoaded)
	}
}

// Flush немедленно сохраняет индекс, если есть несохранённые изменения
func (s *Service) Flush() {
	if !s.loaded || !s.changed {
		return
	}
	s.scheduler.Cancel(s.flush)
	s.save()
}

func (s *Service) onLoaded(_ int64, data any) {
	if stored, ok := data.(map[string]any); ok {
		for name, v := range stored {
			// Отметки, сделанные до завершения загрузки, не перезаписываем
			if _, seen := s.dirty[name]; !seen && v == true {
				s.dirty[name] = true
			}
		}
	} else if data != nil {
		s.logger.Warn("Ignoring malformed dirty index", "record", RecordName)
	}

	s.loaded = true
	s.loading = false
	s.armFlush()

	waiting := s.waiting
	s.waiting = nil
	for _, cb := range waiting {
		cb()
	}
}

func (s *Service) save() {
	s.flush = 0
	s.changed = false

	snapshot := make(map[string]bool, len(s.dirty))
	for name := range s.dirty {
		snapshot[name] = true
	}

	s.store.Set(RecordName, 0, snapshot, func(err error) {
		if err != nil {
			s.logger.Error("Failed to persist dirty index", "error", err)
		}
	})
}
