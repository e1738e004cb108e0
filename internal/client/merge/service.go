// Package merge выбирает и вызывает стратегию разрешения конфликта версий.
package merge

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/iudanet/recordsync/internal/client/event"
)

// Conflict локальная и удалённая версии одной записи
type Conflict struct {
	LocalData     any
	RemoteData    any
	Name          string
	LocalVersion  int64
	RemoteVersion int64
}

// Done получает результат слияния. merged == nil означает удаление записи.
type Done func(merged any, err error)

// Strategy разрешает конфликт и вызывает done ровно один раз,
// возможно асинхронно.
type Strategy func(c Conflict, done Done)

// RemoteWins всегда принимает удалённые данные
func RemoteWins(c Conflict, done Done) {
	done(c.RemoteData, nil)
}

// LocalWins всегда сохраняет локальные данные
func LocalWins(c Conflict, done Done) {
	done(c.LocalData, nil)
}

// ByName возвращает встроенную стратегию по имени из конфигурации
func ByName(name string) (Strategy, error) {
	switch name {
	case "remote-wins":
		return RemoteWins, nil
	case "local-wins":
		return LocalWins, nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", name)
	}
}

type patternStrategy struct {
	pattern  *regexp.Regexp
	strategy Strategy
}

// Service хранит стратегии: по точному имени, по шаблону и по умолчанию
type Service struct {
	logger   *slog.Logger
	byName   map[string]Strategy
	fallback Strategy
	patterns []patternStrategy
}

// NewService создает сервис со стратегией по умолчанию fallback (может быть nil)
func NewService(fallback Strategy, logger *slog.Logger) *Service {
	return &Service{
		logger:   logger,
		byName:   make(map[string]Strategy),
		fallback: fallback,
	}
}

// SetStrategy задаёт стратегию для записи с точным именем
func (s *Service) SetStrategy(name string, strategy Strategy) {
	s.byName[name] = strategy
}

// SetPatternStrategy задаёт стратегию для имён, подходящих под pattern.
// Шаблоны проверяются в порядке регистрации.
func (s *Service) SetPatternStrategy(pattern *regexp.Regexp, strategy Strategy) {
	s.patterns = append(s.patterns, patternStrategy{pattern: pattern, strategy: strategy})
}

// SetDefault задаёт стратегию по умолчанию
func (s *Service) SetDefault(strategy Strategy) {
	s.fallback = strategy
}

// Lookup возвращает стратегию для имени записи
func (s *Service) Lookup(name string) (Strategy, bool) {
	if strategy, ok := s.byName[name]; ok {
		return strategy, true
	}
	for _, p := range s.patterns {
		if p.pattern.MatchString(name) {
			return p.strategy, true
		}
	}
	if s.fallback != nil {
		return s.fallback, true
	}
	return nil, false
}

// Merge разрешает конфликт подходящей стратегией.
// Без стратегии done получает event.ErrNoMergeStrategy.
func (s *Service) Merge(c Conflict, done Done) {
	strategy, ok := s.Lookup(c.Name)
	if !ok {
		s.logger.Warn("Unrecoverable conflict: no merge strategy",
			"record", c.Name,
			"local_version", c.LocalVersion,
			"remote_version", c.RemoteVersion)
		done(nil, event.ErrNoMergeStrategy)
		return
	}

	called := false
	strategy(c, func(merged any, err error) {
		if called {
			s.logger.Error("Merge strategy completed twice", "record", c.Name)
			return
		}
		called = true
		done(merged, err)
	})
}
