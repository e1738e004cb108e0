package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop реализует Scheduler поверх одной горутины, запущенной через Run.
// Post и AfterFunc безопасно вызывать из любых горутин.
type Loop struct {
	logger *slog.Logger
	wake   chan struct{}
	timers map[Handle]*time.Timer
	queue  []func()
	next   Handle
	mu     sync.Mutex
}

// NewLoop создает новый event loop
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		timers: make(map[Handle]*time.Timer),
	}
}

// Post ставит fn в очередь. Очередь не ограничена, поэтому Post не блокируется
// даже при вызове из самого loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc выполняет fn в loop через d
func (l *Loop) AfterFunc(d time.Duration, fn func()) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	h := l.next
	l.timers[h] = time.AfterFunc(d, func() {
		l.Post(func() {
			// Таймер мог быть отменён, пока задача ждала в очереди
			if l.take(h) {
				fn()
			}
		})
	})
	return h
}

// Cancel отменяет таймер
func (l *Loop) Cancel(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.timers[h]
	if !ok {
		return false
	}
	delete(l.timers, h)
	t.Stop()
	return true
}

// Background выполняет work в отдельной горутине и публикует done в loop
func (l *Loop) Background(work func(), done func()) {
	go func() {
		work()
		l.Post(done)
	}()
}

// Do выполняет fn в loop и ждёт завершения.
// Используется кодом, работающим вне логического потока (CLI, транспорт).
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run обрабатывает очередь до отмены ctx
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("Event loop started")
	defer l.stopTimers()

	for {
		// Паника в задаче не перехватывается: недопустимый переход
		// состояния записи должен завершить процесс
		for _, fn := range l.drain() {
			fn()
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("Event loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := l.queue
	l.queue = nil
	return tasks
}

func (l *Loop) take(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.timers[h]; !ok {
		return false
	}
	delete(l.timers, h)
	return true
}

func (l *Loop) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for h, t := range l.timers {
		t.Stop()
		delete(l.timers, h)
	}
}
