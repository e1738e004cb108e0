package timer

import (
	"sort"
	"time"
)

// Manual детерминированный Scheduler для тестов.
// Время двигается только через Advance, очередь выполняется через Flush.
type Manual struct {
	timers map[Handle]*manualTimer
	queue  []func()
	now    time.Duration
	next   Handle
}

type manualTimer struct {
	fn     func()
	at     time.Duration
	handle Handle
}

// NewManual создает планировщик с виртуальным временем 0
func NewManual() *Manual {
	return &Manual{
		timers: make(map[Handle]*manualTimer),
	}
}

// Post ставит fn в очередь до следующего Flush
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// AfterFunc взводит таймер относительно виртуального времени
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.next++
	m.timers[m.next] = &manualTimer{fn: fn, at: m.now + d, handle: m.next}
	return m.next
}

// Cancel отменяет таймер
func (m *Manual) Cancel(h Handle) bool {
	if _, ok := m.timers[h]; !ok {
		return false
	}
	delete(m.timers, h)
	return true
}

// Background выполняет work сразу, а done откладывает до Flush
func (m *Manual) Background(work func(), done func()) {
	work()
	m.Post(done)
}

// Flush выполняет очередь, включая задачи, добавленные во время выполнения
func (m *Manual) Flush() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Advance сдвигает виртуальное время на d, срабатывая таймеры по порядку
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	deadline := m.now + d

	for {
		due := m.due(deadline)
		if due == nil {
			break
		}
		delete(m.timers, due.handle)
		m.now = due.at
		due.fn()
		m.Flush()
	}

	m.now = deadline
}

// Now возвращает виртуальное время
func (m *Manual) Now() time.Duration {
	return m.now
}

// Armed возвращает количество взведённых таймеров
func (m *Manual) Armed() int {
	return len(m.timers)
}

// due возвращает самый ранний таймер не позже deadline
func (m *Manual) due(deadline time.Duration) *manualTimer {
	candidates := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if t.at <= deadline {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].at != candidates[j].at {
			return candidates[i].at < candidates[j].at
		}
		return candidates[i].handle < candidates[j].handle
	})
	return candidates[0]
}
