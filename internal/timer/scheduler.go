// Package timer содержит планировщик, на котором выполняется вся логика клиента.
//
// Клиент однопоточный и кооперативный: обработчики сообщений, срабатывания
// таймеров и завершения операций хранилища выполняются последовательно на
// одном логическом потоке, поэтому компоненты поверх Scheduler не используют
// мьютексы.
package timer

import "time"

// Handle идентифицирует взведённый таймер. Нулевой Handle означает "таймер не взведён".
type Handle uint64

// Scheduler планирует отложенные колбэки и поддерживает их отмену.
type Scheduler interface {
	// Post ставит fn в очередь на выполнение в логическом потоке
	Post(fn func())

	// AfterFunc выполняет fn в логическом потоке через d
	AfterFunc(d time.Duration, fn func()) Handle

	// Cancel отменяет таймер. Возвращает true, если таймер ещё не сработал
	Cancel(h Handle) bool

	// Background выполняет work вне логического потока, затем done в нём
	Background(work func(), done func())
}
