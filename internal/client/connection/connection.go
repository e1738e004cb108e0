// Package connection описывает транспорт, через который ядро записей
// общается с сервером.
package connection

import "github.com/iudanet/recordsync/pkg/api"

// Connection транспорт сообщений.
// Обработчики OnLost и OnReestablished вызываются в порядке регистрации,
// ровно один раз на каждое событие, в логическом потоке клиента.
type Connection interface {
	// SendMessage отправляет сообщение без ожидания ответа
	SendMessage(msg *api.Message)

	// IsConnected сообщает, установлено ли соединение
	IsConnected() bool

	// OnLost регистрирует обработчик потери соединения
	OnLost(fn func())

	// OnReestablished регистрирует обработчик восстановления соединения
	OnReestablished(fn func())
}

// Hooks хранит обработчики смены состояния соединения.
// Встраивается в реализации Connection.
type Hooks struct {
	lost          []func()
	reestablished []func()
}

// OnLost регистрирует обработчик потери соединения
func (h *Hooks) OnLost(fn func()) {
	h.lost = append(h.lost, fn)
}

// OnReestablished регистрирует обработчик восстановления соединения
func (h *Hooks) OnReestablished(fn func()) {
	h.reestablished = append(h.reestablished, fn)
}

// FireLost вызывает обработчики потери соединения
func (h *Hooks) FireLost() {
	for _, fn := range h.lost {
		fn()
	}
}

// FireReestablished вызывает обработчики восстановления соединения
func (h *Hooks) FireReestablished() {
	for _, fn := range h.reestablished {
		fn()
	}
}
