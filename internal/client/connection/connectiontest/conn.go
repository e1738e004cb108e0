// Package connectiontest предоставляет Connection для тестов: записывает
// отправленные сообщения и позволяет вручную терять и восстанавливать соединение.
package connectiontest

import (
	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/pkg/api"
)

// Conn тестовое соединение
type Conn struct {
	connection.Hooks
	sent      []*api.Message
	connected bool
}

// New создает тестовое соединение в заданном состоянии
func New(connected bool) *Conn {
	return &Conn{connected: connected}
}

// SendMessage запоминает копию сообщения
func (c *Conn) SendMessage(msg *api.Message) {
	cp := *msg
	c.sent = append(c.sent, &cp)
}

// IsConnected implements connection.Connection
func (c *Conn) IsConnected() bool {
	return c.connected
}

// Lose переводит соединение в офлайн и вызывает обработчики потери
func (c *Conn) Lose() {
	c.connected = false
	c.FireLost()
}

// Reestablish восстанавливает соединение и вызывает обработчики
func (c *Conn) Reestablish() {
	c.connected = true
	c.FireReestablished()
}

// Sent возвращает все отправленные сообщения
func (c *Conn) Sent() []*api.Message {
	return c.sent
}

// Actions возвращает действия отправленных сообщений по порядку
func (c *Conn) Actions() []api.Action {
	actions := make([]api.Action, 0, len(c.sent))
	for _, msg := range c.sent {
		actions = append(actions, msg.Action)
	}
	return actions
}

// Last возвращает последнее отправленное сообщение или nil
func (c *Conn) Last() *api.Message {
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

// Reset очищает список отправленных сообщений
func (c *Conn) Reset() {
	c.sent = nil
}
