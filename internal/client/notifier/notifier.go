// Package notifier объединяет одновременные одинаковые запросы чтения
// (snapshot, head, has) в один сетевой запрос.
package notifier

import (
	"log/slog"
	"sort"
	"time"

	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/pkg/api"
)

// Callback получает ответ сервера или ошибку
type Callback func(err error, data any)

// Notifier хранит ожидающих ответа по имени записи
type Notifier struct {
	conn      connection.Connection
	scheduler timer.Scheduler
	timeouts  *timeout.Registry
	logger    *slog.Logger
	requests  map[string][]Callback
	topic     api.Topic
	action    api.Action
	timeout   time.Duration
}

// New создает Notifier для одного действия запроса (READ, HEAD или HAS)
func New(conn connection.Connection, scheduler timer.Scheduler, timeouts *timeout.Registry, topic api.Topic, action api.Action, responseTimeout time.Duration, logger *slog.Logger) *Notifier {
	n := &Notifier{
		conn:      conn,
		scheduler: scheduler,
		timeouts:  timeouts,
		logger:    logger,
		requests:  make(map[string][]Callback),
		topic:     topic,
		action:    action,
		timeout:   responseTimeout,
	}
	conn.OnLost(n.onConnectionLost)
	return n
}

// HasRequest сообщает, ожидается ли ответ для name
func (n *Notifier) HasRequest(name string) bool {
	_, ok := n.requests[name]
	return ok
}

// Request запрашивает значение для name. Если запрос уже в пути, cb
// добавляется к ожидающим без повторной отправки.
func (n *Notifier) Request(name string, cb Callback) {
	if !n.conn.IsConnected() {
		n.scheduler.Post(func() { cb(event.ErrClientOffline, nil) })
		return
	}

	if waiters, ok := n.requests[name]; ok {
		n.requests[name] = append(waiters, cb)
		return
	}
	n.requests[name] = []Callback{cb}

	msg := &api.Message{Topic: n.topic, Action: n.action, Name: name}
	n.conn.SendMessage(msg)

	n.timeouts.Add(timeout.Timeout{
		Message:  msg,
		Duration: n.timeout,
		OnTimeout: func(*api.Message) {
			n.Receive(name, event.ErrResponseTimeout, nil)
		},
	})
}

// Receive раздаёт один ответ всем ожидающим name и очищает список
func (n *Notifier) Receive(name string, err error, data any) {
	waiters, ok := n.requests[name]
	if !ok {
		n.logger.Warn("Unsolicited response",
			"action", n.action,
			"name", name)
		return
	}
	delete(n.requests, name)

	for _, cb := range waiters {
		cb(err, data)
	}
}

// onConnectionLost завершает все ожидания ошибкой офлайна
func (n *Notifier) onConnectionLost() {
	names := make([]string, 0, len(n.requests))
	for name := range n.requests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n.Receive(name, event.ErrClientOffline, nil)
	}
}
