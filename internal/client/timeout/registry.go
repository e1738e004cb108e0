// Package timeout отслеживает запросы, на которые ожидается ответ.
package timeout

import (
	"log/slog"
	"time"

	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/pkg/api"
)

// Timeout описывает ожидание ответа на Message в течение Duration.
// Если OnTimeout не задан, истечение таймаута только логируется.
type Timeout struct {
	Message   *api.Message
	OnTimeout func(msg *api.Message)
	// Scope отделяет таймауты разных владельцев одного и того же запроса
	Scope    string
	Duration time.Duration
}

// requestKey ключ взведённого таймаута
type requestKey struct {
	scope   string
	request string
}

// Registry хранит взведённые таймауты по уникальному ключу запроса.
// Повторный Add с тем же ключом и Scope заменяет предыдущий таймер.
type Registry struct {
	conn      connection.Connection
	scheduler timer.Scheduler
	logger    *slog.Logger
	armed     map[requestKey]timer.Handle
	scopes    map[string]struct{}
}

// NewRegistry создает реестр и подписывает его на потерю соединения
func NewRegistry(conn connection.Connection, scheduler timer.Scheduler, logger *slog.Logger) *Registry {
	r := &Registry{
		conn:      conn,
		scheduler: scheduler,
		logger:    logger,
		armed:     make(map[requestKey]timer.Handle),
		scopes:    make(map[string]struct{}),
	}
	conn.OnLost(r.onConnectionLost)
	return r
}

// Add взводит таймаут. В офлайне ничего не взводится и возвращается нулевой Handle:
// повтор запроса произойдёт при восстановлении соединения.
func (r *Registry) Add(t Timeout) timer.Handle {
	if !r.conn.IsConnected() {
		return 0
	}

	msg := t.Message
	key := requestKey{
		scope:   t.Scope,
		request: uniqueName(msg.Topic, msg.Action, msg.Name, msg.CorrelationID),
	}
	r.scopes[t.Scope] = struct{}{}
	r.clear(key)

	var h timer.Handle
	h = r.scheduler.AfterFunc(t.Duration, func() {
		if r.armed[key] != h {
			return
		}
		delete(r.armed, key)
		r.fire(t)
	})
	r.armed[key] = h
	return h
}

// Remove снимает таймауты запроса, на который отвечает msg, во всех Scope
func (r *Registry) Remove(msg *api.Message) {
	for _, action := range api.RequestActions(msg) {
		request := uniqueName(msg.Topic, action, msg.Name, msg.CorrelationID)
		for scope := range r.scopes {
			r.clear(requestKey{scope: scope, request: request})
		}
	}
}

// Clear снимает таймаут по Handle
func (r *Registry) Clear(h timer.Handle) {
	if h == 0 {
		return
	}
	for key, armed := range r.armed {
		if armed == h {
			r.clear(key)
			return
		}
	}
}

// Len возвращает количество взведённых таймаутов
func (r *Registry) Len() int {
	return len(r.armed)
}

func (r *Registry) clear(key requestKey) {
	h, ok := r.armed[key]
	if !ok {
		return
	}
	delete(r.armed, key)
	r.scheduler.Cancel(h)
}

func (r *Registry) fire(t Timeout) {
	if t.OnTimeout != nil {
		t.OnTimeout(t.Message)
		return
	}
	r.logger.Warn("Response timeout",
		"topic", t.Message.Topic,
		"action", t.Message.Action,
		"name", t.Message.Name,
		"correlation_id", t.Message.CorrelationID)
}

// onConnectionLost снимает все таймауты без вызова колбэков
func (r *Registry) onConnectionLost() {
	for key, h := range r.armed {
		r.scheduler.Cancel(h)
		delete(r.armed, key)
	}
}

// uniqueName строит ключ запроса: корреляционный id важнее имени записи
func uniqueName(topic api.Topic, action api.Action, name, correlationID string) string {
	if correlationID != "" {
		return string(topic) + string(action) + correlationID
	}
	return string(topic) + string(action) + name
}
