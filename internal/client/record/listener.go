package record

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/pkg/api"
)

// ListenCallback вызывается, когда у записи match, подходящей под паттерн,
// появляется (isSubscribed) или пропадает последний подписчик.
// response задан только при появлении и позволяет принять или отклонить роль провайдера.
type ListenCallback func(match string, isSubscribed bool, response *ListenResponse)

// ListenResponse ответ провайдера на найденную подписку
type ListenResponse struct {
	listener *Listener
	pattern  string
	match    string
	answered bool
}

// Accept сообщает серверу, что клиент будет провайдером записи
func (r *ListenResponse) Accept() {
	r.answer(api.ActionListenAccept)
}

// Reject отказывается быть провайдером записи
func (r *ListenResponse) Reject() {
	r.answer(api.ActionListenReject)
}

func (r *ListenResponse) answer(action api.Action) {
	if r.answered {
		r.listener.logger.Warn("Listen response already sent",
			"pattern", r.pattern,
			"match", r.match)
		return
	}
	r.answered = true

	if !r.listener.conn.IsConnected() {
		return
	}
	r.listener.conn.SendMessage(&api.Message{
		Topic:        api.TopicRecord,
		Action:       action,
		Name:         r.pattern,
		Subscription: r.match,
	})
}

// Listener хранит активные паттерны listen и переотправляет их после переподключения
type Listener struct {
	conn     connection.Connection
	timeouts *timeout.Registry
	logger   *slog.Logger
	patterns map[string]ListenCallback
	timeout  time.Duration
}

// NewListener создает Listener
func NewListener(conn connection.Connection, timeouts *timeout.Registry, listenTimeout time.Duration, logger *slog.Logger) *Listener {
	return &Listener{
		conn:     conn,
		timeouts: timeouts,
		logger:   logger,
		patterns: make(map[string]ListenCallback),
		timeout:  listenTimeout,
	}
}

// Listen начинает слушать подписки на записи, подходящие под pattern
func (l *Listener) Listen(pattern string, cb ListenCallback) error {
	if pattern == "" || cb == nil {
		return fmt.Errorf("%w: listen requires pattern and callback", event.ErrInvalidArgs)
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}
	if _, ok := l.patterns[pattern]; ok {
		l.logger.Warn("Already listening", "pattern", pattern)
		return fmt.Errorf("%w: already listening for %q", event.ErrInvalidArgs, pattern)
	}

	l.patterns[pattern] = cb
	l.send(api.ActionListen, pattern)
	return nil
}

// Unlisten перестаёт слушать pattern
func (l *Listener) Unlisten(pattern string) error {
	if _, ok := l.patterns[pattern]; !ok {
		l.logger.Warn("Not listening", "pattern", pattern)
		return fmt.Errorf("%w: not listening for %q", event.ErrInvalidArgs, pattern)
	}

	delete(l.patterns, pattern)
	l.send(api.ActionUnlisten, pattern)
	return nil
}

// Patterns возвращает отсортированный список активных паттернов
func (l *Listener) Patterns() []string {
	patterns := make([]string, 0, len(l.patterns))
	for p := range l.patterns {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns
}

func (l *Listener) send(action api.Action, pattern string) {
	if !l.conn.IsConnected() {
		// паттерн будет отправлен после подключения
		return
	}

	msg := &api.Message{Topic: api.TopicRecord, Action: action, Name: pattern}
	l.conn.SendMessage(msg)

	if l.timeout > 0 {
		l.timeouts.Add(timeout.Timeout{Message: msg, Duration: l.timeout})
	}
}

func (l *Listener) handle(msg *api.Message) {
	if msg.IsError {
		l.logger.Error("Listen request failed",
			"pattern", msg.Name,
			"error", event.ServerErrorFrom(msg))
		return
	}

	cb, ok := l.patterns[msg.Name]

	switch msg.Action {
	case api.ActionSubscriptionForPatternFound:
		if !ok {
			l.logger.Warn("Subscription found for unknown pattern", "pattern", msg.Name)
			return
		}
		cb(msg.Subscription, true, &ListenResponse{listener: l, pattern: msg.Name, match: msg.Subscription})
	case api.ActionSubscriptionForPatternRemoved:
		if !ok {
			return
		}
		cb(msg.Subscription, false, nil)
	case api.ActionListen, api.ActionUnlisten:
		// подтверждения
	default:
		l.logger.Warn("Unexpected listen message", "action", msg.Action)
	}
}

func (l *Listener) onConnectionReestablished() {
	for _, pattern := range l.Patterns() {
		l.send(api.ActionListen, pattern)
	}
}
