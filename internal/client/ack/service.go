// Package ack связывает исходящие изменения записей с асинхронными
// подтверждениями сервера через корреляционный id.
package ack

import (
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/pkg/api"
)

// Callback получает nil при подтверждении записи или ошибку
type Callback func(err error)

// Service хранит колбэки ожидающих подтверждения записей.
// Корреляционный id это простой счётчик, который не переиспользуется.
type Service struct {
	conn      connection.Connection
	scheduler timer.Scheduler
	timeouts  *timeout.Registry
	logger    *slog.Logger
	responses map[int64]Callback
	count     int64
	timeout   time.Duration
}

// NewService создает сервис подтверждений. ackTimeout = 0 отключает таймауты.
func NewService(conn connection.Connection, scheduler timer.Scheduler, timeouts *timeout.Registry, ackTimeout time.Duration, logger *slog.Logger) *Service {
	s := &Service{
		conn:      conn,
		scheduler: scheduler,
		timeouts:  timeouts,
		logger:    logger,
		responses: make(map[int64]Callback),
		timeout:   ackTimeout,
	}
	conn.OnLost(s.onConnectionLost)
	return s
}

// Send помечает сообщение как write-ack и отправляет его.
// В офлайне сообщение не отправляется, а cb асинхронно получает ErrClientOffline.
func (s *Service) Send(msg *api.Message, cb Callback) {
	if !s.conn.IsConnected() {
		s.scheduler.Post(func() { s.invoke(cb, event.ErrClientOffline) })
		return
	}

	s.count++
	id := s.count
	msg.CorrelationID = strconv.FormatInt(id, 10)
	msg.IsWriteAck = true
	s.responses[id] = cb

	s.conn.SendMessage(msg)

	if s.timeout > 0 {
		s.timeouts.Add(timeout.Timeout{
			Message:  msg,
			Duration: s.timeout,
			OnTimeout: func(*api.Message) {
				s.complete(id, event.ErrResponseTimeout)
			},
		})
	}
}

// Receive доставляет ответ сервера колбэку по корреляционному id.
// Ответы без ожидающего колбэка отбрасываются.
func (s *Service) Receive(msg *api.Message) {
	id, err := strconv.ParseInt(msg.CorrelationID, 10, 64)
	if err != nil {
		s.logger.Warn("Write acknowledgement without valid correlation id",
			"name", msg.Name,
			"correlation_id", msg.CorrelationID)
		return
	}

	if !s.complete(id, event.FromMessage(msg)) {
		s.logger.Warn("Unsolicited write acknowledgement",
			"name", msg.Name,
			"correlation_id", msg.CorrelationID)
	}
}

// Detach забирает колбэк, не вызывая его. Используется, когда исход записи
// решается слиянием конфликта, а не ответом на исходное сообщение.
func (s *Service) Detach(correlationID string) (Callback, bool) {
	id, err := strconv.ParseInt(correlationID, 10, 64)
	if err != nil {
		return nil, false
	}
	cb, ok := s.responses[id]
	if !ok {
		return nil, false
	}
	delete(s.responses, id)
	return cb, true
}

// Pending возвращает количество неподтверждённых записей
func (s *Service) Pending() int {
	return len(s.responses)
}

func (s *Service) complete(id int64, err error) bool {
	cb, ok := s.responses[id]
	if !ok {
		return false
	}
	delete(s.responses, id)
	s.invoke(cb, err)
	return true
}

func (s *Service) invoke(cb Callback, err error) {
	if cb != nil {
		cb(err)
	}
}

// onConnectionLost завершает все ожидающие колбэки ошибкой офлайна.
// Ответы на эти id после переподключения уже не будут обработаны.
func (s *Service) onConnectionLost() {
	ids := make([]int64, 0, len(s.responses))
	for id := range s.responses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s.complete(id, event.ErrClientOffline)
	}
}
