package record

import (
	"fmt"

	"github.com/iudanet/recordsync/internal/client/ack"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/validation"
	"github.com/iudanet/recordsync/pkg/api"
)

// pendingWrite изменение, ожидающее готовности записи
type pendingWrite struct {
	value any
	cb    ack.Callback
	path  string
	erase bool
}

// Set записывает value по пути path. Пустой путь заменяет весь документ,
// в этом случае value должен быть объектом или массивом.
// cb (может быть nil) получает подтверждение сервера, ошибку офлайна или отказ.
func (c *Core) Set(path string, value any, cb ack.Callback) error {
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	normalized, err := jsonpath.Normalize(value)
	if err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	if path == "" && jsonpath.IsScalar(normalized) {
		return fmt.Errorf("%w: scalar value requires a path", event.ErrInvalidArgs)
	}

	return c.write(pendingWrite{path: path, value: normalized, cb: cb})
}

// Erase удаляет значение по непустому пути
func (c *Core) Erase(path string, cb ack.Callback) error {
	if path == "" {
		return fmt.Errorf("%w: erase requires a path", event.ErrInvalidArgs)
	}
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	return c.write(pendingWrite{path: path, erase: true, cb: cb})
}

func (c *Core) write(w pendingWrite) error {
	if c.destroyed {
		c.logger.Error("Write to destroyed record", "path", w.path)
		return event.ErrRecordDestroyed
	}

	if !c.svc.opts.CanWrite(c.name) {
		c.logger.Error("Write dropped in read-only mode", "path", w.path)
		c.complete(w.cb, event.ErrRecordReadOnly)
		return nil
	}

	if c.state == StateDeleting {
		c.logger.Warn("Write to record being deleted", "path", w.path)
		c.complete(w.cb, event.ErrRecordDeleted)
		return nil
	}

	if !c.writable() {
		c.pendingWrites = append(c.pendingWrites, w)
		return nil
	}

	c.applyWrites([]pendingWrite{w})
	return nil
}

// applyWrites применяет изменения одним патчем и отправляет одно сообщение
func (c *Core) applyWrites(writes []pendingWrite) {
	data := c.data
	callbacks := make([]ack.Callback, 0, len(writes))
	for _, w := range writes {
		var err error
		if w.erase {
			data, err = c.svc.paths.Delete(data, w.path)
		} else {
			data, err = c.svc.paths.Set(data, w.path, w.value)
		}
		if err != nil {
			c.logger.Error("Write with invalid path dropped", "path", w.path, "error", err)
			c.complete(w.cb, fmt.Errorf("%w: %v", event.ErrInvalidArgs, err))
			continue
		}
		if w.cb != nil {
			callbacks = append(callbacks, w.cb)
		}
	}

	if jsonpath.Equal(data, c.data) {
		for _, cb := range callbacks {
			c.complete(cb, nil)
		}
		return
	}

	old := c.data
	c.data = data
	c.version = c.nextVersion()
	msg := c.writeMessage(writes)

	if c.svc.conn.IsConnected() {
		c.svc.dirty.SetDirty(c.name, false)
		c.sendWrite(msg, combine(callbacks))
	} else {
		// Запись уйдёт после подключения, но вызывающий узнаёт об офлайне сразу
		c.svc.dirty.SetDirty(c.name, true)
		for _, cb := range callbacks {
			c.complete(cb, event.ErrClientOffline)
		}
	}

	c.persist()
	c.notify(old, data)
}

// nextVersion версия следующего изменения. Пока запись dirty, её версия уже
// поднята неотправленным офлайн-изменением и используется повторно.
func (c *Core) nextVersion() int64 {
	if c.svc.dirty.IsDirty(c.name) {
		return c.version
	}
	return c.version + 1
}

func (c *Core) writeMessage(writes []pendingWrite) *api.Message {
	msg := &api.Message{
		Topic:   api.TopicRecord,
		Name:    c.name,
		Version: c.version,
	}

	if len(writes) == 1 && writes[0].path != "" {
		msg.Path = writes[0].path
		if writes[0].erase {
			msg.Action = api.ActionErase
		} else {
			msg.Action = api.ActionPatch
			msg.Data = writes[0].value
		}
		return msg
	}

	msg.Action = api.ActionUpdate
	msg.Data = c.data
	return msg
}

// sendWrite отправляет изменение; с колбэком через сервис подтверждений
func (c *Core) sendWrite(msg *api.Message, cb ack.Callback) {
	if cb == nil {
		c.svc.conn.SendMessage(msg)
		return
	}

	c.inflight++
	c.svc.acks.Send(msg, func(err error) {
		c.inflight--
		cb(err)
	})
}

// complete асинхронно вызывает cb
func (c *Core) complete(cb ack.Callback, err error) {
	if cb == nil {
		return
	}
	c.svc.scheduler.Post(func() { cb(err) })
}

// combine объединяет колбэки в один или возвращает nil
func combine(callbacks []ack.Callback) ack.Callback {
	if len(callbacks) == 0 {
		return nil
	}
	return func(err error) {
		for _, cb := range callbacks {
			cb(err)
		}
	}
}

// Delete удаляет запись на сервере. До готовности записи удаление откладывается.
func (c *Core) Delete(cb ack.Callback) error {
	if c.destroyed {
		c.logger.Error("Delete of destroyed record")
		return event.ErrRecordDestroyed
	}

	if !c.svc.opts.CanWrite(c.name) {
		c.logger.Error("Delete dropped in read-only mode")
		c.complete(cb, event.ErrRecordReadOnly)
		return nil
	}

	switch c.state {
	case StateDeleting:
		if cb != nil {
			c.deleteWaiters = append(c.deleteWaiters, cb)
		}
		return nil
	case StateLoadingOffline, StateSubscribing, StateResubscribing:
		c.deferred = append(c.deferred, func() {
			if err := c.Delete(cb); err != nil {
				c.complete(cb, err)
			}
		})
		return nil
	}

	if !c.svc.conn.IsConnected() {
		c.complete(cb, event.ErrClientOffline)
		return nil
	}

	if cb != nil {
		c.deleteWaiters = append(c.deleteWaiters, cb)
	}
	if c.state == StateUnsubscribing {
		// Если удаление не удастся, отписка продолжится
		c.discardPending = true
	}
	c.cancelDiscard()
	c.transition(triggerDelete)
	c.sendDelete()
	return nil
}

func (c *Core) sendDelete() {
	msg := &api.Message{Topic: api.TopicRecord, Action: api.ActionDelete, Name: c.name}
	c.svc.conn.SendMessage(msg)

	if c.svc.opts.DeleteTimeout > 0 {
		c.svc.timeouts.Add(timeoutFor(msg, c.svc.opts.DeleteTimeout, func() {
			err := fmt.Errorf("%w: %s", event.ErrResponseTimeout, api.ActionDelete)
			c.failDelete(err)
		}))
	}
}

// failDelete возвращает запись в READY и сообщает ожидающим об ошибке удаления
func (c *Core) failDelete(err error) {
	if c.state != StateDeleting {
		return
	}
	c.transition(triggerDeleteFailed)

	waiters := c.deleteWaiters
	c.deleteWaiters = nil
	for _, cb := range waiters {
		cb(err)
	}
	c.emitError(err)
	c.onReady()
}
