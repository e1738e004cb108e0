package record

import (
	"fmt"

	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/merge"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/models"
	"github.com/iudanet/recordsync/pkg/api"
)

func (c *Core) onReadResponse(msg *api.Message) {
	switch c.state {
	case StateSubscribing:
		data := msg.Data
		if data == nil {
			data = map[string]any{}
		}
		c.version, c.data = msg.Version, data
		c.transition(triggerSubscribed)
		c.persist()
		c.onReady()
	case StateMerging:
		c.recover(msg.Version, msg.Data)
	default:
		c.logger.Debug("Ignoring read response", "state", c.state)
	}
}

// onHeadResponse сверяет локальную версию с серверной после (пере)подписки
func (c *Core) onHeadResponse(msg *api.Message) {
	if c.state != StateResubscribing {
		c.logger.Debug("Ignoring head response", "state", c.state)
		return
	}

	remote := msg.Version
	isDirty := c.svc.dirty.IsDirty(c.name)
	if remote != models.NoVersion {
		// Сервер знает запись, создавать её заново нельзя
		c.createdOffline = false
	}

	switch {
	case remote == c.version && !isDirty:
		c.transition(triggerResubscribed)
		c.onReady()

	case isDirty && remote == models.NoVersion && c.createdOffline:
		// Запись создана офлайн, сервер о ней ещё не знает
		c.createdOffline = false
		c.svc.dirty.SetDirty(c.name, false)
		c.sendWrite(c.fullMessage(api.ActionCreateAndUpdate), nil)
		c.transition(triggerResubscribed)
		c.persist()
		c.onReady()

	case isDirty && c.version == remote+1:
		// Офлайн-изменение ровно на одну версию впереди сервера
		c.svc.dirty.SetDirty(c.name, false)
		c.sendWrite(c.fullMessage(api.ActionUpdate), nil)
		c.transition(triggerResubscribed)
		c.onReady()

	case remote == models.NoVersion:
		// Запись удалена на сервере, пока клиент был офлайн
		c.startConflict()
		c.recover(models.NoVersion, nil)

	default:
		c.startConflict()
		c.sendRead()
	}
}

func (c *Core) fullMessage(action api.Action) *api.Message {
	return &api.Message{
		Topic:   api.TopicRecord,
		Action:  action,
		Name:    c.name,
		Version: c.version,
		Data:    c.data,
	}
}

// applyUpdate применяет входящее изменение другого клиента
func (c *Core) applyUpdate(msg *api.Message) {
	if c.state == StateMerging {
		// Ответ на чтение при слиянии всё равно перекроет это изменение
		c.logger.Debug("Ignoring update while merging", "version", msg.Version)
		return
	}
	if !c.writable() {
		c.logger.Debug("Ignoring update", "state", c.state, "version", msg.Version)
		return
	}

	if msg.Version == c.version+1 {
		data, err := c.patched(msg)
		if err != nil {
			// Изменение нельзя применить, сервер пришлёт полный снимок
			c.logger.Warn("Dropping update with invalid path",
				"path", msg.Path,
				"version", msg.Version,
				"error", err)
			c.startConflict()
			c.sendRead()
			return
		}

		old := c.data
		c.data = data
		c.version = msg.Version
		c.persist()
		c.notify(old, c.data)
		return
	}

	if msg.Version < c.version {
		c.logger.Warn("Ignoring stale update",
			"version", msg.Version,
			"local_version", c.version)
		return
	}
	if msg.Version == c.version && msg.Action == api.ActionUpdate && jsonpath.Equal(msg.Data, c.data) {
		return
	}

	c.logger.Warn("Update out of sequence",
		"action", msg.Action,
		"version", msg.Version,
		"local_version", c.version)
	c.startConflict()

	if msg.Action == api.ActionUpdate {
		c.recover(msg.Version, msg.Data)
		return
	}
	// Патч нельзя слить вслепую, нужен полный снимок
	c.sendRead()
}

// patched возвращает данные после применения входящего изменения
func (c *Core) patched(msg *api.Message) (any, error) {
	switch msg.Action {
	case api.ActionPatch:
		return c.svc.paths.Set(c.data, msg.Path, msg.Data)
	case api.ActionErase:
		return c.svc.paths.Delete(c.data, msg.Path)
	default:
		return msg.Data, nil
	}
}

// onVersionExists сервер отклонил запись: версия уже занята другим клиентом
func (c *Core) onVersionExists(msg *api.Message) {
	if msg.CorrelationID != "" {
		if cb, ok := c.svc.acks.Detach(msg.CorrelationID); ok {
			// Исход записи решит слияние
			c.conflictAcks = append(c.conflictAcks, cb)
		}
	}

	switch c.state {
	case StateReady, StateUnsubscribing:
		c.startConflict()
	case StateMerging:
		// слияние уже идёт, результат перекроет этот ответ
		return
	default:
		c.logger.Warn("Version exists in unexpected state", "state", c.state)
		return
	}

	if msg.Data != nil {
		c.recover(msg.Version, msg.Data)
		return
	}
	c.sendRead()
}

func (c *Core) onRecordNotFound(msg *api.Message) {
	if c.state == StateMerging {
		c.recover(models.NoVersion, nil)
		return
	}
	c.emitError(event.ServerErrorFrom(msg))
}

// onDenied сервер отказал в выполнении запроса
func (c *Core) onDenied(msg *api.Message) {
	err := event.ServerErrorFrom(msg)

	if msg.OriginalAction == api.ActionDelete {
		c.failDelete(err)
		return
	}
	c.emitError(err)
}

// startConflict переводит запись в MERGING. Отложенная отписка
// возобновится, когда запись снова станет READY.
func (c *Core) startConflict() {
	if c.state == StateUnsubscribing {
		c.cancelDiscard()
		c.discardPending = true
	}
	c.transition(triggerConflict)
}

// recover разрешает конфликт между локальной копией и remoteData.
// remoteVersion == models.NoVersion означает, что запись удалена на сервере.
func (c *Core) recover(remoteVersion int64, remoteData any) {
	if jsonpath.Equal(c.data, remoteData) {
		c.finishMerge(remoteVersion, remoteData, false)
		return
	}

	c.mergeToken++
	token := c.mergeToken

	c.svc.merge.Merge(merge.Conflict{
		Name:          c.name,
		LocalData:     jsonpath.Clone(c.data),
		LocalVersion:  c.version,
		RemoteData:    jsonpath.Clone(remoteData),
		RemoteVersion: remoteVersion,
	}, func(merged any, err error) {
		if token != c.mergeToken || c.destroyed || c.state != StateMerging {
			c.logger.Debug("Dropping stale merge result")
			return
		}

		if err == nil {
			merged, err = jsonpath.Normalize(merged)
		}
		if err != nil {
			c.mergeFailed(err)
			return
		}

		switch {
		case merged == nil && remoteVersion == models.NoVersion:
			c.transition(triggerDeletedRemotely)
			c.finishDeleted()
		case merged == nil:
			c.failConflictAcks(event.ErrRecordDeleted)
			c.transition(triggerDelete)
			c.sendDelete()
		case jsonpath.Equal(merged, remoteData):
			c.finishMerge(remoteVersion, merged, false)
		default:
			c.finishMerge(remoteVersion, merged, true)
		}
	})
}

// finishMerge принимает результат слияния. resend отправляет его на сервер
// новой версией, чтобы сервер пришёл к тому же состоянию.
func (c *Core) finishMerge(remoteVersion int64, merged any, resend bool) {
	// Версия не уменьшается, даже если сервер отстал
	version := max(remoteVersion, c.version)
	old := c.data
	c.data = merged

	acks := c.conflictAcks
	c.conflictAcks = nil

	switch {
	case resend && c.svc.conn.IsConnected():
		action := api.ActionUpdate
		if remoteVersion == models.NoVersion {
			action = api.ActionCreateAndUpdate
		}
		c.version = version + 1
		c.createdOffline = false
		c.svc.dirty.SetDirty(c.name, false)
		c.sendWrite(c.fullMessage(action), combine(acks))
	case resend:
		// Соединение потеряно во время слияния: результат уйдёт после подключения
		c.version = version + 1
		c.createdOffline = remoteVersion == models.NoVersion
		c.svc.dirty.SetDirty(c.name, true)
		for _, cb := range acks {
			cb(event.ErrClientOffline)
		}
	default:
		c.version = version
		c.createdOffline = false
		c.svc.dirty.SetDirty(c.name, false)
		for _, cb := range acks {
			cb(nil)
		}
	}

	c.transition(triggerMerged)
	c.persist()
	c.notify(old, c.data)
	c.onReady()
}

// mergeFailed оставляет запись устаревшей до следующего изменения
func (c *Core) mergeFailed(err error) {
	wrapped := fmt.Errorf("merge record %q: %w", c.name, err)
	c.logger.Warn("Failed to merge conflict", "error", err)

	c.failConflictAcks(wrapped)
	c.transition(triggerMergeFailed)
	c.emitError(wrapped)
	c.onReady()
}

func (c *Core) failConflictAcks(err error) {
	acks := c.conflictAcks
	c.conflictAcks = nil
	for _, cb := range acks {
		cb(err)
	}
}

func (c *Core) onDeleteSuccess() {
	if c.state != StateDeleting {
		c.logger.Warn("Unexpected delete success", "state", c.state)
		return
	}
	c.transition(triggerDeleteSuccess)
	c.finishDeleted()
}

func (c *Core) onDeletedRemotely() {
	if c.state.IsTerminal() {
		return
	}
	c.transition(triggerDeletedRemotely)
	c.finishDeleted()
}

// finishDeleted убирает запись из офлайн-хранилища и освобождает Core
func (c *Core) finishDeleted() {
	c.svc.dirty.SetDirty(c.name, false)
	c.svc.offline.Delete(c.name, nil)

	waiters := c.deleteWaiters
	c.deleteWaiters = nil
	for _, cb := range waiters {
		cb(nil)
	}
	c.failConflictAcks(event.ErrRecordDeleted)

	for _, h := range c.deleted {
		h.fn()
	}
	c.destroy()
}
