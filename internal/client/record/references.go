package record

import (
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/pkg/api"
)

// AddReference регистрирует владельца записи. owner должен быть сравнимым значением.
// Новая ссылка во время отписки возвращает запись в READY.
func (c *Core) AddReference(owner any) error {
	if c.destroyed {
		return event.ErrRecordDestroyed
	}

	c.references[owner]++
	c.refCount++
	c.discardPending = false

	if c.state != StateUnsubscribing {
		return nil
	}

	c.cancelDiscard()
	c.transition(triggerReferenced)

	if c.staleSession {
		// Соединение переподключалось во время отписки, серверная подписка потеряна
		c.staleSession = false
		if c.svc.conn.IsConnected() {
			c.onConnectionReestablished()
		}
	}
	return nil
}

// Discard снимает одну ссылку owner. Когда ссылок не остаётся, запись
// отписывается после периода ожидания.
func (c *Core) Discard(owner any) error {
	if c.destroyed {
		c.logger.Error("Discard of destroyed record")
		return event.ErrRecordDestroyed
	}

	n := c.references[owner]
	if n == 0 {
		c.logger.Warn("Discard without reference")
		return nil
	}
	if n == 1 {
		delete(c.references, owner)
		c.UnsubscribeOwner(owner)
	} else {
		c.references[owner] = n - 1
	}
	c.refCount--

	if c.refCount > 0 {
		return nil
	}

	if c.state != StateReady {
		// Отписка начнётся, когда запись станет READY
		c.discardPending = true
		return nil
	}

	c.beginDiscard()
	return nil
}

// References возвращает количество ссылок на запись
func (c *Core) References() int {
	return c.refCount
}

func (c *Core) beginDiscard() {
	c.transition(triggerUnsubscribe)
	c.discardTimer = c.svc.scheduler.AfterFunc(c.svc.opts.DiscardTimeout, c.onDiscardTimeout)
}

func (c *Core) cancelDiscard() {
	if c.discardTimer != 0 {
		c.svc.scheduler.Cancel(c.discardTimer)
		c.discardTimer = 0
	}
}

func (c *Core) onDiscardTimeout() {
	c.discardTimer = 0
	if c.state != StateUnsubscribing {
		return
	}

	if c.inflight > 0 {
		// Ждём подтверждения отправленных изменений
		c.discardTimer = c.svc.scheduler.AfterFunc(c.svc.opts.DiscardTimeout, c.onDiscardTimeout)
		return
	}

	if c.svc.conn.IsConnected() {
		c.svc.conn.SendMessage(&api.Message{Topic: api.TopicRecord, Action: api.ActionUnsubscribe, Name: c.name})
	}
	c.persist()
	c.transition(triggerUnsubscribed)

	for _, h := range c.discarded {
		h.fn()
	}
	c.destroy()
}
