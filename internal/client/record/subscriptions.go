package record

import (
	"fmt"

	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/validation"
)

// SubscriptionID идентификатор подписки на изменения
type SubscriptionID uint64

type subscription struct {
	owner any
	cb    func(value any)
	path  string
	id    SubscriptionID
}

type readyWaiter struct {
	owner any
	fn    func()
}

type errorHandler struct {
	owner any
	fn    func(err error)
}

type ownedFunc struct {
	owner any
	fn    func()
}

// Subscribe вызывает cb с новым значением по пути path при каждом его изменении.
// triggerNow дополнительно передаёт текущее значение, как только запись готова.
// owner позволяет снять все подписки владельца через UnsubscribeOwner.
func (c *Core) Subscribe(path string, cb func(value any), triggerNow bool, owner any) (SubscriptionID, error) {
	if cb == nil {
		return 0, fmt.Errorf("%w: subscription callback is required", event.ErrInvalidArgs)
	}
	if err := validation.ValidatePath(path); err != nil {
		return 0, fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}
	if c.destroyed {
		return 0, event.ErrRecordDestroyed
	}

	c.nextSubID++
	id := c.nextSubID
	c.subscriptions = append(c.subscriptions, &subscription{owner: owner, cb: cb, path: path, id: id})

	if triggerNow {
		c.WhenReady(owner, func() {
			if c.hasSubscription(id) {
				cb(c.Get(path))
			}
		})
	}

	return id, nil
}

// Unsubscribe снимает подписку. Возвращает false, если её не было.
func (c *Core) Unsubscribe(id SubscriptionID) bool {
	for i, s := range c.subscriptions {
		if s.id == id {
			c.subscriptions = append(c.subscriptions[:i:i], c.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

// UnsubscribeOwner снимает подписки, ожидания готовности и обработчики событий owner
func (c *Core) UnsubscribeOwner(owner any) {
	subs := c.subscriptions[:0:0]
	for _, s := range c.subscriptions {
		if s.owner != owner {
			subs = append(subs, s)
		}
	}
	c.subscriptions = subs

	waiters := c.readyWaiters[:0:0]
	for _, w := range c.readyWaiters {
		if w.owner != owner {
			waiters = append(waiters, w)
		}
	}
	c.readyWaiters = waiters

	handlers := c.errorHandlers[:0:0]
	for _, h := range c.errorHandlers {
		if h.owner != owner {
			handlers = append(handlers, h)
		}
	}
	c.errorHandlers = handlers

	c.deleted = withoutOwner(c.deleted, owner)
	c.discarded = withoutOwner(c.discarded, owner)
}

func withoutOwner(funcs []ownedFunc, owner any) []ownedFunc {
	out := funcs[:0:0]
	for _, f := range funcs {
		if f.owner != owner {
			out = append(out, f)
		}
	}
	return out
}

func (c *Core) hasSubscription(id SubscriptionID) bool {
	for _, s := range c.subscriptions {
		if s.id == id {
			return true
		}
	}
	return false
}

// WhenReady вызывает fn, когда запись станет готовой. Для готовой записи
// fn вызывается асинхронно.
func (c *Core) WhenReady(owner any, fn func()) {
	if c.destroyed {
		return
	}
	if c.isReady {
		c.svc.scheduler.Post(func() {
			if !c.destroyed {
				fn()
			}
		})
		return
	}
	c.readyWaiters = append(c.readyWaiters, readyWaiter{owner: owner, fn: fn})
}

// OnError регистрирует обработчик ошибок записи
func (c *Core) OnError(owner any, fn func(err error)) {
	c.errorHandlers = append(c.errorHandlers, errorHandler{owner: owner, fn: fn})
}

// OnDeleted регистрирует обработчик удаления записи
func (c *Core) OnDeleted(owner any, fn func()) {
	c.deleted = append(c.deleted, ownedFunc{owner: owner, fn: fn})
}

// OnDiscarded регистрирует обработчик окончательной отписки
func (c *Core) OnDiscarded(owner any, fn func()) {
	c.discarded = append(c.discarded, ownedFunc{owner: owner, fn: fn})
}

// emitError передаёт ошибку обработчикам; без обработчиков она логируется
func (c *Core) emitError(err error) {
	if len(c.errorHandlers) == 0 {
		c.logger.Error("Record error", "error", err)
		return
	}
	for _, h := range c.errorHandlers {
		h.fn(err)
	}
}

// notify сообщает подписчикам об изменившихся значениях
func (c *Core) notify(old, current any) {
	subs := make([]*subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)

	for _, s := range subs {
		before := c.svc.paths.Get(old, s.path)
		after := c.svc.paths.Get(current, s.path)
		if !jsonpath.Equal(before, after) {
			s.cb(jsonpath.Clone(after))
		}
	}
}
