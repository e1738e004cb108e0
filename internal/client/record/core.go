// Package record содержит ядро синхронизации записей: Core с машиной
// состояний для одной записи и Handler, который владеет всеми Core клиента.
package record

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/recordsync/internal/client/ack"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/offline"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/models"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/pkg/api"
)

// Core владеет данными, версией, подписками и состоянием одной записи.
// Все методы вызываются в логическом потоке клиента.
type Core struct {
	svc    *services
	logger *slog.Logger

	data    any
	onClose func(name string)

	references    map[any]int
	subscriptions []*subscription
	readyWaiters  []readyWaiter
	errorHandlers []errorHandler
	deleted       []ownedFunc
	discarded     []ownedFunc

	pendingWrites  []pendingWrite
	deferred       []func()
	deleteWaiters  []ack.Callback
	conflictAcks   []ack.Callback
	name           string
	version        int64
	state          State
	refCount       int
	inflight       int
	nextSubID      SubscriptionID
	mergeToken     int
	discardTimer   timer.Handle
	isReady        bool
	discardPending bool
	createdOffline bool
	staleSession   bool
	destroyed      bool
}

func newCore(name string, svc *services, onClose func(name string)) *Core {
	c := &Core{
		svc:        svc,
		logger:     svc.logger.With("record", name),
		name:       name,
		version:    models.NoVersion,
		state:      StateLoadingOffline,
		references: make(map[any]int),
		onClose:    onClose,
	}

	// Состояние dirty решает исход сверки версий, поэтому ждём загрузки индекса
	svc.dirty.WhenLoaded(func() {
		svc.offline.Load(name, c.onOfflineLoaded)
	})

	return c
}

// Name возвращает имя записи
func (c *Core) Name() string {
	return c.name
}

// State возвращает текущее состояние
func (c *Core) State() State {
	return c.state
}

// Version возвращает локальную версию записи или models.NoVersion
func (c *Core) Version() int64 {
	return c.version
}

// IsReady сообщает, что запись хотя бы раз стала готовой
func (c *Core) IsReady() bool {
	return c.isReady
}

// IsDirty сообщает, есть ли у записи неотправленные офлайн-изменения
func (c *Core) IsDirty() bool {
	return c.svc.dirty.IsDirty(c.name)
}

// IsDestroyed сообщает, что запись отписана или удалена и больше не используется
func (c *Core) IsDestroyed() bool {
	return c.destroyed
}

// Get возвращает копию значения по пути; пустой путь возвращает весь документ
func (c *Core) Get(path string) any {
	return jsonpath.Clone(c.svc.paths.Get(c.data, path))
}

// transition выполняет переход или паникует с *TransitionError
func (c *Core) transition(t trigger) {
	next, ok := nextState(c.state, t)
	if !ok {
		panic(&TransitionError{Record: c.name, Trigger: string(t), State: c.state})
	}

	c.logger.Debug("Record state transition",
		"trigger", t,
		"from", c.state,
		"to", next)
	c.state = next
}

// writable сообщает, что запись можно менять без постановки в очередь
func (c *Core) writable() bool {
	return c.state == StateReady || c.state == StateUnsubscribing
}

// onOfflineLoaded решает начальное состояние по сохранённой копии и соединению
func (c *Core) onOfflineLoaded(entry offline.Entry) {
	if c.destroyed || c.state != StateLoadingOffline {
		return
	}

	if !c.svc.conn.IsConnected() {
		if entry.Version == models.NoVersion {
			// Запись создаётся офлайн и будет отправлена после подключения
			c.version = c.svc.opts.InitialRecordVersion
			c.data = map[string]any{}
			c.createdOffline = true
			c.svc.dirty.SetDirty(c.name, true)
			c.persist()
		} else {
			c.version, c.data = entry.Version, entry.Data
			c.createdOffline = entry.CreatedOffline
		}
		c.transition(triggerLoadedOffline)
		c.onReady()
		return
	}

	if entry.Version == models.NoVersion {
		c.transition(triggerLoadedNew)
		c.sendSubscribe(api.ActionSubscribeCreateAndRead)
		return
	}

	c.version, c.data = entry.Version, entry.Data
	c.createdOffline = entry.CreatedOffline
	c.transition(triggerLoadedKnown)
	c.sendSubscribe(api.ActionSubscribeAndHead)
}

func (c *Core) sendSubscribe(action api.Action) {
	msg := &api.Message{Topic: api.TopicRecord, Action: action, Name: c.name}
	c.svc.conn.SendMessage(msg)
	c.armTimeout(msg, c.svc.opts.SubscribeTimeout)
}

func (c *Core) sendRead() {
	msg := &api.Message{Topic: api.TopicRecord, Action: api.ActionRead, Name: c.name}
	c.svc.conn.SendMessage(msg)
	c.armTimeout(msg, c.svc.opts.ReadTimeout)
}

// armTimeout взводит таймаут ответа; по истечении запись сообщает об ошибке
func (c *Core) armTimeout(msg *api.Message, d time.Duration) {
	if d <= 0 {
		return
	}
	c.svc.timeouts.Add(timeoutFor(msg, d, func() {
		c.emitError(fmt.Errorf("%w: %s", event.ErrResponseTimeout, msg.Action))
	}))
}

// timeoutScope отделяет таймауты записи от одиночных запросов Handler с тем же ключом
const timeoutScope = "record"

func timeoutFor(msg *api.Message, d time.Duration, fn func()) timeout.Timeout {
	return timeout.Timeout{
		Scope:     timeoutScope,
		Message:   msg,
		Duration:  d,
		OnTimeout: func(*api.Message) { fn() },
	}
}

// onReady вызывается после каждого перехода в READY
func (c *Core) onReady() {
	if !c.isReady {
		c.isReady = true
		waiters := c.readyWaiters
		c.readyWaiters = nil
		for _, w := range waiters {
			w.fn()
		}
	}

	if c.state != StateReady {
		return
	}

	if len(c.pendingWrites) > 0 {
		writes := c.pendingWrites
		c.pendingWrites = nil
		c.applyWrites(writes)
	}

	deferred := c.deferred
	c.deferred = nil
	for _, fn := range deferred {
		fn()
	}

	if c.state == StateReady && c.discardPending && c.refCount == 0 {
		c.discardPending = false
		c.beginDiscard()
	}
}

// persist сохраняет текущую версию и данные в офлайн-хранилище
func (c *Core) persist() {
	c.svc.offline.Save(c.name, offline.Entry{
		Data:           c.data,
		Version:        c.version,
		CreatedOffline: c.createdOffline,
	}, nil)
}

// handle обрабатывает входящее сообщение для этой записи
func (c *Core) handle(msg *api.Message) {
	if c.destroyed {
		c.logger.Debug("Message for destroyed record", "action", msg.Action)
		return
	}

	switch msg.Action {
	case api.ActionReadResponse:
		c.onReadResponse(msg)
	case api.ActionHeadResponse:
		c.onHeadResponse(msg)
	case api.ActionUpdate, api.ActionPatch, api.ActionErase:
		c.applyUpdate(msg)
	case api.ActionVersionExists:
		c.onVersionExists(msg)
	case api.ActionDeleteSuccess:
		c.onDeleteSuccess()
	case api.ActionDeleted:
		c.onDeletedRemotely()
	case api.ActionRecordNotFound:
		c.onRecordNotFound(msg)
	case api.ActionMessageDenied, api.ActionMessagePermissionError:
		c.onDenied(msg)
	case api.ActionSubscribe, api.ActionUnsubscribe,
		api.ActionSubscribeAndHead, api.ActionSubscribeCreateAndRead:
		// подтверждения подписки ничего не меняют
	default:
		c.logger.Warn("Unexpected record message", "action", msg.Action)
	}
}

// onConnectionLost вызывается Handler при потере соединения
func (c *Core) onConnectionLost() {
	// Колбэки, отложенные на время слияния, завершаются как и остальные write-ack
	c.failConflictAcks(event.ErrClientOffline)
}

// onConnectionReestablished вызывается Handler при восстановлении соединения
func (c *Core) onConnectionReestablished() {
	switch c.state {
	case StateReady:
		c.transition(triggerReconnected)
		c.sendSubscribe(api.ActionSubscribeAndHead)
	case StateSubscribing:
		c.transition(triggerReconnected)
		c.sendSubscribe(api.ActionSubscribeCreateAndRead)
	case StateResubscribing:
		c.transition(triggerReconnected)
		c.sendSubscribe(api.ActionSubscribeAndHead)
	case StateMerging:
		// Результат начатого слияния устарел
		c.mergeToken++
		c.transition(triggerReconnected)
		c.sendSubscribe(api.ActionSubscribeAndHead)
	case StateUnsubscribing:
		// Отписка остаётся в силе; если запись снова понадобится, подпишемся заново
		c.staleSession = true
	case StateDeleting:
		c.sendDelete()
	}
}

// destroy освобождает запись после перехода в терминальное состояние
func (c *Core) destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true

	if c.discardTimer != 0 {
		c.svc.scheduler.Cancel(c.discardTimer)
		c.discardTimer = 0
	}

	for _, w := range c.pendingWrites {
		if w.cb != nil {
			cb := w.cb
			c.svc.scheduler.Post(func() { cb(event.ErrRecordDestroyed) })
		}
	}
	c.pendingWrites = nil
	c.deferred = nil
	c.readyWaiters = nil
	c.subscriptions = nil

	if c.onClose != nil {
		c.onClose(c.name)
	}
}
