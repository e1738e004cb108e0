package record

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/iudanet/recordsync/internal/client/ack"
	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/client/dirty"
	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/merge"
	"github.com/iudanet/recordsync/internal/client/notifier"
	"github.com/iudanet/recordsync/internal/client/offline"
	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/internal/config"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/models"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/internal/validation"
	"github.com/iudanet/recordsync/pkg/api"
)

// Handler сопоставляет имена записей с Core, маршрутизирует входящие
// сообщения и обслуживает одиночные запросы snapshot/head/has.
type Handler struct {
	svc      *services
	records  map[string]*Core
	reads    *notifier.Notifier
	heads    *notifier.Notifier
	hases    *notifier.Notifier
	listener *Listener
	clientID string
}

// NewHandler создает Handler и все сервисы ядра записей поверх conn и store
func NewHandler(conn connection.Connection, scheduler timer.Scheduler, store storage.RecordStore, opts config.Options, logger *slog.Logger) (*Handler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	strategy, err := merge.ByName(opts.MergeStrategy)
	if err != nil {
		return nil, err
	}

	clientID := uuid.New().String()
	logger = logger.With("client_id", clientID)

	timeouts := timeout.NewRegistry(conn, scheduler, logger)
	offlineStore := offline.New(store, scheduler, logger)

	svc := &services{
		conn:      conn,
		scheduler: scheduler,
		timeouts:  timeouts,
		acks:      ack.NewService(conn, scheduler, timeouts, opts.AckTimeout, logger),
		dirty:     dirty.NewService(offlineStore, scheduler, opts.DirtyFlushInterval, logger),
		merge:     merge.NewService(strategy, logger),
		offline:   offlineStore,
		paths:     jsonpath.NewEngine(opts.PathCacheSize),
		logger:    logger,
		opts:      opts,
	}

	h := &Handler{
		svc:      svc,
		records:  make(map[string]*Core),
		reads:    notifier.New(conn, scheduler, timeouts, api.TopicRecord, api.ActionRead, opts.ReadTimeout, logger),
		heads:    notifier.New(conn, scheduler, timeouts, api.TopicRecord, api.ActionHead, opts.ReadTimeout, logger),
		hases:    notifier.New(conn, scheduler, timeouts, api.TopicRecord, api.ActionHas, opts.ReadTimeout, logger),
		listener: NewListener(conn, timeouts, opts.SubscribeTimeout, logger),
		clientID: clientID,
	}

	conn.OnLost(h.onConnectionLost)
	conn.OnReestablished(h.onConnectionReestablished)

	// индекс dirty нужен до первой сверки версий
	svc.dirty.WhenLoaded(func() {})

	return h, nil
}

// ClientID возвращает идентификатор экземпляра клиента
func (h *Handler) ClientID() string {
	return h.clientID
}

// Merge возвращает сервис стратегий слияния для регистрации своих стратегий
func (h *Handler) Merge() *merge.Service {
	return h.svc.merge
}

// WhenLoaded вызывает fn после загрузки индекса dirty
func (h *Handler) WhenLoaded(fn func()) {
	h.svc.dirty.WhenLoaded(fn)
}

// DirtyNames возвращает записи с неотправленными изменениями
func (h *Handler) DirtyNames() []string {
	return h.svc.dirty.Names()
}

// Flush немедленно сохраняет индекс dirty. done (может быть nil) вызывается,
// когда все начатые операции офлайн-хранилища завершены.
func (h *Handler) Flush(done func()) {
	h.svc.dirty.Flush()
	if done != nil {
		h.svc.offline.Barrier(done)
	}
}

// StoredNames возвращает имена записей, сохранённых в офлайн-хранилище
func (h *Handler) StoredNames(cb func(names []string, err error)) {
	h.svc.offline.Names(cb)
}

// GetRecord возвращает Core записи name, добавляя ссылку owner.
// Core создается при первом обращении.
func (h *Handler) GetRecord(name string, owner any) (*Core, error) {
	if err := validation.ValidateRecordName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	core, ok := h.records[name]
	if !ok {
		core = newCore(name, h.svc, h.removeRecord)
		h.records[name] = core
	}

	if err := core.AddReference(owner); err != nil {
		return nil, err
	}
	return core, nil
}

// Release снимает ссылку owner с записи name
func (h *Handler) Release(name string, owner any) error {
	core, ok := h.records[name]
	if !ok {
		return fmt.Errorf("%w: record %q is not open", event.ErrInvalidArgs, name)
	}
	return core.Discard(owner)
}

// Names возвращает отсортированные имена открытых записей
func (h *Handler) Names() []string {
	names := make([]string, 0, len(h.records))
	for name := range h.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot возвращает данные записи без подписки. Готовая открытая запись
// отвечает локально, иначе одинаковые запросы объединяются в один READ.
func (h *Handler) Snapshot(name string, cb func(err error, data any)) error {
	if err := validation.ValidateRecordName(name); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	if core, ok := h.records[name]; ok && core.IsReady() {
		data := core.Get("")
		h.svc.scheduler.Post(func() { cb(nil, data) })
		return nil
	}

	h.reads.Request(name, cb)
	return nil
}

// Head возвращает серверную версию записи или models.NoVersion
func (h *Handler) Head(name string, cb func(err error, version int64)) error {
	if err := validation.ValidateRecordName(name); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	if core, ok := h.records[name]; ok && core.IsReady() {
		version := core.Version()
		h.svc.scheduler.Post(func() { cb(nil, version) })
		return nil
	}

	h.heads.Request(name, func(err error, data any) {
		version, ok := data.(int64)
		if err != nil || !ok {
			version = models.NoVersion
		}
		cb(err, version)
	})
	return nil
}

// Has сообщает, существует ли запись на сервере
func (h *Handler) Has(name string, cb func(err error, exists bool)) error {
	if err := validation.ValidateRecordName(name); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	if core, ok := h.records[name]; ok && core.IsReady() {
		h.svc.scheduler.Post(func() { cb(nil, true) })
		return nil
	}

	h.hases.Request(name, func(err error, data any) {
		exists, _ := data.(bool)
		cb(err, exists && err == nil)
	})
	return nil
}

// SetData записывает данные без подписки на запись.
// Открытая запись изменяется через свой Core.
func (h *Handler) SetData(name, path string, data any, cb ack.Callback) error {
	if err := validation.ValidateRecordName(name); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}

	if core, ok := h.records[name]; ok {
		return core.Set(path, data, cb)
	}

	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}
	normalized, err := jsonpath.Normalize(data)
	if err != nil {
		return fmt.Errorf("%w: %v", event.ErrInvalidArgs, err)
	}
	if path == "" && jsonpath.IsScalar(normalized) {
		return fmt.Errorf("%w: scalar value requires a path", event.ErrInvalidArgs)
	}

	if !h.svc.opts.CanWrite(name) {
		h.svc.logger.Error("Write dropped in read-only mode", "record", name)
		if cb != nil {
			h.svc.scheduler.Post(func() { cb(event.ErrRecordReadOnly) })
		}
		return nil
	}

	msg := &api.Message{
		Topic:   api.TopicRecord,
		Action:  api.ActionCreateAndUpdate,
		Name:    name,
		Path:    path,
		Data:    normalized,
		Version: models.NoVersion,
	}
	if path != "" {
		msg.Action = api.ActionCreateAndPatch
	}

	if cb != nil {
		h.svc.acks.Send(msg, cb)
		return nil
	}
	if !h.svc.conn.IsConnected() {
		h.svc.logger.Warn("SetData dropped while offline", "record", name)
		return nil
	}
	h.svc.conn.SendMessage(msg)
	return nil
}

// Listen начинает слушать подписки на записи по паттерну
func (h *Handler) Listen(pattern string, cb ListenCallback) error {
	return h.listener.Listen(pattern, cb)
}

// Unlisten перестаёт слушать паттерн
func (h *Handler) Unlisten(pattern string) error {
	return h.listener.Unlisten(pattern)
}

// GetUID возвращает уникальное имя для новой записи
func (h *Handler) GetUID() string {
	return ulid.Make().String()
}

// Handle обрабатывает входящее сообщение топика record
func (h *Handler) Handle(msg *api.Message) {
	if msg.Topic != api.TopicRecord {
		h.svc.logger.Warn("Message for unknown topic", "topic", msg.Topic)
		return
	}

	h.svc.timeouts.Remove(msg)

	switch msg.Action {
	case api.ActionWriteAcknowledgement:
		h.svc.acks.Receive(msg)
		return
	case api.ActionSubscriptionForPatternFound, api.ActionSubscriptionForPatternRemoved,
		api.ActionListen, api.ActionUnlisten:
		h.listener.handle(msg)
		return
	}

	if msg.IsError {
		switch {
		case msg.OriginalAction == api.ActionListen || msg.OriginalAction == api.ActionUnlisten:
			h.listener.handle(msg)
			return
		case msg.CorrelationID != "" && msg.Action != api.ActionVersionExists:
			// отказ в записи получает её колбэк, запись получает событие ошибки
			h.svc.acks.Receive(msg)
		}
	}

	delivered := h.notifyRequests(msg)

	core, ok := h.records[msg.Name]
	if !ok {
		if !delivered && msg.CorrelationID == "" {
			h.svc.logger.Warn("Message for unknown record",
				"record", msg.Name,
				"action", msg.Action)
		}
		return
	}

	if msg.Action == api.ActionHasResponse {
		return
	}
	core.handle(msg)
}

// notifyRequests передаёт ответ ожидающим одиночных запросов
func (h *Handler) notifyRequests(msg *api.Message) bool {
	var err error
	if msg.IsError || msg.Action == api.ActionRecordNotFound {
		err = event.ServerErrorFrom(msg)
	}

	delivered := false
	for _, action := range api.RequestActions(msg) {
		switch action {
		case api.ActionRead:
			if h.reads.HasRequest(msg.Name) {
				h.reads.Receive(msg.Name, err, msg.Data)
				delivered = true
			}
		case api.ActionHead:
			if h.heads.HasRequest(msg.Name) {
				h.heads.Receive(msg.Name, err, msg.Version)
				delivered = true
			}
		case api.ActionHas:
			if h.hases.HasRequest(msg.Name) {
				h.hases.Receive(msg.Name, err, msg.Data)
				delivered = true
			}
		}
	}
	return delivered
}

func (h *Handler) removeRecord(name string) {
	delete(h.records, name)
}

// cores возвращает открытые записи в порядке имён
func (h *Handler) cores() []*Core {
	names := h.Names()
	cores := make([]*Core, 0, len(names))
	for _, name := range names {
		cores = append(cores, h.records[name])
	}
	return cores
}

func (h *Handler) onConnectionLost() {
	for _, core := range h.cores() {
		core.onConnectionLost()
	}
}

func (h *Handler) onConnectionReestablished() {
	for _, core := range h.cores() {
		if !core.IsDestroyed() {
			core.onConnectionReestablished()
		}
	}
	h.listener.onConnectionReestablished()
}
