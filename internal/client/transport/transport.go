// Package transport реализует connection.Connection поверх websocket с
// автоматическим переподключением.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/timer"
	"github.com/iudanet/recordsync/pkg/api"
)

// ClientIDHeader заголовок, в котором сервер получает идентификатор клиента
const ClientIDHeader = "X-Client-Id"

// sendBufferSize максимальное количество фреймов, ожидающих записи в сокет
const sendBufferSize = 256

// defaultSendWait сколько SendMessage ждёт места в буфере, если WriteTimeout не задан
const defaultSendWait = time.Second

// Options параметры соединения
type Options struct {
	URL               string
	ClientID          string
	ReconnectInterval time.Duration
	ReconnectBurst    int
	WriteTimeout      time.Duration
}

// Conn websocket-соединение. Сетевой ввод-вывод идёт в отдельных горутинах,
// а события соединения и входящие сообщения публикуются в Scheduler,
// поэтому SendMessage, IsConnected и обработчики работают в логическом потоке.
type Conn struct {
	connection.Hooks

	scheduler timer.Scheduler
	dialer    *websocket.Dialer
	limiter   *rate.Limiter
	logger    *slog.Logger
	handler   func(msg *api.Message)
	session   *session
	opts      Options
}

// session одно установленное соединение; nil в офлайне
type session struct {
	send   chan []byte
	done   <-chan struct{}
	cancel context.CancelFunc
}

// New создает соединение. Подключение начинается в Run.
func New(scheduler timer.Scheduler, opts Options, logger *slog.Logger) *Conn {
	interval := rate.Every(opts.ReconnectInterval)
	if opts.ReconnectInterval <= 0 {
		interval = rate.Inf
	}
	burst := opts.ReconnectBurst
	if burst <= 0 {
		burst = 1
	}

	return &Conn{
		scheduler: scheduler,
		dialer:    websocket.DefaultDialer,
		limiter:   rate.NewLimiter(interval, burst),
		logger:    logger.With("url", opts.URL),
		opts:      opts,
	}
}

// SetHandler задаёт обработчик входящих сообщений. Вызывается до Run.
func (c *Conn) SetHandler(handler func(msg *api.Message)) {
	c.handler = handler
}

// SetClientID задаёт идентификатор для заголовка X-Client-Id. Вызывается до Run.
func (c *Conn) SetClientID(id string) {
	c.opts.ClientID = id
}

// SendMessage implements connection.Connection.
// В офлайне сообщение отбрасывается. Если буфер отправки не освобождается
// за WriteTimeout, соединение разрывается: ожидающие подтверждения получат
// потерю соединения, а записи пройдут сверку версий после переподключения.
func (c *Conn) SendMessage(msg *api.Message) {
	sess := c.session
	if sess == nil {
		c.logger.Debug("Dropping message while offline",
			"action", msg.Action,
			"name", msg.Name)
		return
	}

	frame, err := api.Encode(msg)
	if err != nil {
		c.logger.Error("Failed to encode message",
			"action", msg.Action,
			"error", err)
		return
	}

	select {
	case sess.send <- frame:
		return
	default:
	}

	wait := c.opts.WriteTimeout
	if wait <= 0 {
		wait = defaultSendWait
	}
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case sess.send <- frame:
	case <-sess.done:
		c.logger.Warn("Connection closed while sending",
			"action", msg.Action,
			"name", msg.Name)
		c.abort(sess)
	case <-t.C:
		c.logger.Warn("Send buffer is full, dropping connection",
			"action", msg.Action,
			"name", msg.Name)
		c.abort(sess)
	}
}

// abort разрывает sess из логического потока. Потеря соединения
// публикуется отдельной задачей, чтобы не вызывать обработчики внутри SendMessage.
func (c *Conn) abort(sess *session) {
	if c.session != sess {
		return
	}
	c.session = nil
	sess.cancel()
	c.scheduler.Post(c.FireLost)
}

// IsConnected implements connection.Connection
func (c *Conn) IsConnected() bool {
	return c.session != nil
}

// Run подключается и переподключается до отмены ctx.
// Частота попыток ограничена ReconnectInterval и ReconnectBurst.
func (c *Conn) Run(ctx context.Context) error {
	header := http.Header{}
	if c.opts.ClientID != "" {
		header.Set(ClientIDHeader, c.opts.ClientID)
	}

	for {
		if err := c.wait(ctx); err != nil {
			return err
		}

		ws, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Failed to connect", "error", err)
			continue
		}

		c.logger.Info("Connected")
		c.serve(ctx, ws)
		c.logger.Info("Connection lost")

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// wait ждёт разрешения лимитера на очередную попытку подключения
func (c *Conn) wait(ctx context.Context) error {
	r := c.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// serve обслуживает одно установленное соединение до его разрыва
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) {
	handleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := make(chan []byte, sendBufferSize)
	sess := &session{send: send, done: handleCtx.Done(), cancel: cancel}
	c.scheduler.Post(func() {
		c.session = sess
		c.FireReestablished()
	})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(handleCtx, ws, send)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop(ws)
	}()

	<-handleCtx.Done()
	// Close прерывает ReadMessage в readLoop
	if err := ws.Close(); err != nil {
		c.logger.Debug("Failed to close websocket", "error", err)
	}
	wg.Wait()

	c.scheduler.Post(func() {
		if c.session != sess {
			// соединение уже разорвано через abort
			return
		}
		c.session = nil
		c.FireLost()
	})
}

func (c *Conn) writeLoop(ctx context.Context, ws *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(c.opts.WriteTimeout)
			closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, closeFrame, deadline)
			return
		case frame := <-send:
			if c.opts.WriteTimeout > 0 {
				_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				return
			}
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if !isClosed(err) {
				c.logger.Warn("Failed to read message", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "type", messageType)
			continue
		}

		msg, err := api.Decode(frame)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}

		if c.handler != nil {
			c.scheduler.Post(func() { c.handler(msg) })
		}
	}
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
