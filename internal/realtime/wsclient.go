package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/pkg/logger"
)

var (
	ErrNotConnected = errors.New("realtime: channel not connected")
	ErrSendBuffer   = errors.New("realtime: send buffer full")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20
	sendBufferSize = 64

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Envelope is the wire frame of every event, in both directions.
type Envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// NewEnvelope marshals args into an envelope.
func NewEnvelope(event string, args ...any) (Envelope, error) {
	env := Envelope{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Envelope{}, err
		}
		env.Args = append(env.Args, raw)
	}
	return env, nil
}

// WSChannel is a Channel over a gorilla websocket connection. Frames are
// written by a single pump goroutine; inbound frames are dispatched to the
// registered handler from the reader goroutine.
//
// Once connected, a connection lost to the network is redialed with
// exponential backoff until Close. Every successful dial raises connect and
// every loss raises disconnect.
type WSChannel struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	quit     chan struct{} // non-nil between Connect and Close
	handlers map[string]Handler
}

// WSOption configures a WSChannel.
type WSOption func(*WSChannel)

// WithHeader sets headers sent on the upgrade request, e.g. Authorization.
func WithHeader(h http.Header) WSOption {
	return func(c *WSChannel) { c.header = h }
}

// WithBackoff bounds the delay between reconnect attempts.
func WithBackoff(min, max time.Duration) WSOption {
	return func(c *WSChannel) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

func NewWSChannel(url string, opts ...WSOption) *WSChannel {
	c := &WSChannel{
		url:        url,
		dialer:     websocket.DefaultDialer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		log:        logger.Named("realtime.ws").With(zap.String("url", url)),
		handlers:   make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial is a Dialer for the registry.
func Dial(opts ...WSOption) Dialer {
	return func(url string) Channel { return NewWSChannel(url, opts...) }
}

func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.quit == nil {
		c.quit = make(chan struct{})
	}
	quit := c.quit
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.log.Error("websocket dial failed", zap.Error(err))
		return err
	}
	return c.attach(conn, quit)
}

// attach makes conn the current connection and starts its pumps. It loses
// to a connection that is already up and to a Close since the dial began.
func (c *WSChannel) attach(conn *websocket.Conn, quit chan struct{}) error {
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.quit != quit {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	if c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.send = make(chan []byte, sendBufferSize)
	c.done = make(chan struct{})
	send, done := c.send, c.done
	h := c.handlers[EventConnect]
	c.mu.Unlock()

	go c.writePump(conn, send, done)
	go c.readPump(conn, done)

	c.log.Info("websocket connected")
	if h != nil {
		go h(nil)
	}
	return nil
}

// reconnect redials until a connection is attached or quit is closed.
func (c *WSChannel) reconnect(quit chan struct{}) {
	select {
	case <-quit:
		return
	case <-time.After(c.minBackoff):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.minBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		dialCtx, dialCancel := context.WithTimeout(ctx, writeWait)
		defer dialCancel()
		conn, _, err := c.dialer.DialContext(dialCtx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if err := c.attach(conn, quit); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("websocket reconnect failed", zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		c.log.Debug("reconnect stopped", zap.Error(err))
		return
	}
	c.log.Info("websocket reconnected", zap.Int("attempts", attempt))
}

// Emit queues an event. It never blocks on the network.
func (c *WSChannel) Emit(event string, args ...any) error {
	env, err := NewEnvelope(event, args...)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBuffer
	}
}

func (c *WSChannel) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

func (c *WSChannel) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// Close stops reconnecting, flushes queued frames, sends a close frame and
// tears the connection down.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	conn, send, done := c.conn, c.send, c.done
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	// a nil frame tells the write pump to say goodbye after the backlog
	select {
	case send <- nil:
		select {
		case <-done:
		case <-time.After(writeWait):
		}
	case <-done:
	case <-time.After(writeWait):
	}
	c.drop(conn)
	return nil
}

// drop forgets conn if it is still the current connection and starts
// redialing unless the channel was closed.
func (c *WSChannel) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.done)
	h := c.handlers[EventDisconnect]
	quit := c.quit
	c.mu.Unlock()

	_ = conn.Close()
	if h != nil {
		h(nil)
	}
	if quit != nil {
		c.log.Warn("websocket connection lost, reconnecting")
		go c.reconnect(quit)
	}
}

func (c *WSChannel) readPump(conn *websocket.Conn, done chan struct{}) {
	defer c.drop(conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warn("websocket read failed", zap.Error(err))
				}
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed frame", zap.Error(err))
			continue
		}

		c.mu.Lock()
		h := c.handlers[env.Event]
		c.mu.Unlock()
		if h != nil {
			h(env.Args)
		}
	}
}

func (c *WSChannel) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if frame == nil {
				// the server echoes the close frame and the read pump exits
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("websocket write failed", zap.Error(err))
				go c.drop(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go c.drop(conn)
				return
			}
		}
	}
}
