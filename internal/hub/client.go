package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20
	sendBufferSize = 256
)

// client is one websocket connection. Rooms are guarded by the hub's lock.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	user  realtime.UserInfo
	log   *zap.Logger
	rooms map[string]struct{}

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, user realtime.UserInfo) *client {
	return &client{
		hub:   h,
		conn:  conn,
		user:  user,
		log:   h.log.With(zap.String("user_id", user.UserID)),
		rooms: make(map[string]struct{}),
		out:   make(chan []byte, sendBufferSize),
		done:  make(chan struct{}),
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *client) enqueue(frame []byte) {
	select {
	case c.out <- frame:
	case <-c.done:
	default:
		c.log.Warn("send buffer full, dropping client")
		go c.close()
	}
}

func (c *client) send(event string, args ...any) {
	frame, err := encodeFrame(event, args...)
	if err != nil {
		c.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(frame)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.close()
		c.log.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed frame", zap.Error(err))
			continue
		}
		c.hub.dispatch(c, env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
