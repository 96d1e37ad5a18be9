package hub

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writeWait bounds a single frame write. It is kept under the tick interval so a
// stalled viewer cannot delay the next tick.
const writeWait = time.Second

// ErrClosed is returned by Send after the connection has gone away.
var ErrClosed = errors.New("subscriber closed")

// Conn adapts a websocket connection to Subscriber. Writes are serialised.
type Conn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	open atomic.Bool
}

// NewConn wraps ws with a fresh subscriber id.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{id: uuid.NewString(), ws: ws}
	c.open.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Open() bool { return c.open.Load() }

// Send writes one text frame. A failed write marks the connection closed.
func (c *Conn) Send(payload []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

// Close marks the connection closed and releases the socket.
func (c *Conn) Close() error {
	c.open.Store(false)
	return c.ws.Close()
}

// readLoop discards inbound frames until the peer closes or the socket errors.
func (c *Conn) readLoop() {
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
	}
}

// Upgrader builds the websocket upgrader. An empty list or "*" accepts any origin.
func Upgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWS upgrades the request and keeps the viewer registered until the socket closes.
func ServeWS(reg *Registry, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn := NewConn(ws)
		reg.Add(conn)
		log.Info().Str("subscriber_id", conn.ID()).Str("remote", c.ClientIP()).Msg("viewer connected")

		conn.readLoop()

		reg.Remove(conn.ID())
		_ = conn.Close()
		log.Info().Str("subscriber_id", conn.ID()).Msg("viewer disconnected")
	}
}
