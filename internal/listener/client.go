package listener

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pixil98/go-bastion/internal/messaging"
	"github.com/pixil98/go-bastion/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// client is one websocket connection: a read pump feeding the
// dispatcher and a write pump draining the send channel. Everything
// addressed to the connection, whether a direct reply or a room
// broadcast relayed off the broker, funnels through send.
type client struct {
	id      string
	conn    *websocket.Conn
	handler SessionHandler
	broker  messaging.Broker
	logger  logrus.FieldLogger

	send chan []byte

	mu sync.Mutex
	// unsubs tears down broker subscriptions when the connection dies.
	unsubs []func()

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn, handler SessionHandler, broker messaging.Broker, logger logrus.FieldLogger) *client {
	return &client{
		id:      uuid.New().String(),
		conn:    conn,
		handler: handler,
		broker:  broker,
		logger:  logger,
		send:    make(chan []byte, sendBuffer),
		closed:  make(chan struct{}),
	}
}

// run blocks until the connection is gone, whichever side hangs up.
func (c *client) run(ctx context.Context) {
	defer c.teardown()

	// Direct events for this connection arrive over the broker too, so
	// responses look the same whether they came from this process's
	// dispatcher or a room broadcast.
	unsub, err := c.broker.Subscribe(messaging.ConnSubject(c.id), c.enqueue)
	if err != nil {
		c.logger.Errorf("subscribing connection %s: %s", c.id, err)
		return
	}
	c.addUnsub(unsub)

	go c.writePump(ctx)
	c.readPump(ctx)
}

// joinRoom attaches the connection to a session room's broadcast feed.
func (c *client) joinRoom(code string) {
	unsub, err := c.broker.Subscribe(messaging.SessionSubject(code), c.enqueue)
	if err != nil {
		c.logger.Errorf("subscribing to session %s: %s", code, err)
		return
	}
	c.addUnsub(unsub)
}

func (c *client) addUnsub(fn func()) {
	c.mu.Lock()
	c.unsubs = append(c.unsubs, fn)
	c.mu.Unlock()
}

// enqueue hands an already-encoded envelope to the write pump. A full
// buffer means the client is too slow to keep up; dropping the
// connection beats blocking the broker's delivery goroutine.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.closed:
	default:
		c.logger.Warnf("connection %s is not draining, closing", c.id)
		c.close()
	}
}

// sendEvent marshals and enqueues a direct event for this connection.
func (c *client) sendEvent(event string, payload any) {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		c.logger.Errorf("encoding %s event: %s", event, err)
		return
	}
	c.enqueue(data)
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *client) teardown() {
	c.close()

	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}

	c.handler.HandleDisconnect(c.id)

	if err := c.conn.Close(); err != nil {
		c.logger.Debugf("closing connection %s: %s", c.id, err)
	}
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("connection %s read: %s", c.id, err)
			}
			return
		}
		c.dispatch(ctx, data)
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()
	// Closing the socket is what unblocks the read pump.
	defer c.conn.Close()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-c.closed:
			return
		}
	}
}
