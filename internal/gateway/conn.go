package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one subscriber connection. Frames are queued on its outbox and
// written by its own writer goroutine, so a slow client never stalls others.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	outbox *Outbox

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	// While a subscribe is pushing catch-up frames, broadcasts are held
	// here so they cannot overtake the older cached values.
	gate    sync.Mutex
	holding bool
	held    [][]byte
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		hub:    h,
		ws:     ws,
		outbox: NewOutbox(h.cfg.OutboxSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// start launches the read, write and ping pumps.
func (c *Conn) start() {
	c.ws.SetReadLimit(c.hub.cfg.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	go c.readLoop()
	go c.writeLoop()
	go c.pingLoop()
}

// send queues a pre-encoded frame. Never blocks.
func (c *Conn) send(frame []byte) {
	if _, dropped := c.outbox.Send(frame); dropped {
		c.hub.dropped.Add(1)
		c.hub.metrics.IncDropped()
	}
}

// deliver queues a broadcast frame, or holds it while catch-up is in flight.
// The hold is bounded by the outbox size and drops oldest like the outbox.
func (c *Conn) deliver(frame []byte) {
	c.gate.Lock()
	defer c.gate.Unlock()

	if !c.holding {
		c.send(frame)
		return
	}
	if len(c.held) == c.hub.cfg.OutboxSize {
		c.held = c.held[1:]
		c.hub.dropped.Add(1)
		c.hub.metrics.IncDropped()
	}
	c.held = append(c.held, frame)
}

// hold starts holding broadcasts.
func (c *Conn) hold() {
	c.gate.Lock()
	c.holding = true
	c.gate.Unlock()
}

// release queues held broadcasts after everything sent so far.
func (c *Conn) release() {
	c.gate.Lock()
	defer c.gate.Unlock()
	for _, frame := range c.held {
		c.send(frame)
	}
	c.held = nil
	c.holding = false
}

// emit encodes and queues a server event.
func (c *Conn) emit(event string, data any) {
	frame, err := encodeEvent(0, event, data)
	if err != nil {
		c.hub.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	c.send(frame)
}

// reply queues an ack for request id.
func (c *Conn) reply(id int64, ack Ack) {
	frame, err := encodeEvent(id, EventAck, ack)
	if err != nil {
		c.hub.logger.Error("failed to encode ack", "error", err)
		return
	}
	c.send(frame)
}

// close tears the connection down exactly once.
func (c *Conn) close() {
	c.once.Do(func() {
		c.cancel()
		c.outbox.Close()
		c.hub.detach(c)
		if c.ws != nil {
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.ws.Close()
		}
	})
}

// readLoop handles inbound frames until the peer goes away.
func (c *Conn) readLoop() {
	defer c.close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("subscriber read ended", "error", err)
			}
			return
		}
		c.hub.handleMessage(c.ctx, c, data)
	}
}

// writeLoop drains the outbox onto the socket. Frames already queued behind
// the first are written under the same deadline.
func (c *Conn) writeLoop() {
	defer c.close()

	for {
		frame, ok := c.outbox.Receive()
		if !ok {
			return
		}
		c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
		for ok {
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug("subscriber write failed", "error", err)
				return
			}
			frame, ok = c.outbox.TryReceive()
		}
	}
}

// pingLoop keeps the connection alive. WriteControl is safe to call
// concurrently with the writer.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.hub.logger.Debug("failed to send ping", "error", err)
				c.close()
				return
			}
		}
	}
}
