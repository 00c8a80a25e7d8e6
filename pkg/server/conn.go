package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/vango-dev/roomsync/pkg/engine"
)

// Events receives a connection's lifecycle events. *room.Room implements it.
type Events interface {
	Message(conn engine.Socket, f engine.Frame)
	Close(conn engine.Socket, code int, reason string)
	Error(conn engine.Socket, err error)
}

// Conn is one WebSocket connection. It implements engine.Socket; Send and
// Close never block and are safe from any goroutine.
type Conn struct {
	id        string
	sessionID string
	ws        *websocket.Conn
	events    Events
	config    Config
	logger    *slog.Logger

	send    chan engine.Frame
	closing chan struct{}

	closeOnce   sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string
	localClose  bool
	writeErr    error
}

func newConn(ws *websocket.Conn, sessionID string, events Events, cfg Config, logger *slog.Logger) *Conn {
	id := ulid.Make().String()
	return &Conn{
		id:        id,
		sessionID: sessionID,
		ws:        ws,
		events:    events,
		config:    cfg,
		logger:    logger.With("conn_id", id, "session_id", sessionID),
		send:      make(chan engine.Frame, cfg.SendQueue),
		closing:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// SessionID returns the session id the connection was opened with.
func (c *Conn) SessionID() string {
	return c.sessionID
}

// Send queues f for delivery. A full queue closes the connection.
func (c *Conn) Send(f engine.Frame) error {
	select {
	case <-c.closing:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- f:
		return nil
	default:
		c.logger.Warn("send queue full, closing connection", "queue", cap(c.send))
		c.Close(websocket.ClosePolicyViolation, "send queue full")
		return ErrSendQueueFull
	}
}

// Close asks the write pump to send a close frame and drop the connection.
// Only the first call has an effect.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.localClose = true
		c.mu.Unlock()
		close(c.closing)
	})
	return nil
}

// start runs the pumps. wg tracks them for shutdown.
func (c *Conn) start(wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.readPump()
	}()
}

// abort closes a connection whose pumps never started.
func (c *Conn) abort(code int, reason string) {
	c.Close(code, reason)
	deadline := time.Now().Add(c.config.WriteTimeout)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.ws.Close()
}

// readPump delivers inbound frames in order, then exactly one close or
// error event.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		// Any traffic proves liveness.
		c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))

		kind := engine.FrameText
		if mt == websocket.BinaryMessage {
			kind = engine.FrameBinary
		}
		c.events.Message(c, engine.Frame{Kind: kind, Data: data})
	}
}

// finish classifies the error that ended the read pump.
func (c *Conn) finish(err error) {
	// Stop the write pump if it is still running.
	c.Close(websocket.CloseAbnormalClosure, "")

	c.mu.Lock()
	writeErr := c.writeErr
	code, reason, local := c.closeCode, c.closeReason, c.localClose
	c.mu.Unlock()

	var closeErr *websocket.CloseError
	switch {
	case writeErr != nil:
		c.events.Error(c, &TransportError{ConnID: c.id, SessionID: c.sessionID, Err: writeErr})
	case errors.As(err, &closeErr):
		c.events.Close(c, closeErr.Code, closeErr.Text)
	case local && code != websocket.CloseAbnormalClosure:
		c.events.Close(c, code, reason)
	default:
		c.events.Error(c, &TransportError{ConnID: c.id, SessionID: c.sessionID, Err: err})
	}
}

// writePump drains the send queue and pings until the connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			mt := websocket.TextMessage
			if f.Kind == engine.FrameBinary {
				mt = websocket.BinaryMessage
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(mt, f.Data); err != nil {
				c.failWrite(err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.failWrite(err)
				return
			}

		case <-c.closing:
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			if code != websocket.CloseAbnormalClosure {
				if code != websocket.ClosePolicyViolation && code != websocket.CloseInternalServerErr {
					c.flushQueue()
				}
				deadline := time.Now().Add(c.config.WriteTimeout)
				c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
			}
			return
		}
	}
}

// flushQueue writes frames queued before the close was requested.
func (c *Conn) flushQueue() {
	for {
		select {
		case f := <-c.send:
			mt := websocket.TextMessage
			if f.Kind == engine.FrameBinary {
				mt = websocket.BinaryMessage
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(mt, f.Data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) failWrite(err error) {
	c.mu.Lock()
	if c.writeErr == nil && !c.localClose {
		c.writeErr = err
	}
	c.mu.Unlock()
	c.logger.Debug("write failed", "error", err)
}
