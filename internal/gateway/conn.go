package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer. A Push whose context
	// carries an earlier deadline is bounded by that deadline instead.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	sendQueueSize = 64
)

// ErrConnClosed is returned by Push once the connection is closing.
var ErrConnClosed = errors.New("connection closed")

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateDenied
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateDenied:
		return "denied"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

type outbound struct {
	payload  []byte
	deadline time.Time // zero for none
	result   chan error
}

// Conn is one websocket client. All writes go through a single write pump so
// pushes to the same socket never interleave.
type Conn struct {
	id       string
	identity string
	sendOnly bool

	ws       *websocket.Conn
	outbound chan outbound
	done     chan struct{}
	pumpDone chan struct{}
	once     sync.Once
	state    atomic.Int32

	closeCode int
	logger    zerolog.Logger
}

func newConn(ws *websocket.Conn, logger zerolog.Logger) *Conn {
	id := ulid.Make().String()
	return &Conn{
		id:        id,
		ws:        ws,
		outbound:  make(chan outbound, sendQueueSize),
		done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		logger:    logger.With().Str("conn_id", id).Logger(),
	}
}

// ID returns the connection's ULID.
func (c *Conn) ID() string { return c.id }

// Identity returns the authenticated identity, empty before authentication.
func (c *Conn) Identity() string { return c.identity }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Push queues payload and waits until it has been written to the socket.
// A nil error means the frame was written; any error means it was not, so
// the caller may safely queue the message elsewhere. The wait is bounded by
// ctx's deadline, or writeWait without one.
func (c *Conn) Push(ctx context.Context, payload []byte) error {
	deadline, _ := ctx.Deadline()
	res := make(chan error, 1)

	select {
	case c.outbound <- outbound{payload: payload, deadline: deadline, result: res}:
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, only the pump knows whether the frame went out.
	select {
	case err := <-res:
		return err
	case <-c.pumpDone:
		select {
		case err := <-res:
			return err
		default:
			return ErrConnClosed
		}
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeWith(websocket.CloseNormalClosure)
}

func (c *Conn) closeWith(code int) {
	c.once.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump pumps frames from the socket to handle until the peer goes away.
func (c *Conn) readPump(handle func(raw []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		if c.closed() {
			return
		}
		handle(message)
	}
}

// writePump drains the outbound queue and keeps the peer alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		close(c.pumpDone)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(c.closeCode, ""),
			time.Now().Add(writeWait))
		c.ws.Close()
	}()

	for {
		select {
		case out := <-c.outbound:
			if c.closed() {
				out.result <- ErrConnClosed
				return
			}
			writeBy := time.Now().Add(writeWait)
			if !out.deadline.IsZero() {
				if !time.Now().Before(out.deadline) {
					out.result <- context.DeadlineExceeded
					continue
				}
				if out.deadline.Before(writeBy) {
					writeBy = out.deadline
				}
			}
			_ = c.ws.SetWriteDeadline(writeBy)
			err := c.ws.WriteMessage(websocket.TextMessage, out.payload)
			out.result <- err
			if err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
