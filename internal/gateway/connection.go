// internal/gateway/connection.go
// The Connection record owned exclusively by the connection manager (D) for
// the lifetime of one WebSocket session. Never shared by value outside this
// file; E and F only ever see a ConnectionId and go through the manager's
// thread-safe Emit/Respond/Close surface.
package gateway

import (
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/atomic"
)

type authState int

const (
    authPending authState = iota
    authAuthenticated
    authClosed
)

// sendQueueDepth bounds the per-connection outbound buffer. A slow reader
// beyond this depth is disconnected rather than allowed to back-pressure the
// whole gateway (§5: "per-connection send queue").
const sendQueueDepth = 256

// connection is the manager's private bookkeeping for one socket. Reads of
// exported-looking fields from outside this file are not supported; use the
// Manager's public methods instead.
type connection struct {
    id   ConnectionId
    sock *websocket.Conn

    state        atomic.Int32 // authState
    lastActivity atomic.Int64 // unix nanos

    send      chan []byte
    closeOnce sync.Once
    closed    atomic.Bool
}

func newConnection(id ConnectionId, sock *websocket.Conn) *connection {
    c := &connection{
        id:   id,
        sock: sock,
        send: make(chan []byte, sendQueueDepth),
    }
    c.state.Store(int32(authPending))
    c.touch()
    return c
}

func (c *connection) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

func (c *connection) setState(s authState) { c.state.Store(int32(s)) }

func (c *connection) getState() authState { return authState(c.state.Load()) }

// enqueue pushes frame onto the send queue. A closed connection silently
// drops the write — per §4.E "the send queue drops writes to a closed
// socket" and §8's requirement that at most one response per request id is
// ever observed, not that every response is guaranteed delivery. A full
// queue drops the write and closes the connection.
func (c *connection) enqueue(frame []byte) {
    if c.closed.Load() {
        return
    }
    select {
    case c.send <- frame:
    default:
        // Queue full: treat as a dead consumer and close, rather than block
        // the submitting worker or silently grow without bound.
        c.closeLocked()
    }
}

// closeLocked marks the connection closed and stops its writer goroutine.
// Safe to call more than once; only the first call has effect.
func (c *connection) closeLocked() {
    c.closeOnce.Do(func() {
        c.closed.Store(true)
        c.setState(authClosed)
        close(c.send)
    })
}

// writePump drains the send queue and writes to the socket in order,
// serializing all outbound frames for this connection (§5 ordering
// guarantee: "outbound writes ... are serialized by D's per-connection send
// queue"). Returns once the queue is closed or a write fails.
func (c *connection) writePump() {
    for frame := range c.send {
        if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
            c.closeLocked()
            return
        }
    }
}
