// Package app implements the chat command and query services plus the live
// connection registry that pushes committed events to clients.
package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// sendQueueSize bounds the per-connection outbound queue. A client that
// cannot drain this many frames is considered dead and gets disconnected
// rather than blocking dispatch.
const sendQueueSize = 64

// DefaultPingInterval keeps idle connections alive through proxies that cut
// silent streams.
const DefaultPingInterval = 30 * time.Second

type pingFrame struct {
	Type string `json:"type"`
}

// Conn is one registered live connection. Writes go through a dedicated
// writer goroutine so a slow socket never blocks a dispatching command.
type Conn struct {
	userID string
	ws     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// UserID returns the authenticated user this connection belongs to.
func (c *Conn) UserID() string {
	return c.userID
}

// enqueue hands a frame to the writer goroutine. It reports false when the
// queue is full or the connection is already closed.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the writer goroutine and closes the socket. Safe to call from
// any goroutine, any number of times.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop drains the send queue onto the socket until the connection
// closes. It runs on its own goroutine per connection.
func (c *Conn) writeLoop() {
	for {
		select {
		case frame := <-c.send:
			if _, err := c.ws.Write(frame); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Registry tracks authenticated live connections keyed by user id and routes
// committed events to the connections of affected recipients.
//
// Delivery is fire-and-forget: an offline recipient is a silent no-op, and a
// client that reconnects re-fetches state through the read model.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]map[*Conn]struct{}
	logger *log.Logger

	pingInterval time.Duration
}

// NewRegistry builds an empty connection registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		conns:        make(map[string]map[*Conn]struct{}),
		logger:       logger,
		pingInterval: DefaultPingInterval,
	}
}

// Register adds an authenticated connection and starts its writer. One user
// may hold any number of simultaneous connections.
func (r *Registry) Register(userID string, ws *websocket.Conn) *Conn {
	conn := newConn(userID, ws)

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
	r.mu.Unlock()

	go conn.writeLoop()
	return conn
}

// Unregister removes a connection and closes it. Idempotent, and safe for
// connections that were never registered.
func (r *Registry) Unregister(conn *Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	if set, ok := r.conns[conn.userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, conn.userID)
		}
	}
	r.mu.Unlock()

	conn.close()
}

// Dispatch serializes the payload once and enqueues it to every live
// connection of every recipient, in the order given. Connections whose queue
// is full are dropped so one slow socket cannot stall the rest.
func (r *Registry) Dispatch(recipientIDs []string, payload any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		r.logger.Printf("dispatch: marshal payload: %v", err)
		return
	}

	targets := r.connsFor(recipientIDs)
	for _, conn := range targets {
		if !conn.enqueue(frame) {
			r.logger.Printf("dispatch: dropping slow connection for user %s", conn.userID)
			r.Unregister(conn)
		}
	}
}

// connsFor snapshots the target connections under the lock so sends happen
// outside of it.
func (r *Registry) connsFor(recipientIDs []string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var targets []*Conn
	seen := make(map[string]struct{}, len(recipientIDs))
	for _, id := range recipientIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for conn := range r.conns[id] {
			targets = append(targets, conn)
		}
	}
	return targets
}

// Run sends a periodic application-level ping to all registered connections
// until the context is canceled. Intermediaries drop idle streams otherwise.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	frame, err := json.Marshal(pingFrame{Type: "ping"})
	if err != nil {
		r.logger.Printf("registry: marshal ping: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, conn := range r.allConns() {
				if !conn.enqueue(frame) {
					r.Unregister(conn)
				}
			}
		}
	}
}

func (r *Registry) allConns() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*Conn
	for _, set := range r.conns {
		for conn := range set {
			all = append(all, conn)
		}
	}
	return all
}

// connectionCount reports the total number of registered connections.
func (r *Registry) connectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}
