// Package websocket streams receiver events to websocket clients.
package websocket

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/telemetry/msgs"
)

// DefaultClientQueueSize is the number of events buffered per client.
const DefaultClientQueueSize = 32

// Hub broadcasts encoded Typed events to all connected clients as binary
// messages. A client which can't keep up misses events.
type Hub struct {
	QueueSize int

	lock    sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn  *websocket.Conn
	pktCh chan []byte
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{QueueSize: DefaultClientQueueSize, clients: make(map[*client]struct{})}
}

// Handler returns the http.Handler accepting websocket clients.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// HandleSnapshot implements receiver.Sink.
func (h *Hub) HandleSnapshot(ctx context.Context, snap receiver.Snapshot, change receiver.Change) error {
	for _, msg := range msgs.EventsFor(snap, change) {
		pkt, err := msgs.EncodeMessage(msg, 0)
		if err != nil {
			return err
		}
		h.Broadcast(pkt)
	}
	return nil
}

// Broadcast queues pkt to every client without blocking.
func (h *Hub) Broadcast(pkt []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.pktCh <- pkt:
		default:
			glog.V(2).Infof("websocket %s slow, event dropped", c.conn.Request().RemoteAddr)
		}
	}
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.pktCh)
		delete(h.clients, c)
	}
	return nil
}

func (h *Hub) add(conn *websocket.Conn) *client {
	size := h.QueueSize
	if size <= 0 {
		size = DefaultClientQueueSize
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return nil
	}
	c := &client{conn: conn, pktCh: make(chan []byte, size)}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.pktCh)
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	c := h.add(conn)
	if c == nil {
		return
	}
	remote := conn.Request().RemoteAddr
	glog.Infof("websocket %s connected", remote)
	defer glog.Infof("websocket %s disconnected", remote)

	// The read side only detects the peer going away.
	go func() {
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		h.remove(c)
	}()
	for pkt := range c.pktCh {
		if err := websocket.Message.Send(conn, pkt); err != nil {
			h.remove(c)
			break
		}
	}
}
