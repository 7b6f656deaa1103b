package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mchurichi/logdeck/pkg/query"
	"github.com/mchurichi/logdeck/pkg/view"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// client is one live connection. Its selection is private; the record
// set behind it is shared with every other reader of the view.
type client struct {
	conn   *websocket.Conn
	view   *view.View
	send   chan any
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	sel view.Selection
}

// push queues a message for the writer; a full queue drops it
func (c *client) push(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

type clientMessage struct {
	Action   string `json:"action"`
	Search   string `json:"search"`
	Level    string `json:"level"`
	Range    string `json:"range"`
	Category string `json:"category"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type snapshotMessage struct {
	Type string `json:"type"`
	view.Snapshot
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// snapshot renders the client's selection; a page past the end is
// clamped and remembered
func (c *client) snapshot() snapshotMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.view.Render(c.sel)
	c.sel.Page = snap.Page.Page
	return snapshotMessage{Type: "snapshot", Snapshot: snap}
}

// subscribe applies the criteria and paging carried by a subscribe
// message. New criteria or a new page size move back to page 1.
func (c *client) subscribe(msg clientMessage) error {
	criteria, err := c.view.ValidateCriteria(query.Criteria{
		Search:   msg.Search,
		Level:    msg.Level,
		Range:    query.DateRange(msg.Range),
		Category: msg.Category,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if criteria != c.sel.Criteria {
		c.sel.Criteria = criteria
		c.sel.Page = 1
	}
	if msg.PageSize > 0 {
		c.sel.PageSize = msg.PageSize
		c.sel.Page = 1
	}
	if msg.Page > 0 {
		c.sel.Page = msg.Page
	}
	return nil
}

// handleWebSocket handles WS /ws/{domain}. A connected client keeps the
// view visible and receives a snapshot of its own selection after every
// change to the record set.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		view:   v,
		send:   make(chan any, 16),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		sel:    v.DefaultSelection(),
	}

	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()

	updates, unsubscribe := v.Subscribe()
	release := v.Attach()

	// Start sender goroutine
	go s.writePump(c, updates)

	// Start reader goroutine
	go s.readPump(c, func() {
		unsubscribe()
		release()
	})
}

// readPump reads messages from the WebSocket
func (s *Server) readPump(c *client, detach func()) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.conn)
		s.mu.Unlock()
		c.cancel()
		close(c.done)
		detach()
		c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Action {
		case "subscribe":
			if err := c.subscribe(msg); err != nil {
				c.push(errorMessage{Type: "error", Error: err.Error()})
				continue
			}
			c.push(c.snapshot())

		case "refresh":
			go func() {
				if err := c.view.Refresh(c.ctx); err != nil {
					s.logger.Debug("Client refresh failed", "domain", c.view.Domain(), "error", err)
				}
			}()

		default:
			c.push(errorMessage{Type: "error", Error: "unknown action: " + msg.Action})
		}
	}
}

// writePump sends messages to the WebSocket
func (s *Server) writePump(c *client, updates <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case _, ok := <-updates:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "view closed"))
				return
			}
			if err := c.conn.WriteJSON(c.snapshot()); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// closeClients disconnects every live client
func (s *Server) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.clients {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
}
