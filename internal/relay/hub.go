// Package relay routes messages between the page detector, the privileged
// background process and the panel over local websockets. Delivery is
// at-most-once: a receiver that has not connected yet is an expected
// condition, not an error.
package relay

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kushscan/kushscan/internal/domain"
)

// Role identifies which end of the extension a connection belongs to.
type Role string

const (
	RoleDetector   Role = "detector"
	RolePanel      Role = "panel"
	RolePopup      Role = "popup"
	RoleBackground Role = "background"
)

const sendBuffer = 16

// Client is one connected relay peer.
type Client struct {
	conn *websocket.Conn
	role Role
	send chan []byte
}

// CurrentProductFunc supplies the detector's current product for
// GetCurrentProduct requests.
type CurrentProductFunc func() *domain.ProductRecord

// Hub owns the client registry and message routing.
type Hub struct {
	currentProduct CurrentProductFunc

	mu               sync.RWMutex
	clients          map[Role]map[*Client]bool
	pendingHighlight string
}

// NewHub builds a hub. currentProduct may be nil, in which case
// GetCurrentProduct requests are answered with an empty reply.
func NewHub(currentProduct CurrentProductFunc) *Hub {
	return &Hub{
		currentProduct: currentProduct,
		clients:        make(map[Role]map[*Client]bool),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.role] == nil {
		h.clients[c.role] = make(map[*Client]bool)
	}
	h.clients[c.role][c] = true
	log.Printf("[Relay] %s connected", c.role)

	// A highlight parked while no panel was listening is flushed to the
	// first panel that connects.
	if c.role == RolePanel && h.pendingHighlight != "" {
		if data, err := Encode(HighlightLookup{Text: h.pendingHighlight}); err == nil {
			select {
			case c.send <- data:
				h.pendingHighlight = ""
			default:
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[c.role]; ok {
		if clients[c] {
			delete(clients, c)
			close(c.send)
		}
	}
	log.Printf("[Relay] %s disconnected", c.role)
}

// Send delivers a message to every client with the role. Zero receivers
// or a full send buffer drops the message; it returns how many clients
// actually received it.
func (h *Hub) Send(role Role, msg Message) int {
	data, err := Encode(msg)
	if err != nil {
		log.Printf("[Relay] failed to encode %s: %v", msg.Kind(), err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[role] {
		select {
		case client.send <- data:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		log.Printf("[Relay] no %s connected for %s", role, msg.Kind())
	}
	return delivered
}

// Dispatch routes one inbound message. The switch is exhaustive over the
// message union.
func (h *Hub) Dispatch(from Role, msg Message) {
	switch m := msg.(type) {
	case ProductDetected:
		h.Send(RolePanel, m)
	case OpenSidePanel:
		h.Send(RoleBackground, m)
	case HighlightLookup:
		// Panels load lazily; park the text for a startup poll when
		// nobody is listening yet.
		if h.Send(RolePanel, m) == 0 {
			h.mu.Lock()
			h.pendingHighlight = m.Text
			h.mu.Unlock()
		}
	case GetCurrentProduct:
		reply := CurrentProduct{}
		if h.currentProduct != nil {
			reply.Product = h.currentProduct()
		}
		h.Send(from, reply)
	case CurrentProduct:
		h.Send(RolePanel, m)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay binds to loopback only; every local page may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a relay connection. The peer's role
// comes from the ?role= query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	switch role {
	case RoleDetector, RolePanel, RolePopup, RoleBackground:
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Relay] upgrade failed: %v", err)
		return
	}

	client := &Client{conn: conn, role: role, send: make(chan []byte, sendBuffer)}
	h.add(client)

	go client.writePump()
	go h.readPump(client)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(data)
		if err != nil {
			log.Printf("[Relay] bad frame from %s: %v", c.role, err)
			continue
		}
		h.Dispatch(c.role, msg)
	}
}

func (c *Client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
