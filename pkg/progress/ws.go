package progress

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client protocol message types.
const (
	msgJoinConversation  = "join:conversation"
	msgLeaveConversation = "leave:conversation"
	msgJoined            = "joined"
)

// clientMessage is what the browser sends.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
	Username       string `json:"username,omitempty"`
}

// Gateway bridges the Bus onto WebSocket connections.
type Gateway struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGateway creates a gateway over the bus.
func NewGateway(bus *Bus, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect cross-origin from the dev frontend.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and runs the client pumps.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, 256),
		subs:    make(map[string]*Subscription),
		done:    make(chan struct{}),
	}

	go client.writePump()
	client.readPump()
}

// wsClient is one WebSocket connection with its conversation
// subscriptions.
type wsClient struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	mu   sync.Mutex
	subs map[string]*Subscription
	done chan struct{}
}

// readPump pumps protocol messages from the peer until the connection
// drops.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendJSON(map[string]any{
				"type":  EventError,
				"error": "invalid message format",
			})
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *wsClient) handleMessage(msg clientMessage) {
	switch msg.Type {
	case msgJoinConversation:
		var payload joinPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ConversationID == "" {
			c.sendJSON(map[string]any{
				"type":  EventError,
				"error": "join:conversation requires a conversationId",
			})
			return
		}
		c.join(payload.ConversationID)
		c.sendJSON(map[string]any{
			"type": msgJoined,
			"data": map[string]any{
				"conversationId": payload.ConversationID,
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			},
		})

	case msgLeaveConversation:
		var payload joinPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ConversationID == "" {
			return
		}
		c.leave(payload.ConversationID)

	default:
		c.sendJSON(map[string]any{
			"type":  EventError,
			"error": "unknown message type: " + msg.Type,
		})
	}
}

// join subscribes the connection to a conversation and forwards its
// events onto the send channel.
func (c *wsClient) join(conversationID string) {
	c.mu.Lock()
	if _, already := c.subs[conversationID]; already {
		c.mu.Unlock()
		return
	}
	sub := c.gateway.bus.Join(conversationID)
	c.subs[conversationID] = sub
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-c.done:
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				raw, err := json.Marshal(event)
				if err != nil {
					continue
				}
				select {
				case c.send <- raw:
				case <-c.done:
					return
				}
			}
		}
	}()
}

func (c *wsClient) leave(conversationID string) {
	c.mu.Lock()
	sub, ok := c.subs[conversationID]
	if ok {
		delete(c.subs, conversationID)
	}
	c.mu.Unlock()

	if ok {
		c.gateway.bus.Leave(sub)
	}
}

// writePump pumps outbound messages and keeps the connection alive with
// pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendJSON(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
	}
}

// close tears down all subscriptions and stops both pumps.
func (c *wsClient) close() {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	close(c.done)
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		c.gateway.bus.Leave(sub)
	}
	c.conn.Close()
}
