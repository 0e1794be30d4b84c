// Package fanout implements the subscriber registry and broadcast hub for the
// /ws/market gateway (spec §4.I). Grounded on the teacher's
// internal/interfaces/http/server.go for the mutex-guarded registry/broadcast
// shape, generalized from an HTTP route table to a per-client subscription
// set across (topic, symbol) pairs with gorilla/websocket client writers.
package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// Topic enumerates the fan-out channels a client may subscribe to.
type Topic string

const (
	TopicTick        Topic = "tick"
	TopicSnapshot    Topic = "snapshot"
	TopicOutlook     Topic = "outlook"
	TopicDecision    Topic = "decision"
	TopicOIMomentum  Topic = "oi_momentum"
)

// Envelope is the typed message the gateway writes to every client.
type Envelope struct {
	Type   string      `json:"type"`
	Symbol domain.Symbol `json:"symbol"`
	Data   interface{} `json:"data"`
	TS     time.Time   `json:"ts"`
}

const clientQueueCapacity = 64

// Client is one connected WS subscriber.
type Client struct {
	conn    *websocket.Conn
	send    chan Envelope
	mu      sync.RWMutex
	topics  map[Topic]bool
	symbols map[domain.Symbol]bool
	closed  bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan Envelope, clientQueueCapacity),
		topics:  make(map[Topic]bool),
		symbols: make(map[domain.Symbol]bool),
	}
}

// SetSubscription replaces the client's subscription set.
func (c *Client) SetSubscription(topics []Topic, symbols []domain.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = make(map[Topic]bool, len(topics))
	for _, t := range topics {
		c.topics[t] = true
	}
	c.symbols = make(map[domain.Symbol]bool, len(symbols))
	for _, s := range symbols {
		c.symbols[s] = true
	}
}

// RemoveSubscription drops the given topics and symbols from the client's
// subscription set, mirroring an "unsubscribe" op against a prior
// "subscribe" (spec §6: "unsubscribe mirroring it").
func (c *Client) RemoveSubscription(topics []Topic, symbols []domain.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

func (c *Client) wants(topic Topic, sym domain.Symbol) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic] && c.symbols[sym]
}

// enqueue is best-effort: a full client queue drops the oldest envelope.
func (c *Client) enqueue(env Envelope) {
	select {
	case c.send <- env:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// writeLoop drains the client's queue to the WS connection with a 2s write
// deadline (spec §5 Cancellation & timeouts); exceeding it drops the client.
func (c *Client) writeLoop() {
	for env := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.conn.WriteJSON(env); err != nil {
			log.Debug().Err(err).Msg("dropping fan-out client on write failure")
			_ = c.conn.Close()
			return
		}
	}
}

// Hub owns the subscriber table behind a mutex (spec §5 Ownership) and the
// last-known payload per (topic, symbol) for heartbeats and late-joiners.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	lastSeen map[Topic]map[domain.Symbol]Envelope
}

// New creates an empty Hub.
func New() *Hub {
	h := &Hub{
		clients:  make(map[*Client]bool),
		lastSeen: make(map[Topic]map[domain.Symbol]Envelope),
	}
	return h
}

// Register adds a new client for a raw WS connection and starts its writer.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := newClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

// Unregister removes a client and stops its writer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// Publish delivers payload to every client subscribed to (topic, symbol) and
// records it as the last-known value for heartbeats/late-joiners.
func (h *Hub) Publish(topic Topic, sym domain.Symbol, data interface{}, now time.Time) {
	env := Envelope{Type: string(topic), Symbol: sym, Data: data, TS: now}

	h.mu.Lock()
	bySymbol, ok := h.lastSeen[topic]
	if !ok {
		bySymbol = make(map[domain.Symbol]Envelope)
		h.lastSeen[topic] = bySymbol
	}
	bySymbol[sym] = env
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.wants(topic, sym) {
			c.enqueue(env)
		}
	}
}

// Heartbeat re-publishes the last-known snapshot for every (topic, symbol)
// pair this hub has ever seen, as a "heartbeat" envelope. Called on a 5s
// ticker by the serve command's runHeartbeat loop so late-joining clients are
// immediately usable.
func (h *Hub) Heartbeat(now time.Time) {
	h.mu.RLock()
	snapshot := make(map[Topic]map[domain.Symbol]Envelope, len(h.lastSeen))
	for topic, bySymbol := range h.lastSeen {
		cp := make(map[domain.Symbol]Envelope, len(bySymbol))
		for sym, env := range bySymbol {
			cp[sym] = env
		}
		snapshot[topic] = cp
	}
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, bySymbol := range snapshot {
		for sym, env := range bySymbol {
			hb := Envelope{Type: "heartbeat", Symbol: sym, Data: env.Data, TS: now}
			for _, c := range clients {
				if c.wants(Topic(env.Type), sym) {
					c.enqueue(hb)
				}
			}
		}
	}
}

// SendInitialSnapshot pushes one "snapshot" envelope directly to a single
// just-connected client, per spec §6 ("On open, server immediately sends a
// snapshot envelope for each symbol in the default subscription").
func (c *Client) SendInitialSnapshot(sym domain.Symbol, snap domain.Snapshot, now time.Time) {
	c.enqueue(Envelope{Type: "snapshot", Symbol: sym, Data: snap, TS: now})
}

// MarshalEnvelope is a small helper used by tests to assert on wire shape.
func MarshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
