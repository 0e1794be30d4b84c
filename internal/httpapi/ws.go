package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/fanout"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMsg is the client op message shape (spec §6 WS `/ws/market`).
type subscribeMsg struct {
	Op      string   `json:"op"`
	Topics  []string `json:"topics"`
	Symbols []string `json:"symbols"`
}

var defaultSubscriptionSymbols = domain.AllSymbols()
var defaultSubscriptionTopics = []fanout.Topic{
	fanout.TopicTick, fanout.TopicSnapshot, fanout.TopicOutlook,
	fanout.TopicDecision, fanout.TopicOIMomentum,
}

func (s *Server) handleWSUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}

	client := s.hub.Register(conn)
	client.SetSubscription(defaultSubscriptionTopics, defaultSubscriptionSymbols)

	now := time.Now()
	for _, sym := range defaultSubscriptionSymbols {
		if snap, ok := s.snapshotFor(r, sym); ok {
			client.SendInitialSnapshot(sym, snap, now)
		}
	}

	defer s.hub.Unregister(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "malformed json"),
				time.Now().Add(time.Second))
			return
		}

		switch msg.Op {
		case "subscribe":
			client.SetSubscription(parseTopics(msg.Topics), parseSymbols(msg.Symbols))
		case "unsubscribe":
			if len(msg.Topics) == 0 && len(msg.Symbols) == 0 {
				client.SetSubscription(nil, nil)
			} else {
				client.RemoveSubscription(parseTopics(msg.Topics), parseSymbols(msg.Symbols))
			}
		default:
			// Unrecognized messages are ignored, per spec §4.J.
		}
	}
}

func parseTopics(raw []string) []fanout.Topic {
	out := make([]fanout.Topic, 0, len(raw))
	for _, t := range raw {
		out = append(out, fanout.Topic(t))
	}
	return out
}

func parseSymbols(raw []string) []domain.Symbol {
	out := make([]domain.Symbol, 0, len(raw))
	for _, s := range raw {
		if sym, ok := domain.ParseSymbol(s); ok {
			out = append(out, sym)
		}
	}
	return out
}
