package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/domain"
)

var testUpgrader = websocket.Upgrader{}

// dialedConn spins up a one-shot WS echo server and returns the server-side
// connection the Hub would register, paired with the client-side connection
// the test uses to observe what the Hub writes.
func dialedConn(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	cl, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	return <-connCh, cl
}

func TestClient_WantsOnlySubscribedTopicAndSymbol(t *testing.T) {
	c := newClient(nil)
	c.SetSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.NIFTY})

	assert.True(t, c.wants(TopicSnapshot, domain.NIFTY))
	assert.False(t, c.wants(TopicSnapshot, domain.BANKNIFTY))
	assert.False(t, c.wants(TopicOutlook, domain.NIFTY))
}

func TestClient_SetSubscriptionReplacesPriorSet(t *testing.T) {
	c := newClient(nil)
	c.SetSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.NIFTY})
	c.SetSubscription([]Topic{TopicDecision}, []domain.Symbol{domain.SENSEX})

	assert.False(t, c.wants(TopicSnapshot, domain.NIFTY))
	assert.True(t, c.wants(TopicDecision, domain.SENSEX))
}

func TestClient_RemoveSubscriptionDropsOnlyNamedEntries(t *testing.T) {
	c := newClient(nil)
	c.SetSubscription(
		[]Topic{TopicSnapshot, TopicDecision},
		[]domain.Symbol{domain.NIFTY, domain.BANKNIFTY},
	)

	c.RemoveSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.NIFTY})

	assert.False(t, c.wants(TopicSnapshot, domain.NIFTY))
	assert.True(t, c.wants(TopicDecision, domain.BANKNIFTY))
}

func TestClient_EnqueueDropsOldestOnFullQueue(t *testing.T) {
	c := newClient(nil)
	for i := 0; i < clientQueueCapacity+5; i++ {
		c.enqueue(Envelope{Type: "tick", Symbol: domain.NIFTY, Data: i})
	}
	assert.LessOrEqual(t, len(c.send), clientQueueCapacity)
	// The five oldest envelopes (Data 0..4) were dropped.
	first := <-c.send
	assert.Equal(t, 5, first.Data)
}

func TestHub_PublishDeliversToSubscribedClient(t *testing.T) {
	h := New()
	serverConn, clientConn := dialedConn(t)
	c := h.Register(serverConn)
	defer h.Unregister(c)

	c.SetSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.NIFTY})
	h.Publish(TopicSnapshot, domain.NIFTY, map[string]int{"x": 1}, time.Now())

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	var env Envelope
	require.NoError(t, clientConn.ReadJSON(&env))
	assert.Equal(t, "snapshot", env.Type)
	assert.Equal(t, domain.NIFTY, env.Symbol)
}

func TestHub_PublishSkipsUnsubscribedClient(t *testing.T) {
	h := New()
	serverConn, clientConn := dialedConn(t)
	c := h.Register(serverConn)
	defer h.Unregister(c)

	c.SetSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.BANKNIFTY})
	h.Publish(TopicSnapshot, domain.NIFTY, "payload", time.Now())

	_ = clientConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := clientConn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregisterStopsFurtherDelivery(t *testing.T) {
	h := New()
	serverConn, clientConn := dialedConn(t)
	c := h.Register(serverConn)
	c.SetSubscription([]Topic{TopicSnapshot}, []domain.Symbol{domain.NIFTY})

	h.Unregister(c)
	h.Publish(TopicSnapshot, domain.NIFTY, "payload", time.Now())

	_ = clientConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := clientConn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_HeartbeatReplaysLastSeenEnvelope(t *testing.T) {
	h := New()
	serverConn, clientConn := dialedConn(t)
	c := h.Register(serverConn)
	defer h.Unregister(c)

	c.SetSubscription([]Topic{TopicDecision}, []domain.Symbol{domain.SENSEX})
	h.Publish(TopicDecision, domain.SENSEX, "first", time.Now())

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	var first Envelope
	require.NoError(t, clientConn.ReadJSON(&first))

	h.Heartbeat(time.Now())
	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	var hb Envelope
	require.NoError(t, clientConn.ReadJSON(&hb))
	assert.Equal(t, "heartbeat", hb.Type)
	assert.Equal(t, domain.SENSEX, hb.Symbol)
}

func TestMarshalEnvelope_RoundTrips(t *testing.T) {
	env := Envelope{Type: "tick", Symbol: domain.NIFTY, Data: map[string]int{"a": 1}, TS: time.Now()}
	b, err := MarshalEnvelope(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"tick"`)
}
