// Package ingest implements the Ingest Supervisor (spec §4.B): the broker WS
// client, its watchdog, reconnect/backoff policy, and REST-polling fallback.
// The production BrokerAdapter is grounded on the Zerodha Kite Connect ticker
// pattern in other_examples' internal/broker/zerodha/websocket.go (an
// OnConnect/OnTick/OnError/OnReconnect/OnNoReconnect callback-driven ticker
// built on github.com/zerodha/gokiteconnect/v4 and its ticker subpackage).
package ingest

import (
	"context"
	"time"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// OptionChainRow is one strike's option-chain read (spec §1, OHLC fetch / option
// chain read via the broker adapter).
type OptionChainRow struct {
	Strike   float64
	CallOI   int64
	PutOI    int64
	CallLTP  float64
	PutLTP   float64
}

// BrokerAdapter is the narrow external collaborator seam the Ingest
// Supervisor depends on (spec §1 Non-goals: multi-broker abstraction beyond
// this seam is out of scope).
type BrokerAdapter interface {
	// Connect establishes the upstream WS session and begins delivering ticks
	// to onTick until ctx is cancelled or Close is called.
	Connect(ctx context.Context, symbols []domain.Symbol, onTick func(domain.Tick)) error
	Close() error

	// FetchOHLC polls the broker's REST OHLC snapshot for the fallback loop.
	FetchOHLC(ctx context.Context, symbols []domain.Symbol) ([]domain.Tick, error)

	// FetchOptionChain reads the option chain for a symbol (used for PCR and
	// OI-derived market indices, outside this package's direct concern).
	FetchOptionChain(ctx context.Context, sym domain.Symbol) ([]OptionChainRow, error)

	// SetAccessToken installs a freshly issued token after TOKEN_EXPIRED
	// recovery (POST /api/auth/set-token).
	SetAccessToken(token string)
}

// restTimeout bounds every broker REST call (spec §5 Cancellation & timeouts).
const restTimeout = 5 * time.Second
