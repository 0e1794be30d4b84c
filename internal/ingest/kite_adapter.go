package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// KiteAdapter is the production BrokerAdapter backed by Zerodha Kite Connect,
// grounded on the tickerManager in other_examples' Zerodha websocket client:
// the same OnConnect/OnTick/OnError/OnReconnect/OnNoReconnect callback wiring,
// generalized from a single-exchange placeholder-token setup to the fixed
// NIFTY/BANKNIFTY/SENSEX instrument-token universe in internal/domain.
type KiteAdapter struct {
	apiKey string

	mu          sync.RWMutex
	accessToken string

	kc     *kiteconnect.Client
	ticker *kiteticker.Ticker

	tokenToSymbol map[uint32]domain.Symbol
	onTick        func(domain.Tick)
}

// NewKiteAdapter builds an adapter for the given credentials. Connect must be
// called before ticks flow.
func NewKiteAdapter(apiKey, accessToken string) *KiteAdapter {
	return &KiteAdapter{
		apiKey:        apiKey,
		accessToken:   accessToken,
		tokenToSymbol: make(map[uint32]domain.Symbol),
	}
}

func (k *KiteAdapter) SetAccessToken(token string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.accessToken = token
	if k.kc != nil {
		k.kc.SetAccessToken(token)
	}
}

func (k *KiteAdapter) currentToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.accessToken
}

// Connect starts the Kite ticker and blocks delivering ticks to onTick via
// callback until ctx is done.
func (k *KiteAdapter) Connect(ctx context.Context, symbols []domain.Symbol, onTick func(domain.Tick)) error {
	k.onTick = onTick
	k.kc = kiteconnect.New(k.apiKey)
	k.kc.SetAccessToken(k.currentToken())

	k.ticker = kiteticker.New(k.apiKey, k.currentToken())

	tokens := make([]uint32, 0, len(symbols))
	for _, sym := range symbols {
		meta, ok := domain.Meta(sym)
		if !ok {
			continue
		}
		k.tokenToSymbol[meta.InstrumentToken] = sym
		tokens = append(tokens, meta.InstrumentToken)
	}

	k.ticker.OnConnect(func() {
		_ = k.ticker.Subscribe(tokens)
		_ = k.ticker.SetMode(kiteticker.ModeFull, tokens)
	})
	k.ticker.OnTick(k.handleTick)
	k.ticker.OnError(func(err error) {})
	k.ticker.OnClose(func(code int, reason string) {})
	k.ticker.OnReconnect(func(attempt int, delay time.Duration) {})
	k.ticker.OnNoReconnect(func(attempt int) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.ticker.Serve()
	}()

	<-ctx.Done()
	k.ticker.Stop()
	<-done
	return ctx.Err()
}

func (k *KiteAdapter) handleTick(t models.Tick) {
	sym, ok := k.tokenToSymbol[t.InstrumentToken]
	if !ok || k.onTick == nil {
		return
	}
	var pcr *float64
	tick := domain.Tick{
		Symbol:           sym,
		Price:            t.LastPrice,
		TS:               t.Timestamp.Time,
		LastTradedQty:    int64(t.LastTradedQuantity),
		CumulativeVolume: int64(t.VolumeTraded),
		OI:               int64(t.OI),
		PCR:              pcr,
		DayOpen:          t.OHLC.Open,
		DayHigh:          t.OHLC.High,
		DayLow:           t.OHLC.Low,
		PrevClose:        t.OHLC.Close,
		Source:           "ws",
	}
	k.onTick(tick)
}

func (k *KiteAdapter) Close() error {
	if k.ticker != nil {
		k.ticker.Stop()
	}
	return nil
}

// FetchOHLC polls the broker REST OHLC snapshot, used by the fallback loop
// when the WS stream is unusable (spec §4.B). Ticks are marked source=rest.
func (k *KiteAdapter) FetchOHLC(ctx context.Context, symbols []domain.Symbol) ([]domain.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	if k.kc == nil {
		// Called before Connect (the startup prior-day seed): build the REST
		// client here; Connect replaces it with its own.
		k.kc = kiteconnect.New(k.apiKey)
		k.kc.SetAccessToken(k.currentToken())
	}

	instruments := make([]string, 0, len(symbols))
	symByInstrument := make(map[string]domain.Symbol, len(symbols))
	for _, sym := range symbols {
		meta, ok := domain.Meta(sym)
		if !ok {
			continue
		}
		key := fmt.Sprintf("NSE:%d", meta.InstrumentToken)
		instruments = append(instruments, key)
		symByInstrument[key] = sym
	}

	quotes, err := k.kc.GetOHLC(instruments...)
	if err != nil {
		return nil, fmt.Errorf("fetch OHLC: %w", err)
	}

	now := time.Now()
	out := make([]domain.Tick, 0, len(quotes))
	for key, q := range quotes {
		sym, ok := symByInstrument[key]
		if !ok {
			continue
		}
		out = append(out, domain.Tick{
			Symbol:    sym,
			Price:     q.LastPrice,
			TS:        now,
			DayOpen:   q.OHLC.Open,
			DayHigh:   q.OHLC.High,
			DayLow:    q.OHLC.Low,
			PrevClose: q.OHLC.Close,
			Source:    "rest",
		})
	}
	return out, nil
}

// optionChainStrikeBand is how many StrikeSpacing rungs either side of ATM
// the option-chain read covers (spec §3's "reference strike grid spacing").
const optionChainStrikeBand = 5

// FetchOptionChain reads a band of call/put strikes around the current spot
// price for sym: it fetches the spot quote, resolves the nearest-expiry
// CE/PE tradingsymbols from the instrument master within the strike band,
// then batches a single quote call for OI and LTP across every leg.
func (k *KiteAdapter) FetchOptionChain(ctx context.Context, sym domain.Symbol) ([]OptionChainRow, error) {
	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()
	_ = ctx
	if k.kc == nil {
		return nil, fmt.Errorf("kite client not connected")
	}
	meta, ok := domain.Meta(sym)
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", sym)
	}

	spotKey := fmt.Sprintf("%s:%s", meta.SpotExchange, meta.DisplayName)
	spotQuotes, err := k.kc.GetQuote(spotKey)
	if err != nil {
		return nil, fmt.Errorf("fetch spot quote: %w", err)
	}
	spot, ok := spotQuotes[spotKey]
	if !ok {
		return nil, fmt.Errorf("no spot quote for %s", spotKey)
	}

	instruments, err := k.kc.GetInstruments()
	if err != nil {
		return nil, fmt.Errorf("fetch instrument master: %w", err)
	}

	atm := math.Round(spot.LastPrice/meta.StrikeSpacing) * meta.StrikeSpacing
	lo := atm - optionChainStrikeBand*meta.StrikeSpacing
	hi := atm + optionChainStrikeBand*meta.StrikeSpacing

	inBand := func(inst models.Instrument) bool {
		return inst.Exchange == meta.DerivativeExchange &&
			inst.Name == meta.DerivativeName &&
			(inst.InstrumentType == "CE" || inst.InstrumentType == "PE") &&
			inst.StrikePrice >= lo && inst.StrikePrice <= hi
	}

	var nearestExpiry time.Time
	now := time.Now()
	for _, inst := range instruments {
		if !inBand(inst) {
			continue
		}
		expiry := inst.Expiry.Time
		if expiry.Before(now) {
			continue
		}
		if nearestExpiry.IsZero() || expiry.Before(nearestExpiry) {
			nearestExpiry = expiry
		}
	}

	type leg struct{ call, put string }
	legsByStrike := make(map[float64]*leg)
	for _, inst := range instruments {
		if !inBand(inst) || !inst.Expiry.Time.Equal(nearestExpiry) {
			continue
		}
		l, ok := legsByStrike[inst.StrikePrice]
		if !ok {
			l = &leg{}
			legsByStrike[inst.StrikePrice] = l
		}
		key := fmt.Sprintf("%s:%s", inst.Exchange, inst.Tradingsymbol)
		if inst.InstrumentType == "CE" {
			l.call = key
		} else {
			l.put = key
		}
	}
	if len(legsByStrike) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(legsByStrike)*2)
	for _, l := range legsByStrike {
		if l.call != "" {
			keys = append(keys, l.call)
		}
		if l.put != "" {
			keys = append(keys, l.put)
		}
	}

	quotes, err := k.kc.GetQuote(keys...)
	if err != nil {
		return nil, fmt.Errorf("fetch option quotes: %w", err)
	}

	rows := make([]OptionChainRow, 0, len(legsByStrike))
	for strike, l := range legsByStrike {
		row := OptionChainRow{Strike: strike}
		if q, ok := quotes[l.call]; ok {
			row.CallOI = int64(q.OI)
			row.CallLTP = q.LastPrice
		}
		if q, ok := quotes[l.put]; ok {
			row.PutOI = int64(q.OI)
			row.PutLTP = q.LastPrice
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Strike < rows[j].Strike })
	return rows, nil
}
