package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/indexpulse/internal/auth"
	"github.com/sawpanic/indexpulse/internal/cache"
	"github.com/sawpanic/indexpulse/internal/candle"
	"github.com/sawpanic/indexpulse/internal/config"
	"github.com/sawpanic/indexpulse/internal/decision"
	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/fanout"
	"github.com/sawpanic/indexpulse/internal/holidays"
	"github.com/sawpanic/indexpulse/internal/httpapi"
	"github.com/sawpanic/indexpulse/internal/indicators"
	"github.com/sawpanic/indexpulse/internal/ingest"
	"github.com/sawpanic/indexpulse/internal/marketindices"
	"github.com/sawpanic/indexpulse/internal/obsmetrics"
	"github.com/sawpanic/indexpulse/internal/session"
	"github.com/sawpanic/indexpulse/internal/signals"
	"github.com/sawpanic/indexpulse/internal/tickbus"
)

// pipeline wires every engine together and owns the shared cross-symbol state
// (latest indicators and market indices) that the per-symbol evaluation loops
// and the periodic market-indices ticker both touch.
type pipeline struct {
	bus       *tickbus.Bus
	builder   *candle.Builder
	pool      *indicators.Pool
	sup       *ingest.Supervisor
	hub       *fanout.Hub
	cache     cache.Cache
	metrics   *obsmetrics.Registry
	marketEng *marketindices.Engine
	adapter   ingest.BrokerAdapter
	symbols   []domain.Symbol

	mu          sync.RWMutex
	latestInd   map[domain.Symbol]domain.Indicators
	latestChain map[domain.Symbol][]ingest.OptionChainRow
	marketIdx   domain.MarketIndices
	sessionSt   domain.SessionState

	ringLen map[domain.Symbol]map[domain.Timeframe]int
}

func newPipeline(adapter ingest.BrokerAdapter, c cache.Cache, metrics *obsmetrics.Registry) *pipeline {
	symbols := domain.AllSymbols()
	bus := tickbus.New()
	p := &pipeline{
		bus:         bus,
		builder:     candle.New(),
		pool:        indicators.New(),
		sup:         ingest.New(adapter, bus, symbols),
		hub:         fanout.New(),
		cache:       c,
		metrics:     metrics,
		marketEng:   marketindices.New(),
		adapter:     adapter,
		symbols:     symbols,
		latestInd:   make(map[domain.Symbol]domain.Indicators),
		latestChain: make(map[domain.Symbol][]ingest.OptionChainRow),
		sessionSt:   domain.SessionClosed,
		ringLen:     make(map[domain.Symbol]map[domain.Timeframe]int),
	}
	for _, sym := range symbols {
		p.ringLen[sym] = map[domain.Timeframe]int{}
	}
	return p
}

func (p *pipeline) setSessionState(st domain.SessionState) {
	p.mu.Lock()
	p.sessionSt = st
	p.mu.Unlock()
}

func (p *pipeline) session() domain.SessionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionSt
}

func (p *pipeline) setIndicators(sym domain.Symbol, ind domain.Indicators) {
	p.mu.Lock()
	p.latestInd[sym] = ind
	p.mu.Unlock()
}

func (p *pipeline) indicatorsSnapshot() map[domain.Symbol]domain.Indicators {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.Symbol]domain.Indicators, len(p.latestInd))
	for k, v := range p.latestInd {
		out[k] = v
	}
	return out
}

func (p *pipeline) setChain(sym domain.Symbol, rows []ingest.OptionChainRow) {
	p.mu.Lock()
	p.latestChain[sym] = rows
	p.mu.Unlock()
}

func (p *pipeline) chainSnapshot() map[domain.Symbol][]ingest.OptionChainRow {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.Symbol][]ingest.OptionChainRow, len(p.latestChain))
	for k, v := range p.latestChain {
		out[k] = v
	}
	return out
}

func (p *pipeline) setMarketIndices(m domain.MarketIndices) {
	p.mu.Lock()
	p.marketIdx = m
	p.mu.Unlock()
}

func (p *pipeline) marketIndices() domain.MarketIndices {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.marketIdx
}

// recordFinalized increments the finalized-candle counter for every candle a
// ring gained since the last observation, per symbol and timeframe.
func (p *pipeline) recordFinalized(sym domain.Symbol, tf domain.Timeframe, n int) {
	p.mu.Lock()
	prev := p.ringLen[sym][tf]
	p.ringLen[sym][tf] = n
	p.mu.Unlock()
	if d := n - prev; d > 0 && p.metrics != nil {
		p.metrics.CandleFinalized.WithLabelValues(string(sym), string(tf)).Add(float64(d))
	}
}

func (p *pipeline) isLive() bool {
	switch p.sup.State() {
	case ingest.StateHealthy, ingest.StateFallbackREST:
		return true
	default:
		return false
	}
}

// runTickConsumer is the must-consume subscriber loop for one symbol: every
// tick advances the Candle Builder, recomputes indicators, evaluates the
// fourteen signals, aggregates an outlook, combines it with the shared
// MarketIndices into a decision, and publishes the resulting Snapshot.
func (p *pipeline) runTickConsumer(ctx context.Context, sym domain.Symbol) {
	ch := p.bus.Subscribe(sym, true)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			p.evaluate(sym, t)
		}
	}
}

func (p *pipeline) evaluate(sym domain.Symbol, t domain.Tick) {
	now := time.Now()
	p.builder.OnTick(t)

	ind := p.pool.Compute(sym, p.builder, t, now)
	p.setIndicators(sym, ind)

	snap1m := p.builder.Read(sym, domain.TF1m)
	snap5m := p.builder.Read(sym, domain.TF5m)
	snap15m := p.builder.Read(sym, domain.TF15m)
	p.recordFinalized(sym, domain.TF1m, len(snap1m.Finalized))
	p.recordFinalized(sym, domain.TF5m, len(snap5m.Finalized))
	p.recordFinalized(sym, domain.TF15m, len(snap15m.Finalized))

	sigStart := time.Now()
	sigs := signals.Evaluate(signals.Input{
		Symbol: sym, Indicators: ind,
		Candles1m: snap1m, Candles5m: snap5m, Candles15m: snap15m,
	})
	isLive := p.isLive()
	outlook := signals.Aggregate(sym, sigs, now, isLive)
	if p.metrics != nil {
		p.metrics.SignalLatency.WithLabelValues(string(sym)).Observe(time.Since(sigStart).Seconds())
	}

	decStart := time.Now()
	dec := decision.Evaluate(outlook, p.marketIndices())
	if p.metrics != nil {
		p.metrics.DecisionLatency.WithLabelValues(string(sym)).Observe(time.Since(decStart).Seconds())
	}

	snap := domain.Snapshot{
		Symbol:     sym,
		TS:         now,
		Tick:       t,
		Candle1m:   snap1m.Partial,
		Indicators: ind,
		Outlook:    outlook,
		Decision:   dec,
		IsLive:     isLive,
	}

	ttl := cache.TTLSnapshotClosed
	if p.session() == domain.SessionMarketOpen {
		ttl = cache.TTLSnapshotOpen
	}
	if raw, err := json.Marshal(snap); err == nil {
		p.cache.SetWithTTL(context.Background(), cache.Key("snapshot", string(sym)), raw, ttl)
	}

	p.hub.Publish(fanout.TopicTick, sym, t, now)
	p.hub.Publish(fanout.TopicSnapshot, sym, snap, now)
	p.hub.Publish(fanout.TopicOutlook, sym, outlook, now)
	p.hub.Publish(fanout.TopicDecision, sym, dec, now)
}

// runMarketIndicesLoop periodically recomputes MarketIndices from the latest
// per-symbol indicator snapshot and option-chain reads across the whole
// universe — a cross-symbol computation that does not belong in the
// per-tick, per-symbol evaluation path.
func (p *pipeline) runMarketIndicesLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m := p.marketEng.Compute(p.indicatorsSnapshot(), p.chainSnapshot(), p.session())
			p.setMarketIndices(m)
			for _, sym := range p.symbols {
				p.hub.Publish(fanout.TopicOIMomentum, sym, m, now)
			}
		}
	}
}

// seedPriorDayOHLC fetches each symbol's settled OHLC once at session start
// and feeds it to the Indicator Pool so classicalPivots (pivot points,
// Camarilla, trade zones) has a prior-day bar to work from instead of
// defaulting PivotsReady to false for the whole session. Called before the
// current day's first tick, so the adapter's OHLC reply still describes the
// last completed session: DayOpen/DayHigh/DayLow are that session's range and
// PrevClose is its settled close.
func (p *pipeline) seedPriorDayOHLC(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ticks, err := p.adapter.FetchOHLC(fctx, p.symbols)
	if err != nil {
		log.Warn().Err(err).Msg("prior-day OHLC seed failed, pivots stay unavailable")
		return
	}
	for _, t := range ticks {
		p.pool.SetPriorDayOHLC(t.Symbol, indicators.PriorDayOHLC{
			Open:      t.DayOpen,
			High:      t.DayHigh,
			Low:       t.DayLow,
			Close:     t.PrevClose,
			Available: true,
		})
	}
}

// runOptionChainLoop polls the broker adapter's option chain read per symbol
// on a slow cadence; PCR and OI momentum tolerate this staleness far better
// than the tick-driven indicator path.
func (p *pipeline) runOptionChainLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range p.symbols {
				fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				rows, err := p.adapter.FetchOptionChain(fctx, sym)
				cancel()
				if err != nil {
					continue
				}
				if rows != nil {
					p.setChain(sym, rows)
				}
			}
		}
	}
}

// runScheduler drives the session Scheduler on a 1-minute cadence (fine
// enough against the scheduler's minute-aligned boundaries) and forwards its
// OPEN/CLOSE commands to the Ingest Supervisor's watchdog threshold.
func runScheduler(ctx context.Context, sched *session.Scheduler, sup *ingest.Supervisor, p *pipeline) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	tick := func() {
		now := time.Now()
		state, cmd := sched.Tick(now)
		p.setSessionState(state)
		switch cmd {
		case session.CmdOpen:
			sup.SetMarketOpen(true)
		case session.CmdClose:
			sup.SetMarketOpen(false)
		}
	}
	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func runHeartbeat(ctx context.Context, hub *fanout.Hub) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hub.Heartbeat(now)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	holidayPath, _ := cmd.Flags().GetString("holidays")
	var holidayTable session.HolidayTable
	if holidayPath != "" {
		t, err := holidays.LoadFile(holidayPath)
		if err != nil {
			return fmt.Errorf("load holidays: %w", err)
		}
		holidayTable = t
	} else {
		holidayTable = holidays.NewEmpty()
	}

	c := cache.NewAuto(cfg.CacheURL)
	metricsReg := obsmetrics.New()

	var adapter ingest.BrokerAdapter
	if cfg.BrokerAPIKey == "" {
		log.Warn().Msg("BROKER_API_KEY not set, serving with an offline mock tick feed")
		adapter = ingest.NewMockAdapter(demoTicks(), time.Second)
	} else {
		adapter = ingest.NewKiteAdapter(cfg.BrokerAPIKey, cfg.BrokerAccessToken)
	}

	p := newPipeline(adapter, c, metricsReg)

	sched := session.New(cfg.MarketTimezone, holidayTable, !cfg.EnableScheduler)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p.seedPriorDayOHLC(ctx)

	go p.sup.Run(ctx)
	go p.sup.RunWatchdog(ctx)
	go p.sup.RunRESTFallback(ctx)
	go runScheduler(ctx, sched, p.sup, p)
	go p.runMarketIndicesLoop(ctx)
	go p.runOptionChainLoop(ctx)
	go runHeartbeat(ctx, p.hub)

	for _, sym := range p.symbols {
		go p.runTickConsumer(ctx, sym)
	}

	server := httpapi.New(
		httpapi.Config{Host: cfg.Host, Port: cfg.Port},
		c, p.hub, p.sup, auth.AllowAll{}, metricsReg, adapter.SetAccessToken,
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			serverErr <- err
		}
	}()

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("IndexPulse serving")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("gateway server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown error")
	}
	c.Close()
	return nil
}
