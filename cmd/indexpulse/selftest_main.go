package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/indexpulse/internal/cache"
	"github.com/sawpanic/indexpulse/internal/decision"
	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/ingest"
	"github.com/sawpanic/indexpulse/internal/obsmetrics"
	"github.com/sawpanic/indexpulse/internal/signals"
)

// demoTicks builds a short, deterministic tick fixture across the whole
// symbol universe, used both as the default offline feed for `serve` when no
// broker credentials are configured and as the fixture `selftest` replays.
func demoTicks() []domain.Tick {
	base := time.Date(2026, 7, 31, 9, 15, 0, 0, time.UTC)
	var out []domain.Tick
	seed := map[domain.Symbol]float64{
		domain.NIFTY: 22500, domain.BANKNIFTY: 48000, domain.SENSEX: 74000,
	}
	vol := int64(0)
	oi := map[domain.Symbol]int64{
		domain.NIFTY: 1_000_000, domain.BANKNIFTY: 800_000, domain.SENSEX: 500_000,
	}
	for i := 0; i < 120; i++ {
		ts := base.Add(time.Duration(i) * 5 * time.Second)
		for _, sym := range domain.AllSymbols() {
			drift := float64(i%7-3) * 0.35
			seed[sym] += drift
			vol += 1000
			oi[sym] += int64(50 * (i % 5))
			out = append(out, domain.Tick{
				Symbol:           sym,
				Price:            seed[sym],
				TS:               ts,
				LastTradedQty:    75,
				CumulativeVolume: vol,
				OI:               oi[sym],
				DayOpen:          seed[sym] - 10,
				DayHigh:          seed[sym] + 20,
				DayLow:           seed[sym] - 20,
				PrevClose:        seed[sym] - 5,
				Source:           "ws",
			})
		}
	}
	return out
}

// runSelfTest replays the demo fixture through the full pipeline with no
// network I/O and checks the invariants spec §8 calls testable: every
// Outlook's signal-count partition sums to fourteen, every Decision's
// confidence stays within [0,100], and an injected auth failure is recovered
// from without the supervisor wedging.
func runSelfTest(cmd *cobra.Command, args []string) error {
	ticks := demoTicks()

	adapter := ingest.NewMockAdapter(ticks, time.Millisecond)
	adapter.FailAuthNTimes(2)

	c := cache.New()
	defer c.Close()
	metricsReg := obsmetrics.New()
	p := newPipeline(adapter, c, metricsReg)
	p.setSessionState(domain.SessionMarketOpen)
	p.sup.SetMarketOpen(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.seedPriorDayOHLC(ctx)

	go p.sup.Run(ctx)
	for _, sym := range p.symbols {
		go p.runTickConsumer(ctx, sym)
	}
	go p.runMarketIndicesLoop(ctx)

	<-ctx.Done()

	failures := 0
	for _, sym := range p.symbols {
		ind := p.pool.Compute(sym, p.builder, domain.Tick{Symbol: sym}, time.Now())
		if !ind.PivotsReady {
			failures++
			log.Error().Str("symbol", string(sym)).Msg("pivots not ready after prior-day OHLC seed")
			continue
		}
		snap1m := p.builder.Read(sym, domain.TF1m)
		snap5m := p.builder.Read(sym, domain.TF5m)
		snap15m := p.builder.Read(sym, domain.TF15m)
		sigs := signals.Evaluate(signals.Input{Symbol: sym, Indicators: ind, Candles1m: snap1m, Candles5m: snap5m, Candles15m: snap15m})
		if len(sigs) != len(domain.AllSignalKinds) {
			failures++
			log.Error().Str("symbol", string(sym)).Int("count", len(sigs)).Msg("signal count invariant violated")
			continue
		}
		outlook := signals.Aggregate(sym, sigs, time.Now(), true)
		if outlook.Bullish+outlook.Bearish+outlook.NeutralCount != len(domain.AllSignalKinds) {
			failures++
			log.Error().Str("symbol", string(sym)).Msg("outlook partition invariant violated")
			continue
		}
		dec := decision.Evaluate(outlook, p.marketIndices())
		if dec.Confidence < 0 || dec.Confidence > 100 {
			failures++
			log.Error().Str("symbol", string(sym)).Float64("confidence", dec.Confidence).Msg("decision confidence out of bounds")
			continue
		}
		log.Info().Str("symbol", string(sym)).Str("label", string(outlook.Label)).Str("action", string(dec.Action)).Msg("selftest result")
	}

	if p.sup.State() == ingest.StateTokenExpired {
		failures++
		log.Error().Msg("supervisor still wedged in TOKEN_EXPIRED after fixture replay")
	}

	if failures > 0 {
		return fmt.Errorf("selftest failed: %d invariant violation(s)", failures)
	}
	fmt.Println("selftest passed")
	return nil
}
