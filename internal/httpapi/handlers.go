package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/indexpulse/internal/cache"
	"github.com/sawpanic/indexpulse/internal/domain"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errEnvelope struct {
	Error apiError `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errEnvelope{Error: apiError{Code: code, Message: msg}})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func symbolFromPath(r *http.Request) (domain.Symbol, bool) {
	raw := mux.Vars(r)["symbol"]
	return domain.ParseSymbol(raw)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// snapshotFor reads the authoritative last-known Snapshot for sym from the
// cache, per spec §4.H ("the cache stores the authoritative last-known
// snapshot per symbol").
func (s *Server) snapshotFor(r *http.Request, sym domain.Symbol) (domain.Snapshot, bool) {
	key := cache.Key("snapshot", string(sym))
	raw, ok := s.cache.Get(r.Context(), key)
	if !ok {
		if s.metrics != nil {
			s.metrics.CacheMisses.WithLabelValues("snapshot").Inc()
		}
		return domain.Snapshot{}, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues("snapshot").Inc()
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolFromPath(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "UNKNOWN_SYMBOL", "symbol not recognized")
		return
	}
	snap, ok := s.snapshotFor(r, sym)
	if !ok {
		s.writeError(w, http.StatusNotFound, "NO_DATA", "no analysis available yet for symbol")
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"symbol":     sym,
		"indicators": snap.Indicators,
		"outlook":    snap.Outlook,
		"is_live":    snap.IsLive,
	})
}

func (s *Server) handleOutlook(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolFromPath(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "UNKNOWN_SYMBOL", "symbol not recognized")
		return
	}
	snap, ok := s.snapshotFor(r, sym)
	if !ok {
		s.writeError(w, http.StatusNotFound, "NO_DATA", "no outlook available yet for symbol")
		return
	}
	s.writeJSON(w, snap.Outlook)
}

func (s *Server) handleOutlookAll(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.Outlook, 0, len(domain.AllSymbols()))
	for _, sym := range domain.AllSymbols() {
		if snap, ok := s.snapshotFor(r, sym); ok {
			out = append(out, snap.Outlook)
		}
	}
	s.writeJSON(w, out)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	sym, ok := symbolFromPath(r)
	if !ok {
		s.writeError(w, http.StatusNotFound, "UNKNOWN_SYMBOL", "symbol not recognized")
		return
	}
	snap, ok := s.snapshotFor(r, sym)
	if !ok {
		s.writeError(w, http.StatusNotFound, "NO_DATA", "no decision available yet for symbol")
		return
	}
	s.writeJSON(w, snap.Decision)
}

func (s *Server) handleDecisionAll(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.Decision, 0, len(domain.AllSymbols()))
	for _, sym := range domain.AllSymbols() {
		if snap, ok := s.snapshotFor(r, sym); ok {
			out = append(out, snap.Decision)
		}
	}
	s.writeJSON(w, out)
}

func (s *Server) handleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	type symbolHealth struct {
		Symbol      domain.Symbol `json:"symbol"`
		LastTickAge string        `json:"last_tick_age"`
		HasTicked   bool          `json:"has_ticked"`
	}
	health := make([]symbolHealth, 0, len(domain.AllSymbols()))
	for _, sym := range domain.AllSymbols() {
		age, ok := s.diag.LastTickAge(sym)
		h := symbolHealth{Symbol: sym, HasTicked: ok}
		if ok {
			h.LastTickAge = age.Round(time.Millisecond).String()
		}
		health = append(health, h)
	}
	s.writeJSON(w, map[string]interface{}{
		"ingest_state": s.diag.State(),
		"symbols":      health,
	})
}

// cachedKinds enumerates the cache key kinds a force-reconnect must purge
// (spec §4.B: "the cache is invalidated for affected symbols so that stale
// snapshots cannot be served"). Keys are "kind:symbol", so purging by symbol
// alone means walking every kind.
var cachedKinds = []string{"snapshot", "outlook", "decision"}

func (s *Server) handleForceReconnect(w http.ResponseWriter, r *http.Request) {
	for _, sym := range domain.AllSymbols() {
		for _, kind := range cachedKinds {
			s.cache.Delete(r.Context(), cache.Key(kind, string(sym)))
		}
	}
	s.diag.ForceReconnect()
	s.writeJSON(w, map[string]string{"status": "reconnecting"})
}

func (s *Server) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	// The OAuth flow itself is an external collaborator (spec §1); the core
	// only bridges the request/response shape.
	s.writeJSON(w, map[string]string{"login_url": "https://kite.zerodha.com/connect/login"})
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	requestToken := r.URL.Query().Get("request_token")
	if requestToken == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_PARAM", "request_token is required")
		return
	}
	if s.accessToken != nil {
		s.accessToken(requestToken)
	}
	s.writeJSON(w, map[string]string{"status": "token accepted"})
}
