package venue

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Stats is the rolling execution record for one (venue, symbol) pair.
// Counts decay over time so old behavior stops influencing routing.
type Stats struct {
	TotalVolume         decimal.Decimal `json:"total_volume"`
	AverageResponseTime time.Duration   `json:"average_response_time"`
	SuccessRate         float64         `json:"success_rate"`
	AverageSlippage     float64         `json:"average_slippage"`
	RecentExecutions    float64         `json:"recent_executions"`
	RecentErrors        float64         `json:"recent_errors"`
}

type statsKey struct {
	Venue  string
	Symbol string
}

// StatsStore holds rolling stats per (venue, symbol). Updates are atomic
// per key under the store lock; the decay pass runs on a single ticker.
type StatsStore struct {
	mu            sync.RWMutex
	stats         map[statsKey]*Stats
	decayFactor   float64
	volumeEpsilon decimal.Decimal
}

// NewStatsStore creates a stats store with the given decay factor (0..1)
// and the prune threshold for total volume
func NewStatsStore(decayFactor, volumeEpsilon float64) *StatsStore {
	if decayFactor <= 0 || decayFactor >= 1 {
		decayFactor = 0.9
	}
	return &StatsStore{
		stats:         make(map[statsKey]*Stats),
		decayFactor:   decayFactor,
		volumeEpsilon: decimal.NewFromFloat(volumeEpsilon),
	}
}

// RecordExecution folds one execution outcome into the venue's stats
func (s *StatsStore) RecordExecution(venue, symbol string, volume decimal.Decimal, responseTime time.Duration, slippage float64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statsKey{Venue: venue, Symbol: symbol}
	st, ok := s.stats[key]
	if !ok {
		st = &Stats{SuccessRate: 1.0}
		s.stats[key] = st
	}

	st.RecentExecutions++
	if !success {
		st.RecentErrors++
	} else {
		st.TotalVolume = st.TotalVolume.Add(volume)

		// running averages weighted by the decayed execution count
		n := st.RecentExecutions
		st.AverageResponseTime = time.Duration(
			(float64(st.AverageResponseTime)*(n-1) + float64(responseTime)) / n)
		st.AverageSlippage = (st.AverageSlippage*(n-1) + slippage) / n
	}

	if st.RecentExecutions > 0 {
		st.SuccessRate = 1.0 - st.RecentErrors/st.RecentExecutions
	}
}

// Get returns a copy of the stats for one (venue, symbol)
func (s *StatsStore) Get(venue, symbol string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[statsKey{Venue: venue, Symbol: symbol}]
	if !ok {
		return Stats{}, false
	}
	return *st, true
}

// SymbolStats returns per-venue stats copies for a symbol
func (s *StatsStore) SymbolStats(symbol string) map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Stats)
	for key, st := range s.stats {
		if key.Symbol == symbol {
			out[key.Venue] = *st
		}
	}
	return out
}

// SymbolsForVenue returns the symbols a venue has stats for
func (s *StatsStore) SymbolsForVenue(venue string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var symbols []string
	for key := range s.stats {
		if key.Venue == venue {
			symbols = append(symbols, key.Symbol)
		}
	}
	return symbols
}

// Decay ages every entry and prunes pairs with no remaining signal
func (s *StatsStore) Decay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	factor := decimal.NewFromFloat(s.decayFactor)
	for key, st := range s.stats {
		st.RecentExecutions *= s.decayFactor
		st.RecentErrors *= s.decayFactor
		st.TotalVolume = st.TotalVolume.Mul(factor)

		if st.RecentExecutions < 1 && st.TotalVolume.LessThan(s.volumeEpsilon) {
			delete(s.stats, key)
		}
	}
}

// Snapshot returns all stats keyed "venue|symbol", for persistence
func (s *StatsStore) Snapshot() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Stats, len(s.stats))
	for key, st := range s.stats {
		out[key.Venue+"|"+key.Symbol] = *st
	}
	return out
}

// Restore loads a snapshot produced by Snapshot, replacing current contents
func (s *StatsStore) Restore(snapshot map[string]Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = make(map[statsKey]*Stats, len(snapshot))
	for key, st := range snapshot {
		for i := 0; i < len(key); i++ {
			if key[i] == '|' {
				copied := st
				s.stats[statsKey{Venue: key[:i], Symbol: key[i+1:]}] = &copied
				break
			}
		}
	}
}
