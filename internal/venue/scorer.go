package venue

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/pkg/types"
)

// BookSource supplies cached order book snapshots for scoring. Lookups must
// not block; a missing book falls back to the default spread estimate.
type BookSource interface {
	CachedBook(venue, symbol string) (*types.OrderBook, bool)
	VenuesForSymbol(symbol string) []string
}

// Scorer ranks venues per (venue, symbol) by six weighted factors:
// liquidity, cost, response time, reliability, spread and slippage.
// Weights self-adjust on the periodic maintenance pass when enabled.
type Scorer struct {
	registry *Registry
	stats    *StatsStore
	books    BookSource
	cfg      config.ScorerConfig
	logger   *logrus.Entry

	onMaintenance func()
	stopCh        chan struct{}
}

// NewScorer creates a venue scorer
func NewScorer(registry *Registry, stats *StatsStore, books BookSource, cfg config.ScorerConfig) *Scorer {
	if cfg.DefaultScore <= 0 {
		cfg.DefaultScore = 0.5
	}
	if cfg.BaseQuantity.IsZero() {
		cfg.BaseQuantity = decimal.NewFromInt(1)
	}
	return &Scorer{
		registry: registry,
		stats:    stats,
		books:    books,
		cfg:      cfg,
		logger:   logrus.WithField("component", "venue-scorer"),
		stopCh:   make(chan struct{}),
	}
}

// OnMaintenance registers a hook invoked after each decay/reweight pass
func (sc *Scorer) OnMaintenance(fn func()) {
	sc.onMaintenance = fn
}

// Start runs the periodic stats decay and adaptive weight recalculation.
// A single instance is scheduled; scoring reads run concurrently with it.
func (sc *Scorer) Start() {
	go sc.maintenanceLoop()
}

// Stop halts the maintenance loop
func (sc *Scorer) Stop() {
	close(sc.stopCh)
}

// Score computes the combined 0..1 score for a venue and symbol at the
// requested quantity, and refreshes the venue's live sub-scores
func (sc *Scorer) Score(venueID, symbol string, quantity decimal.Decimal) float64 {
	info, ok := sc.registry.Info(venueID)
	if !ok {
		return 0
	}

	scores := sc.Factors(venueID, symbol, quantity)
	sc.registry.updateInfo(venueID, func(i *Info) {
		i.Scores = scores
	})

	weights := info.Weights.slice()
	values := scores.slice()

	var weighted, total float64
	for i := range values {
		weighted += values[i] * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Factors computes the six normalized sub-scores for a venue. Any factor
// with no input keeps the configured default so an unknown venue stays
// rankable.
func (sc *Scorer) Factors(venueID, symbol string, quantity decimal.Decimal) Scores {
	d := sc.cfg.DefaultScore
	scores := Scores{
		Liquidity:    d,
		Cost:         d,
		ResponseTime: d,
		Reliability:  d,
		Spread:       d,
		Slippage:     d,
	}

	symStats := sc.stats.SymbolStats(symbol)
	st, hasStats := symStats[venueID]

	// liquidity: venue share of recent volume, saturating at a 50% share
	if hasStats && !st.TotalVolume.IsZero() {
		total := decimal.Zero
		for _, s := range symStats {
			total = total.Add(s.TotalVolume)
		}
		if total.IsPositive() {
			share, _ := st.TotalVolume.Div(total).Float64()
			scores.Liquidity = math.Min(share*2, 1.0)
		}
	}

	// cost: taker fee plus live spread in bps, defaulting the spread when
	// no book snapshot is cached
	spreadPct := sc.cfg.DefaultSpreadPct
	if book, ok := sc.books.CachedBook(venueID, symbol); ok {
		if sp := book.SpreadPct(); sp.IsPositive() {
			spreadPct, _ = sp.Float64()
		}
	}
	info, _ := sc.registry.Info(venueID)
	costBps := info.TakerFeeBps + spreadPct*10000
	scores.Cost = clamp01(1 - costBps/100)

	// response time: fastest observed venue scores 1, slowest 0
	if hasStats && st.RecentExecutions > 0 {
		if score, ok := normalizeInverse(float64(st.AverageResponseTime), responseTimes(symStats)); ok {
			scores.ResponseTime = score
		}
	}

	// reliability: recent success rate, used directly
	if hasStats && st.RecentExecutions > 0 {
		scores.Reliability = clamp01(st.SuccessRate)
	}

	// spread: tightest live spread across venues quoting the symbol scores 1
	if book, ok := sc.books.CachedBook(venueID, symbol); ok {
		if sp := book.SpreadPct(); sp.IsPositive() {
			own, _ := sp.Float64()
			if score, ok := normalizeInverse(own, sc.liveSpreads(symbol)); ok {
				scores.Spread = score
			}
		}
	}

	// slippage: the scored venue's realized slippage is scaled by
	// sqrt(qty/base) before normalization, so larger clips rank worse even
	// against the same peer set
	if hasStats && st.RecentExecutions > 0 {
		var values []float64
		for _, s := range symStats {
			if s.RecentExecutions > 0 {
				values = append(values, s.AverageSlippage)
			}
		}
		if score, ok := normalizeInverse(st.AverageSlippage*sc.clipScale(quantity), values); ok {
			scores.Slippage = score
		}
	}

	return scores
}

// maintenanceLoop runs decay and adaptive reweighting on one schedule
func (sc *Scorer) maintenanceLoop() {
	interval := sc.cfg.RecalcInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.stopCh:
			return
		case <-ticker.C:
			sc.stats.Decay()
			if sc.cfg.AdaptiveWeights {
				sc.recalculateWeights()
			}
			if sc.onMaintenance != nil {
				sc.onMaintenance()
			}
		}
	}
}

// recalculateWeights shifts each venue's weight budget toward its currently
// strong factors. Runs once per maintenance tick, never per request, to
// avoid oscillation.
func (sc *Scorer) recalculateWeights() {
	for _, venueID := range sc.registry.IDs() {
		symbols := sc.stats.SymbolsForVenue(venueID)
		if len(symbols) == 0 {
			continue
		}

		var mean [6]float64
		for _, symbol := range symbols {
			factors := sc.Factors(venueID, symbol, sc.cfg.BaseQuantity).slice()
			for i := range mean {
				mean[i] += factors[i]
			}
		}
		for i := range mean {
			mean[i] /= float64(len(symbols))
		}

		sc.registry.updateInfo(venueID, func(info *Info) {
			adjusted := adjustWeights(info.Weights, mean)
			sc.logger.WithFields(logrus.Fields{
				"venue":   venueID,
				"weights": adjusted,
			}).Debug("venue weights recalculated")
			info.Weights = adjusted
		})
	}
}

// adjustWeights multiplies weights of factors in the bottom 30% of the
// score range by 0.8 and those in the top 30% by 1.2, then rescales so the
// total weight budget is unchanged.
func adjustWeights(w Weights, scores [6]float64) Weights {
	min, max := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max-min < 1e-9 {
		return w
	}

	lower := min + 0.3*(max-min)
	upper := max - 0.3*(max-min)

	before := w.Sum()
	values := w.slice()
	for i := range values {
		switch {
		case scores[i] <= lower:
			values[i] *= 0.8
		case scores[i] >= upper:
			values[i] *= 1.2
		}
	}

	after := 0.0
	for _, v := range values {
		after += v
	}
	if after > 0 {
		scale := before / after
		for i := range values {
			values[i] *= scale
		}
	}

	w.setSlice(values)
	return w
}

// liveSpreads collects spread percentages of all venues quoting the symbol
func (sc *Scorer) liveSpreads(symbol string) []float64 {
	var spreads []float64
	for _, id := range sc.registry.IDs() {
		if book, ok := sc.books.CachedBook(id, symbol); ok {
			if sp := book.SpreadPct(); sp.IsPositive() {
				v, _ := sp.Float64()
				spreads = append(spreads, v)
			}
		}
	}
	return spreads
}

func (sc *Scorer) clipScale(quantity decimal.Decimal) float64 {
	qty, _ := quantity.Float64()
	base, _ := sc.cfg.BaseQuantity.Float64()
	if base <= 0 || qty <= 0 {
		return 1
	}
	return math.Sqrt(qty / base)
}

func responseTimes(symStats map[string]Stats) []float64 {
	var values []float64
	for _, s := range symStats {
		if s.RecentExecutions > 0 {
			values = append(values, float64(s.AverageResponseTime))
		}
	}
	return values
}

// normalizeInverse maps value into [0,1] against the observed range where
// the smallest value scores 1. Returns false when the range is degenerate.
func normalizeInverse(value float64, values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max-min < 1e-12 {
		return 0, false
	}
	return clamp01(1 - (value-min)/(max-min)), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
