package monitoring

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
	"github.com/roach88/modelops/internal/predictor"
)

// Drift thresholds.
const (
	PSIAlertThreshold = 0.2
	minTextDelta      = 2.0
	textDeltaFraction = 0.3
)

var (
	defaultPriceBins      = []float64{0, 200, 400, 600, 800, 1000, 2000}
	defaultTextLengthMean = 10.0
)

// Report is the drift report document.
type Report struct {
	GeneratedAt     clock.Timestamp `json:"generated_at"`
	PricePSI        float64         `json:"price_psi"`
	TextLengthDelta float64         `json:"text_length_delta"`
	Alerts          []string        `json:"alerts"`
}

// DriftMonitor compares request batches against training baseline stats.
type DriftMonitor struct {
	bins       []float64
	baseline   []float64
	textMean   float64
	reportPath string
	clock      clock.Clock
}

// NewDriftMonitor builds a monitor from a manifest's baseline stats. Missing
// bins default to price edges 0..2000; a missing histogram puts all baseline
// mass in the first bin; a missing text mean defaults to 10 words.
func NewDriftMonitor(stats predictor.BaselineStats, reportPath string, clk clock.Clock) *DriftMonitor {
	if clk == nil {
		clk = clock.System{}
	}
	m := &DriftMonitor{
		bins:       stats.PriceBins,
		baseline:   stats.PriceHist,
		textMean:   defaultTextLengthMean,
		reportPath: reportPath,
		clock:      clk,
	}
	if len(m.bins) < 2 {
		m.bins = defaultPriceBins
	}
	if len(m.baseline) == 0 {
		m.baseline = make([]float64, len(m.bins)-1)
		m.baseline[0] = 1
	}
	if stats.TextLengthMean != nil {
		m.textMean = *stats.TextLengthMean
	}
	return m
}

// Evaluate computes price PSI and the mean word-count delta for records,
// writes the report and returns it. An empty batch fails InvalidArgument.
func (m *DriftMonitor) Evaluate(records []predictor.Record) (Report, error) {
	if len(records) == 0 {
		return Report{}, fault.New(fault.InvalidArgument, "monitoring.drift", "no records provided for drift evaluation")
	}

	prices := make([]float64, len(records))
	var words float64
	for i, r := range records {
		if r.Price != nil {
			prices[i] = *r.Price
		}
		words += float64(len(strings.Fields(deref(r.Title) + " " + deref(r.Description))))
	}

	psi := PSI(m.baseline, Histogram(prices, m.bins))
	delta := words/float64(len(records)) - m.textMean

	alerts := []string{}
	if psi > PSIAlertThreshold {
		alerts = append(alerts, fmt.Sprintf("price_psi_high:%.2f", psi))
	}
	if math.Abs(delta) > math.Max(minTextDelta, textDeltaFraction*m.textMean) {
		alerts = append(alerts, fmt.Sprintf("text_length_drift:%.2f", delta))
	}

	report := Report{
		GeneratedAt:     clock.NewTimestamp(m.clock.Now()),
		PricePSI:        round4(psi),
		TextLengthDelta: round4(delta),
		Alerts:          alerts,
	}
	if err := os.MkdirAll(filepath.Dir(m.reportPath), 0o755); err != nil {
		return Report{}, fmt.Errorf("write drift report: %w", err)
	}
	if err := fsutil.WriteJSON(m.reportPath, report); err != nil {
		return Report{}, fmt.Errorf("write drift report: %w", err)
	}
	return report, nil
}

// Histogram returns the share of values in each bin. Bins are half-open
// [lo, hi) except the last, which includes its upper edge; values outside
// the edges are dropped. With no values in range every share is zero.
func Histogram(values, edges []float64) []float64 {
	counts := make([]float64, len(edges)-1)
	var total float64
	for _, v := range values {
		if v < edges[0] || v > edges[len(edges)-1] {
			continue
		}
		i := len(counts) - 1
		for j := 0; j < len(counts); j++ {
			if v < edges[j+1] {
				i = j
				break
			}
		}
		counts[i]++
		total++
	}
	if total > 0 {
		for i := range counts {
			counts[i] /= total
		}
	}
	return counts
}

// PSI is the population stability index of actual against expected, over
// their common prefix.
func PSI(expected, actual []float64) float64 {
	const eps = 1e-9
	n := min(len(expected), len(actual))
	var sum float64
	for i := 0; i < n; i++ {
		e, a := expected[i], actual[i]
		sum += (a - e) * math.Log((a+eps)/(e+eps))
	}
	return sum
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
