package metrics

import (
	"math"
	"sort"
	"time"

	"citydir/internal/model"
)

// Summary is a basic statistics snapshot over relay samples.
type Summary struct {
	Count      int
	Failures   int
	From       time.Time
	To         time.Time
	SuccessPct float64
	AvgRTTMs   float64
	P95RTTMs   float64
	MinRTTMs   float64
	MaxRTTMs   float64
	ByOutcome  map[string]int
}

// Summarize computes summary metrics for samples at or after since,
// optionally restricted to one city.
func Summarize(items []model.RelaySample, since time.Time, city string) Summary {
	filtered := make([]model.RelaySample, 0, len(items))
	for _, m := range items {
		if city != "" && m.City != city {
			continue
		}
		if m.Timestamp.After(since) || m.Timestamp.Equal(since) {
			filtered = append(filtered, m)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	values := make([]float64, 0, len(filtered))
	byOutcome := map[string]int{}
	var sumRTT float64
	failures := 0
	minRTT := math.MaxFloat64
	maxRTT := 0.0
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp

	for _, m := range filtered {
		byOutcome[m.Outcome]++
		if !succeeded(m.Outcome) {
			failures++
		}
		values = append(values, m.RTTMs)
		sumRTT += m.RTTMs
		if m.RTTMs < minRTT {
			minRTT = m.RTTMs
		}
		if m.RTTMs > maxRTT {
			maxRTT = m.RTTMs
		}
		if m.Timestamp.Before(from) {
			from = m.Timestamp
		}
		if m.Timestamp.After(to) {
			to = m.Timestamp
		}
	}

	sort.Float64s(values)
	count := float64(len(filtered))

	return Summary{
		Count:      len(filtered),
		Failures:   failures,
		From:       from,
		To:         to,
		SuccessPct: 100.0 * (count - float64(failures)) / count,
		AvgRTTMs:   sumRTT / count,
		P95RTTMs:   percentile(values, 0.95),
		MinRTTMs:   minRTT,
		MaxRTTMs:   maxRTT,
		ByOutcome:  byOutcome,
	}
}

func succeeded(outcome string) bool {
	return outcome == "ok" || outcome == "response"
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
