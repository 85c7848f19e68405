// Package history keeps recent run records per plugin and summarizes
// their durations.
package history

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/probehost/internal/runtime"
)

// DefaultSize is the number of records kept per plugin.
const DefaultSize = 50

// Record is one finished run.
type Record struct {
	RunID    string        `json:"runId"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"durationNs"`
	At       time.Time     `json:"at"`
}

// Stats summarizes a plugin's recent runs. Durations are milliseconds.
type Stats struct {
	PluginID    string    `json:"pluginId"`
	Count       int       `json:"count"`
	Failures    int       `json:"failures"`
	MeanMs      float64   `json:"meanMs"`
	P50Ms       float64   `json:"p50Ms"`
	P95Ms       float64   `json:"p95Ms"`
	LastOutcome string    `json:"lastOutcome,omitempty"`
	LastRunAt   time.Time `json:"lastRunAt,omitempty"`
}

// History is safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	size    int
	records map[string][]Record
}

// New keeps up to size records per plugin.
func New(size int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	return &History{size: size, records: make(map[string][]Record)}
}

// Observe records a run result.
func (h *History) Observe(res runtime.RunResult) {
	h.Add(res.PluginID, Record{
		RunID:    res.RunID.String(),
		Outcome:  res.Outcome(),
		Duration: res.Duration,
		At:       res.StartedAt,
	})
}

// Add appends rec, evicting the oldest record past the limit.
func (h *History) Add(pluginID string, rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recs := append(h.records[pluginID], rec)
	if over := len(recs) - h.size; over > 0 {
		recs = append([]Record(nil), recs[over:]...)
	}
	h.records[pluginID] = recs
}

// Recent returns the plugin's records, oldest first.
func (h *History) Recent(pluginID string) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Record(nil), h.records[pluginID]...)
}

// Stats computes the summary for pluginID. A plugin without runs has a
// zero Count.
func (h *History) Stats(pluginID string) Stats {
	recs := h.Recent(pluginID)
	st := Stats{PluginID: pluginID, Count: len(recs)}
	if len(recs) == 0 {
		return st
	}

	durations := make([]float64, len(recs))
	for i, r := range recs {
		durations[i] = float64(r.Duration) / float64(time.Millisecond)
		if r.Outcome != "ok" {
			st.Failures++
		}
	}
	sort.Float64s(durations)

	st.MeanMs = stat.Mean(durations, nil)
	st.P50Ms = stat.Quantile(0.5, stat.Empirical, durations, nil)
	st.P95Ms = stat.Quantile(0.95, stat.Empirical, durations, nil)

	last := recs[len(recs)-1]
	st.LastOutcome = last.Outcome
	st.LastRunAt = last.At
	return st
}
