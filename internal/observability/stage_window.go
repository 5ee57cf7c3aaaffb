package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts samples in the window slower than the target.
	OverTarget int `json:"over_target,omitempty"`
}

type TurnIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Indicators  []TurnIndicator  `json:"indicators,omitempty"`
}

// pipelineOrder lists stages in the order a turn runs them. Unknown stages
// sort after these by name.
var pipelineOrder = []string{"capture", "transcribe", "to_pivot", "respond", "from_pivot", "synthesize", "turn_total"}

var stageTargetsMS = map[string]float64{
	"transcribe": 2000,
	"to_pivot":   600,
	"respond":    2500,
	"from_pivot": 600,
	"synthesize": 1500,
	"turn_total": 6000,
}

// stageWindow keeps the most recent samples per stage for the perf endpoint.
type stageWindow struct {
	size int

	mu         sync.Mutex
	samples    map[string][]float64 // oldest first, at most size entries
	indicators map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{
		size:       size,
		samples:    make(map[string][]float64),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], ms)
	if len(s) > w.size {
		s = s[len(s)-w.size:]
	}
	w.samples[stage] = s
}

func (w *stageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *stageWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.samples)
	clear(w.indicators)
}

func (w *stageWindow) Snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.samples)),
	}
	for _, stage := range stageNames(w.samples) {
		snap.Stages = append(snap.Stages, summarize(stage, w.samples[stage]))
	}

	names := make([]string, 0, len(w.indicators))
	for name := range w.indicators {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		snap.Indicators = append(snap.Indicators, TurnIndicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func summarize(stage string, raw []float64) TurnStageStats {
	sorted := slices.Clone(raw)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}

	target := stageTargetsMS[stage]
	over := 0
	if target > 0 {
		i, _ := slices.BinarySearch(sorted, math.Nextafter(target, math.Inf(1)))
		over = len(sorted) - i
	}
	return TurnStageStats{
		Stage:       stage,
		Samples:     len(sorted),
		LastMS:      round2(raw[len(raw)-1]),
		AvgMS:       round2(sum / float64(len(sorted))),
		P50MS:       round2(nearestRank(sorted, 0.50)),
		P95MS:       round2(nearestRank(sorted, 0.95)),
		MaxMS:       round2(sorted[len(sorted)-1]),
		TargetP95MS: target,
		OverTarget:  over,
	}
}

// nearestRank returns the smallest sample with at least q of the samples at
// or below it.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func stageNames(samples map[string][]float64) []string {
	out := make([]string, 0, len(samples))
	for _, stage := range pipelineOrder {
		if len(samples[stage]) > 0 {
			out = append(out, stage)
		}
	}
	var rest []string
	for stage, s := range samples {
		if len(s) > 0 && !slices.Contains(pipelineOrder, stage) {
			rest = append(rest, stage)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
