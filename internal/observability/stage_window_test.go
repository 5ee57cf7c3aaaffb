package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe("respond", 500)
	w.Observe("respond", 700)
	w.Observe("respond", 900)
	w.ObserveIndicator("turn_completed")
	w.ObserveIndicator("turn_completed")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "respond" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "respond")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 2500 {
		t.Fatalf("TargetP95MS = %.2f, want 2500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want turn_completed x2", snap.Indicators)
	}
}

func TestStageWindowWraps(t *testing.T) {
	w := newStageWindow(2)
	w.Observe("transcribe", 1)
	w.Observe("transcribe", 2)
	w.Observe("transcribe", 3)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5", s.AvgMS)
	}
}

func TestMetricsRecordTurnsAndStatus(t *testing.T) {
	m := NewMetricsWith("test", prometheus.NewRegistry())
	m.ObserveTurn("text", "completed")
	m.ObserveStage("respond", 120*time.Millisecond)
	m.SetStatus("ready", []string{"init", "ready", "recording", "processing"})

	if got := testutil.ToFloat64(m.Turns.WithLabelValues("text", "completed")); got != 1 {
		t.Fatalf("turns_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionStatus.WithLabelValues("ready")); got != 1 {
		t.Fatalf("session_status{ready} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionStatus.WithLabelValues("init")); got != 0 {
		t.Fatalf("session_status{init} = %v, want 0", got)
	}
	if snap := m.StageSnapshot(); len(snap.Stages) != 1 || snap.Stages[0].LastMS != 120 {
		t.Fatalf("StageSnapshot() = %+v, want respond 120ms", snap)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("text", "completed")
	m.ObserveStage("respond", time.Second)
	if snap := m.StageSnapshot(); len(snap.Stages) != 0 {
		t.Fatalf("StageSnapshot() on nil = %+v, want empty", snap)
	}
}

func TestStageWindowPipelineOrderAndTargets(t *testing.T) {
	w := newStageWindow(16)
	w.Observe("turn_total", 7000)
	w.Observe("custom", 1)
	w.Observe("to_pivot", 100)
	w.Observe("to_pivot", 900)
	w.Observe("transcribe", 300)

	snap := w.Snapshot()
	var order []string
	for _, s := range snap.Stages {
		order = append(order, s.Stage)
	}
	want := []string{"transcribe", "to_pivot", "turn_total", "custom"}
	if len(order) != len(want) {
		t.Fatalf("stages = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("stages = %v, want %v", order, want)
		}
	}
	if got := snap.Stages[1].OverTarget; got != 1 {
		t.Fatalf("to_pivot OverTarget = %d, want 1", got)
	}
	if got := snap.Stages[2].OverTarget; got != 1 {
		t.Fatalf("turn_total OverTarget = %d, want 1", got)
	}
	if got := snap.Stages[3].TargetP95MS; got != 0 {
		t.Fatalf("custom TargetP95MS = %v, want 0", got)
	}

	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("Snapshot() after Reset = %+v, want empty", snap)
	}
}
