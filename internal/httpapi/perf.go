package httpapi

import "net/http"

// handlePerfLatency reports rolling per-stage latency for recent turns.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.StageSnapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"session_status": s.session.Snapshot().Status,
		"generated_at":   snap.GeneratedAt,
		"window_size":    snap.WindowSize,
		"stages":         snap.Stages,
		"indicators":     snap.Indicators,
	})
}

// handlePerfLatencyReset clears the window, e.g. before a benchmark run.
func (s *Server) handlePerfLatencyReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetStages()
	w.WriteHeader(http.StatusNoContent)
}
