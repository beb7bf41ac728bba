package api

import (
	"net/http"
	"sync"

	"github.com/baker-street/brain/pkg/router"
)

// UsageSummary is the running total for one model id, or the grand total.
type UsageSummary struct {
	Calls        int     `json:"calls"`
	Errors       int     `json:"errors"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
}

// UsageTracker accumulates ModelRouter call cost and token counts, fed by
// the router's audit callback (supplemented cost accounting).
type UsageTracker struct {
	mu      sync.Mutex
	total   UsageSummary
	byModel map[string]*UsageSummary
}

// NewUsageTracker constructs an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{byModel: map[string]*UsageSummary{}}
}

// Record is registered as the router's SetOnAPICall audit callback.
func (t *UsageTracker) Record(evt router.AuditEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Calls++
	summary, ok := t.byModel[evt.Model]
	if !ok {
		summary = &UsageSummary{}
		t.byModel[evt.Model] = summary
	}
	summary.Calls++

	if evt.Err != nil {
		t.total.Errors++
		summary.Errors++
		return
	}
	if evt.InputTokens != nil {
		t.total.InputTokens += *evt.InputTokens
		summary.InputTokens += *evt.InputTokens
	}
	if evt.OutputTokens != nil {
		t.total.OutputTokens += *evt.OutputTokens
		summary.OutputTokens += *evt.OutputTokens
	}
	t.total.Cost += evt.Cost
	summary.Cost += evt.Cost
}

// Snapshot returns the grand total and a copy of the per-model breakdown.
func (t *UsageTracker) Snapshot() (UsageSummary, map[string]UsageSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byModel := make(map[string]UsageSummary, len(t.byModel))
	for model, s := range t.byModel {
		byModel[model] = *s
	}
	return t.total, byModel
}

// handleUsage implements GET /usage (supplemented cost accounting).
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Usage == nil {
		writeJSON(w, http.StatusOK, map[string]any{"total": UsageSummary{}, "byModel": map[string]UsageSummary{}})
		return
	}
	total, byModel := s.cfg.Usage.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "byModel": byModel})
}
