package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/gateway"
)

// MetricsEntry records the outcome of one Service.Call invocation.
type MetricsEntry struct {
	Timestamp     time.Time
	Method        string
	Planner       string // "primary" or "stub"
	Model         string
	DurationMs    int64
	Fallback      bool
	Error         string
	Context       string
}

// MetricsRing is a bounded, mutex-guarded ring buffer of planner call
// metrics, grounded on the teacher's mutex-guarded-map idiom
// (internal/engine/runtime/session_registry.go-equivalent) applied to a
// slice instead of a map.
type MetricsRing struct {
	mu  sync.Mutex
	buf []MetricsEntry
	max int
}

// NewMetricsRing creates a ring retaining at most max entries.
func NewMetricsRing(max int) *MetricsRing {
	if max < 1 {
		max = 1
	}
	return &MetricsRing{max: max}
}

func (r *MetricsRing) record(e MetricsEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, e)
	if len(r.buf) > r.max {
		r.buf = r.buf[len(r.buf)-r.max:]
	}
}

// Clear discards every recorded entry; used by the Engine Coordinator's
// reset().
func (r *MetricsRing) Clear() {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
}

// Snapshot returns a copy of the current ring contents, oldest first.
func (r *MetricsRing) Snapshot() []MetricsEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MetricsEntry, len(r.buf))
	copy(out, r.buf)
	return out
}

// Service wraps an LLMGateway with the planner fallback contract of
// spec.md §4.6: the primary planner is tried first; on error, when not in
// strict mode, a deterministic stub planner is substituted so the
// simulation keeps advancing. Every call is recorded into a bounded
// metrics ring regardless of outcome.
type Service struct {
	llm     gateway.LLMGateway
	strict  bool
	metrics *MetricsRing
}

// NewService builds a Service. strict disables the stub fallback: a
// primary-planner error is then returned to the caller instead of masked.
func NewService(llm gateway.LLMGateway, strict bool) *Service {
	return &Service{llm: llm, strict: strict, metrics: NewMetricsRing(200)}
}

// Metrics exposes the service's call-history ring.
func (s *Service) Metrics() *MetricsRing { return s.metrics }

// Call invokes the primary planner for method with messages, falling back
// to a deterministic stub on error unless running in strict mode.
func (s *Service) Call(ctx context.Context, method string, messages []gateway.Message, model, callContext string) (PlanResult, error) {
	start := time.Now()
	text, tokens, err := s.llm.Generate(ctx, messages, model)

	entry := MetricsEntry{Timestamp: start, Method: method, Model: model, Context: callContext}

	if err == nil {
		entry.Planner = "primary"
		entry.DurationMs = time.Since(start).Milliseconds()
		s.metrics.record(entry)
		return PlanResult{Content: text, ModelUsed: model, TokensUsed: tokens}, nil
	}

	entry.Error = err.Error()
	if s.strict {
		entry.Planner = "primary"
		entry.DurationMs = time.Since(start).Milliseconds()
		s.metrics.record(entry)
		return PlanResult{}, fmt.Errorf("planner: %s: %w", method, err)
	}

	entry.Planner = "stub"
	entry.Fallback = true
	entry.DurationMs = time.Since(start).Milliseconds()
	s.metrics.record(entry)
	return PlanResult{Content: stubContent(method, callContext), ModelUsed: "stub", TokensUsed: 0}, nil
}

// stubContent deterministically stands in for a failed primary-planner
// call so dependent ticks (hourly summaries, daily reports) still have
// content to aggregate.
func stubContent(method, callContext string) string {
	if callContext == "" {
		return fmt.Sprintf("[fallback:%s] no content available", method)
	}
	return fmt.Sprintf("[fallback:%s] %s", method, callContext)
}
