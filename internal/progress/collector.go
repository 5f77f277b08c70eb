package progress

import (
	"sync"

	"github.com/noteport/noteport/internal/types"
)

// Collector accumulates results and warnings into a summary and reports
// each recorded result as a progress event.
type Collector struct {
	mu       sync.Mutex
	summary  *types.OperationSummary
	reporter *Reporter
}

// NewCollector wraps summary. fn may be nil.
func NewCollector(summary *types.OperationSummary, fn Func) *Collector {
	return &Collector{summary: summary, reporter: NewReporter(fn)}
}

// Record adds r to the summary and emits one event for it.
func (c *Collector) Record(r types.FileResult) {
	c.mu.Lock()
	c.summary.Record(r)
	e := Event{
		Operation: c.summary.Operation,
		Current:   c.summary.ProcessedFiles,
		Total:     c.summary.TotalFiles,
		Path:      r.Path,
		Result:    r,
	}
	c.mu.Unlock()
	c.reporter.Emit(e)
}

// Warn appends a non-fatal warning.
func (c *Collector) Warn(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Warn(format, args...)
}

// Summary returns the summary being filled.
func (c *Collector) Summary() *types.OperationSummary {
	return c.summary
}

// Close flushes pending events and stamps the duration.
func (c *Collector) Close() *types.OperationSummary {
	c.reporter.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Finish()
	return c.summary
}
