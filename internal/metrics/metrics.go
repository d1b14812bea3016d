// Package metrics is the backend-neutral metrics facade used by the pipeline.
//
// Pipeline code records through the package-level helpers; a concrete
// backend (see internal/metrics/datadog) is installed once at startup with
// SetBackend. Until then every call goes to a no-op backend.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	DegradedTotal       = "etl_degraded_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend if it buffers. It returns nil for
// backends that do not.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one execution of a pipeline step and observes its
// duration. status is "ok" when err is nil and "error" otherwise.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords adds n to the record counter for kind ("read", "written").
// Non-positive n is ignored.
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordDegraded adds n to the counter of values that could not be parsed
// and were replaced by defaults. field is the input column, reason is
// "empty", "unparseable" or "null".
func RecordDegraded(field, reason string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(DegradedTotal, float64(n), Labels{"field": field, "reason": reason})
}
