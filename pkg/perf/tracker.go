// Package perf keeps a bounded history of convergence traces: the
// sequence of named, timestamped milestones ("DECISION_RECEIVED",
// "FIB_ROUTE_DB_RECVD", ...) a single route update passed through on
// its way from the decision engine to the platform FIB, used to measure
// end-to-end convergence time.
//
// Grounded on Fib.cpp's logPerfEvents: reject a trace whose first event
// is not newer than the most recently accepted trace (clock skew or
// replay), reject a trace whose total span is negative or implausibly
// large, then push the survivor into a fixed-size ring buffer, evicting
// the oldest entry once the buffer is full.
package perf

import (
	"fmt"

	"github.com/openr-go/fib-agent/pkg/api"
)

// ErrStaleTrace is returned when a trace's first event is not newer
// than the most recently accepted trace.
var ErrStaleTrace = fmt.Errorf("perf: trace is stale or duplicate")

// ErrBadDuration is returned when a trace's total duration is negative
// or exceeds the Tracker's maxDurationMs.
var ErrBadDuration = fmt.Errorf("perf: trace has an implausible total duration")

// Tracker is a fixed-capacity history of accepted PerfTraces plus the
// bookkeeping needed to reject stale or implausible ones.
type Tracker struct {
	capacity      int
	maxDurationMs int64
	recentFirstTs int64
	traces        []api.PerfTrace // oldest first, len <= capacity
}

// New returns a Tracker holding at most capacity traces, rejecting any
// trace whose total duration exceeds maxDurationMs.
func New(capacity int, maxDurationMs int64) *Tracker {
	return &Tracker{capacity: capacity, maxDurationMs: maxDurationMs}
}

// Add validates and records trace, per Fib.cpp's logPerfEvents. An
// empty trace (no events) is silently ignored, matching
// "!maybePerfEvents_->events.size() -> return" with no error: there was
// nothing to reject or accept.
func (t *Tracker) Add(trace api.PerfTrace) error {
	if len(trace.Events) == 0 {
		return nil
	}

	firstTs := trace.FirstTs()
	if firstTs <= t.recentFirstTs {
		return ErrStaleTrace
	}

	duration := trace.DurationMs()
	if duration < 0 || duration > t.maxDurationMs {
		return ErrBadDuration
	}

	t.recentFirstTs = firstTs
	t.traces = append(t.traces, trace)
	if t.capacity > 0 {
		for len(t.traces) > t.capacity {
			t.traces = t.traces[1:]
		}
	}
	return nil
}

// Dump returns a PerfDatabase snapshot of every trace currently held,
// oldest first, per Fib::dumpPerfDb.
func (t *Tracker) Dump(node string) api.PerfDatabase {
	out := make([]api.PerfTrace, len(t.traces))
	copy(out, t.traces)
	return api.PerfDatabase{ThisNodeName: node, Traces: out}
}
