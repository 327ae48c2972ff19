package perf

import (
	"testing"

	"github.com/openr-go/fib-agent/pkg/api"
)

func trace(firstTs, lastTs int64) api.PerfTrace {
	return api.PerfTrace{Events: []api.PerfEvent{
		{Node: "n1", EventName: "DECISION_RECEIVED", UnixTsMs: firstTs},
		{Node: "n1", EventName: "OPENR_FIB_ROUTES_PROGRAMMED", UnixTsMs: lastTs},
	}}
}

func TestTracker_AcceptsValidTrace(t *testing.T) {
	tr := New(10, 5000)
	if err := tr.Add(trace(1000, 1200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Dump("n1").Traces) != 1 {
		t.Errorf("expected 1 trace recorded")
	}
}

func TestTracker_RejectsStaleTrace(t *testing.T) {
	tr := New(10, 5000)
	if err := tr.Add(trace(2000, 2100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Add(trace(1500, 1700)); err != ErrStaleTrace {
		t.Errorf("expected ErrStaleTrace, got %v", err)
	}
	if err := tr.Add(trace(2000, 2100)); err != ErrStaleTrace {
		t.Errorf("expected ErrStaleTrace for a duplicate first timestamp, got %v", err)
	}
}

func TestTracker_RejectsImplausibleDuration(t *testing.T) {
	tr := New(10, 1000)
	if err := tr.Add(trace(1000, 5000)); err != ErrBadDuration {
		t.Errorf("expected ErrBadDuration for an over-long trace, got %v", err)
	}
	if err := tr.Add(trace(2000, 1500)); err != ErrBadDuration {
		t.Errorf("expected ErrBadDuration for a negative-duration trace, got %v", err)
	}
}

func TestTracker_EmptyTraceIgnored(t *testing.T) {
	tr := New(10, 5000)
	if err := tr.Add(api.PerfTrace{}); err != nil {
		t.Fatalf("expected empty trace to be silently ignored, got %v", err)
	}
	if len(tr.Dump("n1").Traces) != 0 {
		t.Errorf("empty trace should not be recorded")
	}
}

func TestTracker_EvictsOldestWhenFull(t *testing.T) {
	tr := New(2, 100000)
	tr.Add(trace(1000, 1100))
	tr.Add(trace(2000, 2100))
	tr.Add(trace(3000, 3100))

	traces := tr.Dump("n1").Traces
	if len(traces) != 2 {
		t.Fatalf("expected capacity-bounded 2 traces, got %d", len(traces))
	}
	if traces[0].FirstTs() != 2000 {
		t.Errorf("expected the oldest trace (firstTs=1000) to be evicted, got first entry %+v", traces[0])
	}
}
