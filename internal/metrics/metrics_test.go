package metrics

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rzbill/bookq/internal/mq"
)

func TestStoreMetricsCounts(t *testing.T) {
	m := NewStoreMetrics(prometheus.NewRegistry())
	m.ObserveWrite(time.Millisecond, 10)
	m.ObserveWrite(time.Millisecond, 5)
	m.ObserveRead(time.Millisecond, 4)
	m.ObserveBatchCommit(time.Millisecond, 3, 100)

	if got := testutil.ToFloat64(m.writeBytes); got != 15 {
		t.Fatalf("write bytes = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.readBytes); got != 4 {
		t.Fatalf("read bytes = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.commitBytes); got != 100 {
		t.Fatalf("commit bytes = %v, want 100", got)
	}
}

func TestEngineEventsCounts(t *testing.T) {
	ev := NewEngineEvents(prometheus.NewRegistry())
	var id mq.MessageID
	ev.Processed(id, "q", 7, true)
	ev.Processed(id, "q", 3, false)
	ev.ProcessingFailed(id, "q", errors.New("boom"))
	ev.OverweightEnqueued(id, "q", 0, 1)
	ev.PageReaped("q", 2)

	if got := testutil.ToFloat64(ev.processed.WithLabelValues("true")); got != 1 {
		t.Fatalf("processed{success=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ev.processed.WithLabelValues("false")); got != 1 {
		t.Fatalf("processed{success=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ev.weightUsed); got != 10 {
		t.Fatalf("weight consumed = %v, want 10", got)
	}
	if got := testutil.ToFloat64(ev.failed); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ev.overweight); got != 1 {
		t.Fatalf("overweight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ev.reaped); got != 1 {
		t.Fatalf("reaped = %v, want 1", got)
	}
}
