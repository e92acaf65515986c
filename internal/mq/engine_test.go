package mq

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/rzbill/bookq/pkg/weight"
)

func TestEnqueueServiceRoundTrip(t *testing.T) {
	e, proc, ev := newTestEngine(t, nil)
	mustEnqueue(t, e, "xcm", "alpha", "beta", "gamma")

	fp := mustFootprint(t, e, "xcm")
	if fp.Pages != 1 || fp.ReadyPages != 1 || fp.Messages != 3 || fp.Size != 14 {
		t.Fatalf("footprint after enqueue = %+v", fp)
	}
	mustInvariants(t, e)

	consumed, err := e.ServiceQueues(weight.Max)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if consumed != 3 {
		t.Fatalf("consumed = %d, want 3 (one unit per message)", consumed)
	}
	if got := strings.Join(proc.ran, ","); got != "alpha,beta,gamma" {
		t.Fatalf("processing order = %q", got)
	}
	if len(ev.processed) != 3 || !ev.processed[0].success || ev.processed[0].used != 1 {
		t.Fatalf("processed events = %+v", ev.processed)
	}

	fp = mustFootprint(t, e, "xcm")
	if fp != (Footprint{}) {
		t.Fatalf("footprint after drain = %+v", fp)
	}
	if _, ok, err := e.serviceHead(); err != nil || ok {
		t.Fatalf("ready ring must be empty after drain: ok=%v err=%v", ok, err)
	}
	mustInvariants(t, e)
}

func TestEnqueuePageLayout(t *testing.T) {
	e, _, _ := newTestEngine(t, nil) // 1024-byte pages
	for i := 0; i < 3; i++ {
		if err := e.Enqueue("q", make([]byte, 100)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	// 3*(2+100)=306 bytes used; 902 more do not fit, so a second page opens.
	if err := e.Enqueue("q", make([]byte, 900)); err != nil {
		t.Fatalf("enqueue big: %v", err)
	}

	book, err := e.loadBook("q")
	if err != nil {
		t.Fatalf("load book: %v", err)
	}
	if book.begin != 0 || book.end != 2 || book.count != 2 {
		t.Fatalf("book window = begin=%d end=%d count=%d", book.begin, book.end, book.count)
	}
	if book.messageCount != 4 || book.size != 1200 {
		t.Fatalf("book stats = messages=%d size=%d", book.messageCount, book.size)
	}

	p0, ok, err := e.loadPage("q", 0)
	if err != nil || !ok {
		t.Fatalf("load page 0: ok=%v err=%v", ok, err)
	}
	if p0.remaining != 3 || len(p0.heap) != 306 {
		t.Fatalf("page 0: remaining=%d heap=%d", p0.remaining, len(p0.heap))
	}
	p1, ok, err := e.loadPage("q", 1)
	if err != nil || !ok {
		t.Fatalf("load page 1: ok=%v err=%v", ok, err)
	}
	if p1.remaining != 1 || len(p1.heap) != 902 {
		t.Fatalf("page 1: remaining=%d heap=%d", p1.remaining, len(p1.heap))
	}
	mustInvariants(t, e)
}

func TestEnqueueManyNotifiesOnce(t *testing.T) {
	var calls int
	var last Footprint
	e, _, _ := newTestEngine(t, func(o *Options) {
		o.OnChanged = OnQueueChangedFunc(func(_ Origin, fp Footprint) {
			calls++
			last = fp
		})
	})

	batch := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if err := e.EnqueueMany("q", batch); err != nil {
		t.Fatalf("enqueue many: %v", err)
	}
	if calls != 1 || last.Messages != 3 {
		t.Fatalf("batch enqueue: calls=%d last=%+v", calls, last)
	}
	if err := e.Enqueue("q", []byte("d")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if calls != 2 || last.Messages != 4 {
		t.Fatalf("single enqueue: calls=%d last=%+v", calls, last)
	}
}

func TestOversizedMessageRejected(t *testing.T) {
	e, _, _ := newTestEngine(t, func(o *Options) { o.PageSize = 64 })
	if got := e.MaxMessageLen(); got != 62 {
		t.Fatalf("max message length = %d, want 62", got)
	}
	if err := e.Enqueue("q", make([]byte, 63)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("enqueue oversized = %v", err)
	}
	// Batch validation is all-or-nothing: nothing lands.
	err := e.EnqueueMany("q", [][]byte{make([]byte, 1), make([]byte, 63)})
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("batch with oversized = %v", err)
	}
	if fp := mustFootprint(t, e, "q"); fp != (Footprint{}) {
		t.Fatalf("rejected batch must leave the queue empty: %+v", fp)
	}
}

func TestSweepQueue(t *testing.T) {
	e, proc, _ := newTestEngine(t, nil)
	if err := e.SweepQueue("ghost"); err != nil {
		t.Fatalf("sweep of unknown origin: %v", err)
	}

	mustEnqueue(t, e, "q", "one", "two")
	if err := e.SweepQueue("q"); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	fp := mustFootprint(t, e, "q")
	if fp.Pages != 1 || fp.ReadyPages != 0 || fp.Messages != 2 {
		t.Fatalf("footprint after sweep = %+v", fp)
	}
	if _, ok, err := e.serviceHead(); err != nil || ok {
		t.Fatalf("swept sole origin must empty the ring: ok=%v err=%v", ok, err)
	}

	consumed, err := e.ServiceQueues(weight.Max)
	if err != nil || consumed != 0 || len(proc.ran) != 0 {
		t.Fatalf("swept queue must not be serviced: consumed=%d ran=%v err=%v", consumed, proc.ran, err)
	}
	mustInvariants(t, e)
}

func TestFootprintUnknownOrigin(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	if fp := mustFootprint(t, e, "nobody"); fp != (Footprint{}) {
		t.Fatalf("unknown origin footprint = %+v", fp)
	}
}

func TestCheckInvariantsDetectsRingMismatch(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	// A ready window with no ring membership is inconsistent.
	if err := e.saveBook("q", bookState{end: 1, count: 1, messageCount: 1, size: 1}); err != nil {
		t.Fatalf("save book: %v", err)
	}
	if err := e.CheckInvariants(); err == nil {
		t.Fatalf("expected an invariant violation")
	}
}
