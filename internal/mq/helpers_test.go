package mq

import (
	"testing"

	pebblestore "github.com/rzbill/bookq/internal/storage/pebble"
	"github.com/rzbill/bookq/pkg/weight"
)

// testProcessor accrues a per-message cost against the pass meter and records
// what it ran. With the zero cost table all weight arithmetic in a test is
// driven by these per-message costs alone.
type testProcessor struct {
	defaultCost weight.Weight
	costs       map[string]weight.Weight
	errs        map[string]error
	// hook, when set, replaces the default behaviour entirely.
	hook func(message []byte, origin Origin, m *weight.Meter, id *MessageID) (bool, error)
	ran  []string
}

func (p *testProcessor) cost(message []byte) weight.Weight {
	if c, ok := p.costs[string(message)]; ok {
		return c
	}
	return p.defaultCost
}

func (p *testProcessor) ProcessMessage(message []byte, origin Origin, m *weight.Meter, id *MessageID) (bool, error) {
	if p.hook != nil {
		return p.hook(message, origin, m, id)
	}
	if err, ok := p.errs[string(message)]; ok {
		return false, err
	}
	w := p.cost(message)
	if !m.TryAccrue(w) {
		return false, &OverweightError{Required: w}
	}
	p.ran = append(p.ran, string(message))
	return true, nil
}

type processedEvent struct {
	origin  Origin
	used    weight.Weight
	success bool
}

type overweightEvent struct {
	origin Origin
	page   uint32
	index  uint32
}

type reapedEvent struct {
	origin Origin
	page   uint32
}

// captureEvents records every engine notification for assertions.
type captureEvents struct {
	processed  []processedEvent
	failed     []error
	overweight []overweightEvent
	reaped     []reapedEvent
}

func (c *captureEvents) Processed(_ MessageID, origin Origin, used weight.Weight, success bool) {
	c.processed = append(c.processed, processedEvent{origin: origin, used: used, success: success})
}

func (c *captureEvents) ProcessingFailed(_ MessageID, _ Origin, err error) {
	c.failed = append(c.failed, err)
}

func (c *captureEvents) OverweightEnqueued(_ MessageID, origin Origin, page uint32, index uint32) {
	c.overweight = append(c.overweight, overweightEvent{origin: origin, page: page, index: index})
}

func (c *captureEvents) PageReaped(origin Origin, page uint32) {
	c.reaped = append(c.reaped, reapedEvent{origin: origin, page: page})
}

// newTestEngine opens an engine over a throwaway store with a zero cost table,
// a small page size and a tight stale allowance. mutate may adjust the options
// before Open.
func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, *testProcessor, *captureEvents) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	proc := &testProcessor{defaultCost: 1}
	ev := &captureEvents{}
	opts := Options{
		Processor: proc,
		Events:    ev,
		PageSize:  1024,
		MaxStale:  2,
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := Open(db, opts)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	return e, proc, ev
}

func mustInvariants(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariant check: %v", err)
	}
}

func mustEnqueue(t *testing.T, e *Engine, origin Origin, messages ...string) {
	t.Helper()
	for _, m := range messages {
		if err := e.Enqueue(origin, []byte(m)); err != nil {
			t.Fatalf("enqueue %q to %q: %v", m, origin, err)
		}
	}
}

func mustFootprint(t *testing.T, e *Engine, origin Origin) Footprint {
	t.Helper()
	fp, err := e.Footprint(origin)
	if err != nil {
		t.Fatalf("footprint of %q: %v", origin, err)
	}
	return fp
}
