package mq

import (
	"bytes"
	"testing"
)

func TestPagePackingAndDrain(t *testing.T) {
	p := pageFromMessage([]byte("first"))
	if !p.tryAppend([]byte("second"), 1024) || !p.tryAppend([]byte("third"), 1024) {
		t.Fatalf("appends within budget must succeed")
	}
	if p.remaining != 3 || p.remainingSize != uint32(len("first")+len("second")+len("third")) {
		t.Fatalf("remaining=%d size=%d after packing", p.remaining, p.remainingSize)
	}

	want := []string{"first", "second", "third"}
	for i, w := range want {
		payload, ok := p.peekFirst()
		if !ok || string(payload) != w {
			t.Fatalf("peek %d = %q ok=%v, want %q", i, payload, ok, w)
		}
		p.skipFirst(true)
		if p.firstIndex != uint32(i+1) {
			t.Fatalf("firstIndex = %d after skip %d", p.firstIndex, i)
		}
	}
	if !p.isComplete() {
		t.Fatalf("page must be complete after draining")
	}
	if _, ok := p.peekFirst(); ok {
		t.Fatalf("drained page must not yield an item")
	}
}

func TestTryAppendBudgetBoundary(t *testing.T) {
	p := pageFromMessage([]byte("abc"))
	need := len(p.heap) + itemHeaderLen + 4
	if !p.tryAppend([]byte("wxyz"), need) {
		t.Fatalf("append must succeed with an exactly-fitting budget")
	}
	before := len(p.heap)
	if p.tryAppend([]byte("wxyz"), before+itemHeaderLen+4-1) {
		t.Fatalf("append must fail one byte short of the budget")
	}
	if len(p.heap) != before || p.remaining != 2 {
		t.Fatalf("failed append must leave the page unchanged")
	}
}

func TestSkipFirstWithoutProcessingKeepsCounters(t *testing.T) {
	p := pageFromMessage([]byte("aa"))
	p.tryAppend([]byte("bb"), 1024)

	// Quarantine-style advance: move past the item without marking it.
	p.skipFirst(false)
	if p.remaining != 2 || p.remainingSize != 4 {
		t.Fatalf("unmarked skip must not shrink counters: remaining=%d size=%d", p.remaining, p.remainingSize)
	}

	// Later manual completion shrinks counters exactly once.
	p.noteProcessedAtPos(0)
	if p.remaining != 1 || p.remainingSize != 2 {
		t.Fatalf("first completion must shrink counters: remaining=%d size=%d", p.remaining, p.remainingSize)
	}
	p.noteProcessedAtPos(0)
	if p.remaining != 1 || p.remainingSize != 2 {
		t.Fatalf("repeated completion must be a no-op: remaining=%d size=%d", p.remaining, p.remainingSize)
	}
}

func TestPeekIndex(t *testing.T) {
	p := pageFromMessage([]byte("one"))
	p.tryAppend([]byte("two"), 1024)
	p.tryAppend([]byte("three"), 1024)
	p.skipFirst(true)

	pos, processed, payload, ok := p.peekIndex(0)
	if !ok || pos != 0 || !processed || string(payload) != "one" {
		t.Fatalf("index 0: pos=%d processed=%v payload=%q ok=%v", pos, processed, payload, ok)
	}
	pos, processed, payload, ok = p.peekIndex(2)
	wantPos := 2 * (itemHeaderLen + 3)
	if !ok || pos != wantPos || processed || string(payload) != "three" {
		t.Fatalf("index 2: pos=%d processed=%v payload=%q ok=%v", pos, processed, payload, ok)
	}
	if _, _, _, ok := p.peekIndex(3); ok {
		t.Fatalf("index beyond the last item must not resolve")
	}
}

func TestPageCodecRoundTrip(t *testing.T) {
	p := pageFromMessage([]byte("hello"))
	p.tryAppend([]byte("world"), 1024)
	p.skipFirst(true)

	raw := encodePage(p)
	got, ok := decodePage(raw)
	if !ok {
		t.Fatalf("decode failed")
	}
	if got.remaining != p.remaining || got.remainingSize != p.remainingSize ||
		got.firstIndex != p.firstIndex || got.first != p.first || got.last != p.last ||
		!bytes.Equal(got.heap, p.heap) {
		t.Fatalf("decoded page differs: %+v vs %+v", got, p)
	}
}

func TestPageCodecRejectsDamage(t *testing.T) {
	raw := encodePage(pageFromMessage([]byte("hello")))
	flipped := append([]byte(nil), raw...)
	flipped[pageHeaderLen] ^= 0x01
	if _, ok := decodePage(flipped); ok {
		t.Fatalf("bit flip must fail the checksum")
	}
	if _, ok := decodePage(raw[:pageHeaderLen]); ok {
		t.Fatalf("truncated record must not decode")
	}
	if _, ok := decodePage(nil); ok {
		t.Fatalf("empty record must not decode")
	}
}

func TestPeekFirstToleratesBadHeader(t *testing.T) {
	// Header claims more payload than the heap holds.
	p := &page{remaining: 1, last: 0, heap: []byte{0x7F, 0xFF, 'x'}}
	if _, ok := p.peekFirst(); ok {
		t.Fatalf("lying header must not yield a payload")
	}
	// Cursor past the last item.
	p = &page{remaining: 1, first: 10, last: 4, heap: make([]byte, 12)}
	if _, ok := p.peekFirst(); ok {
		t.Fatalf("cursor past last must not yield a payload")
	}
}
