package mq

import (
	"encoding/binary"
	"hash/crc32"
)

// Item encoding inside a page heap: a 2-byte big-endian header word holding
// the processed flag (bit 15) and the payload length (bits 0..14), followed
// immediately by the payload. The next item starts right after.
const (
	itemHeaderLen = 2
	maxPayloadLen = 0x7FFF
	processedBit  = 0x8000
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func putItemHeader(b []byte, payloadLen int, processed bool) {
	w := uint16(payloadLen) & maxPayloadLen
	if processed {
		w |= processedBit
	}
	binary.BigEndian.PutUint16(b, w)
}

func decodeItemHeader(b []byte) (payloadLen int, processed bool, ok bool) {
	if len(b) < itemHeaderLen {
		return 0, false, false
	}
	w := binary.BigEndian.Uint16(b)
	return int(w & maxPayloadLen), w&processedBit != 0, true
}

// page is a byte-packed batch of messages. Pages always contain at least one
// item; a fully drained page is deleted rather than stored empty.
type page struct {
	// Items remaining to be processed, including skipped overweight items
	// outside the first..last window.
	remaining uint32
	// Total payload bytes of the remaining items.
	remainingSize uint32
	// Number of items before the first unprocessed one.
	firstIndex uint32
	// Heap offset of the header of the first item ready for processing.
	first uint32
	// Heap offset of the header of the last item.
	last uint32
	heap []byte
}

// pageFromMessage seeds a new page with one unprocessed message.
func pageFromMessage(message []byte) *page {
	heap := make([]byte, itemHeaderLen+len(message))
	putItemHeader(heap, len(message), false)
	copy(heap[itemHeaderLen:], message)
	return &page{
		remaining:     1,
		remainingSize: uint32(len(message)),
		heap:          heap,
	}
}

// tryAppend packs another message if the heap budget allows, reporting
// whether it did. On failure the page is unchanged and the caller opens a
// new page.
func (p *page) tryAppend(message []byte, heapSize int) bool {
	dataLen := itemHeaderLen + len(message)
	if heapSize-len(p.heap) < dataLen {
		return false
	}
	pos := len(p.heap)
	hdr := make([]byte, itemHeaderLen)
	putItemHeader(hdr, len(message), false)
	p.heap = append(p.heap, hdr...)
	p.heap = append(p.heap, message...)
	p.last = uint32(pos)
	p.remaining++
	p.remainingSize += uint32(len(message))
	return true
}

// peekFirst returns the payload of the first item without removing it.
// Tolerates corrupted heaps: returns false, never panics.
func (p *page) peekFirst() ([]byte, bool) {
	if p.first > p.last {
		return nil, false
	}
	f := int(p.first)
	if f > len(p.heap) {
		f = len(p.heap)
	}
	payloadLen, _, ok := decodeItemHeader(p.heap[f:])
	if !ok || payloadLen > len(p.heap)-f-itemHeaderLen {
		return nil, false
	}
	return p.heap[f+itemHeaderLen : f+itemHeaderLen+payloadLen], true
}

// skipFirst points first at the next item, marking the current one processed
// if requested. Counters shrink at most once per item even under repeated
// marking.
func (p *page) skipFirst(isProcessed bool) {
	f := int(p.first)
	if f > len(p.heap) {
		f = len(p.heap)
	}
	payloadLen, processed, ok := decodeItemHeader(p.heap[f:])
	if !ok {
		return
	}
	if isProcessed && !processed {
		putItemHeader(p.heap[f:], payloadLen, true)
		if p.remaining > 0 {
			p.remaining--
		}
		if p.remainingSize >= uint32(payloadLen) {
			p.remainingSize -= uint32(payloadLen)
		} else {
			p.remainingSize = 0
		}
	}
	p.first += uint32(itemHeaderLen + payloadLen)
	p.firstIndex++
}

// peekIndex returns the item at the given index as (heap position, processed,
// payload). Random access for manual overweight execution and diagnostics.
func (p *page) peekIndex(index int) (pos int, processed bool, payload []byte, ok bool) {
	rest := p.heap
	for i := 0; i < index; i++ {
		payloadLen, _, hok := decodeItemHeader(rest)
		if !hok || len(rest) < itemHeaderLen+payloadLen {
			return 0, false, nil, false
		}
		rest = rest[itemHeaderLen+payloadLen:]
		pos += itemHeaderLen + payloadLen
	}
	payloadLen, hproc, hok := decodeItemHeader(rest)
	if !hok || len(rest) < itemHeaderLen+payloadLen {
		return 0, false, nil, false
	}
	return pos, hproc, rest[itemHeaderLen : itemHeaderLen+payloadLen], true
}

// noteProcessedAtPos marks the item at pos processed if it is not already,
// shrinking the remaining counters. Does nothing if no header decodes there.
func (p *page) noteProcessedAtPos(pos int) {
	if pos < 0 || pos > len(p.heap) {
		return
	}
	payloadLen, processed, ok := decodeItemHeader(p.heap[pos:])
	if !ok || processed {
		return
	}
	putItemHeader(p.heap[pos:], payloadLen, true)
	if p.remaining > 0 {
		p.remaining--
	}
	if p.remainingSize >= uint32(payloadLen) {
		p.remainingSize -= uint32(payloadLen)
	} else {
		p.remainingSize = 0
	}
}

// isComplete reports whether no unprocessed items remain.
func (p *page) isComplete() bool { return p.remaining == 0 }

// Page record: remaining(4) remainingSize(4) firstIndex(4) first(4) last(4) | heap | crc32c
const pageHeaderLen = 20

func encodePage(p *page) []byte {
	out := make([]byte, pageHeaderLen, pageHeaderLen+len(p.heap)+4)
	binary.BigEndian.PutUint32(out[0:4], p.remaining)
	binary.BigEndian.PutUint32(out[4:8], p.remainingSize)
	binary.BigEndian.PutUint32(out[8:12], p.firstIndex)
	binary.BigEndian.PutUint32(out[12:16], p.first)
	binary.BigEndian.PutUint32(out[16:20], p.last)
	out = append(out, p.heap...)
	crc := crc32.Checksum(out, castagnoli)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...)
}

func decodePage(b []byte) (*page, bool) {
	if len(b) < pageHeaderLen+4 {
		return nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return nil, false
	}
	return &page{
		remaining:     binary.BigEndian.Uint32(body[0:4]),
		remainingSize: binary.BigEndian.Uint32(body[4:8]),
		firstIndex:    binary.BigEndian.Uint32(body[8:12]),
		first:         binary.BigEndian.Uint32(body[12:16]),
		last:          binary.BigEndian.Uint32(body[16:20]),
		heap:          append([]byte(nil), body[pageHeaderLen:]...),
	}, true
}
