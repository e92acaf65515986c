package mq

import (
	"encoding/binary"
	"hash/crc32"
)

// neighbours is one link of the circular ready ring, threaded through Books.
type neighbours struct {
	prev Origin
	next Origin
}

// bookState is the per-origin queue metadata. [begin,end) is the window of
// pages with at least one unprocessed item; count can exceed end-begin
// because quarantined pages persist outside the window.
type bookState struct {
	begin uint32
	end   uint32
	count uint32
	// Unprocessed messages across all pages, including quarantined ones.
	messageCount uint64
	// Total payload bytes of unprocessed messages.
	size uint64
	// Set iff begin < end, i.e. the origin is knitted into the ready ring.
	ready *neighbours
}

func (b bookState) footprint() Footprint {
	ready := uint32(0)
	if b.end > b.begin {
		ready = b.end - b.begin
	}
	return Footprint{
		Pages:      b.count,
		ReadyPages: ready,
		Messages:   b.messageCount,
		Size:       b.size,
	}
}

// Book record: begin(4) end(4) count(4) messageCount(8) size(8) flag(1)
// [prevToken nextToken] | crc32c
func encodeBook(b bookState) []byte {
	out := make([]byte, 28, 64)
	binary.BigEndian.PutUint32(out[0:4], b.begin)
	binary.BigEndian.PutUint32(out[4:8], b.end)
	binary.BigEndian.PutUint32(out[8:12], b.count)
	binary.BigEndian.PutUint64(out[12:20], b.messageCount)
	binary.BigEndian.PutUint64(out[20:28], b.size)
	if b.ready != nil {
		out = append(out, 1)
		out = append(out, originToken(b.ready.prev)...)
		out = append(out, originToken(b.ready.next)...)
	} else {
		out = append(out, 0)
	}
	crc := crc32.Checksum(out, castagnoli)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...)
}

func decodeBook(raw []byte) (bookState, bool) {
	if len(raw) < 29+4 {
		return bookState{}, false
	}
	body := raw[:len(raw)-4]
	expect := binary.BigEndian.Uint32(raw[len(raw)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return bookState{}, false
	}
	b := bookState{
		begin:        binary.BigEndian.Uint32(body[0:4]),
		end:          binary.BigEndian.Uint32(body[4:8]),
		count:        binary.BigEndian.Uint32(body[8:12]),
		messageCount: binary.BigEndian.Uint64(body[12:20]),
		size:         binary.BigEndian.Uint64(body[20:28]),
	}
	switch body[28] {
	case 0:
		if len(body) != 29 {
			return bookState{}, false
		}
	case 1:
		rest := body[29:]
		prev, n, ok := parseOriginToken(rest)
		if !ok {
			return bookState{}, false
		}
		next, m, ok := parseOriginToken(rest[n:])
		if !ok || n+m != len(rest) {
			return bookState{}, false
		}
		b.ready = &neighbours{prev: prev, next: next}
	default:
		return bookState{}, false
	}
	return b, true
}
