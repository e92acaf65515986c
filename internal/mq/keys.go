package mq

import "encoding/binary"

// Key prefixes for engine state.
const (
	prefixBook = "bookq/book/" // Book per origin
	prefixPage = "bookq/page/" // Pages per (origin, page index)
	keyHead    = "bookq/head"  // ready ring cursor
)

// originToken renders an origin as a self-delimiting key segment:
// uvarint(len) | origin bytes. Origins are arbitrary byte strings, so a bare
// separator would be ambiguous.
func originToken(origin Origin) []byte {
	var lb [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lb[:], uint64(len(origin)))
	tok := make([]byte, 0, n+len(origin))
	tok = append(tok, lb[:n]...)
	tok = append(tok, origin...)
	return tok
}

// parseOriginToken is the inverse of originToken. Returns the origin, the
// number of bytes consumed and whether decoding succeeded.
func parseOriginToken(b []byte) (Origin, int, bool) {
	l, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < l {
		return "", 0, false
	}
	return Origin(b[n : n+int(l)]), n + int(l), true
}

// bookKey returns the key of an origin's Book.
// Format: bookq/book/{len}{origin}
func bookKey(origin Origin) []byte {
	tok := originToken(origin)
	key := make([]byte, 0, len(prefixBook)+len(tok))
	key = append(key, prefixBook...)
	return append(key, tok...)
}

// pageKey returns the key of one page.
// Format: bookq/page/{len}{origin}{page_be4}
func pageKey(origin Origin, index uint32) []byte {
	tok := originToken(origin)
	key := make([]byte, 0, len(prefixPage)+len(tok)+4)
	key = append(key, prefixPage...)
	key = append(key, tok...)
	var ib [4]byte
	binary.BigEndian.PutUint32(ib[:], index)
	return append(key, ib[:]...)
}

// pagePrefix returns the scan prefix covering all pages of an origin.
func pagePrefix(origin Origin) []byte {
	tok := originToken(origin)
	key := make([]byte, 0, len(prefixPage)+len(tok))
	key = append(key, prefixPage...)
	return append(key, tok...)
}

// pageIndexFromKey extracts the big-endian page index from a page key.
func pageIndexFromKey(key []byte) (uint32, bool) {
	if len(key) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(key[len(key)-4:]), true
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, for use as an exclusive iterator bound. Appending 0xFF is not
// enough since key bytes may themselves be 0xFF.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xFF; no upper bound
}
