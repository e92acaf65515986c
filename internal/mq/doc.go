// Package mq implements bookq's persistent multi-queue message processing
// engine: opaque byte messages are enqueued under an origin key and later
// drained under a strict caller-supplied weight budget with round-robin
// fairness across origins.
//
// # Keyspace
//
// All state lives in Pebble under the bookq/ prefix. Origins are arbitrary
// byte strings, so they are uvarint-length-prefixed inside keys; numeric
// suffixes are fixed-width big-endian for ordered prefix scans:
//
//	bookq/book/{len}{origin}            - Book (per-origin queue metadata)
//	bookq/page/{len}{origin}{page_be4}  - Page (byte-packed message batch)
//	bookq/head                          - ServiceHead (ready ring cursor)
//
// # Pages and Books
//
// Messages are packed into pages: each item is a 2-byte big-endian header
// (bit 15 = processed, bits 0..14 = payload length) followed by the payload.
// A page is never stored empty; a fully drained page is deleted. The Book
// tracks the ready window [begin,end) of pages with unprocessed items, the
// total page count (which can exceed the window when quarantined pages
// outlive it), and aggregate message stats.
//
// # Ready ring and scheduling
//
// Origins with ready pages form a circular doubly-linked list threaded
// through their Books, rotated by the ServiceHead cursor. ServiceQueues makes
// one weight-bounded pass: it rotates the ring, walks each origin's ready
// pages in order and hands every message to the external Processor. Messages
// whose cost exceeds the per-pass ceiling are quarantined for manual
// ExecuteOverweight; pages holding only quarantined items go stale and are
// reclaimed by ReapPage under a backlog-driven watermark.
//
// # Reentrancy
//
// ServiceQueues, ExecuteOverweight and ReapPage share one reentrancy guard
// and fail nested calls with ErrRecursiveDisallowed. Enqueue is exempt so
// that Processors can produce follow-up messages; while a Processor runs, its
// storage mutations (including such enqueues) collect in an indexed batch
// that is committed on success and dropped on error.
package mq
