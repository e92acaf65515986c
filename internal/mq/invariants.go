package mq

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// CheckInvariants validates the persisted engine state: book windows and
// footprints, ready ring closure and per-page remaining counts. Meant for
// tests and operational health checks; it reads, never mutates.
func (e *Engine) CheckInvariants() error {
	lo := []byte(prefixBook)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: keyUpperBound(lo)})
	if err != nil {
		return errors.Wrap(err, "iterate books")
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		book, okDec := decodeBook(iter.Value())
		if !okDec {
			return errors.Errorf("corrupt book record at %q", iter.Key())
		}
		if book.end < book.begin {
			return errors.Errorf("book window inverted at %q: begin=%d end=%d", iter.Key(), book.begin, book.end)
		}
		fp := book.footprint()
		if fp.ReadyPages > fp.Pages {
			return errors.Errorf("more ready than total pages at %q", iter.Key())
		}
		if (book.ready != nil) != (book.end > book.begin) {
			return errors.Errorf("ring membership out of sync with ready window at %q", iter.Key())
		}
	}

	start, ok, err := e.serviceHead()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	cur := start
	for i := 0; ; i++ {
		if i > 1<<20 {
			return errors.New("ready ring does not close")
		}
		book, err := e.loadBook(cur)
		if err != nil {
			return err
		}
		if book.ready == nil {
			return errors.Errorf("origin %q in ring without neighbours", cur)
		}
		if book.end <= book.begin {
			return errors.Errorf("origin %q in ring without ready pages", cur)
		}
		if book.messageCount == 0 {
			return errors.Errorf("origin %q in ring with zero messages", cur)
		}
		if book.ready.next == cur && book.ready.prev != cur {
			return errors.Errorf("origin %q self-linked on next but not prev", cur)
		}
		for pi := book.begin; pi < book.end; pi++ {
			p, found, perr := e.loadPage(cur, pi)
			if perr != nil {
				return perr
			}
			if !found {
				return errors.Errorf("ready page %d of %q missing", pi, cur)
			}
			if p.remaining == 0 {
				return errors.Errorf("ready page %d of %q stored empty", pi, cur)
			}
			counted := uint32(0)
			for idx := 0; ; idx++ {
				_, processed, _, found := p.peekIndex(idx)
				if !found {
					break
				}
				if !processed {
					counted++
				}
			}
			if counted != p.remaining {
				return errors.Errorf("page %d of %q counts %d unprocessed, header says %d", pi, cur, counted, p.remaining)
			}
		}
		cur = book.ready.next
		if cur == start {
			return nil
		}
	}
}
