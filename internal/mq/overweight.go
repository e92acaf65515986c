package mq

import "github.com/rzbill/bookq/pkg/weight"

// OverweightAddress names one quarantined message, as emitted by the
// OverweightEnqueued event.
type OverweightAddress struct {
	Origin Origin
	Page   uint32
	Index  uint32
}

// ExecuteOverweight re-runs a single quarantined message with an unbounded
// overweight ceiling, so it always fully resolves and never re-quarantines.
// Legal only for addresses strictly before the ready window; anything inside
// it fails with ErrQueued since it will be retried automatically. Returns
// the weight consumed.
func (e *Engine) ExecuteOverweight(limit weight.Weight, addr OverweightAddress) (weight.Weight, error) {
	m := weight.NewMeter(limit)
	if !m.TryAccrue(e.costs.overweightBase()) {
		return 0, ErrInsufficientWeight
	}
	if !e.tryAcquire() {
		return 0, ErrRecursiveDisallowed
	}
	defer e.release()

	consumed, err := e.executeOverweightInner(addr, m.Remaining())
	if err != nil {
		return 0, err
	}
	return m.Consumed().Add(consumed), nil
}

func (e *Engine) executeOverweightInner(addr OverweightAddress, limit weight.Weight) (weight.Weight, error) {
	book, err := e.loadBook(addr.Origin)
	if err != nil {
		return 0, err
	}
	if e.pause.IsPaused(addr.Origin) {
		return 0, ErrQueuePaused
	}
	p, ok, err := e.loadPage(addr.Origin, addr.Page)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoPage
	}
	pos, processed, payload, ok := p.peekIndex(int(addr.Index))
	if !ok {
		return 0, ErrNoMessage
	}
	if !(addr.Page < book.begin || (addr.Page == book.begin && uint32(pos) < p.first)) {
		return 0, ErrQueued
	}
	if processed {
		return 0, ErrAlreadyProcessed
	}
	payloadLen := uint64(len(payload))

	m := weight.NewMeter(limit)
	// Ceiling of weight.Max: never recognised as permanently overweight,
	// which would deposit a second quarantine event.
	switch e.processMessagePayload(addr.Origin, addr.Page, addr.Index, payload, m, weight.Max) {
	case msgOverweight, msgInsufficientWeight:
		return 0, ErrInsufficientWeight
	case msgStackLimitReached, msgUnprocessableTransient:
		return 0, ErrTemporarilyUnprocessable
	}

	// Processed, or permanently unprocessable (dropped): either way the
	// item is done. Reload the book to keep counters a reentrant enqueue
	// may have bumped.
	book, err = e.loadBook(addr.Origin)
	if err != nil {
		return 0, err
	}
	p.noteProcessedAtPos(pos)
	if book.messageCount > 0 {
		book.messageCount--
	}
	if book.size >= payloadLen {
		book.size -= payloadLen
	} else {
		book.size = 0
	}

	var pageWeight weight.Weight
	if p.isComplete() {
		if err := e.deletePage(addr.Origin, addr.Page); err != nil {
			return 0, err
		}
		if book.count > 0 {
			book.count--
		}
		pageWeight = e.costs.ExecuteOverweightPageRemoved
	} else {
		if err := e.savePage(addr.Origin, addr.Page, p); err != nil {
			return 0, err
		}
		pageWeight = e.costs.ExecuteOverweightPageUpdated
	}
	if err := e.saveBook(addr.Origin, book); err != nil {
		return 0, err
	}
	e.onChanged.OnQueueChanged(addr.Origin, book.footprint())
	return m.Consumed().Add(pageWeight), nil
}

// ReapPage removes a page that is either fully drained or stale. Pages
// inside the ready window are never reapable. Stale pages above the culling
// watermark are retained; backlog pressure shrinks the retained history
// depth so storage stays bounded even without manual recovery.
func (e *Engine) ReapPage(origin Origin, pageIndex uint32) error {
	if !e.tryAcquire() {
		return ErrRecursiveDisallowed
	}
	defer e.release()
	return e.reapPageInner(origin, pageIndex)
}

func (e *Engine) reapPageInner(origin Origin, pageIndex uint32) error {
	book, err := e.loadBook(origin)
	if err != nil {
		return err
	}
	// Definitely not reapable at or after the beginning of ready pages.
	if pageIndex >= book.begin {
		return ErrNotReapable
	}
	p, ok, err := e.loadPage(origin, pageIndex)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPage
	}
	// Definitely reapable with no messages left in it.
	if p.remaining != 0 && !e.cullable(book, pageIndex) {
		return ErrNotReapable
	}

	if err := e.deletePage(origin, pageIndex); err != nil {
		return err
	}
	if book.count > 0 {
		book.count--
	}
	if book.messageCount >= uint64(p.remaining) {
		book.messageCount -= uint64(p.remaining)
	} else {
		book.messageCount = 0
	}
	if book.size >= uint64(p.remainingSize) {
		book.size -= uint64(p.remainingSize)
	} else {
		book.size = 0
	}
	if err := e.saveBook(origin, book); err != nil {
		return err
	}
	e.onChanged.OnQueueChanged(origin, book.footprint())
	e.events.PageReaped(origin, pageIndex)
	return nil
}

// cullable decides whether a stale page may be reaped despite holding
// unprocessed (quarantined) items. The history horizon shrinks as stale
// pages pile up: with minimal overflow it is maxStale squared, dropping
// toward maxStale under pressure - a heuristic with tunable constants, not a
// hard contract.
func (e *Engine) cullable(book bookState, pageIndex uint32) bool {
	totalPages := book.count
	readyPages := uint32(0)
	if book.end > book.begin {
		readyPages = book.end - book.begin
	}
	if readyPages > totalPages {
		readyPages = totalPages
	}
	stalePages := totalPages - readyPages

	if stalePages <= e.maxStale {
		return false
	}
	overflow := stalePages - e.maxStale
	backlog := e.maxStale * e.maxStale / overflow
	if backlog < e.maxStale {
		backlog = e.maxStale
	}
	watermark := uint32(0)
	if book.begin > backlog {
		watermark = book.begin - backlog
	}
	return pageIndex < watermark
}
