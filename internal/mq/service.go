package mq

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/rzbill/bookq/pkg/weight"
)

// Status of a page after trying to execute its next message.
type pageStatus int

const (
	// Not enough weight remaining; stop the whole pass.
	pageBailed pageStatus = iota
	// The head message made no progress; keep position for the next pass.
	pageNoProgress
	// The page's unprocessed window is exhausted. Does not imply the page
	// is complete: skipped overweight items may remain.
	pageNoMore
)

// Status after trying to execute the next item of a page.
type itemStatus int

const (
	itemBailed itemStatus = iota
	itemNoProgress
	itemNoItem
	itemExecuted
)

// Outcome of one Processor invocation.
type messageStatus int

const (
	msgInsufficientWeight messageStatus = iota
	msgOverweight
	msgProcessed
	msgUnprocessableTransient
	msgUnprocessablePermanent
	msgStackLimitReached
)

// ServiceQueues makes one weight-bounded pass over the ready ring, servicing
// every ready origin round-robin until the ring empties, the budget is
// exhausted, or a full no-progress rotation closes. Returns the weight
// consumed. Fails with ErrRecursiveDisallowed when called from within a
// guarded operation.
func (e *Engine) ServiceQueues(limit weight.Weight) (weight.Weight, error) {
	m := weight.NewMeter(limit)
	maxMsg, ok := e.costs.maxMessageWeight(limit)
	if !ok {
		e.log.Warn("weight limit below single-message overhead; no message can start",
			zap.Uint64("limit", uint64(limit)),
			zap.Uint64("overhead", uint64(e.costs.singleMsgOverhead())))
		maxMsg = 0
	}

	if !e.tryAcquire() {
		return 0, ErrRecursiveDisallowed
	}
	defer e.release()

	next, ok, err := e.bumpServiceHead(m)
	if err != nil || !ok {
		return m.Consumed(), err
	}

	// The last origin that made no progress. The pass aborts as soon as it
	// arrives back at it without any origin having progressed in between.
	var lastNoProgress Origin
	haveLastNoProgress := false

	for {
		progressed, n, hasNext, err := e.serviceQueue(next, m, maxMsg)
		if err != nil {
			return m.Consumed(), err
		}
		if !hasNext {
			break
		}
		if !progressed {
			if haveLastNoProgress && lastNoProgress == n {
				break
			}
			if !haveLastNoProgress {
				lastNoProgress = next
				haveLastNoProgress = true
			}
		} else {
			haveLastNoProgress = false
		}
		next = n
	}
	return m.Consumed(), nil
}

// serviceQueue drains as many messages of one origin as the budget allows.
// Returns whether any message was processed and the next ready origin.
func (e *Engine) serviceQueue(origin Origin, m *weight.Meter, maxMsg weight.Weight) (progressed bool, next Origin, hasNext bool, err error) {
	if !m.TryAccrue(e.costs.ServiceQueueBase.Add(e.costs.ReadyRingUnknit)) {
		return false, "", false, nil
	}

	book, err := e.loadBook(origin)
	if err != nil {
		return false, "", false, err
	}
	if e.pause.IsPaused(origin) {
		if book.ready != nil {
			return false, book.ready.next, true, nil
		}
		return false, "", false, nil
	}

	totalProcessed := 0
	for book.end > book.begin {
		n, status, perr := e.servicePage(origin, &book, m, maxMsg)
		if perr != nil {
			return false, "", false, perr
		}
		totalProcessed += n
		if status == pageBailed || status == pageNoProgress {
			break
		}
		book.begin++
	}

	if book.ready != nil {
		next, hasNext = book.ready.next, true
	}
	if book.begin >= book.end {
		// No longer ready - unknit.
		if book.ready != nil {
			n := *book.ready
			book.ready = nil
			if uerr := e.readyRingUnknit(origin, n); uerr != nil {
				return false, "", false, uerr
			}
		} else if totalProcessed > 0 {
			e.log.Error("freshly processed queue was not in ready ring",
				zap.String("origin", string(origin)))
		}
	}
	if err := e.saveBook(origin, book); err != nil {
		return false, "", false, err
	}
	if totalProcessed > 0 {
		e.onChanged.OnQueueChanged(origin, book.footprint())
	}
	return totalProcessed > 0, next, hasNext, nil
}

// servicePage runs items of the page at book.begin until the page bails,
// stalls or exhausts its window. A drained page is deleted on the spot.
func (e *Engine) servicePage(origin Origin, book *bookState, m *weight.Meter, maxMsg weight.Weight) (int, pageStatus, error) {
	if !m.TryAccrue(e.costs.pageBase()) {
		return 0, pageBailed, nil
	}

	pageIndex := book.begin
	p, ok, err := e.loadPage(origin, pageIndex)
	if err != nil {
		return 0, pageBailed, err
	}
	if !ok {
		e.log.Error("referenced page not found",
			zap.String("origin", string(origin)), zap.Uint32("page", pageIndex))
		return 0, pageNoMore, nil
	}

	total := 0
	status := pageNoMore
loop:
	for {
		st, processed, ierr := e.servicePageItem(origin, pageIndex, book, p, m, maxMsg)
		if ierr != nil {
			return total, pageBailed, ierr
		}
		switch st {
		case itemBailed:
			status = pageBailed
			break loop
		case itemNoItem:
			status = pageNoMore
			break loop
		case itemNoProgress:
			status = pageNoProgress
			break loop
		case itemExecuted:
			if processed {
				total++
			}
		}
	}

	if p.isComplete() {
		if err := e.deletePage(origin, pageIndex); err != nil {
			return total, status, err
		}
		if book.count > 0 {
			book.count--
		}
	} else {
		if err := e.savePage(origin, pageIndex, p); err != nil {
			return total, status, err
		}
	}
	return total, status, nil
}

// servicePageItem executes the next message of a page. Page and book are
// persisted before the Processor runs so that reentrant enqueues observe a
// consistent state, and reloaded afterwards to pick their changes up.
func (e *Engine) servicePageItem(origin Origin, pageIndex uint32, book *bookState, p *page, m *weight.Meter, maxMsg weight.Weight) (itemStatus, bool, error) {
	// Pre-check needed for the invariant "we never bail if a page became
	// complete".
	if p.isComplete() {
		return itemNoItem, false, nil
	}
	if !m.TryAccrue(e.costs.ServicePageItem) {
		return itemBailed, false, nil
	}

	payload, ok := p.peekFirst()
	if !ok {
		return itemNoItem, false, nil
	}
	if c := e.costs.ServicePageItemPerByte.Mul(uint64(len(payload))); c > 0 && !m.TryAccrue(c) {
		return itemBailed, false, nil
	}
	payloadLen := uint64(len(payload))
	messageIndex := p.firstIndex

	// Persist state for the case that the Processor reentrantly enqueues.
	if err := e.savePage(origin, pageIndex, p); err != nil {
		return itemBailed, false, err
	}
	if err := e.saveBook(origin, *book); err != nil {
		return itemBailed, false, err
	}

	res := e.processMessagePayload(origin, pageIndex, messageIndex, payload, m, maxMsg)

	// And reload afterwards to see the changes of a reentrant call.
	nb, err := e.loadBook(origin)
	if err != nil {
		return itemBailed, false, err
	}
	*book = nb
	np, ok, err := e.loadPage(origin, pageIndex)
	if err != nil {
		return itemBailed, false, err
	}
	if !ok {
		e.log.Error("page vanished during processing",
			zap.String("origin", string(origin)), zap.Uint32("page", pageIndex))
		return itemNoItem, false, nil
	}
	*p = *np

	var isProcessed bool
	switch res {
	case msgInsufficientWeight:
		return itemBailed, false, nil
	case msgUnprocessableTransient:
		return itemNoProgress, false, nil
	case msgProcessed, msgUnprocessablePermanent, msgStackLimitReached:
		isProcessed = true
	case msgOverweight:
		// Permanently overweight: leave unmarked but advance the scan.
		isProcessed = false
	}

	if isProcessed {
		if book.messageCount > 0 {
			book.messageCount--
		}
		if book.size >= payloadLen {
			book.size -= payloadLen
		} else {
			book.size = 0
		}
	}
	p.skipFirst(isProcessed)
	return itemExecuted, isProcessed, nil
}

// processMessagePayload hands one message to the Processor inside a
// transactional scope and classifies the outcome. overweightLimit is the
// ceiling above which a message is quarantined instead of retried.
func (e *Engine) processMessagePayload(origin Origin, pageIndex uint32, messageIndex uint32, message []byte, m *weight.Meter, overweightLimit weight.Weight) messageStatus {
	id := MessageID(blake2b.Sum256(message))
	prevConsumed := m.Consumed()

	var (
		success bool
		perr    error
	)
	commitFailed := false
	func() {
		b := e.db.NewIndexedBatch()
		defer b.Close()
		e.store = batchKV{b: b}
		defer func() { e.store = dbKV{db: e.db} }()

		success, perr = e.processor.ProcessMessage(message, origin, m, &id)
		if perr != nil {
			// Dropping the uncommitted batch rolls the Processor's
			// storage mutations back.
			return
		}
		if cerr := e.db.CommitBatch(context.Background(), b); cerr != nil {
			e.log.Error("commit of processor storage changes failed",
				zap.String("origin", string(origin)), zap.Error(cerr))
			commitFailed = true
		}
	}()
	if commitFailed {
		return msgUnprocessablePermanent
	}

	switch {
	case perr == nil:
		e.events.Processed(id, origin, m.Consumed()-prevConsumed, success)
		return msgProcessed
	default:
		var ow *OverweightError
		if errors.As(perr, &ow) {
			if ow.Required > overweightLimit {
				// Permanently overweight; quarantine for manual execution.
				e.events.OverweightEnqueued(id, origin, pageIndex, messageIndex)
				return msgOverweight
			}
			// Temporarily overweight - save progress and stop processing
			// this queue.
			return msgInsufficientWeight
		}
		if errors.Is(perr, ErrYield) {
			return msgUnprocessableTransient
		}
		if errors.Is(perr, ErrStackLimitReached) {
			e.events.ProcessingFailed(id, origin, perr)
			return msgStackLimitReached
		}
		// BadFormat, Corrupt, Unsupported and anything else: permanent - drop.
		e.events.ProcessingFailed(id, origin, perr)
		return msgUnprocessablePermanent
	}
}
