package mq

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rzbill/bookq/pkg/weight"
)

// readyRingKnit splices origin into the ready ring just before the current
// service head, i.e. at the tail. With an empty ring the origin becomes the
// sole self-linked node. Returns origin's new neighbours.
func (e *Engine) readyRingKnit(origin Origin) (neighbours, error) {
	head, ok, err := e.serviceHead()
	if err != nil {
		return neighbours{}, err
	}
	if !ok {
		if err := e.setServiceHead(origin); err != nil {
			return neighbours{}, err
		}
		return neighbours{prev: origin, next: origin}, nil
	}

	headBook, err := e.loadBook(head)
	if err != nil {
		return neighbours{}, err
	}
	if headBook.ready == nil {
		return neighbours{}, errors.New("ring head has no neighbours")
	}
	tail := headBook.ready.prev
	headBook.ready.prev = origin
	if err := e.saveBook(head, headBook); err != nil {
		return neighbours{}, err
	}

	// Reload in case tail == head (single-node ring).
	tailBook, err := e.loadBook(tail)
	if err != nil {
		return neighbours{}, err
	}
	if tailBook.ready == nil {
		return neighbours{}, errors.New("ring tail has no neighbours")
	}
	tailBook.ready.next = origin
	if err := e.saveBook(tail, tailBook); err != nil {
		return neighbours{}, err
	}

	return neighbours{prev: tail, next: head}, nil
}

// readyRingUnknit removes origin from the ring, stitching its neighbours
// together and advancing the service head past it when needed.
func (e *Engine) readyRingUnknit(origin Origin, n neighbours) error {
	if n.next == origin {
		// Sole node; the ring is now empty.
		return e.clearServiceHead()
	}

	nextBook, err := e.loadBook(n.next)
	if err != nil {
		return err
	}
	if nextBook.ready != nil {
		nextBook.ready.prev = n.prev
		if err := e.saveBook(n.next, nextBook); err != nil {
			return err
		}
	}
	// Reload semantics matter when prev == next (two-node ring).
	prevBook, err := e.loadBook(n.prev)
	if err != nil {
		return err
	}
	if prevBook.ready != nil {
		prevBook.ready.next = n.next
		if err := e.saveBook(n.prev, prevBook); err != nil {
			return err
		}
	}

	head, ok, err := e.serviceHead()
	if err != nil {
		return err
	}
	if !ok {
		e.log.Error("service head missing while unknitting a non-empty ring",
			zap.String("origin", string(origin)))
		return nil
	}
	if head == origin {
		return e.setServiceHead(n.next)
	}
	return nil
}

// bumpServiceHead charges the rotation cost, advances the cursor to its next
// neighbour and returns the previous head - the origin to service this
// round. Reports false when the ring is empty or the budget cannot cover the
// rotation.
func (e *Engine) bumpServiceHead(m *weight.Meter) (Origin, bool, error) {
	if !m.TryAccrue(e.costs.BumpServiceHead) {
		return "", false, nil
	}
	head, ok, err := e.serviceHead()
	if err != nil || !ok {
		return "", false, err
	}
	headBook, err := e.loadBook(head)
	if err != nil {
		return "", false, err
	}
	if headBook.ready == nil {
		return "", false, nil
	}
	if err := e.setServiceHead(headBook.ready.next); err != nil {
		return "", false, err
	}
	return head, true, nil
}
