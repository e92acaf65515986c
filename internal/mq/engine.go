package mq

import (
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	pebblestore "github.com/rzbill/bookq/internal/storage/pebble"
)

// Defaults for Options left zero.
const (
	DefaultPageSize = 4096
	DefaultMaxStale = 8
)

// Options configures an Engine. Processor is required; every other
// collaborator has a no-op default.
type Options struct {
	Processor Processor
	Pause     PauseQuery
	OnChanged OnQueueChanged
	Events    Events
	Costs     CostTable
	// PageSize is the heap byte budget of one page; it bounds the maximum
	// message length.
	PageSize int
	// MaxStale is the number of stale (quarantine-only) pages tolerated
	// before historical pages become cullable via ReapPage.
	MaxStale uint32
	Logger   *zap.Logger
}

// Engine is the persistent multi-queue message processing engine. All state
// lives in the Pebble store; the Engine itself only holds collaborators and
// the reentrancy guard. Execution is single-threaded and cooperative: one
// guarded call runs at a time.
type Engine struct {
	db    *pebblestore.DB
	store kv

	processor Processor
	pause     PauseQuery
	onChanged OnQueueChanged
	events    Events
	costs     CostTable
	pageSize  int
	maxStale  uint32
	log       *zap.Logger

	mu        sync.Mutex
	servicing bool
}

// Open validates options and returns an Engine over the given store.
func Open(db *pebblestore.DB, opts Options) (*Engine, error) {
	if db == nil {
		return nil, errors.New("bookq: nil store")
	}
	if opts.Processor == nil {
		return nil, errors.New("bookq: Options.Processor is required")
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize <= itemHeaderLen {
		return nil, errors.Errorf("bookq: PageSize %d cannot hold any message", opts.PageSize)
	}
	if opts.MaxStale == 0 {
		opts.MaxStale = DefaultMaxStale
	}
	if opts.Pause == nil {
		opts.Pause = neverPaused{}
	}
	if opts.OnChanged == nil {
		opts.OnChanged = noopQueueChanged{}
	}
	if opts.Events == nil {
		opts.Events = NoopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		db:        db,
		store:     dbKV{db: db},
		processor: opts.Processor,
		pause:     opts.Pause,
		onChanged: opts.OnChanged,
		events:    opts.Events,
		costs:     opts.Costs,
		pageSize:  opts.PageSize,
		maxStale:  opts.MaxStale,
		log:       opts.Logger,
	}, nil
}

// MaxMessageLen is the largest message Enqueue accepts: one page heap minus
// the item header, capped by the 15-bit length field.
func (e *Engine) MaxMessageLen() int {
	max := e.pageSize - itemHeaderLen
	if max > maxPayloadLen {
		max = maxPayloadLen
	}
	return max
}

// Enqueue appends one message to the origin's queue. It never blocks and
// never fails for a well-formed, length-bounded message. Safe to call from
// within a Processor.
func (e *Engine) Enqueue(origin Origin, message []byte) error {
	if len(message) > e.MaxMessageLen() {
		return errors.Wrapf(ErrMessageTooLarge, "%d > %d bytes", len(message), e.MaxMessageLen())
	}
	if err := e.doEnqueue(origin, message); err != nil {
		return err
	}
	return e.notifyChanged(origin)
}

// EnqueueMany appends a batch of messages to the origin's queue, notifying
// the queue-change handler once at the end.
func (e *Engine) EnqueueMany(origin Origin, messages [][]byte) error {
	for _, m := range messages {
		if len(m) > e.MaxMessageLen() {
			return errors.Wrapf(ErrMessageTooLarge, "%d > %d bytes", len(m), e.MaxMessageLen())
		}
	}
	for _, m := range messages {
		if err := e.doEnqueue(origin, m); err != nil {
			return err
		}
	}
	return e.notifyChanged(origin)
}

func (e *Engine) notifyChanged(origin Origin) error {
	book, err := e.loadBook(origin)
	if err != nil {
		return err
	}
	e.onChanged.OnQueueChanged(origin, book.footprint())
	return nil
}

// doEnqueue packs the message into the current tail page when the ready
// window is open, otherwise knits the origin into the ready ring and opens a
// new page.
func (e *Engine) doEnqueue(origin Origin, message []byte) error {
	book, err := e.loadBook(origin)
	if err != nil {
		return err
	}
	book.messageCount++
	book.size += uint64(len(message))

	if book.end > book.begin {
		// Already have a page in progress - attempt to append.
		last := book.end - 1
		p, ok, err := e.loadPage(origin, last)
		if err != nil {
			return err
		}
		if !ok {
			e.log.Error("referenced tail page missing; dropping message",
				zap.String("origin", string(origin)), zap.Uint32("page", last))
			return nil
		}
		if p.tryAppend(message, e.pageSize) {
			if err := e.savePage(origin, last, p); err != nil {
				return err
			}
			return e.saveBook(origin, book)
		}
	} else {
		n, err := e.readyRingKnit(origin)
		if err != nil {
			e.log.Error("ring state invalid when knitting",
				zap.String("origin", string(origin)), zap.Error(err))
		} else {
			book.ready = &n
		}
	}
	// No room on the page or no page - link in a new page.
	book.end++
	book.count++
	if err := e.savePage(origin, book.end-1, pageFromMessage(message)); err != nil {
		return err
	}
	return e.saveBook(origin, book)
}

// SweepQueue hard-drops the origin's ready window without processing, for
// origin decommission. Pages and stats are retained and become reapable
// history.
func (e *Engine) SweepQueue(origin Origin) error {
	if _, err := e.store.get(bookKey(origin)); errors.Is(err, pebblestore.ErrNotFound) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "load book")
	}
	book, err := e.loadBook(origin)
	if err != nil {
		return err
	}
	book.begin = book.end
	if book.ready != nil {
		n := *book.ready
		book.ready = nil
		if err := e.readyRingUnknit(origin, n); err != nil {
			return err
		}
	}
	return e.saveBook(origin, book)
}

// Footprint reports the queue's storage totals. Unknown origins report zero.
func (e *Engine) Footprint(origin Origin) (Footprint, error) {
	book, err := e.loadBook(origin)
	if err != nil {
		return Footprint{}, err
	}
	return book.footprint(), nil
}

// tryAcquire takes the reentrancy guard, failing instead of blocking so that
// a Processor calling back into a guarded operation gets an error rather
// than a deadlock.
func (e *Engine) tryAcquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.servicing {
		return false
	}
	e.servicing = true
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.servicing = false
	e.mu.Unlock()
}

// kv is the engine's view of the store. During Processor execution it is
// swapped for an indexed batch so that the Processor's storage mutations can
// be rolled back as a unit.
type kv interface {
	get(key []byte) ([]byte, error)
	set(key, value []byte) error
	del(key []byte) error
}

type dbKV struct{ db *pebblestore.DB }

func (s dbKV) get(key []byte) ([]byte, error)   { return s.db.Get(key) }
func (s dbKV) set(key, value []byte) error      { return s.db.Set(key, value) }
func (s dbKV) del(key []byte) error             { return s.db.Delete(key) }

type batchKV struct{ b *pebble.Batch }

func (s batchKV) get(key []byte) ([]byte, error) {
	val, closer, err := s.b.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s batchKV) set(key, value []byte) error { return s.b.Set(key, value, nil) }
func (s batchKV) del(key []byte) error        { return s.b.Delete(key, nil) }

// loadBook returns the origin's book, defaulting to an empty one when absent.
// A corrupt record is logged and treated as absent rather than failing the
// whole engine.
func (e *Engine) loadBook(origin Origin) (bookState, error) {
	raw, err := e.store.get(bookKey(origin))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return bookState{}, nil
	}
	if err != nil {
		return bookState{}, errors.Wrap(err, "load book")
	}
	book, ok := decodeBook(raw)
	if !ok {
		e.log.Error("book record corrupt; treating as empty", zap.String("origin", string(origin)))
		return bookState{}, nil
	}
	return book, nil
}

func (e *Engine) saveBook(origin Origin, book bookState) error {
	return errors.Wrap(e.store.set(bookKey(origin), encodeBook(book)), "save book")
}

// loadPage returns (page, found, error). Corrupt page records are logged and
// reported as absent.
func (e *Engine) loadPage(origin Origin, index uint32) (*page, bool, error) {
	raw, err := e.store.get(pageKey(origin, index))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "load page")
	}
	p, ok := decodePage(raw)
	if !ok {
		e.log.Error("page record corrupt; treating as absent",
			zap.String("origin", string(origin)), zap.Uint32("page", index))
		return nil, false, nil
	}
	return p, true, nil
}

func (e *Engine) savePage(origin Origin, index uint32, p *page) error {
	return errors.Wrap(e.store.set(pageKey(origin, index), encodePage(p)), "save page")
}

func (e *Engine) deletePage(origin Origin, index uint32) error {
	return errors.Wrap(e.store.del(pageKey(origin, index)), "delete page")
}

// serviceHead returns the ready ring cursor, if any.
func (e *Engine) serviceHead() (Origin, bool, error) {
	raw, err := e.store.get([]byte(keyHead))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "load service head")
	}
	return Origin(raw), true, nil
}

func (e *Engine) setServiceHead(origin Origin) error {
	return errors.Wrap(e.store.set([]byte(keyHead), []byte(origin)), "save service head")
}

func (e *Engine) clearServiceHead() error {
	return errors.Wrap(e.store.del([]byte(keyHead)), "clear service head")
}
