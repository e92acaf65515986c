package mq

import "github.com/pkg/errors"

// Errors returned by the engine's public operations.
var (
	// ErrRecursiveDisallowed rejects a guarded entry point invoked from
	// within another guarded entry point (e.g. a Processor calling back
	// into ServiceQueues).
	ErrRecursiveDisallowed = errors.New("bookq: recursive servicing disallowed")
	// ErrInsufficientWeight means a manual call's budget is below the fixed
	// floor or the message's own cost. Retry with more weight.
	ErrInsufficientWeight = errors.New("bookq: insufficient weight")
	// ErrAlreadyProcessed means the addressed message was processed before.
	ErrAlreadyProcessed = errors.New("bookq: message already processed")
	// ErrQueuePaused means the pause predicate currently vetoes the origin.
	ErrQueuePaused = errors.New("bookq: queue is paused")
	// ErrNoPage means the addressed page does not exist.
	ErrNoPage = errors.New("bookq: no such page")
	// ErrNoMessage means the addressed item does not exist in its page.
	ErrNoMessage = errors.New("bookq: no such message")
	// ErrQueued rejects manual execution of a message still inside the
	// ready window; it will be retried automatically.
	ErrQueued = errors.New("bookq: message still queued for automatic execution")
	// ErrTemporarilyUnprocessable means the message yielded; retry later.
	ErrTemporarilyUnprocessable = errors.New("bookq: message temporarily unprocessable")
	// ErrNotReapable means the page is inside the ready window, or still
	// holds quarantined items and sits above the culling watermark.
	ErrNotReapable = errors.New("bookq: page not reapable")
	// ErrMessageTooLarge flags a caller contract violation: the message
	// exceeds what a single page can hold.
	ErrMessageTooLarge = errors.New("bookq: message exceeds maximum length")
)

// Outcome errors a Processor returns to classify a failed message. Anything
// not matching these is treated as a permanent failure (message dropped).
var (
	// ErrYield: temporarily unprocessable; keep position and retry on a
	// later pass.
	ErrYield = errors.New("bookq: processor yielded")
	// ErrBadFormat, ErrCorrupt, ErrUnsupported: permanent; drop the message
	// and emit a ProcessingFailed event.
	ErrBadFormat   = errors.New("bookq: message format invalid")
	ErrCorrupt     = errors.New("bookq: message corrupt")
	ErrUnsupported = errors.New("bookq: message unsupported")
	// ErrStackLimitReached: permanent at the top level; the nested execution
	// depth limit of the Processor was hit.
	ErrStackLimitReached = errors.New("bookq: processor stack limit reached")
)
