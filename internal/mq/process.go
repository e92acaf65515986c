package mq

import (
	"encoding/hex"
	"fmt"

	"github.com/rzbill/bookq/pkg/weight"
)

// Origin identifies one logical queue. Arbitrary byte strings are allowed;
// keys length-prefix it so no separator can be confused.
type Origin string

// MessageID is the blake2b-256 hash of a message's bytes. The Processor may
// rewrite it to attribute events to a domain-level identifier.
type MessageID [32]byte

func (id MessageID) String() string { return hex.EncodeToString(id[:]) }

// Processor interprets message payloads. The engine treats messages as
// opaque bytes; everything domain-specific happens here.
//
// The meter is the servicing pass's budget: the Processor accrues its own
// cost against it and returns OverweightError when the cost does not fit.
// The returned bool reports domain-level success and is echoed in the
// Processed event. Storage mutations performed during ProcessMessage
// (including reentrant Enqueue calls) are rolled back when an error is
// returned.
type Processor interface {
	ProcessMessage(message []byte, origin Origin, meter *weight.Meter, id *MessageID) (bool, error)
}

// OverweightError reports that a message needs Required weight but the meter
// could not afford it. If Required exceeds the pass ceiling the message is
// quarantined for manual execution; otherwise the pass bails and the message
// is retried later, possibly with more budget.
type OverweightError struct {
	Required weight.Weight
}

func (e *OverweightError) Error() string {
	return fmt.Sprintf("bookq: message overweight, requires %d", e.Required)
}

// PauseQuery vetoes servicing of an origin. Polled once per origin per pass;
// changes made during the pass are not observed until the next one.
type PauseQuery interface {
	IsPaused(origin Origin) bool
}

// PauseQueryFunc adapts a function to PauseQuery.
type PauseQueryFunc func(Origin) bool

func (f PauseQueryFunc) IsPaused(origin Origin) bool { return f(origin) }

// neverPaused is the default PauseQuery.
type neverPaused struct{}

func (neverPaused) IsPaused(Origin) bool { return false }

// Footprint summarizes a queue for admission control upstream.
type Footprint struct {
	// Pages stored, including quarantined ones outside the ready window.
	Pages uint32
	// Pages inside the ready window.
	ReadyPages uint32
	// Unprocessed messages.
	Messages uint64
	// Total payload bytes of unprocessed messages.
	Size uint64
}

// OnQueueChanged is notified after every mutation of a queue's footprint.
type OnQueueChanged interface {
	OnQueueChanged(origin Origin, fp Footprint)
}

// OnQueueChangedFunc adapts a function to OnQueueChanged.
type OnQueueChangedFunc func(Origin, Footprint)

func (f OnQueueChangedFunc) OnQueueChanged(origin Origin, fp Footprint) { f(origin, fp) }

type noopQueueChanged struct{}

func (noopQueueChanged) OnQueueChanged(Origin, Footprint) {}
