package mq

import "github.com/rzbill/bookq/pkg/weight"

// Events receives engine lifecycle notifications. Implementations must not
// call back into guarded engine operations.
type Events interface {
	// Processed: a message ran to completion. success echoes the
	// Processor's domain-level verdict.
	Processed(id MessageID, origin Origin, weightUsed weight.Weight, success bool)
	// ProcessingFailed: the message was dropped due to a permanent error.
	ProcessingFailed(id MessageID, origin Origin, err error)
	// OverweightEnqueued: the message exceeded the pass ceiling and was
	// quarantined at (origin, page, index) for manual execution.
	OverweightEnqueued(id MessageID, origin Origin, page uint32, index uint32)
	// PageReaped: a drained or stale page was removed.
	PageReaped(origin Origin, page uint32)
}

// NoopEvents discards all notifications.
type NoopEvents struct{}

func (NoopEvents) Processed(MessageID, Origin, weight.Weight, bool)    {}
func (NoopEvents) ProcessingFailed(MessageID, Origin, error)           {}
func (NoopEvents) OverweightEnqueued(MessageID, Origin, uint32, uint32) {}
func (NoopEvents) PageReaped(Origin, uint32)                           {}
