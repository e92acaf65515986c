package mq

import "github.com/rzbill/bookq/pkg/weight"

// CostTable is the deployment-supplied fixed cost of every scheduling step.
// The engine charges these against the pass meter in addition to whatever the
// Processor itself accrues. The zero value charges nothing, which is what the
// tests use so that weight arithmetic is driven by the Processor alone.
type CostTable struct {
	// Rotating the ready ring cursor.
	BumpServiceHead weight.Weight
	// Entering one queue during a pass.
	ServiceQueueBase weight.Weight
	// Entering one page; the completion variant covers the page delete.
	ServicePageBaseCompletion   weight.Weight
	ServicePageBaseNoCompletion weight.Weight
	// Starting one item, plus a per-payload-byte copy cost.
	ServicePageItem        weight.Weight
	ServicePageItemPerByte weight.Weight
	// Removing an origin from the ready ring.
	ReadyRingUnknit weight.Weight
	// Manual overweight execution, by whether the page survives.
	ExecuteOverweightPageUpdated weight.Weight
	ExecuteOverweightPageRemoved weight.Weight
}

// DefaultCosts returns a conservative non-zero table. The absolute values are
// tunable per deployment; only their additivity matters to the engine.
func DefaultCosts() CostTable {
	return CostTable{
		BumpServiceHead:              1_000,
		ServiceQueueBase:             2_000,
		ServicePageBaseCompletion:    3_000,
		ServicePageBaseNoCompletion:  2_500,
		ServicePageItem:              1_500,
		ServicePageItemPerByte:       2,
		ReadyRingUnknit:              1_000,
		ExecuteOverweightPageUpdated: 4_000,
		ExecuteOverweightPageRemoved: 5_000,
	}
}

func (c CostTable) pageBase() weight.Weight {
	if c.ServicePageBaseCompletion > c.ServicePageBaseNoCompletion {
		return c.ServicePageBaseCompletion
	}
	return c.ServicePageBaseNoCompletion
}

func (c CostTable) overweightBase() weight.Weight {
	if c.ExecuteOverweightPageRemoved > c.ExecuteOverweightPageUpdated {
		return c.ExecuteOverweightPageRemoved
	}
	return c.ExecuteOverweightPageUpdated
}

// singleMsgOverhead is the fixed cost of servicing one message end to end.
func (c CostTable) singleMsgOverhead() weight.Weight {
	return c.BumpServiceHead.
		Add(c.ServiceQueueBase).
		Add(c.pageBase()).
		Add(c.ServicePageItem).
		Add(c.ReadyRingUnknit)
}

// maxMessageWeight is the ceiling a single message may cost during a pass
// with the given limit. Reports false when the limit cannot even cover the
// fixed overhead, in which case no message can start.
func (c CostTable) maxMessageWeight(limit weight.Weight) (weight.Weight, bool) {
	overhead := c.singleMsgOverhead()
	if limit < overhead {
		return 0, false
	}
	return limit - overhead, true
}
