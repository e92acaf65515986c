package weight

import "math"

// Weight is an abstract, additive resource cost.
type Weight uint64

// Max is the largest representable weight. Passing it as a limit makes a
// Meter effectively unbounded.
const Max Weight = math.MaxUint64

// Add returns w+v, saturating at Max.
func (w Weight) Add(v Weight) Weight {
	if w > Max-v {
		return Max
	}
	return w + v
}

// Mul returns w*n, saturating at Max.
func (w Weight) Mul(n uint64) Weight {
	if w == 0 || n == 0 {
		return 0
	}
	if uint64(w) > math.MaxUint64/n {
		return Max
	}
	return w * Weight(n)
}

// Meter tracks weight consumed against a fixed limit.
type Meter struct {
	limit    Weight
	consumed Weight
}

// NewMeter returns a meter with the given limit and nothing consumed.
func NewMeter(limit Weight) *Meter {
	return &Meter{limit: limit}
}

// Limit returns the meter's fixed budget.
func (m *Meter) Limit() Weight { return m.limit }

// Consumed returns the weight accrued so far.
func (m *Meter) Consumed() Weight { return m.consumed }

// Remaining returns the budget still available.
func (m *Meter) Remaining() Weight {
	if m.consumed >= m.limit {
		return 0
	}
	return m.limit - m.consumed
}

// CanAccrue reports whether w more weight would still fit the limit.
func (m *Meter) CanAccrue(w Weight) bool {
	return m.consumed.Add(w) <= m.limit
}

// TryAccrue consumes w if it fits the limit and reports whether it did.
// On failure nothing is consumed.
func (m *Meter) TryAccrue(w Weight) bool {
	if !m.CanAccrue(w) {
		return false
	}
	m.consumed += w
	return true
}
