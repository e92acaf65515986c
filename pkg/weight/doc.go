// Package weight provides the abstract resource-cost unit that meters every
// step of queue servicing, together with an additive budget Meter.
//
// Weight is deliberately opaque: deployments decide what one unit means
// (nanoseconds, gas, fuel). The engine only ever adds weights and compares
// them against a limit. A Meter saturates instead of overflowing so that a
// corrupt or adversarial cost table cannot wrap the budget.
package weight
