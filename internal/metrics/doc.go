// Package metrics provides Prometheus implementations of bookq's
// observability seams: the storage MetricsHook and the engine Events sink.
// Both register against a caller-supplied Registerer so embedding
// applications keep control of their metric namespace.
package metrics
