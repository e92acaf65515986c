// Package config loads bookq engine configuration from a YAML file with a
// BOOKQ_* environment variable overlay on top, falling back to built-in
// defaults. The cost table values are deployment-tunable; the engine only
// relies on their additivity.
package config
