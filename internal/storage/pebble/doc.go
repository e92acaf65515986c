// Package pebblestore wraps a Pebble database with the durability policy and
// helpers the bookq engine needs: point get/set/delete, prefix iteration,
// atomic batches and indexed batches.
//
// Indexed batches double as the engine's transactional scope: reads through an
// indexed batch observe its own pending writes, committing makes them durable
// under the configured fsync policy, and closing an uncommitted batch discards
// them. The message Processor runs inside such a scope so that storage
// mutations it performs are rolled back when it fails.
package pebblestore
