// Package warmup implements the WhatsApp sender warm-up engine: the stage
// catalog and state machine, the per-instance registry that owns every piece
// of mutable state, contact and template selection, metrics aggregation and
// the stage advancement evaluator.
//
// All mutations for one instance are serialized on that instance's lock.
// Callers never hold pointers into registry state; every read returns a copy.
package warmup
