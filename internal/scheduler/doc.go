// Package scheduler drives the prompt queue state machine. A run walks
// an immutable runtime queue built from the persisted task list,
// delivering one item at a time through the pool and advancing when the
// activity monitor reports sustained silence.
//
// All deliveries are serialized through a single worker goroutine.
// Every request carries the run generation it was enqueued under;
// results arriving for a superseded generation are discarded instead of
// mutating current state.
package scheduler
