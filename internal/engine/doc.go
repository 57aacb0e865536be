// Package engine executes inbound messages against the receiver's durable
// state.
//
// # Execution
//
// Each message moves through a fixed sequence of stages:
//
//	Received -> Authenticated -> SlotConsumed -> Decoded -> StateUpdated
//	         -> [ExternalCallIssued] -> Complete
//
// All stages run inside one store transaction. A failure before the slot
// is consumed rolls the transaction back and leaves no trace besides the
// inbound log entry; the request may be retried with corrected input. A
// failure after the slot is consumed rolls back to a savepoint taken right
// after the slot claim, marks the slot failed and records the failure, and
// commits that in the same transaction. No other execution can observe the
// slot open in between. Such a message is never retried automatically.
//
// # Run Loop
//
// Engine.Run is a single-writer loop. Callers Enqueue requests from any
// goroutine and receive each result on the channel Enqueue returns.
// Requests execute one at a time in FIFO order, so two messages never
// interleave their mutations.
//
// # Replay
//
// Every request is appended to the store's inbound log with the timestamp
// it executed at. VerifyReplay re-executes the log against a fresh store
// and compares state digests; a mismatch means execution depended on
// something outside the log.
package engine
