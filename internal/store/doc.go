// Package store provides SQLite-backed durable state for the receiver.
//
// The store holds:
//   - Configuration: the deployment config record and trusted peers
//   - Application state: the counter/text fields and the per-sender ledger
//   - Slots: spent sequence slots and verified payload hashes
//   - Journals: outbound compose messages, external calls, deposit events
//   - Failures: messages whose slot was spent by a post-consumption failure
//   - Inbound log: every execution request, for replay verification
//
// # Transactions
//
// Every record method is available on both *Store and *Tx. The engine runs
// each message inside one *Tx so that either all of its effects land or
// none do.
//
// # Determinism
//
// Journal ordering uses seq INTEGER (AUTOINCREMENT), never timestamps.
// Rolled-back transactions do not advance seq, so replaying the inbound log
// into a fresh store reproduces identical seq values.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
