// Package harness runs conformance scenarios against the execution engine.
//
// A scenario names a message variant, optional setup state and a flow of
// inbound messages. Each message is resolved, executed by a real engine
// over an in-memory store and recorded in a trace. Assertions then check
// the trace and the final store state.
//
// # Scenario Format
//
//	name: deposit-accumulates
//	description: "Two deposits from one sender accumulate"
//	variant: deposit
//	setup:
//	  ledger:
//	    - sender: "0xe0000000000000000000000000000000000000aa"
//	      total_deposited: 10
//	      deposit_count: 1
//	flow:
//	  - nonce: 1
//	    message: { kind: deposit, amount: 1000 }
//	    expect: { status: complete }
//	  - nonce: 2
//	    sender: "0xe000000000000000000000000000000000000001"
//	    message: { kind: deposit, amount: 5 }
//	    expect: { status: rejected, code: INVALID_PEER }
//	assertions:
//	  - type: final_state
//	    table: ledger
//	    where: { sender: "0xe0000000000000000000000000000000000000aa" }
//	    expect: { total_deposited: 1010, deposit_count: 2 }
//	  - type: trace_count
//	    status: rejected
//	    count: 1
//	  - type: replay
//
// Omitted envelope fields default to the fixture deployment: source chain
// testutil.SrcEID, the trusted peer as sender and testutil.GUID(nonce) as
// the message id.
//
// # Assertion Types
//
//   - trace_contains: some step finished with the given status and code
//   - trace_count: exactly count steps finished with the given status
//   - final_state: rows of a snapshot table matching where carry expect,
//     or exactly count rows match
//   - replay: re-executing the inbound log reproduces the final state
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with a deterministic
// clock and a fixed execution id, so traces are byte-identical across runs
// and can be compared against golden files.
package harness
