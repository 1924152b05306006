// Package harness runs YAML ledger scenarios against a fresh in-memory
// store through the real award engine.
//
// A scenario has three parts:
//
//   - setup: enrollments and status changes that must succeed
//   - flow: steps whose outcomes are recorded in the trace and optionally
//     checked by an expect clause
//   - assertions: checks on the final ledger (balances, card and activity
//     counts, emitted change events, audit)
//
// Every run uses a deterministic clock and sequential ids (card-0001,
// act-0001, LC-0001), so the trace is byte-stable and can be compared
// against a golden file with RunWithGolden.
//
// Example:
//
//	name: award_replay
//	description: Replaying a key returns the committed balance
//	setup:
//	  - enroll: {customer: cust-1, business: biz-1, program: prog-1}
//	flow:
//	  - award: {customer: cust-1, business: biz-1, program: prog-1, points: 10, source: SCAN, key: k1}
//	    expect: {balance: 10, duplicate: false}
//	  - award: {customer: cust-1, business: biz-1, program: prog-1, points: 10, source: SCAN, key: k1}
//	    expect: {balance: 10, duplicate: true}
//	assertions:
//	  - {type: activity_count, customer: cust-1, program: prog-1, count: 1}
package harness
