// Package harness runs outline scenarios against real replicas.
//
// A scenario starts one or more replicas sharing an in-memory remote
// database, applies a list of steps to them and then checks assertions on
// their outlines, record caches, outboxes and on the server.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: orphan_adoption
//	description: "A child that arrives before its parent is adopted"
//	replicas: [left, right]
//	steps:
//	  - replica: left
//	    receive:
//	      - { id: b, parentID: a, position: 0, text: B }
//	      - { id: a, position: 0, text: A }
//	  - replica: left
//	    sync: {}
//	assertions:
//	  - type: outline
//	    replica: left
//	    expect: |
//	      - A (a)
//	        - B (b)
//	  - type: converged
//
// replicas defaults to a single replica named "main"; a step without a
// replica addresses the first one.
//
// # Steps
//
// Each step does exactly one thing:
//
//   - receive: records arriving from the remote, saved as remote edits
//   - write: records saved directly by the host, as user edits
//   - add: a nested tree added at the top level
//   - delete: ids removed through the tree store
//   - relocate: an item moved under another parent
//   - move, remove, group, undelete: tree API edits on a parent
//   - set: new content for an item
//   - sync: a full push and pull, optionally checking the report or error
//   - server: another client's writes, or injected remote failures
//
// # Assertion Types
//
//   - outline: the replica's rendered outline
//   - converged: every replica renders the same outline and caches the
//     same records
//   - record: a subset match on a cached record
//   - absent: the id is neither in the tree store nor in the cache
//   - orphans, pending, leaf_count, server_count: counts
//   - server: a subset match on a server record
//
// # Deterministic Testing
//
// The remote database runs on a testutil.DeterministicClock, every replica
// on an in-memory SQLite store, and retries never sleep. Identical
// scenarios therefore produce identical snapshots for golden comparison.
// A scenario can start the server clock with server_clock, and a server
// step can advance it with skip; neither changes the outcome.
package harness
