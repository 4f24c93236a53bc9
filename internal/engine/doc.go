// Package engine persists a hypergraph on a lexicographically-ordered
// embedded key/value store.
//
// # Overview
//
// The engine has two operating modes, distinguished at open time by the
// presence of any persisted frame record. In single-graph mode one
// atomspace is stored flat. In layered mode multiple named spaces form
// a DAG of overlays ("frames"): every atom and value belongs to the
// frame that first created it, deeper frames shine through shallower
// ones, and a shallow frame can shadow (delete) or keylessly assert an
// atom without touching the deeper record.
//
// # Architecture
//
// The engine sits between the in-memory graph and the sorted store:
//
//	┌─────────────────────────────────────┐
//	│        internal/atom (Space)        │
//	│   intern tables, layered lookup     │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│              engine                 │
//	│  sids, atoms, values, incoming,     │
//	│  alpha index, frames, bulk, stats   │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│     internal/storage (goleveldb)    │
//	└─────────────────────────────────────┘
//
// # Identifiers and Indexes
//
// Every persisted atom gets a compact base-62 string id (sid). The id
// counter's high-water mark is written through on every allocation, so
// a crash can never lead to a sid being reissued. Atoms are indexed by
// content (forward n@/l@ and reverse a@), by incoming edge per type
// (i@, key form), and, for alpha-convertible atoms, by a shared content
// hash (h@), so that a lookup of (Lambda (Variable "Y") ...) finds a
// stored (Lambda (Variable "X") ...). Layered mode adds per-frame value
// records and sentinels (k@), frame encodings (d@/f@), first-appearance
// membership (o@), and link heights (zN@); the full layout is described
// in internal/keys.
//
// # Lifecycle
//
// Open parses a hyper:// URI, normalizes the path (so spelling aliases
// cannot yield two handles on one database), rejects double-opens,
// verifies the format version, recovers the aid counter, detects
// layered mode, and bootstraps the truth-value predicate. Close flushes
// the high-water mark and releases the handle; Barrier flushes the mark
// alone. KillData destroys the contents but leaves the store usable.
//
// # Concurrency Model
//
// The engine is safe for concurrent use by multiple goroutines:
//   - sidMu serializes sid issuance together with the initial insert of
//     each new atom, so two threads racing the forward lookup cannot
//     give one atom two sids
//   - frameMu guards the in-memory frame caches (frame and fid maps,
//     top-frame set, order cache)
//   - listMu serializes the read-modify-write of the h@ sid lists,
//     which the store's per-key atomicity alone would not make safe
//   - value writes are last-writer-wins on per-key atomicity
//
// Operations run to completion; callers needing cancellation close the
// store. Iterators are scoped to each operation and released on every
// exit path.
//
// # Error Handling
//
// Errors fall into three categories exposed as sentinels for errors.Is:
//   - ErrConfig: malformed URIs, too-low descriptor limits, unsupported
//     versions; raised on Open, leaving nothing half-initialized
//   - ErrState: double-open, use after close, layered writes without
//     frames, deleting a non-leaf frame; the store stays usable
//   - ErrInternal: a referenced sid with no record, a sid missing from
//     a list that must hold it, a malformed frame encoding; these mean
//     a bug or corruption and are not recoverable
//
// Two conditions are tolerated silently: an outgoing sibling whose
// incoming entry is already gone during a delete, and a value record
// whose key atom was deleted (the stray record is cleaned up and the
// scan continues).
//
// # Testing
//
// The package tests drive real goleveldb databases in temp directories
// through the public API, including close/reopen and simulated-crash
// cycles; invariants over raw records are checked against the store
// directly.
//
// # See Also
//
//   - internal/keys: on-disk key schema
//   - internal/atom: the in-memory hypergraph and layered spaces
//   - internal/sexpr: the atom and value serialization format
//   - internal/storage: the sorted store the engine runs on
package engine
