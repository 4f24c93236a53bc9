// Package storage defines the abstract sorted-store interface and provides
// concrete implementations for the engine's persistence layer, enabling
// pluggable backends with a consistent API for point access and ordered
// prefix iteration.
//
// # Overview
//
// The storage package is the foundation the engine's indexes rest on. The
// engine needs exactly three primitives from its backing store: point
// reads/writes/deletes with per-key atomicity, and ordered iteration over
// all keys sharing a prefix. Store captures that contract; every
// higher-level index (atoms, values, incoming edges, frames, heights) is
// expressed in terms of it.
//
// # Architecture
//
// The package follows a layered design:
//
//	┌─────────────────────────────────────┐
//	│           Engine Layer              │
//	│   (atoms, values, frames, bulk)     │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│        Storage Interface            │
//	│        (Store, Iterator)            │
//	└─────────────────────────────────────┘
//	                 │
//	        ┌────────┴────────┐
//	        ▼                 ▼
//	   ┌────────┐        ┌────────┐
//	   │ Memory │        │ Level  │
//	   │ Store  │        │ Store  │
//	   └────────┘        └────────┘
//
// # Core Interfaces
//
// Store: sorted key-value operations
//   - Get(key) - Retrieve a value, or ErrKeyNotFound
//   - Put(key, value) - Store or overwrite a key-value pair
//   - Delete(key) - Remove a key (idempotent)
//   - Scan(prefix) - Ordered iteration over a key prefix
//   - Property(name) - Backend introspection strings
//   - Close() - Release the store
//
// Iterator: ordered cursor over one Scan range
//   - Next() - Advance, reporting whether a record is available
//   - Key() / Value() - Independent copies of the current record
//   - Error() - First error the iteration hit, checked after the loop
//   - Release() - Free the underlying resources (mandatory)
//
// # Implementations
//
// LevelStore: the production backend on goleveldb
//   - Embedded LSM tree, persistent and crash-safe
//   - Snappy compression for on-disk blocks
//   - Bounded table-file cache (OpenFilesCacheCapacity); the caller
//     derives the budget from the process descriptor limit
//   - Optional read-only opens for inspection tooling
//   - Iterators hold a snapshot of the database
//
// MemoryStore: in-memory storage for tests
//   - Ordered scans over a sorted snapshot of the keys
//   - No persistence (contents vanish on Close)
//   - Mirrors LevelStore's observable semantics so the engine's test
//     suite can run against either backend interchangeably
//
// # Concurrency and Thread Safety
//
// All implementations guarantee thread safety:
//
// Locking strategy:
//   - MemoryStore guards its map with a sync.RWMutex: shared locks for
//     reads and scans, exclusive locks for writes
//   - LevelStore delegates to goleveldb's internal synchronization
//   - No locks are held while a caller consumes an iterator
//
// Consistency guarantees:
//   - Per-key atomicity: a Get never observes a partial Put
//   - Last-writer-wins for concurrent writes to one key
//   - Scans see a snapshot: records written or deleted after the Scan
//     call may or may not be observed, and deleting the record under
//     the cursor is safe (the engine's cleanup paths rely on this)
//   - Nothing is promised across multiple keys; the engine's own locks
//     provide the orderings it needs
//
// # Iterator Lifecycle
//
// Every iterator owns resources from the underlying store (for the LSM
// backend, a snapshot). Callers must release on all exit paths,
// including early returns and error propagation:
//
//	it := store.Scan("a@")
//	defer it.Release()
//	for it.Next() {
//	    use(it.Key(), it.Value())
//	}
//	if err := it.Error(); err != nil {
//	    return err
//	}
//
// Key and Value return independent copies: goleveldb reuses its buffers
// between Next calls, so handing out the raw slices would let a later
// Next silently rewrite data a caller retained.
//
// # Error Handling
//
// Error categories:
//   - ErrKeyNotFound: the requested key is not present; the one error
//     callers branch on
//   - Wrapped backend errors: I/O failures, corruption, a read-only
//     store refusing a write; propagated with context, never retried
//
// Deleting an absent key is not an error, and an empty value is a real
// stored value, not a deletion.
//
// # Performance Characteristics
//
// MemoryStore:
//   - O(1) point operations on the hash map
//   - Scan is O(n log n) in the matching keys (snapshot plus sort)
//   - Suitable for tests and small fixtures only
//
// LevelStore:
//   - O(log n) point operations against the LSM tree
//   - Scan cost proportional to the records under the prefix
//   - Write amplification is the LSM's, smoothed by its write buffer
//   - The table-file cache bounds descriptor usage; an overflowing
//     file-descriptor limit would otherwise surface as failed reads
//
// # Testing
//
// The package test suite runs every behavioral test against both
// implementations from one table, covering point operations, scan order
// and prefix isolation, snapshot tolerance of concurrent deletes,
// concurrent access, and reopen persistence for LevelStore.
//
// # See Also
//
//   - internal/engine: the consumer of this interface
//   - internal/keys: the key schema scanned through Store.Scan
package storage
