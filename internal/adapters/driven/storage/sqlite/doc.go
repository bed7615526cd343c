// Package sqlite provides a unified SQLite-based implementation of the
// driven storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO, enabling easy cross-compilation. It implements
// multiple store interfaces through a single database connection:
//
//   - CorpusStore: corpus registry persistence
//   - DocumentStore: document persistence
//   - ImageStore: image and preserved-version persistence
//   - ProvenanceLedger: append-only artifact derivation records
//   - AuditLog: append-only decision records
//   - VectorStore: embedding persistence with lifecycle flags
//   - RestorationCache: restoration windows for removed documents
//
// The provenance and audit tables are insert-only: the adapter exposes
// no UPDATE or DELETE path for committed rows.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in
// the migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.verity/data/verity.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
