// Package store persists memory blocks and their embeddings in SQLite and
// provides the two search backends the retrieval pipeline builds on:
// FTS5 full-text search (BM25) and vector similarity search.
//
// Two build modes exist, selected by build tags:
//   - cgo (sqlite_vec tag): mattn/go-sqlite3 with the sqlite-vec extension;
//     cosine distance is computed inside SQL.
//   - purego (default): modernc.org/sqlite; cosine similarity is computed
//     in Go over the fetched candidate embeddings.
//
// The fallback controller in internal/search treats SQL-side similarity as
// the primary semantic path and the in-Go computation as Cosine-Fallback.
package store
