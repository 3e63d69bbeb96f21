//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package store

// Compiled when building without CGO or with the purego tag. Uses the pure
// Go SQLite implementation; vector similarity is computed in Go.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if SQL-side similarity is available.
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
