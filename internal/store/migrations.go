package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version.
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order.
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Memory blocks
CREATE TABLE IF NOT EXISTS memory_blocks (
    id TEXT PRIMARY KEY,
    agent_id TEXT,
    conversation_id TEXT,
    content TEXT NOT NULL,
    keywords TEXT,
    feedback_score REAL NOT NULL DEFAULT 0,
    visibility_scope TEXT NOT NULL DEFAULT 'personal',
    archived BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_blocks_agent ON memory_blocks(agent_id);
CREATE INDEX IF NOT EXISTS idx_blocks_conversation ON memory_blocks(conversation_id);
CREATE INDEX IF NOT EXISTS idx_blocks_archived ON memory_blocks(archived);
CREATE INDEX IF NOT EXISTS idx_blocks_updated ON memory_blocks(updated_at);

-- Full-text search on memory blocks
CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
    content, keywords,
    content='memory_blocks',
    content_rowid='rowid'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS blocks_ai AFTER INSERT ON memory_blocks BEGIN
    INSERT INTO blocks_fts(rowid, content, keywords)
    VALUES (new.rowid, new.content, new.keywords);
END;

CREATE TRIGGER IF NOT EXISTS blocks_ad AFTER DELETE ON memory_blocks BEGIN
    DELETE FROM blocks_fts WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS blocks_au AFTER UPDATE ON memory_blocks BEGIN
    UPDATE blocks_fts SET
        content = new.content,
        keywords = new.keywords
    WHERE rowid = new.rowid;
END;

-- Dense embeddings, one per block
CREATE TABLE IF NOT EXISTS block_embeddings (
    block_id TEXT PRIMARY KEY,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (block_id) REFERENCES memory_blocks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_embeddings_provider ON block_embeddings(provider, model);
CREATE INDEX IF NOT EXISTS idx_embeddings_dimension ON block_embeddings(dimension);
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS blocks_au;
DROP TRIGGER IF EXISTS blocks_ad;
DROP TRIGGER IF EXISTS blocks_ai;

DROP TABLE IF EXISTS block_embeddings;
DROP TABLE IF EXISTS blocks_fts;
DROP TABLE IF EXISTS memory_blocks;
DROP TABLE IF EXISTS schema_version;
`

// ApplyMigrations runs all pending migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion *semver.Version
	if err == sql.ErrNoRows {
		currentVersion = semver.MustParse("0.0.0")
	} else if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	} else {
		var currentVersionStr string
		err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&currentVersionStr)
		if err == sql.ErrNoRows || currentVersionStr == "" {
			currentVersion = semver.MustParse("0.0.0")
		} else if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		} else {
			currentVersion, err = semver.NewVersion(currentVersionStr)
			if err != nil {
				return fmt.Errorf("invalid current schema version %s: %w", currentVersionStr, err)
			}
		}
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err = db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}
