package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/pkg/types"
)

// SQLiteStore persists memory blocks and embeddings in a single SQLite
// database. Safe for concurrent use; writes are serialized through a
// single connection.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for an ephemeral store in tests.
func Open(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	dsn := path
	if DriverName == "sqlite3" {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if DriverName == "sqlite" {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	log.Debug().Str("path", path).Str("build_mode", BuildMode).Msg("store opened")

	return &SQLiteStore{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const blockColumns = `id, agent_id, conversation_id, content, keywords,
	feedback_score, visibility_scope, archived, created_at, updated_at`

// CreateBlock inserts a new memory block. A missing ID is generated; a
// missing scope defaults to personal. Timestamps are set server-side.
func (s *SQLiteStore) CreateBlock(ctx context.Context, block *types.MemoryBlock) error {
	if block.ID == "" {
		block.ID = uuid.New().String()
	}
	if block.Scope == "" {
		block.Scope = types.ScopePersonal
	}
	if !types.ValidScope(block.Scope) {
		return fmt.Errorf("%w: unknown visibility scope %q", types.ErrConfigInvalid, block.Scope)
	}

	now := time.Now().UTC()
	block.CreatedAt = now
	block.UpdatedAt = now

	keywords, err := marshalKeywords(block.Keywords)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_blocks (id, agent_id, conversation_id, content, keywords,
			feedback_score, visibility_scope, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		block.ID, nullString(block.AgentID), nullString(block.ConversationID),
		block.Content, keywords, block.FeedbackScore, string(block.Scope),
		block.Archived, block.CreatedAt, block.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// GetBlock fetches a single block by ID, including its embedding if one
// is stored. Returns types.ErrNotFound when absent.
func (s *SQLiteStore) GetBlock(ctx context.Context, id string) (*types.MemoryBlock, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+blockColumns+" FROM memory_blocks WHERE id = ?", id)

	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("block %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}

	if err := s.attachEmbedding(ctx, block); err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlocks fetches blocks by ID in a single query. Missing IDs are
// silently skipped; the result order follows the input order.
func (s *SQLiteStore) GetBlocks(ctx context.Context, ids []string) ([]*types.MemoryBlock, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+blockColumns+" FROM memory_blocks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.MemoryBlock, len(ids))
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		byID[block.ID] = block
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}

	ordered := make([]*types.MemoryBlock, 0, len(byID))
	for _, id := range ids {
		if block, ok := byID[id]; ok {
			ordered = append(ordered, block)
		}
	}
	return ordered, nil
}

// ListBlocks returns non-archived blocks matching the filters, most
// recently updated first. limit <= 0 means no limit.
func (s *SQLiteStore) ListBlocks(ctx context.Context, filters types.Filters, limit int) ([]*types.MemoryBlock, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filters.IncludeArchived {
		where = append(where, "archived = 0")
	}
	if filters.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filters.ConversationID)
	}

	query := "SELECT " + blockColumns + " FROM memory_blocks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocks []*types.MemoryBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

// ArchiveBlock marks a block archived so retrieval skips it by default.
func (s *SQLiteStore) ArchiveBlock(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memory_blocks SET archived = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("archive block: %w", err)
	}
	return requireRow(res, id)
}

// RecordFeedback adds delta to a block's cumulative feedback score.
// Positive deltas reward a block, negative ones penalize it. The updated
// timestamp is not touched: feedback is not a content change.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, id string, delta float64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memory_blocks SET feedback_score = feedback_score + ? WHERE id = ?",
		delta, id)
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return requireRow(res, id)
}

// UpsertEmbedding stores or replaces the embedding for a block.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, blockID string, vector []float32, provider, model string) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding for block %s", blockID)
	}

	blob, err := serializeVector(vector)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO block_embeddings (block_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(block_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at`,
		blockID, blob, len(vector), provider, model, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// ListUnembedded returns non-archived blocks that have no stored
// embedding, or whose stored embedding has the wrong dimension for the
// active provider. Used by the backfill batch operation.
func (s *SQLiteStore) ListUnembedded(ctx context.Context, dimension, limit int) ([]*types.MemoryBlock, error) {
	query := "SELECT " + blockColumns + ` FROM memory_blocks b
		WHERE b.archived = 0 AND NOT EXISTS (
			SELECT 1 FROM block_embeddings e
			WHERE e.block_id = b.id AND e.dimension = ?
		)
		ORDER BY b.created_at ASC`
	args := []interface{}{dimension}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unembedded: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocks []*types.MemoryBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unembedded: %w", err)
	}
	return blocks, nil
}

// CountEmbedded reports how many blocks carry an embedding of the given
// dimension, for backfill progress reporting.
func (s *SQLiteStore) CountEmbedded(ctx context.Context, dimension int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM block_embeddings WHERE dimension = ?", dimension).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embedded: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) attachEmbedding(ctx context.Context, block *types.MemoryBlock) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT vector FROM block_embeddings WHERE block_id = ?", block.ID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get embedding: %w", err)
	}

	vector, err := deserializeVector(blob)
	if err != nil {
		s.log.Warn().Str("block_id", block.ID).Err(err).Msg("corrupt embedding blob, ignoring")
		return nil
	}
	block.Embedding = vector
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBlock(row scanner) (*types.MemoryBlock, error) {
	var (
		block          types.MemoryBlock
		agentID        sql.NullString
		conversationID sql.NullString
		keywords       sql.NullString
		scope          string
	)
	err := row.Scan(&block.ID, &agentID, &conversationID, &block.Content,
		&keywords, &block.FeedbackScore, &scope, &block.Archived,
		&block.CreatedAt, &block.UpdatedAt)
	if err != nil {
		return nil, err
	}

	block.AgentID = agentID.String
	block.ConversationID = conversationID.String
	block.Scope = types.VisibilityScope(scope)

	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &block.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords for %s: %w", block.ID, err)
		}
	}
	return &block, nil
}

func marshalKeywords(keywords []string) (sql.NullString, error) {
	if len(keywords) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal keywords: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("block %s: %w", id, types.ErrNotFound)
	}
	return nil
}
