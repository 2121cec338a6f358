// Package postgres stores passages in PostgreSQL using the pgvector extension.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"histrag/internal/domain"
)

const (
	DefaultTable    = "passages"
	DefaultMaxConns = 10
)

type Config struct {
	DSN       string
	Table     string
	Dimension int
	MaxConns  int32
}

// Storage is a pgvector-backed passage store. Each operation checks a
// connection out of the pool and returns it when done.
type Storage struct {
	pool      *pgxpool.Pool
	connCfg   *pgx.ConnConfig
	table     string
	dimension int
}

// Open creates the connection pool. No connection is made until first use.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres DSN is empty", domain.ErrConfiguration)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres DSN: %w", domain.ErrConfiguration, err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return &Storage{
		pool:      pool,
		connCfg:   pcfg.ConnConfig.Copy(),
		table:     pgx.Identifier{cfg.Table}.Sanitize(),
		dimension: cfg.Dimension,
	}, nil
}

// EnsureSchema creates the vector extension, the passage table and its
// metadata indexes. With drop set, an existing table is removed first.
// It uses a dedicated connection because pooled connections need the
// vector type to exist already.
func (s *Storage) EnsureSchema(ctx context.Context, drop bool) error {
	if s.dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", domain.ErrConfiguration)
	}
	conn, err := pgx.ConnectConfig(ctx, s.connCfg)
	if err != nil {
		return fmt.Errorf("%w: connect: %w", domain.ErrStore, err)
	}
	defer conn.Close(ctx)

	for _, stmt := range schemaStatements(s.table, s.dimension, drop) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrStore, firstLine(stmt), err)
		}
	}
	return nil
}

func schemaStatements(table string, dimension int, drop bool) []string {
	bare := strings.Trim(table, `"`)
	stmts := []string{"CREATE EXTENSION IF NOT EXISTS vector"}
	if drop {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table))
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	embedding VECTOR(%d) NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (metadata)", pgx.Identifier{bare + "_metadata_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'book'))", pgx.Identifier{bare + "_book_idx"}.Sanitize(), table),
	)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Storage) Insert(ctx context.Context, passages []domain.Passage) ([]int64, error) {
	if len(passages) == 0 {
		return []int64{}, nil
	}
	query := fmt.Sprintf("INSERT INTO %s (content, embedding, metadata) VALUES ($1, $2, $3) RETURNING id", s.table)
	batch := &pgx.Batch{}
	for i, p := range passages {
		if s.dimension > 0 && len(p.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: passage %d has dimension %d, want %d", domain.ErrStore, i, len(p.Vector), s.dimension)
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: encode metadata: %w", domain.ErrStore, err)
		}
		batch.Queue(query, p.Content, pgvector.NewVector(p.Vector), meta)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	br := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(passages))
	for i := range passages {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			br.Close()
			return nil, fmt.Errorf("%w: insert passage %d: %w", domain.ErrStore, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return ids, nil
}

func (s *Storage) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", s.table)); err != nil {
		return fmt.Errorf("%w: truncate: %w", domain.ErrStore, err)
	}
	return nil
}

func (s *Storage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStore, err)
	}
	return n, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, q domain.NearestQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return []domain.SearchResult{}, nil
	}
	query, args := searchQuery(s.table, pgvector.NewVector(vector), q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0, q.Limit)
	for rows.Next() {
		var (
			r    domain.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.Content, &meta, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStore, err)
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decode metadata of row %d: %w", domain.ErrStore, r.ID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return results, nil
}

// searchQuery builds the nearest-neighbour statement. The vector is always $1
// and the threshold $2; filter values and the limit follow.
func searchQuery(table string, vector any, q domain.NearestQuery) (string, []any) {
	args := []any{vector, q.Threshold}
	where := []string{"1 - (embedding <=> $1) > $2"}
	if q.Filter.Book != "" {
		args = append(args, q.Filter.Book)
		where = append(where, fmt.Sprintf("metadata->>'book' = $%d", len(args)))
	}
	if q.Filter.Chapter != "" {
		args = append(args, q.Filter.Chapter)
		where = append(where, fmt.Sprintf("metadata->>'chapter' = $%d", len(args)))
	}
	args = append(args, q.Limit)
	query := fmt.Sprintf(
		"SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity FROM %s WHERE %s ORDER BY embedding <=> $1 LIMIT $%d",
		table, strings.Join(where, " AND "), len(args))
	return query, args
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
