// Package sqlite is a single-file passage store for local use. Metadata
// filtering runs in SQL; similarity is computed in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"histrag/internal/domain"
	"histrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS passages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	embedding BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS passages_book_idx ON passages (json_extract(metadata, '$.book'));
`

// Storage keeps passages in a SQLite database file.
type Storage struct {
	db        *sql.DB
	path      string
	dimension int
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string, dimension int) (*Storage, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStore, err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStore, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: applying schema: %w", domain.ErrStore, err)
	}
	return &Storage{db: db, path: path, dimension: dimension}, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Insert(ctx context.Context, passages []domain.Passage) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO passages (content, embedding, metadata) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", domain.ErrStore, err)
	}
	defer stmt.Close()

	ids := make([]int64, len(passages))
	for i, p := range passages {
		if s.dimension > 0 && len(p.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: passage %d has dimension %d, want %d", domain.ErrStore, i, len(p.Vector), s.dimension)
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: encode metadata: %w", domain.ErrStore, err)
		}
		res, err := stmt.ExecContext(ctx, p.Content, float32SliceToBytes(p.Vector), string(meta))
		if err != nil {
			return nil, fmt.Errorf("%w: insert passage %d: %w", domain.ErrStore, i, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return ids, nil
}

// Truncate deletes every passage and resets the id sequence.
func (s *Storage) Truncate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, "DELETE FROM passages"); err != nil {
		return fmt.Errorf("%w: truncate: %w", domain.ErrStore, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = 'passages'"); err != nil {
		return fmt.Errorf("%w: reset sequence: %w", domain.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return nil
}

func (s *Storage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM passages").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStore, err)
	}
	return n, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, q domain.NearestQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return []domain.SearchResult{}, nil
	}
	query := "SELECT id, content, embedding, metadata FROM passages WHERE 1 = 1"
	var args []any
	if q.Filter.Book != "" {
		query += " AND json_extract(metadata, '$.book') = ?"
		args = append(args, q.Filter.Book)
	}
	if q.Filter.Chapter != "" {
		query += " AND json_extract(metadata, '$.chapter') = ?"
		args = append(args, q.Filter.Chapter)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0)
	for rows.Next() {
		var (
			r    domain.SearchResult
			blob []byte
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Content, &blob, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStore, err)
		}
		r.Similarity = vectorstore.Cosine(bytesToFloat32Slice(blob), vector)
		if r.Similarity <= q.Threshold {
			continue
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decode metadata of row %d: %w", domain.ErrStore, r.ID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
