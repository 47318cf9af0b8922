package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/cinefuse/internal/db"
)

const (
	defaultHNSWM              = 16
	defaultHNSWEFConstruction = 64
)

// CreateIndex provisions the shared tables, registers the index prefixes and
// builds its full-text and HNSW indexes in one transaction. The embedding
// column takes its dimension from the first index created.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	vf, ok := def.VectorField()
	if !ok {
		return errors.New("postgres index requires a vector field")
	}
	if def.Language != "" && def.Language != db.DefaultLanguage {
		return fmt.Errorf("postgres index stems with the %s configuration only, got %s",
			db.DefaultLanguage, def.Language)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaSQL(vf.VectorDim) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpCreateIndex, Err: err}
		}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO "+indexesTable+" (name, prefixes) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		def.Name, pq.Array(def.Prefixes))
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrIndexExists
	}

	for _, stmt := range indexSQL(def.Name, vf) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpCreateIndex, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex unregisters an index and drops its secondary indexes. Documents are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM "+indexesTable+" WHERE name = $1", name)
	if err != nil {
		if isPQCode(err, undefinedTable) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrIndexNotFound
	}

	for _, stmt := range dropIndexSQL(name) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpDropIndex, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists reports whether the index is registered. A fresh database without
// the registry table has no indexes.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+indexesTable+" WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		if isPQCode(err, undefinedTable) || errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return exists, nil
}

func schemaSQL(dim int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key       text PRIMARY KEY,
			content   text NOT NULL DEFAULT '',
			embedding vector(%d),
			fields    jsonb NOT NULL DEFAULT '{}'::jsonb
		)`, documentsTable, dim),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name     text PRIMARY KEY,
			prefixes text[] NOT NULL
		)`, indexesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key   text PRIMARY KEY,
			value bytea NOT NULL
		)`, kvTable),
	}
}

// indexSQL builds the full-text and HNSW indexes. HNSW.EFRuntime has no DDL
// form in pgvector; it is the session setting hnsw.ef_search.
func indexSQL(name string, vf *db.IndexField) []string {
	m := vf.HNSW.M
	if m <= 0 {
		m = defaultHNSWM
	}
	ef := vf.HNSW.EFConstruction
	if ef <= 0 {
		ef = defaultHNSWEFConstruction
	}

	base := sanitizeName(name)
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_fts ON %s USING gin (to_tsvector('english', content))",
			base, documentsTable),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_hnsw ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)",
			base, documentsTable, m, ef),
	}
}

func dropIndexSQL(name string) []string {
	base := sanitizeName(name)
	return []string{
		fmt.Sprintf("DROP INDEX IF EXISTS %s_fts", base),
		fmt.Sprintf("DROP INDEX IF EXISTS %s_hnsw", base),
	}
}

// sanitizeName maps an index name onto a safe SQL identifier.
func sanitizeName(name string) string {
	return "idx_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
}
