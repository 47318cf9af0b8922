package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/cinefuse/internal/db"
)

const upsertDocumentSQL = `INSERT INTO ` + documentsTable + ` (key, content, embedding, fields)
VALUES ($1, COALESCE($2::text, ''), $3::vector, $4::jsonb)
ON CONFLICT (key) DO UPDATE SET
	content   = COALESCE($2::text, ` + documentsTable + `.content),
	embedding = COALESCE(EXCLUDED.embedding, ` + documentsTable + `.embedding),
	fields    = ` + documentsTable + `.fields || EXCLUDED.fields`

// HSetMulti upserts documents in one transaction. Like HSET, fields are merged
// into an existing row rather than replacing it.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertDocumentSQL)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer stmt.Close()

	for _, item := range items {
		row, err := splitFields(item.Fields)
		if err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
		if _, err := stmt.ExecContext(ctx, item.Key, row.content, row.embedding, row.fields); err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGetAllMulti loads documents by key. A missing key yields an empty map at its position.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, content, embedding::text, fields::text FROM "+documentsTable+" WHERE key = ANY($1)",
		pq.Array(keys))
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	defer rows.Close()

	found := make(map[string]map[string]string, len(keys))
	for rows.Next() {
		var (
			key, content, fields string
			embedding            sql.NullString
		)
		if err := rows.Scan(&key, &content, &embedding, &fields); err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		m, err := joinFields(content, embedding, fields)
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("key %s: %w", key, err)}
		}
		found[key] = m
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}

	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		if m, ok := found[key]; ok {
			out[i] = m
		} else {
			out[i] = map[string]string{}
		}
	}
	return out, nil
}

// Del deletes a document.
func (s *Store) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+documentsTable+" WHERE key = $1", key); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists checks if a document exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+documentsTable+" WHERE key = $1)", key).Scan(&exists)
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return exists, nil
}

// documentRow is a hash split into the reserved columns and the jsonb remainder.
type documentRow struct {
	content   sql.NullString
	embedding sql.NullString
	fields    string
}

func splitFields(fields map[string]string) (documentRow, error) {
	var row documentRow
	rest := make(map[string]string, len(fields))
	for k, v := range fields {
		switch k {
		case db.FieldContent:
			row.content = sql.NullString{String: v, Valid: true}
		case db.FieldVector:
			lit, err := bytesToVectorLiteral(v)
			if err != nil {
				return documentRow{}, err
			}
			row.embedding = sql.NullString{String: lit, Valid: true}
		default:
			rest[k] = v
		}
	}

	b, err := json.Marshal(rest)
	if err != nil {
		return documentRow{}, fmt.Errorf("marshal fields: %w", err)
	}
	row.fields = string(b)
	return row, nil
}

func joinFields(content string, embedding sql.NullString, fields string) (map[string]string, error) {
	m := make(map[string]string)
	if err := json.Unmarshal([]byte(fields), &m); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	m[db.FieldContent] = content
	if embedding.Valid {
		raw, err := vectorLiteralToBytes(embedding.String)
		if err != nil {
			return nil, err
		}
		m[db.FieldVector] = raw
	}
	return m, nil
}

// bytesToVectorLiteral converts a little-endian float32 blob, the layout
// shared with the Redis driver, into pgvector's text form.
func bytesToVectorLiteral(raw string) (string, error) {
	if len(raw)%4 != 0 {
		return "", fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(raw[i*4 : i*4+4])))
	}
	return formatVector(v), nil
}

func vectorLiteralToBytes(lit string) (string, error) {
	v, err := parseVector(lit)
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf), nil
}

// formatVector renders a vector as a pgvector literal: [1,2.5,-3].
func formatVector(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func parseVector(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if !strings.HasPrefix(lit, "[") || !strings.HasSuffix(lit, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", lit)
	}
	body := strings.TrimSpace(lit[1 : len(lit)-1])
	if body == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
