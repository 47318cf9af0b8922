package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
)

// Documents belong to an index when their key starts with one of its prefixes.
const indexScope = `JOIN ` + indexesTable + ` i ON i.name = $1
	AND (cardinality(i.prefixes) = 0 OR EXISTS (SELECT 1 FROM unnest(i.prefixes) p WHERE starts_with(d.key, p)))`

// SearchKNN runs a cosine nearest-neighbour search through the HNSW index.
// Entry scores are cosine similarities in [-1, 1].
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	query, args := buildKNNSQL(q)
	res, err := s.query(ctx, query, args, q.ReturnFields)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		res.Entries[i].Score = db.SimilarityFromDistance(res.Entries[i].Score)
	}
	return res, nil
}

// SearchBM25 runs a full-text search ranked by ts_rank. Only documents
// matching the query are returned.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	query, args := buildTextSQL(q)
	return s.query(ctx, query, args, q.ReturnFields)
}

func (s *Store) query(ctx context.Context, query string, args []any, returnFields []string) (*db.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer rows.Close()

	res, err := scanEntries(rows, returnFields)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return res, nil
}

func scanEntries(rows *sql.Rows, returnFields []string) (*db.SearchResult, error) {
	var entries []db.SearchEntry
	for rows.Next() {
		var (
			e      db.SearchEntry
			fields string
		)
		if err := rows.Scan(&e.Key, &e.Score, &fields); err != nil {
			return nil, err
		}
		all := make(map[string]string)
		if err := json.Unmarshal([]byte(fields), &all); err != nil {
			return nil, fmt.Errorf("key %s: unmarshal fields: %w", e.Key, err)
		}
		e.Fields = projectFields(all, returnFields)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

// projectFields keeps only the requested fields; no request keeps everything.
func projectFields(all map[string]string, want []string) map[string]string {
	if len(want) == 0 {
		return all
	}
	out := make(map[string]string, len(want))
	for _, k := range want {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

func buildKNNSQL(q *db.KNNQuery) (string, []any) {
	args := []any{q.IndexName, formatVector(q.Vector)}
	where, args := buildFilterSQL(q.Filter, args)
	args = append(args, q.K)

	query := fmt.Sprintf(`SELECT d.key, d.embedding <=> $2::vector AS score, d.fields::text
FROM %s d
%s
WHERE d.embedding IS NOT NULL%s
ORDER BY d.embedding <=> $2::vector, d.key
LIMIT $%d`, documentsTable, indexScope, where, len(args))
	return query, args
}

func buildTextSQL(q *db.TextQuery) (string, []any) {
	args := []any{q.IndexName, q.Query}
	where, args := buildFilterSQL(q.Filter, args)
	args = append(args, q.TopK)

	query := fmt.Sprintf(`SELECT d.key, ts_rank(to_tsvector('english', d.content), tq) AS score, d.fields::text
FROM %s d
%s
CROSS JOIN plainto_tsquery('english', $2) tq
WHERE to_tsvector('english', d.content) @@ tq%s
ORDER BY score DESC, d.key
LIMIT $%d`, documentsTable, indexScope, where, len(args))
	return query, args
}

// buildFilterSQL renders the movie filter as AND-ed predicates over the jsonb
// fields, appending its parameters to args. Genres match any tag, case-insensitively.
func buildFilterSQL(f filter.Filter, args []any) (string, []any) {
	if f.IsEmpty() {
		return "", args
	}

	var sb strings.Builder
	if genres := f.Genres(); len(genres) > 0 {
		lowered := make([]string, len(genres))
		for i, g := range genres {
			lowered[i] = strings.ToLower(g)
		}
		args = append(args, pq.Array(lowered))
		fmt.Fprintf(&sb, ` AND EXISTS (SELECT 1 FROM unnest(string_to_array(lower(d.fields->>'%s'), '%s')) g WHERE g = ANY($%d))`,
			db.FieldGenres, db.GenreSeparator, len(args))
	}
	if from := f.YearFrom(); from != nil {
		args = append(args, *from)
		sb.WriteString(yearPredicate(">=", len(args)))
	}
	if to := f.YearTo(); to != nil {
		args = append(args, *to)
		sb.WriteString(yearPredicate("<=", len(args)))
	}
	return sb.String(), args
}

func yearPredicate(op string, param int) string {
	return fmt.Sprintf(" AND NULLIF(d.fields->>'%s', '')::int %s $%s", db.FieldYear, op, strconv.Itoa(param))
}
