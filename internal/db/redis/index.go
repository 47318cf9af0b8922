package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/cinefuse/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// Defaults FT.CREATE would apply anyway; spelled out so the schema is explicit.
const (
	defaultHNSWM              = 16
	defaultHNSWEFConstruction = 200
	defaultHNSWEFRuntime      = 10
)

// buildCreateArgs renders FT.CREATE arguments. Movies are always hashes, so
// the ON clause is fixed.
func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	if idx.Language != "" {
		args = append(args, "LANGUAGE", idx.Language)
	}

	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}

	switch f.Type {
	case db.IndexFieldText:
		args := []string{f.Name, "TEXT"}
		if f.TextWeight > 0 && f.TextWeight != 1 {
			args = append(args, "WEIGHT", strconv.FormatFloat(f.TextWeight, 'g', -1, 64))
		}
		return args, nil

	case db.IndexFieldTag:
		args := []string{f.Name, "TAG"}
		if f.TagSeparator != "" {
			args = append(args, "SEPARATOR", f.TagSeparator)
		}
		return args, nil

	case db.IndexFieldNumeric:
		args := []string{f.Name, "NUMERIC"}
		if f.Sortable {
			args = append(args, "SORTABLE")
		}
		return args, nil

	case db.IndexFieldVector:
		return buildVectorFieldArgs(f)
	}
	return nil, fmt.Errorf("field %s: unknown field type %d", f.Name, f.Type)
}

// buildVectorFieldArgs renders an HNSW FLOAT32 field. The attribute count
// precedes the attributes, as FT.CREATE requires.
func buildVectorFieldArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}
	if f.VectorDistance != "" && f.VectorDistance != db.DistanceCosine {
		return nil, fmt.Errorf("field %s: unsupported distance %s", f.Name, f.VectorDistance)
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(db.DistanceCosine),
		"M", strconv.Itoa(orDefault(f.HNSW.M, defaultHNSWM)),
		"EF_CONSTRUCTION", strconv.Itoa(orDefault(f.HNSW.EFConstruction, defaultHNSWEFConstruction)),
		"EF_RUNTIME", strconv.Itoa(orDefault(f.HNSW.EFRuntime, defaultHNSWEFRuntime)),
	}
	return append([]string{f.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...), nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
