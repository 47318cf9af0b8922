package db

import (
	"errors"
	"fmt"
)

// DefaultLanguage is the stemming language of the movie content field. Redis
// passes it to FT.CREATE; Postgres uses the matching text search configuration.
const DefaultLanguage = "english"

// DistanceMetric is the vector distance of a search index. Fusion assumes
// cosine, so it is the only metric either driver builds.
type DistanceMetric string

// DistanceCosine is cosine distance, 1 - cosine similarity.
const DistanceCosine DistanceMetric = "COSINE"

// IndexFieldType enumerates supported index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field (release year).
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is an exact-match tag list (genres).
	IndexFieldTag
	// IndexFieldText is a full-text field ranked with BM25 (searchable content).
	IndexFieldText
	// IndexFieldVector is an HNSW vector field (content embedding).
	IndexFieldVector
)

// HNSW holds graph parameters of a vector field. Zero leaves the driver default.
type HNSW struct {
	M              int // max edges per node
	EFConstruction int // candidate list size while building
	EFRuntime      int // candidate list size while querying; Redis only
}

// IndexField describes one field of the movie index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	Sortable     bool    // NUMERIC
	TagSeparator string  // TAG; tags always match case-insensitively
	TextWeight   float64 // TEXT; BM25 field weight, 0 means 1

	VectorDim      int // VECTOR
	VectorDistance DistanceMetric
	HNSW           HNSW
}

// IndexDefinition is a complete search index definition. Redis renders it as
// FT.CREATE over hashes; Postgres derives its table and index DDL from it.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Language string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	vectors := 0
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field name is required at index %d", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		seen[f.Name] = true

		switch f.Type {
		case IndexFieldVector:
			vectors++
			if f.VectorDim <= 0 {
				return errors.New("vector field requires positive DIM")
			}
			if f.VectorDistance != "" && f.VectorDistance != DistanceCosine {
				return fmt.Errorf("vector field %s: unsupported distance %s", f.Name, f.VectorDistance)
			}
		case IndexFieldText:
			if f.TextWeight < 0 {
				return fmt.Errorf("text field %s: weight must not be negative", f.Name)
			}
		}
	}
	if vectors > 1 {
		return errors.New("at most one vector field is supported")
	}

	return nil
}

// VectorField returns the vector field of the definition.
func (idx *IndexDefinition) VectorField() (*IndexField, bool) {
	for i := range idx.Fields {
		if idx.Fields[i].Type == IndexFieldVector {
			return &idx.Fields[i], true
		}
	}
	return nil, false
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
