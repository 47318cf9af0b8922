package movie

import (
	"github.com/kailas-cloud/cinefuse/internal/db"
)

// DefaultHNSW is used for any graph parameter the deployment leaves unset.
var DefaultHNSW = db.HNSW{M: 16, EFConstruction: 200, EFRuntime: 10}

// buildIndex describes the movie index: stemmed BM25 over the searchable
// content, genre tags, a sortable release year and the cosine HNSW embedding.
func buildIndex(indexName, keyPrefix string, vectorDim int, hnsw db.HNSW) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName).
		Prefix(keyPrefix).
		Text(db.FieldContent, 1).
		Tags(db.FieldGenres, db.GenreSeparator).
		Numeric(db.FieldYear, true).
		Vector(db.FieldVector, vectorDim, hnsw).
		Build()
}
