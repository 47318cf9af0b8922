package db

import (
	"strconv"
	"strings"
)

// IndexBuilder assembles an index definition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition stemmed in DefaultLanguage.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, Language: DefaultLanguage}}
}

// Prefix adds key prefixes the index covers.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Language overrides the stemming language.
func (b *IndexBuilder) Language(lang string) *IndexBuilder {
	b.def.Language = lang
	return b
}

// Text adds a BM25 full-text field with the given weight.
func (b *IndexBuilder) Text(name string, weight float64) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldText, TextWeight: weight})
}

// Tags adds a case-insensitive tag list split on separator.
func (b *IndexBuilder) Tags(name, separator string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag, TagSeparator: separator})
}

// Numeric adds a numeric range field.
func (b *IndexBuilder) Numeric(name string, sortable bool) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric, Sortable: sortable})
}

// Vector adds a cosine HNSW vector field.
func (b *IndexBuilder) Vector(name string, dim int, hnsw HNSW) *IndexBuilder {
	return b.add(IndexField{
		Name:           name,
		Type:           IndexFieldVector,
		VectorDim:      dim,
		VectorDistance: DistanceCosine,
		HNSW:           hnsw,
	})
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// String renders a short schema summary for logs, e.g.
// "cinefuse:movies:idx [english] __content TEXT^2 genres TAG year NUMERIC __vector HNSW(768)".
func (idx *IndexDefinition) String() string {
	parts := []string{idx.Name}
	if idx.Language != "" {
		parts = append(parts, "["+idx.Language+"]")
	}
	for i := range idx.Fields {
		f := &idx.Fields[i]
		switch f.Type {
		case IndexFieldText:
			kind := "TEXT"
			if f.TextWeight > 0 && f.TextWeight != 1 {
				kind += "^" + strconv.FormatFloat(f.TextWeight, 'g', -1, 64)
			}
			parts = append(parts, f.Name, kind)
		case IndexFieldTag:
			parts = append(parts, f.Name, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, f.Name, "NUMERIC")
		case IndexFieldVector:
			parts = append(parts, f.Name, "HNSW("+strconv.Itoa(f.VectorDim)+")")
		}
	}
	return strings.Join(parts, " ")
}
