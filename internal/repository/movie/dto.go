package movie

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/cinefuse/internal/db"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

// Hash field names outside the reserved db fields.
const (
	fieldTitle       = "title"
	fieldOverview    = "overview"
	fieldPoster      = "poster"
	fieldTMDBID      = "tmdb_id"
	fieldReleaseDate = "release_date"
	fieldExtra       = "extra"
)

const dateLayout = "2006-01-02"

// buildHashFields converts a movie into a flat map[string]string for HSET.
func buildHashFields(m *dommovie.Movie) (map[string]string, error) {
	h := map[string]string{
		db.FieldContent: m.SearchableContent(),
		db.FieldGenres:  strings.Join(m.Genres(), db.GenreSeparator),
		fieldTitle:      m.Title(),
		fieldOverview:   m.Overview(),
		fieldPoster:     m.Poster(),
	}
	if len(m.Embedding()) > 0 {
		h[db.FieldVector] = vectorToBytes(m.Embedding())
	}
	if m.TMDBID() > 0 {
		h[fieldTMDBID] = strconv.FormatInt(m.TMDBID(), 10)
	}
	if !m.ReleaseDate().IsZero() {
		h[fieldReleaseDate] = m.ReleaseDate().Format(dateLayout)
		h[db.FieldYear] = strconv.Itoa(m.Year())
	}
	if len(m.Extra()) > 0 {
		extra, err := json.Marshal(m.Extra())
		if err != nil {
			return nil, err
		}
		h[fieldExtra] = string(extra)
	}
	return h, nil
}

// parseHashFields converts a flat hash map back into a movie. Unparseable
// optional fields are left empty.
func parseHashFields(id string, h map[string]string) dommovie.Movie {
	f := dommovie.Fields{
		ID:       id,
		Title:    h[fieldTitle],
		Overview: h[fieldOverview],
		Poster:   h[fieldPoster],
	}
	if g := h[db.FieldGenres]; g != "" {
		f.Genres = strings.Split(g, db.GenreSeparator)
	}
	if v, err := strconv.ParseInt(h[fieldTMDBID], 10, 64); err == nil {
		f.TMDBID = v
	}
	if d, err := time.Parse(dateLayout, h[fieldReleaseDate]); err == nil {
		f.ReleaseDate = d
	}
	if raw := h[fieldExtra]; raw != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(raw), &extra); err == nil {
			f.Extra = extra
		}
	}

	var vector []float32
	if raw, ok := h[db.FieldVector]; ok {
		vector = bytesToVector(raw)
	}
	return dommovie.Reconstruct(f, vector)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
