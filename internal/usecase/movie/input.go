package movie

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

// Input is the JSON shape of a movie on the import and upsert paths.
// It accepts the TMDB/Meilisearch dump format: numeric or string ids and
// release dates given either as unix seconds or as YYYY-MM-DD.
type Input struct {
	ID          FlexString        `json:"id"`
	TMDBID      int64             `json:"tmdb_id,omitempty"`
	Title       string            `json:"title"`
	Overview    string            `json:"overview,omitempty"`
	Genres      []string          `json:"genres,omitempty"`
	Poster      string            `json:"poster,omitempty"`
	ReleaseDate ReleaseDate       `json:"release_date,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Fields converts the input into unvalidated domain fields. A numeric id
// doubles as the TMDB id when none is given.
func (in *Input) Fields() dommovie.Fields {
	id := string(in.ID)
	tmdbID := in.TMDBID
	if tmdbID == 0 {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
			tmdbID = n
		}
	}
	return dommovie.Fields{
		ID:          id,
		TMDBID:      tmdbID,
		Title:       in.Title,
		Overview:    in.Overview,
		Genres:      in.Genres,
		Poster:      in.Poster,
		ReleaseDate: time.Time(in.ReleaseDate),
		Extra:       in.Extra,
	}
}

// FlexString decodes from a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err //nolint:wrapcheck // decoder error carries position
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// ReleaseDate decodes from unix seconds, a YYYY-MM-DD string, an RFC 3339
// timestamp or null.
type ReleaseDate time.Time

// UnmarshalJSON implements json.Unmarshaler.
func (d *ReleaseDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = ReleaseDate{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err //nolint:wrapcheck // decoder error carries position
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*d = ReleaseDate{}
			return nil
		}
		for _, layout := range []string{time.DateOnly, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				*d = ReleaseDate(t.UTC())
				return nil
			}
		}
		return fmt.Errorf("release_date %q: want YYYY-MM-DD or unix seconds", s)
	}
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("release_date must be a date string or unix seconds: %w", err)
	}
	*d = ReleaseDate(time.Unix(secs, 0).UTC())
	return nil
}

// MarshalJSON renders the date as YYYY-MM-DD, or null when unknown.
func (d ReleaseDate) MarshalJSON() ([]byte, error) {
	t := time.Time(d)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.DateOnly) + `"`), nil
}

// DecodeInputs parses a single movie object or an array of movies.
func DecodeInputs(data []byte) ([]Input, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidMovie)
	}

	if data[0] == '[' {
		var list []Input
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidMovie, err)
		}
		return list, nil
	}

	var one Input
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidMovie, err)
	}
	return []Input{one}, nil
}
