package filter

import (
	"fmt"
	"strings"
)

// Filter bounds.
const (
	MaxGenres = 32
	MinYear   = 1870
	MaxYear   = 2100
)

// Filter is a validated movie pre-filter applied by both retrieval sources.
// Genres match any; the year range is inclusive on both ends.
type Filter struct {
	genres   []string
	yearFrom *int
	yearTo   *int
}

// New validates and creates a Filter. Blank and repeated genres are dropped
// (case-insensitive), keeping the first spelling.
func New(genres []string, yearFrom, yearTo *int) (Filter, error) {
	if len(genres) > MaxGenres {
		return Filter{}, fmt.Errorf("too many genres (max %d)", MaxGenres)
	}

	seen := make(map[string]struct{}, len(genres))
	var cleaned []string
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, g)
	}

	if err := checkYear("year_from", yearFrom); err != nil {
		return Filter{}, err
	}
	if err := checkYear("year_to", yearTo); err != nil {
		return Filter{}, err
	}
	if yearFrom != nil && yearTo != nil && *yearFrom > *yearTo {
		return Filter{}, fmt.Errorf("year_from (%d) is after year_to (%d)", *yearFrom, *yearTo)
	}

	return Filter{genres: cleaned, yearFrom: yearFrom, yearTo: yearTo}, nil
}

func checkYear(name string, y *int) error {
	if y == nil {
		return nil
	}
	if *y < MinYear || *y > MaxYear {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, MinYear, MaxYear, *y)
	}
	return nil
}

// Genres returns the genres to match (any).
func (f Filter) Genres() []string { return f.genres }

// YearFrom returns the inclusive lower release year bound.
func (f Filter) YearFrom() *int { return f.yearFrom }

// YearTo returns the inclusive upper release year bound.
func (f Filter) YearTo() *int { return f.yearTo }

// HasYearRange reports whether any year bound is set.
func (f Filter) HasYearRange() bool { return f.yearFrom != nil || f.yearTo != nil }

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.genres) == 0 && !f.HasYearRange()
}
