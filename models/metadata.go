package models

import "time"

// Category buckets metadata entries the way the title store files them.
type Category string

const (
	CategoryMovies      Category = "movies"
	CategoryTV          Category = "tv"
	CategoryCollections Category = "collections"
)

// MetadataEntry is one title-store record: every known title variant for a
// catalog item, plus the freshness timestamp that gates re-lookup.
type MetadataEntry struct {
	Titles         []string  `json:"titles"`
	ExtractedTitle string    `json:"extracted_title"`
	OriginalTitle  string    `json:"originaltitle,omitempty"`
	Year           int       `json:"year,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Fresh reports whether the entry was refreshed within maxAge of now.
func (e MetadataEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	if e.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(e.LastUpdated) < maxAge
}

// CategoryFor maps a catalog item kind to its title-store category.
// Seasons and episodes inherit their series' entry and have no category of
// their own.
func CategoryFor(kind ItemKind) (Category, bool) {
	switch kind {
	case KindMovie:
		return CategoryMovies, true
	case KindSeries:
		return CategoryTV, true
	case KindBoxSet:
		return CategoryCollections, true
	default:
		return "", false
	}
}
