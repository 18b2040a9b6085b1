// Package matcher answers "which library entry does this name belong to".
// It builds a normalized-title index over the title store and resolves names
// in two stages: exact lookup, then a Levenshtein ratio sweep with a
// configurable floor. A year mismatch is always a non-match, never a
// fallback; same-title remakes are the classic trap here.
package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"coversync/models"
	"coversync/utils/similarity"
)

var (
	parenRe  = regexp.MustCompile(`\s*\([^)]*\)`)
	suffixRe = regexp.MustCompile(`(?i)\s*(collection|filmreihe)\s*$`)
)

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Match is one resolved cache hit.
type Match struct {
	Category models.Category
	// Key is the title-store key of the entry (catalog ID, or name when the
	// item has none).
	Key   string
	Entry models.MetadataEntry
	Score int
}

type indexed struct {
	category models.Category
	key      string
	entry    models.MetadataEntry
}

// Cache is the normalized-title index. Build once per cycle from the current
// title store; it is read-only afterwards.
type Cache struct {
	threshold int
	index     map[string]indexed
}

// Snapshot is the title store's in-memory shape: entries keyed by store key,
// bucketed by category.
type Snapshot map[models.Category]map[string]models.MetadataEntry

// Build indexes every known title variant of every entry. Later insertions
// for the same normalized key overwrite earlier ones; collisions are rare and
// the information lost is small.
func Build(snapshot Snapshot, threshold int) *Cache {
	c := &Cache{threshold: threshold, index: make(map[string]indexed)}

	for category, entries := range snapshot {
		for key, entry := range entries {
			rec := indexed{category: category, key: key, entry: entry}
			c.insert(entry.ExtractedTitle, rec)
			c.insert(entry.OriginalTitle, rec)
			for _, title := range entry.Titles {
				c.insert(title, rec)
			}
		}
	}
	return c
}

// insert registers a title under both its suffix-stripped and suffix-keeping
// normal forms, so "Marvel" finds "Marvel Collection" and the other way
// around regardless of which side carries the token.
func (c *Cache) insert(title string, rec indexed) {
	if strings.TrimSpace(title) == "" {
		return
	}
	stripped := Normalize(title)
	if stripped != "" {
		c.index[stripped] = rec
	}
	kept := normalizeKeepSuffix(title)
	if kept != "" && kept != stripped {
		c.index[kept] = rec
	}
}

// Len reports the number of indexed normal forms.
func (c *Cache) Len() int { return len(c.index) }

// Match resolves name against every category. A year of 0 means the caller
// has no year constraint.
func (c *Cache) Match(name string, year int) (Match, bool) {
	return c.MatchIn(name, year, models.CategoryMovies, models.CategoryTV, models.CategoryCollections)
}

// MatchIn resolves name against the given categories only. The exact stage
// short-circuits; the fuzzy stage runs only when no exact hit exists.
func (c *Cache) MatchIn(name string, year int, categories ...models.Category) (Match, bool) {
	wanted := make(map[models.Category]bool, len(categories))
	for _, cat := range categories {
		wanted[cat] = true
	}

	q := Normalize(name)
	if q == "" {
		return Match{}, false
	}

	if rec, ok := c.index[q]; ok && wanted[rec.category] && yearAllowed(year, rec.entry.Year) {
		return Match{Category: rec.category, Key: rec.key, Entry: rec.entry, Score: 100}, true
	}

	best := Match{}
	found := false
	for key, rec := range c.index {
		if !wanted[rec.category] {
			continue
		}
		score := similarity.Ratio(q, key)
		if score < c.threshold || score <= best.Score {
			continue
		}
		if !yearAllowed(year, rec.entry.Year) {
			continue
		}
		best = Match{Category: rec.category, Key: rec.key, Entry: rec.entry, Score: score}
		found = true
	}
	return best, found
}

// yearAllowed applies the year gate: no constraint, or an exact match.
func yearAllowed(queryYear, entryYear int) bool {
	return queryYear == 0 || queryYear == entryYear
}

// Normalize produces the cache key form of a title: parenthetical groups and
// collection suffixes removed, diacritics folded, case folded.
func Normalize(title string) string {
	return normalizeBase(suffixRe.ReplaceAllString(parenRe.ReplaceAllString(title, ""), ""))
}

func normalizeKeepSuffix(title string) string {
	return normalizeBase(parenRe.ReplaceAllString(title, ""))
}

func normalizeBase(t string) string {
	if folded, _, err := transform.String(diacriticFolder, t); err == nil {
		t = folded
	}
	return strings.ToLower(strings.TrimSpace(t))
}
