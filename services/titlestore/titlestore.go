// Package titlestore persists the known title variants of every library item.
// Entries age out after a configurable window; stale or missing ones are
// refreshed from TMDB with bounded concurrency, and keys for items that left
// the library are pruned on every refresh.
package titlestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"coversync/models"
)

// Fetcher is the slice of the TMDB client the store needs.
type Fetcher interface {
	IsConfigured() bool
	Titles(ctx context.Context, kind models.ItemKind, tmdbID string) ([]string, error)
}

// Store holds the title map in memory and mirrors it to a JSON file.
type Store struct {
	fsys    afero.Fs
	path    string
	fetcher Fetcher
	workers int
	maxAge  time.Duration

	mu      sync.Mutex
	entries map[models.Category]map[string]models.MetadataEntry
}

// New builds a store backed by path. freshnessDays gates how long a fetched
// entry is trusted before TMDB is asked again.
func New(fsys afero.Fs, path string, fetcher Fetcher, workers, freshnessDays int) *Store {
	if workers < 1 {
		workers = 1
	}
	return &Store{
		fsys:    fsys,
		path:    path,
		fetcher: fetcher,
		workers: workers,
		maxAge:  time.Duration(freshnessDays) * 24 * time.Hour,
		entries: make(map[models.Category]map[string]models.MetadataEntry),
	}
}

// Load reads the persisted store. A missing file is an empty store, not an
// error; a corrupt file is discarded with a log line so one bad write cannot
// wedge every future cycle.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fsys, s.path)
	if os.IsNotExist(err) {
		s.entries = make(map[models.Category]map[string]models.MetadataEntry)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read title store: %w", err)
	}

	entries := make(map[models.Category]map[string]models.MetadataEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[titlestore] discarding corrupt store %s: %v", s.path, err)
		entries = make(map[models.Category]map[string]models.MetadataEntry)
	}
	s.entries = entries
	return nil
}

// Save writes the store atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal title store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fsys, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write title store: %w", err)
	}
	return s.fsys.Rename(tmp, s.path)
}

// Snapshot returns a deep copy of the entry map for the matcher to index.
func (s *Store) Snapshot() map[models.Category]map[string]models.MetadataEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Category]map[string]models.MetadataEntry, len(s.entries))
	for category, bucket := range s.entries {
		copied := make(map[string]models.MetadataEntry, len(bucket))
		for key, entry := range bucket {
			copied[key] = entry
		}
		out[category] = copied
	}
	return out
}

// Len reports the total entry count across categories.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, bucket := range s.entries {
		n += len(bucket)
	}
	return n
}

// Refresh reconciles the store against the current library. Fresh entries are
// kept but their library-sourced fields follow the catalog; stale or new ones
// are fetched from TMDB. Items no longer in the library drop out entirely.
func (s *Store) Refresh(ctx context.Context, items []models.LibraryItem, now time.Time) error {
	next := make(map[models.Category]map[string]models.MetadataEntry)
	var nextMu sync.Mutex

	put := func(category models.Category, key string, entry models.MetadataEntry) {
		nextMu.Lock()
		defer nextMu.Unlock()
		bucket := next[category]
		if bucket == nil {
			bucket = make(map[string]models.MetadataEntry)
			next[category] = bucket
		}
		bucket[key] = entry
	}

	current := s.Snapshot()

	p := pool.New().WithMaxGoroutines(s.workers).WithContext(ctx)
	fetched := 0
	for _, item := range items {
		category, ok := models.CategoryFor(item.Kind)
		if !ok {
			continue
		}

		key := storeKey(item)
		existing, known := current[category][key]
		if known && existing.Fresh(now, s.maxAge) && len(existing.Titles) > 0 {
			existing.ExtractedTitle = item.Name
			existing.OriginalTitle = item.OriginalTitle
			existing.Year = item.Year
			put(category, key, existing)
			continue
		}

		fetched++
		item := item
		p.Go(func(ctx context.Context) error {
			entry := models.MetadataEntry{
				Titles:         libraryTitles(item),
				ExtractedTitle: item.Name,
				OriginalTitle:  item.OriginalTitle,
				Year:           item.Year,
				LastUpdated:    now,
			}
			if s.fetcher != nil && s.fetcher.IsConfigured() && item.TMDBID != "" {
				titles, err := s.fetcher.Titles(ctx, item.Kind, item.TMDBID)
				if err != nil {
					// Keep the library-sourced names and retry next cycle.
					log.Printf("[titlestore] title lookup for %q failed: %v", item.Name, err)
					entry.LastUpdated = time.Time{}
				} else {
					entry.Titles = mergeTitles(titles, libraryTitles(item))
				}
			}
			put(category, key, entry)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	pruned := 0
	for category, bucket := range s.entries {
		for key := range bucket {
			if _, keep := next[category][key]; !keep {
				pruned++
			}
		}
	}
	s.entries = next
	s.mu.Unlock()

	if fetched > 0 || pruned > 0 {
		log.Printf("[titlestore] refresh complete: %d fetched, %d pruned", fetched, pruned)
	}
	return nil
}

// storeKey prefers the TMDB ID so renames do not orphan entries; items
// without one fall back to their display name.
func storeKey(item models.LibraryItem) string {
	if item.TMDBID != "" {
		return item.TMDBID
	}
	return item.Name
}

func libraryTitles(item models.LibraryItem) []string {
	return mergeTitles(nil, []string{item.Name, item.OriginalTitle, item.EnglishTitle})
}

func mergeTitles(primary, extra []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, title := range append(append([]string{}, primary...), extra...) {
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, title)
	}
	return out
}
