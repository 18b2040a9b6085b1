package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"coversync/models"
)

var (
	trailingYearRe   = regexp.MustCompile(` \(\d{4}\)$`)
	parenContentRe   = regexp.MustCompile(`\([^)]*\)`)
	bracketContentRe = regexp.MustCompile(`\[[^]]*\]`)

	// Media managers leave these provider tags in item names while a rename
	// job is still running against fresh imports.
	imdbTagRe = regexp.MustCompile(`\[imdbid-tt\d+\]`)
	tvdbTagRe = regexp.MustCompile(`\[tvdbid-\d+\]`)
)

const (
	recheckAttempts = 2
	recheckDelay    = 5 * time.Second
)

// Catalog turns the raw server inventory into the sorted library snapshot
// and tracks which item IDs were seen last cycle.
type Catalog struct {
	client interface {
		FetchItems(ctx context.Context) ([]rawItem, error)
	}
	fsys      afero.Fs
	blacklist *Blacklist

	rawPath     string
	sortedPath  string
	idCachePath string

	sleep func(time.Duration)
}

// NewCatalog wires the catalog against a client and its state file paths.
func NewCatalog(client *Client, fsys afero.Fs, blacklist *Blacklist, rawPath, sortedPath, idCachePath string) *Catalog {
	return &Catalog{
		client:      client,
		fsys:        fsys,
		blacklist:   blacklist,
		rawPath:     rawPath,
		sortedPath:  sortedPath,
		idCachePath: idCachePath,
		sleep:       time.Sleep,
	}
}

// Snapshot fetches the inventory and returns the sorted library. changed
// reports whether the item ID set differs from the previous cycle; callers
// use it to skip needless title refreshes and sync passes.
//
// Items whose names still carry provider tags, or whose year the server does
// not know yet, get one delayed refetch. Offenders that persist are
// blacklisted so a permanently broken item cannot stall every future cycle.
func (c *Catalog) Snapshot(ctx context.Context) (items []models.LibraryItem, changed bool, err error) {
	raw, err := c.client.FetchItems(ctx)
	if err != nil {
		return nil, false, err
	}

	for attempt := 1; attempt <= recheckAttempts; attempt++ {
		offenders := findOffenders(raw, c.blacklist)
		if len(offenders) == 0 {
			break
		}
		for _, o := range offenders {
			log.Printf("[jellyfin] item not settled yet: %s", o.describe())
		}

		if attempt == recheckAttempts {
			for _, o := range offenders {
				c.blacklist.Add(o.id)
				log.Printf("[jellyfin] blacklisted item %s after %d checks", o.id, recheckAttempts)
			}
			if err := c.blacklist.Save(); err != nil {
				log.Printf("[jellyfin] save blacklist: %v", err)
			}
			break
		}

		log.Printf("[jellyfin] waiting %s before rechecking %d unsettled items", recheckDelay, len(offenders))
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		c.sleep(recheckDelay)
		if raw, err = c.client.FetchItems(ctx); err != nil {
			return nil, false, err
		}
	}

	entries := make([]models.CatalogEntry, 0, len(raw))
	ids := make(map[string]bool, len(raw))
	allIDs := make(map[string]bool, len(raw))
	for _, item := range raw {
		allIDs[item.ID] = true
		if c.blacklist.Contains(item.ID) {
			continue
		}
		ids[item.ID] = true
		entries = append(entries, toCatalogEntry(item))
	}

	if err := c.writeJSON(c.rawPath, entries); err != nil {
		log.Printf("[jellyfin] persist raw items: %v", err)
	}

	previous := c.loadCachedIDs()
	changed = !sameIDSet(previous, ids)

	items = sortEntries(entries)

	if changed {
		if err := c.writeJSON(c.sortedPath, items); err != nil {
			log.Printf("[jellyfin] persist sorted items: %v", err)
		}
		if err := c.saveCachedIDs(ids); err != nil {
			log.Printf("[jellyfin] persist id cache: %v", err)
		}
	}

	c.blacklist.Prune(allIDs)
	if err := c.blacklist.Save(); err != nil {
		log.Printf("[jellyfin] save blacklist: %v", err)
	}

	return items, changed, nil
}

type offender struct {
	id, name, kind, reason string
}

func (o offender) describe() string {
	return fmt.Sprintf("%s: %s (ID: %s, %s)", o.kind, o.name, o.id, o.reason)
}

// findOffenders flags movies and series that look mid-import: a provider tag
// still in the name, or a missing production year.
func findOffenders(raw []rawItem, blacklist *Blacklist) []offender {
	var out []offender
	for _, item := range raw {
		if blacklist.Contains(item.ID) {
			continue
		}
		if item.Type != string(models.KindMovie) && item.Type != string(models.KindSeries) {
			continue
		}
		if imdbTagRe.MatchString(item.Name) || tvdbTagRe.MatchString(item.Name) {
			out = append(out, offender{id: item.ID, name: item.Name, kind: item.Type, reason: "processing tag"})
			continue
		}
		if item.ProductionYear == nil {
			out = append(out, offender{id: item.ID, name: item.Name, kind: item.Type, reason: "unknown year"})
		}
	}
	return out
}

func toCatalogEntry(item rawItem) models.CatalogEntry {
	entry := models.CatalogEntry{
		ID:            item.ID,
		Name:          cleanName(item.Name),
		OriginalTitle: item.OriginalTitle,
		Kind:          models.ItemKind(item.Type),
		ParentID:      item.ParentID,
	}
	if item.ProductionYear != nil {
		entry.Year = *item.ProductionYear
	}
	if item.IndexNumber != nil {
		switch entry.Kind {
		case models.KindSeason:
			entry.SeasonNumber = *item.IndexNumber
		case models.KindEpisode:
			entry.EpisodeNumber = *item.IndexNumber
		}
	}
	for provider, id := range item.ProviderIds {
		if strings.EqualFold(provider, "Tmdb") {
			entry.TMDBID = id
		}
	}
	return entry
}

// cleanName strips the trailing year and any leftover parenthesized or
// bracketed noise from a display name.
func cleanName(name string) string {
	name = trailingYearRe.ReplaceAllString(name, "")
	name = parenContentRe.ReplaceAllString(name, "")
	name = bracketContentRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// sortEntries builds the library snapshot: movies and series (with their
// season and episode trees) sorted by name, box sets appended after with
// their collection suffix stripped.
func sortEntries(entries []models.CatalogEntry) []models.LibraryItem {
	type seriesState struct {
		item    models.LibraryItem
		hasName bool
	}
	series := make(map[string]*seriesState)
	episodes := make(map[string]map[string]string)
	var boxsets []models.CatalogEntry

	ensure := func(id string) *seriesState {
		s := series[id]
		if s == nil {
			s = &seriesState{item: models.LibraryItem{ID: id, Seasons: map[string]models.SeasonRef{}}}
			series[id] = s
		}
		return s
	}

	for _, entry := range entries {
		switch entry.Kind {
		case models.KindBoxSet:
			boxsets = append(boxsets, entry)
		case models.KindSeason:
			if entry.ParentID == "" || entry.ID == "" {
				log.Printf("[jellyfin] skipping season with missing IDs: %s", entry.Name)
				continue
			}
			label, ok := seasonLabel(entry.Name)
			if !ok && entry.SeasonNumber > 0 {
				// Localized season names may carry no trailing number; the
				// server's index still places them.
				label, ok = fmt.Sprintf("Season %d", entry.SeasonNumber), true
			}
			if !ok {
				log.Printf("[jellyfin] no season number in: %s", entry.Name)
				continue
			}
			ensure(entry.ParentID).item.Seasons[label] = models.SeasonRef{ID: entry.ID}
		case models.KindEpisode:
			if entry.ParentID == "" || entry.ID == "" || entry.EpisodeNumber == 0 {
				continue
			}
			bucket := episodes[entry.ParentID]
			if bucket == nil {
				bucket = make(map[string]string)
				episodes[entry.ParentID] = bucket
			}
			key := fmt.Sprintf("%02d", entry.EpisodeNumber)
			if _, dup := bucket[key]; !dup {
				bucket[key] = entry.ID
			}
		case models.KindMovie, models.KindSeries:
			s := ensure(entry.ID)
			s.hasName = true
			s.item.Name = entry.Name
			s.item.Kind = entry.Kind
			s.item.OriginalTitle = entry.OriginalTitle
			s.item.Year = entry.Year
			s.item.TMDBID = entry.TMDBID
		}
	}

	var items []models.LibraryItem
	for _, s := range series {
		// Seasons whose series never appeared are orphans; drop them.
		if !s.hasName {
			continue
		}
		item := s.item
		if item.Kind == models.KindMovie {
			item.Seasons = nil
		} else {
			for label, ref := range item.Seasons {
				if eps := episodes[ref.ID]; len(eps) > 0 {
					ref.Episodes = eps
					item.Seasons[label] = ref
				}
			}
			if !strings.EqualFold(item.Name, item.OriginalTitle) {
				item.EnglishTitle = item.OriginalTitle
				if item.EnglishTitle == "" {
					item.EnglishTitle = item.Name
				}
			}
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	for _, b := range boxsets {
		name := strings.ReplaceAll(b.Name, " Filmreihe", "")
		name = strings.ReplaceAll(name, " Collection", "")
		items = append(items, models.LibraryItem{
			ID:            b.ID,
			Name:          name,
			OriginalTitle: b.OriginalTitle,
			Kind:          models.KindBoxSet,
			Year:          b.Year,
			TMDBID:        b.TMDBID,
		})
	}

	return items
}

// seasonLabel maps a season display name to its canonical "Season N" key.
// Specials always file as Season 0.
func seasonLabel(name string) (string, bool) {
	if strings.HasPrefix(name, "Specials") {
		return "Season 0", true
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("Season %d", n), true
}

func (c *Catalog) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(c.fsys, tmp, data, 0o644); err != nil {
		return err
	}
	return c.fsys.Rename(tmp, path)
}

func (c *Catalog) loadCachedIDs() map[string]bool {
	data, err := afero.ReadFile(c.fsys, c.idCachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[jellyfin] read id cache: %v", err)
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		log.Printf("[jellyfin] discarding corrupt id cache: %v", err)
		return nil
	}
	ids := make(map[string]bool, len(list))
	for _, id := range list {
		ids[id] = true
	}
	return ids
}

func (c *Catalog) saveCachedIDs(ids map[string]bool) error {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fsys, c.idCachePath, data, 0o644)
}

func sameIDSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
