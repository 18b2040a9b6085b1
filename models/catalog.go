package models

// ItemKind identifies the type of a catalog entry as reported by the media server.
type ItemKind string

const (
	KindMovie   ItemKind = "Movie"
	KindSeries  ItemKind = "Series"
	KindSeason  ItemKind = "Season"
	KindEpisode ItemKind = "Episode"
	KindBoxSet  ItemKind = "BoxSet"
)

// CatalogEntry is one node from the media server's inventory. Entries are
// fetched fresh every cycle and never mutated locally beyond name cleaning.
type CatalogEntry struct {
	ID            string   `json:"Id"`
	Name          string   `json:"Name"`
	OriginalTitle string   `json:"OriginalTitle,omitempty"`
	Kind          ItemKind `json:"Type"`
	ParentID      string   `json:"ParentId,omitempty"`
	// Year is 0 when the server reports it as unknown.
	Year          int    `json:"Year,omitempty"`
	SeasonNumber  int    `json:"SeasonNumber,omitempty"`
	EpisodeNumber int    `json:"EpisodeNumber,omitempty"`
	TMDBID        string `json:"TMDbId,omitempty"`
}

// SeasonRef holds the server ID of a season plus its episode IDs keyed by
// zero-padded episode number ("01", "02", ...).
type SeasonRef struct {
	ID       string            `json:"Id"`
	Episodes map[string]string `json:"Episodes,omitempty"`
}

// LibraryItem is one entry of the sorted catalog snapshot: a movie, a series
// with its season/episode tree, or a collection. This is the shape the sync
// engine consumes and the shape persisted to sorted_items.json.
type LibraryItem struct {
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	OriginalTitle string `json:"OriginalTitle,omitempty"`
	// EnglishTitle is set when the display name differs from the original
	// title, so folder resolution can prefer an ASCII-safe key.
	EnglishTitle string               `json:"EnglishTitle,omitempty"`
	Kind         ItemKind             `json:"Type"`
	Year         int                  `json:"Year,omitempty"`
	TMDBID       string               `json:"TMDbId,omitempty"`
	Seasons      map[string]SeasonRef `json:"Seasons,omitempty"`
}

// IsCollection reports whether the item maps to the Collections root on disk.
func (li LibraryItem) IsCollection() bool {
	return li.Kind == KindBoxSet
}
