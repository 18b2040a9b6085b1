package models

import "fmt"

// FileKind is the structural role of one dropped artwork file, decided purely
// from its filename.
type FileKind string

const (
	FilePoster     FileKind = "poster"
	FileBackdrop   FileKind = "backdrop"
	FileSeason     FileKind = "season"
	FileEpisode    FileKind = "episode"
	FileCollection FileKind = "collection"
)

// ClassifiedFile is the transient result of filename classification. It is
// consumed immediately by the matcher and never persisted.
type ClassifiedFile struct {
	OriginalName   string
	Kind           FileKind
	CandidateTitle string
	// Year is 0 when the filename carries no (YYYY) group.
	Year    int
	Season  int
	Episode int
}

// SlotFilename returns the canonical library filename for the classified file:
// poster.jpg, backdrop.jpg, SeasonNN.jpg or SNNENN.jpg.
func (c ClassifiedFile) SlotFilename() string {
	switch c.Kind {
	case FileBackdrop:
		return "backdrop.jpg"
	case FileSeason:
		return fmt.Sprintf("Season%02d.jpg", c.Season)
	case FileEpisode:
		return fmt.Sprintf("S%02dE%02d.jpg", c.Season, c.Episode)
	default:
		return "poster.jpg"
	}
}
