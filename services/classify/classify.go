// Package classify turns raw artwork filenames into structured records. It
// decides only the structural role of a file; which library entry it belongs
// to is the matcher's job.
package classify

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"coversync/models"
)

var (
	yearRe       = regexp.MustCompile(`\s*\((\d{4})\)`)
	episodeRe    = regexp.MustCompile(`(?i)\bS(\d+)\s*E(\d+)\b`)
	seasonRe     = regexp.MustCompile(`(?i)\bSeason\s*(\d+)`)
	specialsRe   = regexp.MustCompile(`(?i)\bSpecials\b`)
	collectionRe = regexp.MustCompile(`(?i)\b(Collection|Filmreihe)\b`)
	backdropRe   = regexp.MustCompile(`(?i)\s*-?\s*\b(Backdrop|Background)\b`)

	episodeStripRe = regexp.MustCompile(`(?i)\s*-?\s*S\d+\s*E\d+`)
	seasonStripRe  = regexp.MustCompile(`(?i)\s*-?\s*Season\s*\d+`)
	specialsStrip  = regexp.MustCompile(`(?i)\s*-?\s*Specials`)
)

// invalidPathChars cannot appear in library folder names on common
// filesystems, plus a few that break server-side lookups.
var invalidPathChars = []string{`\`, "/", ":", "*", "?", `"`, "<", ">", "|", "&", "'", "!", "[", "]"}

// Classify parses filename into a ClassifiedFile. Collection tokens win over
// season/episode tokens: collections are never seasonal. A missing year is
// reported as 0 and must not prevent later matching.
func Classify(filename string) models.ClassifiedFile {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	year := 0
	if m := yearRe.FindStringSubmatch(stem); m != nil {
		year, _ = strconv.Atoi(m[1])
	}

	c := models.ClassifiedFile{OriginalName: filename, Year: year}

	switch {
	case collectionRe.MatchString(stem):
		c.Kind = models.FileCollection
		// Candidate is the text preceding the collection token.
		loc := collectionRe.FindStringIndex(stem)
		c.CandidateTitle = cleanCandidate(stem[:loc[0]])

	case backdropRe.MatchString(stem):
		c.Kind = models.FileBackdrop
		c.CandidateTitle = cleanCandidate(backdropRe.ReplaceAllString(stem, ""))

	case episodeRe.MatchString(stem):
		m := episodeRe.FindStringSubmatch(stem)
		c.Kind = models.FileEpisode
		c.Season, _ = strconv.Atoi(m[1])
		c.Episode, _ = strconv.Atoi(m[2])
		c.CandidateTitle = cleanCandidate(episodeStripRe.ReplaceAllString(stem, ""))

	case seasonRe.MatchString(stem):
		m := seasonRe.FindStringSubmatch(stem)
		c.Kind = models.FileSeason
		c.Season, _ = strconv.Atoi(m[1])
		c.CandidateTitle = cleanCandidate(seasonStripRe.ReplaceAllString(stem, ""))

	case specialsRe.MatchString(stem):
		// Specials are season 0.
		c.Kind = models.FileSeason
		c.Season = 0
		c.CandidateTitle = cleanCandidate(specialsStrip.ReplaceAllString(stem, ""))

	default:
		c.Kind = models.FilePoster
		c.CandidateTitle = cleanCandidate(stem)
	}

	return c
}

// cleanCandidate strips the year group and path-hostile characters from a
// title fragment.
func cleanCandidate(s string) string {
	s = yearRe.ReplaceAllString(s, "")
	s = SanitizeName(s)
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "-"))
}

// SanitizeName removes characters that are illegal in library folder names.
func SanitizeName(name string) string {
	for _, ch := range invalidPathChars {
		name = strings.ReplaceAll(name, ch, "")
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(name), "."))
}
