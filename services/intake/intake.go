// Package intake drains the drop directory: archives are verified and
// unpacked, every image entry is classified, matched against the title cache
// and either placed into its library slot or quarantined. Originals end up in
// the consumed holding area so nothing submitted is ever silently lost.
package intake

import (
	"fmt"
	"log"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"coversync/internal/imaging"
	"coversync/internal/ziputil"
	"coversync/models"
	"coversync/services/classify"
	"coversync/services/matcher"
)

const (
	batchStampLayout   = "2006-01-02_15-04-05"
	archiveStampLayout = "2006-01-02_15-04"

	// rematchMarker tags synthetic archives built by the quarantine
	// reprocessor. They are deleted after processing instead of consumed.
	rematchMarker = ".rematch-"
)

var (
	seasonSlotRe  = regexp.MustCompile(`(?i)^season(\d+)\.jpg$`)
	episodeSlotRe = regexp.MustCompile(`(?i)^s(\d+)e(\d+)\.jpg$`)
	folderYearRe  = regexp.MustCompile(`\(\d{4}\)`)
)

// Paths names every directory the pipeline touches.
type Paths struct {
	Intake      string
	Poster      string
	Collections string
	Consumed    string
	Replaced    string
	NoMatch     string
}

// Pipeline processes dropped files one at a time. It is not safe for
// concurrent use; the runner serializes cycles.
type Pipeline struct {
	fsys   afero.Fs
	paths  Paths
	window time.Duration
	now    func() time.Time

	// lastBatch anchors the rolling quarantine batch window so a burst of
	// related no-match files lands in one batch folder.
	lastBatch time.Time
}

// New builds a pipeline. batchWindowSeconds bounds how long a quarantine
// batch folder stays open for reuse.
func New(fsys afero.Fs, paths Paths, batchWindowSeconds int) *Pipeline {
	return &Pipeline{
		fsys:   fsys,
		paths:  paths,
		window: time.Duration(batchWindowSeconds) * time.Second,
		now:    time.Now,
	}
}

// RematchArchiveName builds the filename for a synthetic rematch archive.
func RematchArchiveName(base string) string {
	return base + rematchMarker + uuid.NewString() + ".zip"
}

// IsRematchArtifact reports whether a filename carries the rematch tag.
func IsRematchArtifact(name string) bool {
	return strings.Contains(name, rematchMarker) && strings.HasSuffix(strings.ToLower(name), ".zip")
}

// ProcessAll ingests every file currently in the intake directory. The batch
// window resets per run so separate runs never share a quarantine batch.
func (p *Pipeline) ProcessAll(cache *matcher.Cache) {
	p.lastBatch = time.Time{}

	infos, err := afero.ReadDir(p.fsys, p.paths.Intake)
	if err != nil {
		log.Printf("[intake] read intake dir: %v", err)
		return
	}
	if len(infos) == 0 {
		return
	}

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		if err := p.Ingest(path.Join(p.paths.Intake, name), cache); err != nil {
			log.Printf("[intake] processing %s: %v", name, err)
		}
	}
}

// Ingest processes one dropped file. Ingesting an already-consumed path is a
// no-op since the source no longer exists.
func (p *Pipeline) Ingest(filePath string, cache *matcher.Cache) error {
	if exists, _ := afero.Exists(p.fsys, filePath); !exists {
		return nil
	}

	name := path.Base(filePath)
	log.Printf("[intake] processing file: %s", name)

	switch {
	case strings.HasSuffix(strings.ToLower(name), ".zip"):
		return p.ingestArchive(filePath, cache)
	case imaging.IsImageFile(name):
		return p.ingestImage(filePath, cache)
	default:
		log.Printf("[intake] skipping unsupported file: %s", name)
		return nil
	}
}

// ingestArchive extracts a zip and processes each image entry independently.
// A corrupt archive is deleted up front; one bad entry does not abort its
// siblings, and the archive is only consumed once every entry resolved.
func (p *Pipeline) ingestArchive(zipPath string, cache *matcher.Cache) error {
	if err := ziputil.Check(p.fsys, zipPath); err != nil {
		log.Printf("[intake] corrupt archive %s, deleting: %v", path.Base(zipPath), err)
		return p.fsys.Remove(zipPath)
	}

	tempDir := path.Join(p.paths.Intake, ".extract-"+uuid.NewString())
	if err := p.fsys.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := p.fsys.RemoveAll(tempDir); err != nil {
			log.Printf("[intake] clean temp dir: %v", err)
		}
	}()

	entries, err := ziputil.Extract(p.fsys, zipPath, tempDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path.Base(zipPath), err)
	}

	allResolved := true
	for _, entry := range entries {
		if !imaging.IsImageFile(entry) {
			continue
		}
		if err := p.processEntry(entry, cache); err != nil {
			log.Printf("[intake] entry %s: %v", path.Base(entry), err)
			allResolved = false
		}
	}

	if !allResolved {
		// Keep the archive in the intake dir so the next cycle retries it.
		return fmt.Errorf("archive %s not fully processed", path.Base(zipPath))
	}

	if IsRematchArtifact(path.Base(zipPath)) {
		return p.fsys.Remove(zipPath)
	}
	return p.moveToConsumed(zipPath)
}

// ingestImage secures a copy of the original in the consumed area first, then
// lets the entry flow through placement or quarantine.
func (p *Pipeline) ingestImage(filePath string, cache *matcher.Cache) error {
	if err := p.copyToConsumed(filePath); err != nil {
		return fmt.Errorf("secure consumed copy: %w", err)
	}
	return p.processEntry(filePath, cache)
}

// processEntry runs one image through normalize, classify, match and place.
func (p *Pipeline) processEntry(filePath string, cache *matcher.Cache) error {
	filePath, err := imaging.NormalizeToJPEG(p.fsys, filePath)
	if err != nil {
		return fmt.Errorf("normalize image: %w", err)
	}

	cf := classify.Classify(path.Base(filePath))

	var m matcher.Match
	var ok bool
	if cf.Kind == models.FileCollection {
		m, ok = cache.MatchIn(cf.CandidateTitle, cf.Year, models.CategoryCollections)
	} else {
		m, ok = cache.MatchIn(cf.CandidateTitle, cf.Year, models.CategoryMovies, models.CategoryTV)
	}
	if !ok {
		return p.quarantine(filePath, cf)
	}
	return p.place(filePath, cf, m)
}

// place moves the image into its canonical slot, archiving whatever occupied
// the slot before.
func (p *Pipeline) place(filePath string, cf models.ClassifiedFile, m matcher.Match) error {
	var root, folderName string
	if m.Category == models.CategoryCollections {
		root = p.paths.Collections
		folderName = classify.SanitizeName(m.Entry.ExtractedTitle)
	} else {
		root = p.paths.Poster
		title := displayTitle(m.Entry)
		if m.Entry.Year != 0 {
			folderName = classify.SanitizeName(fmt.Sprintf("%s (%d)", title, m.Entry.Year))
		} else {
			folderName = classify.SanitizeName(title)
		}
	}

	folder := path.Join(root, folderName)
	if err := p.fsys.MkdirAll(folder, 0o755); err != nil {
		return err
	}

	slot := path.Join(folder, cf.SlotFilename())
	if exists, _ := afero.Exists(p.fsys, slot); exists {
		if err := p.archiveExisting(folder, folderName, m.Category == models.CategoryCollections); err != nil {
			return fmt.Errorf("archive prior content: %w", err)
		}
	}

	if err := p.fsys.Rename(filePath, slot); err != nil {
		return err
	}
	log.Printf("[intake] placed %s -> %s", cf.OriginalName, slot)
	return nil
}

// displayTitle prefers an ASCII-safe original title over the display name so
// folder names stay portable.
func displayTitle(entry models.MetadataEntry) string {
	if entry.OriginalTitle != "" && entry.OriginalTitle != entry.ExtractedTitle && isASCII(entry.OriginalTitle) {
		return entry.OriginalTitle
	}
	return entry.ExtractedTitle
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// archiveExisting copies every file of the folder into a timestamped archive
// under the replaced tree, renamed to carry the item name, then clears the
// folder.
func (p *Pipeline) archiveExisting(folder, folderName string, isCollection bool) error {
	infos, err := afero.ReadDir(p.fsys, folder)
	if err != nil || len(infos) == 0 {
		return err
	}

	subdir := "Poster"
	if isCollection {
		subdir = "Collections"
	}
	archiveDir := path.Join(p.paths.Replaced, subdir, folderName, p.now().Format(archiveStampLayout))
	if err := p.fsys.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		src := path.Join(folder, info.Name())
		dst := path.Join(archiveDir, renameForArchive(info.Name(), folderName))
		if err := copyFile(p.fsys, src, dst); err != nil {
			return err
		}
	}

	for _, info := range infos {
		target := path.Join(folder, info.Name())
		if info.IsDir() {
			err = p.fsys.RemoveAll(target)
		} else {
			err = p.fsys.Remove(target)
		}
		if err != nil {
			return err
		}
	}

	log.Printf("[intake] archived existing content: %s", archiveDir)
	return nil
}

// renameForArchive maps a slot filename back to a human-readable archive name
// carrying the folder's item name.
func renameForArchive(filename, dirName string) string {
	lower := strings.ToLower(filename)

	switch {
	case lower == "poster.jpg":
		if strings.Contains(strings.ToLower(dirName), "collection") {
			return dirName + ".jpg"
		}
		if !folderYearRe.MatchString(dirName) {
			return dirName + " Collection.jpg"
		}
		return dirName + ".jpg"
	case lower == "backdrop.jpg" || lower == "background.jpg":
		return dirName + " - Backdrop.jpg"
	}

	if m := seasonSlotRe.FindStringSubmatch(filename); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == 0 {
			return dirName + " - Specials.jpg"
		}
		return fmt.Sprintf("%s - Season %02d.jpg", dirName, n)
	}
	if m := episodeSlotRe.FindStringSubmatch(filename); m != nil {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%s - S%02dE%02d.jpg", dirName, season, episode)
	}
	return filename
}

// quarantine files an unmatched image under its derived group folder in a
// timestamp-bucketed batch.
func (p *Pipeline) quarantine(filePath string, cf models.ClassifiedFile) error {
	subdir := "Poster"
	if cf.Kind == models.FileCollection {
		subdir = "Collections"
	}

	groupName := cf.CandidateTitle
	if groupName == "" {
		groupName = strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	}
	if cf.Year != 0 {
		groupName = fmt.Sprintf("%s (%d)", groupName, cf.Year)
	}
	groupName = classify.SanitizeName(groupName)

	batchDir := path.Join(p.paths.NoMatch, subdir, groupName, p.batchStamp())
	if err := p.fsys.MkdirAll(batchDir, 0o755); err != nil {
		return err
	}

	dst := path.Join(batchDir, path.Base(filePath))
	if err := p.fsys.Rename(filePath, dst); err != nil {
		return err
	}
	log.Printf("[intake] no match for %s, quarantined to %s", cf.OriginalName, dst)
	return nil
}

// batchStamp returns the current batch folder name, reusing the open batch
// while the rolling window has not elapsed.
func (p *Pipeline) batchStamp() string {
	now := p.now()
	if p.lastBatch.IsZero() || now.Sub(p.lastBatch) > p.window {
		p.lastBatch = now
	}
	return p.lastBatch.Format(batchStampLayout)
}

// moveToConsumed moves a file into the consumed area, suffixing _1, _2, ...
// when the name is already taken.
func (p *Pipeline) moveToConsumed(filePath string) error {
	dst, err := p.consumedTarget(filePath)
	if err != nil {
		return err
	}
	if err := p.fsys.Rename(filePath, dst); err != nil {
		return err
	}
	log.Printf("[intake] moved to consumed: %s", dst)
	return nil
}

func (p *Pipeline) copyToConsumed(filePath string) error {
	dst, err := p.consumedTarget(filePath)
	if err != nil {
		return err
	}
	return copyFile(p.fsys, filePath, dst)
}

func (p *Pipeline) consumedTarget(filePath string) (string, error) {
	if err := p.fsys.MkdirAll(p.paths.Consumed, 0o755); err != nil {
		return "", err
	}

	name := path.Base(filePath)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	target := path.Join(p.paths.Consumed, name)
	for counter := 1; ; counter++ {
		exists, err := afero.Exists(p.fsys, target)
		if err != nil {
			return "", err
		}
		if !exists {
			return target, nil
		}
		target = path.Join(p.paths.Consumed, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}
}

func copyFile(fsys afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fsys, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fsys, dst, data, 0o644)
}
