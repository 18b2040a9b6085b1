// Package syncer pushes placed cover art to the media server. It indexes the
// two canonical roots, resolves each library item to its folder, uploads
// whatever canonical images the folder holds, and reports folders that are
// missing or unused.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"coversync/models"
	"coversync/services/classify"
)

// imageExtensions in lookup order; placement normalizes to jpg but manually
// dropped files in other formats are honored too.
var imageExtensions = []string{"png", "jpg", "jpeg", "webp"}

// ImageAPI is the slice of the media server client the engine needs.
type ImageAPI interface {
	UploadImage(ctx context.Context, itemID, imageType string, data []byte, contentType string) error
	DeleteBackdrops(ctx context.Context, itemID string) (int, error)
}

// Index maps lowercased folder names to their absolute paths across both
// canonical roots.
type Index map[string]string

// Engine runs one sync pass at a time; cycles are serialized by the runner.
type Engine struct {
	fsys afero.Fs
	api  ImageAPI

	posterDir      string
	collectionsDir string
	missingPath    string
	extraPath      string
	workers        int
}

// New builds an engine. workers bounds concurrent in-flight uploads.
func New(fsys afero.Fs, api ImageAPI, posterDir, collectionsDir, missingPath, extraPath string, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		fsys:           fsys,
		api:            api,
		posterDir:      posterDir,
		collectionsDir: collectionsDir,
		missingPath:    missingPath,
		extraPath:      extraPath,
		workers:        workers,
	}
}

// Scan walks both canonical roots one level deep. The roots are disjoint, so
// the walks run concurrently.
func (e *Engine) Scan() Index {
	index := make(Index)
	var mu sync.Mutex

	var wg conc.WaitGroup
	for _, root := range []string{e.posterDir, e.collectionsDir} {
		root := root
		wg.Go(func() {
			infos, err := afero.ReadDir(e.fsys, root)
			if err != nil {
				return
			}
			for _, info := range infos {
				if !info.IsDir() {
					continue
				}
				mu.Lock()
				index[strings.ToLower(info.Name())] = path.Join(root, info.Name())
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	log.Printf("[syncer] directory scan complete, found %d folders", len(index))
	return index
}

// Run resolves every library item against the index and uploads its images.
// Metadata titles refine folder resolution when available; failures are
// collected per upload, never fatal for the batch.
func (e *Engine) Run(ctx context.Context, items []models.LibraryItem, index Index, titles map[models.Category]map[string]models.MetadataEntry) *models.SyncReport {
	report := &models.SyncReport{}
	var mu sync.Mutex

	used := make(map[string]bool)

	p := pool.New().WithMaxGoroutines(e.workers)
	for _, item := range items {
		folder, ok := e.resolveFolder(item, index, titles)
		if !ok {
			report.MissingFolders = append(report.MissingFolders, e.missingLine(item, titles))
			continue
		}
		used[strings.ToLower(path.Base(folder))] = true
		report.UsedFolders = append(report.UsedFolders, folder)

		for _, job := range e.jobsFor(item, folder) {
			job := job
			p.Go(func() {
				err := e.upload(ctx, job)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Printf("[syncer] error updating %s image for %s%s: %v", job.imageType, job.itemName, extraSuffix(job.extraInfo), err)
					report.Failures = append(report.Failures, models.UploadFailure{
						ItemName:  job.itemName,
						ImageType: job.imageType,
						ExtraInfo: job.extraInfo,
						Err:       err.Error(),
					})
					return
				}
				report.Uploaded++
				log.Printf("[syncer] updated %s image for %s%s", job.imageType, job.itemName, extraSuffix(job.extraInfo))
			})
		}
	}
	p.Wait()

	for key, folder := range index {
		if !used[key] {
			report.ExtraFolders = append(report.ExtraFolders, folder)
		}
	}
	sort.Strings(report.ExtraFolders)
	sort.Strings(report.MissingFolders)

	e.writeReports(report)
	return report
}

type uploadJob struct {
	targetID  string
	itemName  string
	imageType string
	extraInfo string
	imagePath string
	// deleteBackdrops clears existing server backdrops before the push.
	deleteBackdrops bool
}

// jobsFor collects every canonical image present in the folder.
func (e *Engine) jobsFor(item models.LibraryItem, folder string) []uploadJob {
	var jobs []uploadJob

	if img, ok := e.findImage(folder, "poster"); ok {
		jobs = append(jobs, uploadJob{targetID: item.ID, itemName: item.Name, imageType: "Primary", imagePath: img})
	}
	for _, name := range []string{"backdrop", "background"} {
		if img, ok := e.findImage(folder, name); ok {
			jobs = append(jobs, uploadJob{targetID: item.ID, itemName: item.Name, imageType: "Backdrop", imagePath: img, deleteBackdrops: true})
			break
		}
	}

	for label, season := range item.Seasons {
		num, err := strconv.Atoi(strings.TrimPrefix(label, "Season "))
		if err != nil {
			continue
		}
		if img, ok := e.findImage(folder, fmt.Sprintf("Season%02d", num)); ok {
			jobs = append(jobs, uploadJob{
				targetID:  season.ID,
				itemName:  item.Name,
				imageType: "Primary",
				extraInfo: fmt.Sprintf("Season %d", num),
				imagePath: img,
			})
		}
		for epKey, epID := range season.Episodes {
			epNum, err := strconv.Atoi(epKey)
			if err != nil {
				continue
			}
			if img, ok := e.findImage(folder, fmt.Sprintf("S%02dE%02d", num, epNum)); ok {
				jobs = append(jobs, uploadJob{
					targetID:  epID,
					itemName:  item.Name,
					imageType: "Primary",
					extraInfo: fmt.Sprintf("S%dE%d", num, epNum),
					imagePath: img,
				})
			}
		}
	}

	return jobs
}

func (e *Engine) upload(ctx context.Context, job uploadJob) error {
	if job.deleteBackdrops {
		if deleted, err := e.api.DeleteBackdrops(ctx, job.targetID); err != nil {
			log.Printf("[syncer] delete backdrops for %s: %v", job.itemName, err)
		} else if deleted > 0 {
			log.Printf("[syncer] deleted %d existing backdrops for %s", deleted, job.itemName)
		}
	}

	data, err := afero.ReadFile(e.fsys, job.imagePath)
	if err != nil {
		return err
	}
	return e.api.UploadImage(ctx, job.targetID, job.imageType, data, contentTypeFor(job.imagePath))
}

// findImage locates a canonical image under any supported extension.
func (e *Engine) findImage(folder, stem string) (string, bool) {
	for _, ext := range imageExtensions {
		candidate := path.Join(folder, stem+"."+ext)
		if exists, _ := afero.Exists(e.fsys, candidate); exists {
			return candidate, true
		}
	}
	return "", false
}

// resolveFolder builds the candidate keys for an item and probes the index.
// The first hit wins.
func (e *Engine) resolveFolder(item models.LibraryItem, index Index, titles map[models.Category]map[string]models.MetadataEntry) (string, bool) {
	extracted, original := e.itemTitles(item, titles)

	var keys []string
	if item.IsCollection() {
		keys = []string{strings.ToLower(extracted)}
	} else {
		keys = []string{
			strings.ToLower(fmt.Sprintf("%s (%d)", original, item.Year)),
			strings.ToLower(fmt.Sprintf("%s (%d)", extracted, item.Year)),
		}
	}

	for _, key := range keys {
		if folder, ok := index[key]; ok {
			return folder, true
		}
	}
	return "", false
}

// itemTitles returns the sanitized extracted and original titles, preferring
// the title store's entry over the catalog's raw names.
func (e *Engine) itemTitles(item models.LibraryItem, titles map[models.Category]map[string]models.MetadataEntry) (extracted, original string) {
	extracted = item.Name
	original = item.OriginalTitle

	if category, ok := models.CategoryFor(item.Kind); ok && item.TMDBID != "" {
		if entry, ok := titles[category][item.TMDBID]; ok {
			extracted = entry.ExtractedTitle
			original = entry.OriginalTitle
		}
	}

	extracted = classify.SanitizeName(extracted)
	original = classify.SanitizeName(original)
	if original == "" {
		original = extracted
	}
	return extracted, original
}

// missingLine renders one missing-folder report line, preferring an
// ASCII-safe original title for the suggested folder name.
func (e *Engine) missingLine(item models.LibraryItem, titles map[models.Category]map[string]models.MetadataEntry) string {
	extracted, original := e.itemTitles(item, titles)

	name := extracted
	if original != "" && isASCII(original) {
		name = original
	}

	base := e.posterDir
	if item.IsCollection() {
		base = e.collectionsDir
	} else {
		name = fmt.Sprintf("%s (%d)", name, item.Year)
	}
	return fmt.Sprintf("Folder not found: %s", path.Join(base, name))
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// writeReports overwrites the missing and extra folder report files.
func (e *Engine) writeReports(report *models.SyncReport) {
	writeLines := func(target string, lines []string) {
		if len(lines) == 0 {
			if err := e.fsys.Remove(target); err != nil && !os.IsNotExist(err) {
				log.Printf("[syncer] clear report %s: %v", target, err)
			}
			return
		}
		content := strings.Join(lines, "\n") + "\n"
		if err := afero.WriteFile(e.fsys, target, []byte(content), 0o644); err != nil {
			log.Printf("[syncer] write report %s: %v", target, err)
		}
	}

	writeLines(e.missingPath, report.MissingFolders)
	writeLines(e.extraPath, report.ExtraFolders)
}

func contentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func extraSuffix(extra string) string {
	if extra == "" {
		return ""
	}
	return " - " + extra
}
