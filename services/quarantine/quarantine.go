// Package quarantine re-examines the no-match tree after every metadata
// refresh. Groups that now resolve are repackaged into synthetic rematch
// archives and fed back through the intake pipeline, so quarantined content
// takes the exact same placement path as fresh drops.
package quarantine

import (
	"log"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"coversync/internal/ziputil"
	"coversync/models"
	"coversync/services/intake"
	"coversync/services/matcher"
)

var groupYearRe = regexp.MustCompile(`\((\d{4})\)`)

// Reprocessor walks the quarantine tree and rematches group folders.
type Reprocessor struct {
	fsys       afero.Fs
	noMatchDir string
	intakeDir  string
	pipeline   *intake.Pipeline
}

func New(fsys afero.Fs, noMatchDir, intakeDir string, pipeline *intake.Pipeline) *Reprocessor {
	return &Reprocessor{fsys: fsys, noMatchDir: noMatchDir, intakeDir: intakeDir, pipeline: pipeline}
}

// Reprocess re-runs the matcher over every quarantined group. On a hit the
// newest batch subfolder is zipped into the intake directory and ingested
// immediately; older batches stay quarantined until a later cycle. Emptied
// folders are pruned bottom-up.
func (r *Reprocessor) Reprocess(cache *matcher.Cache) {
	log.Printf("[quarantine] reprocessing unmatched files")

	for _, subdir := range []string{"Collections", "Poster"} {
		root := path.Join(r.noMatchDir, subdir)
		groups, err := afero.ReadDir(r.fsys, root)
		if err != nil {
			continue
		}

		for _, group := range groups {
			if !group.IsDir() {
				continue
			}
			if !r.groupMatches(group.Name(), subdir == "Collections", cache) {
				continue
			}
			log.Printf("[quarantine] match found for %s, repackaging", group.Name())
			r.repackageNewestBatch(path.Join(root, group.Name()), group.Name(), cache)
		}
	}
}

// groupMatches resolves a group folder name against the refreshed cache,
// honoring the year embedded in the folder name when present.
func (r *Reprocessor) groupMatches(name string, isCollection bool, cache *matcher.Cache) bool {
	year := 0
	if m := groupYearRe.FindStringSubmatch(name); m != nil {
		year, _ = strconv.Atoi(m[1])
	}
	title := strings.TrimSpace(groupYearRe.ReplaceAllString(name, ""))

	var ok bool
	if isCollection {
		_, ok = cache.MatchIn(title, year, models.CategoryCollections)
	} else {
		_, ok = cache.MatchIn(title, year, models.CategoryMovies, models.CategoryTV)
	}
	return ok
}

func (r *Reprocessor) repackageNewestBatch(groupDir, groupName string, cache *matcher.Cache) {
	batches, err := afero.ReadDir(r.fsys, groupDir)
	if err != nil {
		log.Printf("[quarantine] read group %s: %v", groupDir, err)
		return
	}

	newest := ""
	newestIdx := -1
	for i, batch := range batches {
		if !batch.IsDir() {
			continue
		}
		if newestIdx < 0 || batch.ModTime().After(batches[newestIdx].ModTime()) {
			newest = batch.Name()
			newestIdx = i
		}
	}
	if newest == "" {
		r.pruneIfEmpty(groupDir)
		return
	}

	batchDir := path.Join(groupDir, newest)
	infos, err := afero.ReadDir(r.fsys, batchDir)
	if err != nil {
		log.Printf("[quarantine] read batch %s: %v", batchDir, err)
		return
	}
	var files []string
	for _, info := range infos {
		if !info.IsDir() {
			files = append(files, path.Join(batchDir, info.Name()))
		}
	}
	if len(files) == 0 {
		r.pruneIfEmpty(batchDir)
		r.pruneIfEmpty(groupDir)
		return
	}

	zipPath := path.Join(r.intakeDir, intake.RematchArchiveName(groupName))
	if err := ziputil.Create(r.fsys, zipPath, files); err != nil {
		log.Printf("[quarantine] build rematch archive for %s: %v", groupName, err)
		return
	}
	log.Printf("[quarantine] created rematch archive: %s", path.Base(zipPath))

	if err := r.pipeline.Ingest(zipPath, cache); err != nil {
		log.Printf("[quarantine] ingest rematch archive %s: %v", path.Base(zipPath), err)
		return
	}

	for _, file := range files {
		if err := r.fsys.Remove(file); err != nil {
			log.Printf("[quarantine] remove %s: %v", file, err)
		}
	}
	r.pruneIfEmpty(batchDir)
	r.pruneIfEmpty(groupDir)
}

func (r *Reprocessor) pruneIfEmpty(dir string) {
	infos, err := afero.ReadDir(r.fsys, dir)
	if err != nil || len(infos) > 0 {
		return
	}
	if err := r.fsys.Remove(dir); err != nil {
		log.Printf("[quarantine] prune %s: %v", dir, err)
	} else {
		log.Printf("[quarantine] removed empty folder: %s", dir)
	}
}
