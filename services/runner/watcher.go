package runner

import (
	"log"
	"strings"

	"github.com/spf13/afero"
)

var watchedExtensions = []string{".zip", ".png", ".jpg", ".jpeg", ".webp"}

// Watcher polls the intake directory for dropped files. A file only counts
// once its size is stable across two polls, so half-transferred uploads are
// never ingested.
type Watcher struct {
	fsys afero.Fs
	dir  string

	sizes map[string]int64
}

func NewWatcher(fsys afero.Fs, dir string) *Watcher {
	return &Watcher{fsys: fsys, dir: dir, sizes: make(map[string]int64)}
}

// Ready reports whether at least one relevant file is present and stable.
// Partial transfer markers (.filepart) suppress readiness entirely.
func (w *Watcher) Ready() bool {
	infos, err := afero.ReadDir(w.fsys, w.dir)
	if err != nil {
		log.Printf("[runner] watch intake dir: %v", err)
		return false
	}

	next := make(map[string]int64, len(infos))
	ready := false
	blocked := false
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		lower := strings.ToLower(name)

		if strings.HasSuffix(lower, ".filepart") {
			log.Printf("[runner] waiting for %s to finish transferring", name)
			blocked = true
			continue
		}
		if !hasWatchedExtension(lower) {
			continue
		}

		next[name] = info.Size()
		if prev, seen := w.sizes[name]; seen && prev == info.Size() {
			ready = true
		}
	}
	w.sizes = next

	return ready && !blocked
}

func hasWatchedExtension(lower string) bool {
	for _, ext := range watchedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
