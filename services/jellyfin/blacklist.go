package jellyfin

import (
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// Blacklist is the set of item IDs excluded from every cycle, persisted as a
// flat JSON array. Items land here when they never settle after import.
type Blacklist struct {
	fsys afero.Fs
	path string

	mu  sync.Mutex
	ids map[string]bool
}

func NewBlacklist(fsys afero.Fs, path string) *Blacklist {
	return &Blacklist{fsys: fsys, path: path, ids: make(map[string]bool)}
}

// Load reads the persisted set. Missing or corrupt files start empty.
func (b *Blacklist) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := afero.ReadFile(b.fsys, b.path)
	if os.IsNotExist(err) {
		b.ids = make(map[string]bool)
		return nil
	}
	if err != nil {
		return err
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		log.Printf("[jellyfin] discarding corrupt blacklist %s: %v", b.path, err)
		b.ids = make(map[string]bool)
		return nil
	}
	b.ids = make(map[string]bool, len(list))
	for _, id := range list {
		b.ids[id] = true
	}
	return nil
}

func (b *Blacklist) Save() error {
	b.mu.Lock()
	list := make([]string, 0, len(b.ids))
	for id := range b.ids {
		list = append(list, id)
	}
	b.mu.Unlock()
	sort.Strings(list)

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return afero.WriteFile(b.fsys, b.path, data, 0o644)
}

func (b *Blacklist) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids[id] = true
}

func (b *Blacklist) Contains(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ids[id]
}

func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// Prune drops IDs that no longer exist in the library, so one-off import
// hiccups do not pollute the set forever.
func (b *Blacklist) Prune(existing map[string]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.ids {
		if !existing[id] {
			delete(b.ids, id)
			log.Printf("[jellyfin] removed %s from blacklist, item left the library", id)
		}
	}
}
