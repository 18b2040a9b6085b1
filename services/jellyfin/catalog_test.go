package jellyfin

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coversync/models"
)

type fakeInventory struct {
	batches [][]rawItem
	calls   int
}

func (f *fakeInventory) FetchItems(context.Context) ([]rawItem, error) {
	batch := f.batches[f.calls]
	if f.calls < len(f.batches)-1 {
		f.calls++
	}
	return batch, nil
}

func intp(n int) *int { return &n }

func newTestCatalog(t *testing.T, inv *fakeInventory) (*Catalog, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	bl := NewBlacklist(fs, "/state/blacklist.json")
	require.NoError(t, bl.Load())
	c := &Catalog{
		client:      inv,
		fsys:        fs,
		blacklist:   bl,
		rawPath:     "/state/raw_items.json",
		sortedPath:  "/state/sorted_items.json",
		idCachePath: "/state/id_cache.json",
		sleep:       func(time.Duration) {},
	}
	return c, fs
}

func fullInventory() []rawItem {
	return []rawItem{
		{ID: "s1", Name: "Dark (2017)", OriginalTitle: "Dark", Type: "Series", ProductionYear: intp(2017), ProviderIds: map[string]string{"Tmdb": "70523"}},
		{ID: "se1", Name: "Season 1", Type: "Season", ParentID: "s1"},
		{ID: "se0", Name: "Specials", Type: "Season", ParentID: "s1"},
		{ID: "ep1", Name: "Secrets", Type: "Episode", ParentID: "se1", IndexNumber: intp(1)},
		{ID: "ep2", Name: "Lies", Type: "Episode", ParentID: "se1", IndexNumber: intp(2)},
		{ID: "m1", Name: "Dune (2021)", Type: "Movie", ProductionYear: intp(2021), ProviderIds: map[string]string{"Tmdb": "438631"}},
		{ID: "b1", Name: "James Bond Collection", Type: "BoxSet"},
	}
}

func TestSnapshotSortsSeriesMoviesAndBoxsets(t *testing.T) {
	c, _ := newTestCatalog(t, &fakeInventory{batches: [][]rawItem{fullInventory()}})

	items, changed, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, items, 3)

	// Series and movies sorted by name, boxsets last with suffix stripped.
	assert.Equal(t, "Dark", items[0].Name)
	assert.Equal(t, models.KindSeries, items[0].Kind)
	assert.Equal(t, "70523", items[0].TMDBID)
	require.Contains(t, items[0].Seasons, "Season 1")
	require.Contains(t, items[0].Seasons, "Season 0")
	assert.Equal(t, map[string]string{"01": "ep1", "02": "ep2"}, items[0].Seasons["Season 1"].Episodes)

	assert.Equal(t, "Dune", items[1].Name)
	assert.Empty(t, items[1].Seasons)

	assert.Equal(t, "James Bond", items[2].Name)
	assert.Equal(t, models.KindBoxSet, items[2].Kind)
}

func TestSnapshotSeasonIndexFallback(t *testing.T) {
	inv := &fakeInventory{batches: [][]rawItem{{
		{ID: "s1", Name: "Dark (2017)", OriginalTitle: "Dark", Type: "Series", ProductionYear: intp(2017)},
		// No trailing number in the display name; the server index decides.
		{ID: "se2", Name: "Zweite Staffel", Type: "Season", ParentID: "s1", IndexNumber: intp(2)},
		{ID: "ep1", Name: "Secrets", Type: "Episode", ParentID: "se2", IndexNumber: intp(1)},
	}}}
	c, _ := newTestCatalog(t, inv)

	items, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Contains(t, items[0].Seasons, "Season 2")
	assert.Equal(t, map[string]string{"01": "ep1"}, items[0].Seasons["Season 2"].Episodes)
}

func TestSnapshotChangeDetection(t *testing.T) {
	inv := &fakeInventory{batches: [][]rawItem{fullInventory()}}
	c, _ := newTestCatalog(t, inv)

	_, changed, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	// Same inventory again: the ID set is identical.
	_, changed, err = c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSnapshotBlacklistsPersistentProcessingTags(t *testing.T) {
	tagged := rawItem{ID: "x1", Name: "New Movie [imdbid-tt1234567]", Type: "Movie", ProductionYear: intp(2024)}
	inv := &fakeInventory{batches: [][]rawItem{
		{tagged, fullInventory()[5]},
		{tagged, fullInventory()[5]},
	}}
	c, _ := newTestCatalog(t, inv)

	items, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.True(t, c.blacklist.Contains("x1"))
	for _, item := range items {
		assert.NotEqual(t, "x1", item.ID)
	}
}

func TestSnapshotRecheckClearsTransientTag(t *testing.T) {
	tagged := rawItem{ID: "x1", Name: "New Movie [tvdbid-998877]", Type: "Movie", ProductionYear: intp(2024)}
	settled := rawItem{ID: "x1", Name: "New Movie (2024)", Type: "Movie", ProductionYear: intp(2024)}
	inv := &fakeInventory{batches: [][]rawItem{{tagged}, {settled}}}
	c, _ := newTestCatalog(t, inv)

	items, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.False(t, c.blacklist.Contains("x1"))
	require.Len(t, items, 1)
	assert.Equal(t, "New Movie", items[0].Name)
}

func TestSnapshotUnknownYearBlacklisted(t *testing.T) {
	noYear := rawItem{ID: "y1", Name: "Mystery Film", Type: "Movie"}
	inv := &fakeInventory{batches: [][]rawItem{{noYear, fullInventory()[5]}, {noYear, fullInventory()[5]}}}
	c, _ := newTestCatalog(t, inv)

	_, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, c.blacklist.Contains("y1"))
}

func TestBlacklistPruneOnDeparture(t *testing.T) {
	tagged := rawItem{ID: "x1", Name: "Stuck [imdbid-tt1]", Type: "Movie", ProductionYear: intp(2020)}
	movie := fullInventory()[5]
	inv := &fakeInventory{batches: [][]rawItem{
		{tagged, movie},
		{tagged, movie},
		{movie},
	}}
	c, _ := newTestCatalog(t, inv)

	_, _, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.True(t, c.blacklist.Contains("x1"))

	inv.calls = 2
	_, _, err = c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, c.blacklist.Contains("x1"))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Dune", cleanName("Dune (2021)"))
	assert.Equal(t, "Movie", cleanName("Movie (Director's Cut) [imdbid-tt1]"))
	assert.Equal(t, "Plain", cleanName("Plain"))
}

func TestSeasonLabel(t *testing.T) {
	label, ok := seasonLabel("Season 3")
	require.True(t, ok)
	assert.Equal(t, "Season 3", label)

	label, ok = seasonLabel("Staffel 12")
	require.True(t, ok)
	assert.Equal(t, "Season 12", label)

	label, ok = seasonLabel("Specials")
	require.True(t, ok)
	assert.Equal(t, "Season 0", label)

	_, ok = seasonLabel("Extras")
	assert.False(t, ok)
}
