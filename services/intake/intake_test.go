package intake

import (
	"path"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coversync/internal/ziputil"
	"coversync/models"
	"coversync/services/matcher"
)

// jpegBytes is a minimal valid-looking JPEG payload for sniffing.
var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0xff, 0xd9}

func testPaths() Paths {
	return Paths{
		Intake:      "/lib/RawCover",
		Poster:      "/lib/Cover/Poster",
		Collections: "/lib/Cover/Collections",
		Consumed:    "/lib/Consumed",
		Replaced:    "/lib/Replaced",
		NoMatch:     "/lib/NoMatch",
	}
}

func testCache() *matcher.Cache {
	return matcher.Build(matcher.Snapshot{
		models.CategoryMovies: {
			"101": {ExtractedTitle: "Dune", OriginalTitle: "Dune", Year: 2021},
		},
		models.CategoryTV: {
			"201": {ExtractedTitle: "Dark", OriginalTitle: "Dark", Year: 2017},
		},
		models.CategoryCollections: {
			"301": {ExtractedTitle: "James Bond"},
		},
	}, 90)
}

func newTestPipeline(t *testing.T) (*Pipeline, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, dir := range []string{testPaths().Intake, testPaths().Poster, testPaths().Collections} {
		require.NoError(t, fs.MkdirAll(dir, 0o755))
	}
	return New(fs, testPaths(), 60), fs
}

func dropImage(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	p := path.Join(testPaths().Intake, name)
	require.NoError(t, afero.WriteFile(fs, p, jpegBytes, 0o644))
	return p
}

func TestIngestMatchedPosterPlacedAndConsumed(t *testing.T) {
	p, fs := newTestPipeline(t)
	src := dropImage(t, fs, "Dune (2021).jpg")

	require.NoError(t, p.Ingest(src, testCache()))

	placed, err := afero.Exists(fs, "/lib/Cover/Poster/Dune (2021)/poster.jpg")
	require.NoError(t, err)
	assert.True(t, placed)

	consumed, err := afero.Exists(fs, "/lib/Consumed/Dune (2021).jpg")
	require.NoError(t, err)
	assert.True(t, consumed)

	gone, err := afero.Exists(fs, src)
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestIngestSecondPosterArchivesFirst(t *testing.T) {
	p, fs := newTestPipeline(t)
	p.now = func() time.Time { return time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC) }

	require.NoError(t, p.Ingest(dropImage(t, fs, "Dune (2021).jpg"), testCache()))
	require.NoError(t, p.Ingest(dropImage(t, fs, "Dune (2021).jpg"), testCache()))

	archived, err := afero.Exists(fs, "/lib/Replaced/Poster/Dune (2021)/2026-08-29_12-30/Dune (2021).jpg")
	require.NoError(t, err)
	assert.True(t, archived)

	// The slot holds the new file, not a duplicate.
	infos, err := afero.ReadDir(fs, "/lib/Cover/Poster/Dune (2021)")
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	// Second consumed copy got a numbered suffix.
	dedup, err := afero.Exists(fs, "/lib/Consumed/Dune (2021)_1.jpg")
	require.NoError(t, err)
	assert.True(t, dedup)
}

func TestIngestSeasonSlotForSeries(t *testing.T) {
	p, fs := newTestPipeline(t)

	require.NoError(t, p.Ingest(dropImage(t, fs, "Dark (2017) - Season 2.jpg"), testCache()))

	placed, err := afero.Exists(fs, "/lib/Cover/Poster/Dark (2017)/Season02.jpg")
	require.NoError(t, err)
	assert.True(t, placed)
}

func TestIngestCollectionPlacedUnderCollectionsRoot(t *testing.T) {
	p, fs := newTestPipeline(t)

	require.NoError(t, p.Ingest(dropImage(t, fs, "James Bond Collection.jpg"), testCache()))

	placed, err := afero.Exists(fs, "/lib/Cover/Collections/James Bond/poster.jpg")
	require.NoError(t, err)
	assert.True(t, placed)
}

func TestIngestUnmatchedQuarantinedInSharedBatch(t *testing.T) {
	p, fs := newTestPipeline(t)
	base := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	current := base
	p.now = func() time.Time { return current }

	require.NoError(t, p.Ingest(dropImage(t, fs, "Nobody Knows This (2020).jpg"), testCache()))
	current = base.Add(30 * time.Second)
	require.NoError(t, p.Ingest(dropImage(t, fs, "Nobody Knows This (2020) - Backdrop.jpg"), testCache()))

	batch := "/lib/NoMatch/Poster/Nobody Knows This (2020)/2026-08-29_09-00-00"
	infos, err := afero.ReadDir(fs, batch)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	// Past the window a fresh batch folder opens.
	current = base.Add(5 * time.Minute)
	require.NoError(t, p.Ingest(dropImage(t, fs, "Nobody Knows This (2020).jpg"), testCache()))
	later, err := afero.Exists(fs, "/lib/NoMatch/Poster/Nobody Knows This (2020)/2026-08-29_09-05-00")
	require.NoError(t, err)
	assert.True(t, later)
}

func TestIngestArchiveMixedEntries(t *testing.T) {
	p, fs := newTestPipeline(t)

	require.NoError(t, afero.WriteFile(fs, "/tmp/Dune (2021).jpg", jpegBytes, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/tmp/Mystery (1990).jpg", jpegBytes, 0o644))
	zipPath := path.Join(testPaths().Intake, "batch.zip")
	require.NoError(t, ziputil.Create(fs, zipPath, []string{"/tmp/Dune (2021).jpg", "/tmp/Mystery (1990).jpg"}))

	require.NoError(t, p.Ingest(zipPath, testCache()))

	placed, err := afero.Exists(fs, "/lib/Cover/Poster/Dune (2021)/poster.jpg")
	require.NoError(t, err)
	assert.True(t, placed)

	quarantined, err := afero.DirExists(fs, "/lib/NoMatch/Poster/Mystery (1990)")
	require.NoError(t, err)
	assert.True(t, quarantined)

	consumed, err := afero.Exists(fs, "/lib/Consumed/batch.zip")
	require.NoError(t, err)
	assert.True(t, consumed)

	gone, err := afero.Exists(fs, zipPath)
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestIngestCorruptArchiveDeleted(t *testing.T) {
	p, fs := newTestPipeline(t)
	zipPath := path.Join(testPaths().Intake, "broken.zip")
	require.NoError(t, afero.WriteFile(fs, zipPath, []byte("this is not a zip"), 0o644))

	require.NoError(t, p.Ingest(zipPath, testCache()))

	gone, err := afero.Exists(fs, zipPath)
	require.NoError(t, err)
	assert.False(t, gone)

	consumed, err := afero.Exists(fs, "/lib/Consumed/broken.zip")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestIngestRematchArtifactDeletedNotConsumed(t *testing.T) {
	p, fs := newTestPipeline(t)

	require.NoError(t, afero.WriteFile(fs, "/tmp/Dune (2021).jpg", jpegBytes, 0o644))
	name := RematchArchiveName("Dune (2021)")
	require.True(t, IsRematchArtifact(name))
	zipPath := path.Join(testPaths().Intake, name)
	require.NoError(t, ziputil.Create(fs, zipPath, []string{"/tmp/Dune (2021).jpg"}))

	require.NoError(t, p.Ingest(zipPath, testCache()))

	placed, err := afero.Exists(fs, "/lib/Cover/Poster/Dune (2021)/poster.jpg")
	require.NoError(t, err)
	assert.True(t, placed)

	gone, err := afero.Exists(fs, zipPath)
	require.NoError(t, err)
	assert.False(t, gone)

	infos, err := afero.ReadDir(fs, "/lib/Consumed")
	if err == nil {
		for _, info := range infos {
			assert.NotContains(t, info.Name(), "rematch")
		}
	}
}

func TestIngestMissingFileIsNoOp(t *testing.T) {
	p, _ := newTestPipeline(t)
	assert.NoError(t, p.Ingest("/lib/RawCover/already-gone.jpg", testCache()))
}

func TestRenameForArchive(t *testing.T) {
	assert.Equal(t, "Dune (2021).jpg", renameForArchive("poster.jpg", "Dune (2021)"))
	assert.Equal(t, "James Bond Collection.jpg", renameForArchive("poster.jpg", "James Bond"))
	assert.Equal(t, "Dark (2017) - Backdrop.jpg", renameForArchive("backdrop.jpg", "Dark (2017)"))
	assert.Equal(t, "Dark (2017) - Season 02.jpg", renameForArchive("Season02.jpg", "Dark (2017)"))
	assert.Equal(t, "Dark (2017) - Specials.jpg", renameForArchive("Season00.jpg", "Dark (2017)"))
	assert.Equal(t, "Dark (2017) - S01E05.jpg", renameForArchive("S01E05.jpg", "Dark (2017)"))
	assert.Equal(t, "readme.txt", renameForArchive("readme.txt", "Dark (2017)"))
}
