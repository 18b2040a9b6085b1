package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 90, s.Matching.FuzzyThreshold)
	assert.Equal(t, 7, s.Matching.FreshnessDays)
	assert.Equal(t, 60, s.Intake.BatchWindowSeconds)

	// The defaults must have been persisted.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s := DefaultSettings()
	s.Server.URL = "http://jellyfin:8096"
	s.Server.APIKey = "secret"
	s.Runner.ScheduledTimes = []string{"03:00", "15:30"}
	require.NoError(t, m.Save(s))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://jellyfin:8096", loaded.Server.URL)
	assert.Equal(t, "secret", loaded.Server.APIKey)
	assert.Equal(t, []string{"03:00", "15:30"}, loaded.Runner.ScheduledTimes)
}

func TestLoadBackfillsOldConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"url":"http://host:8096/"}}`), 0o644))

	s, err := NewManager(path).Load()
	require.NoError(t, err)
	// Trailing slash stripped, missing sections backfilled.
	assert.Equal(t, "http://host:8096", s.Server.URL)
	assert.Equal(t, 90, s.Matching.FuzzyThreshold)
	assert.Equal(t, 20, s.Sync.UploadWorkers)
	assert.Equal(t, 8000, s.Webhook.Port)
}

func TestDerivedPaths(t *testing.T) {
	s := DefaultSettings()
	s.Library.BaseDirectory = "/srv/covers"

	assert.Equal(t, "/srv/covers/RawCover", s.IntakeDir())
	assert.Equal(t, "/srv/covers/Cover/Poster", s.PosterDir())
	assert.Equal(t, "/srv/covers/Cover/Collections", s.CollectionsDir())
	assert.Equal(t, "/srv/covers/NoMatch", s.NoMatchDir())
	assert.Equal(t, "/srv/covers/state/title_store.json", s.TitleStoreFile())
}
