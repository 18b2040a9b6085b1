package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Metadata MetadataSettings `json:"metadata"`
	Library  LibrarySettings  `json:"library"`
	Matching MatchingSettings `json:"matching"`
	Intake   IntakeSettings   `json:"intake"`
	Sync     SyncSettings     `json:"sync"`
	Runner   RunnerSettings   `json:"runner"`
	Webhook  WebhookSettings  `json:"webhook"`
	Log      LogConfig        `json:"log"`
}

// ServerSettings points at the media server whose library receives the images.
type ServerSettings struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

// MetadataSettings configures the external title-lookup service.
type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	// SecondLanguage is fetched alongside the en-US title so localized
	// filenames still match (TMDB language code, e.g. "de-DE").
	SecondLanguage string `json:"secondLanguage"`
}

// LibrarySettings roots the on-disk artwork tree. Everything lives under
// BaseDirectory; the individual paths are derived, not configured.
type LibrarySettings struct {
	BaseDirectory string `json:"baseDirectory"`
}

// MatchingSettings holds the empirically chosen matcher constants. Both values
// came from observed behavior, not derivation, so they stay configurable.
type MatchingSettings struct {
	// FuzzyThreshold is the minimum 0-100 similarity ratio accepted by the
	// fuzzy stage.
	FuzzyThreshold int `json:"fuzzyThreshold"`
	// FreshnessDays is how long a title-store entry is trusted before it is
	// refreshed from the lookup service.
	FreshnessDays int `json:"freshnessDays"`
}

type IntakeSettings struct {
	// BatchWindowSeconds groups quarantined files dropped within this window
	// into the same timestamp batch folder.
	BatchWindowSeconds int `json:"batchWindowSeconds"`
}

type SyncSettings struct {
	// UploadWorkers bounds simultaneous in-flight image uploads.
	UploadWorkers int `json:"uploadWorkers"`
	// LookupWorkers bounds concurrent title-lookup requests.
	LookupWorkers int `json:"lookupWorkers"`
}

type RunnerSettings struct {
	IntervalSeconds int `json:"intervalSeconds"`
	// WatchIntervalSeconds is how often the intake root is polled for new
	// files between full cycles.
	WatchIntervalSeconds int `json:"watchIntervalSeconds"`
	// ScheduledTimes lists additional daily run times in HH:MM (24h) form.
	ScheduledTimes []string `json:"scheduledTimes,omitempty"`
	// ErrorBackoffSeconds is the extended sleep after a failed cycle.
	ErrorBackoffSeconds int `json:"errorBackoffSeconds"`
}

type WebhookSettings struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// Derived filesystem layout. All paths hang off Library.BaseDirectory.

func (s Settings) IntakeDir() string { return filepath.Join(s.Library.BaseDirectory, "RawCover") }
func (s Settings) PosterDir() string {
	return filepath.Join(s.Library.BaseDirectory, "Cover", "Poster")
}
func (s Settings) CollectionsDir() string {
	return filepath.Join(s.Library.BaseDirectory, "Cover", "Collections")
}
func (s Settings) ConsumedDir() string { return filepath.Join(s.Library.BaseDirectory, "Consumed") }
func (s Settings) ReplacedDir() string { return filepath.Join(s.Library.BaseDirectory, "Replaced") }
func (s Settings) NoMatchDir() string  { return filepath.Join(s.Library.BaseDirectory, "NoMatch") }
func (s Settings) StateDir() string    { return filepath.Join(s.Library.BaseDirectory, "state") }

func (s Settings) SortedItemsFile() string { return filepath.Join(s.StateDir(), "sorted_items.json") }
func (s Settings) RawItemsFile() string    { return filepath.Join(s.StateDir(), "raw_items.json") }
func (s Settings) IDCacheFile() string     { return filepath.Join(s.StateDir(), "id_cache.json") }
func (s Settings) TitleStoreFile() string  { return filepath.Join(s.StateDir(), "title_store.json") }
func (s Settings) BlacklistFile() string   { return filepath.Join(s.StateDir(), "blacklist.json") }

func (s Settings) MissingFoldersFile() string {
	return filepath.Join(s.Library.BaseDirectory, "missing_folders.txt")
}

func (s Settings) ExtraFoldersFile() string {
	return filepath.Join(s.Library.BaseDirectory, "extra_folders.txt")
}

// DefaultSettings returns the configuration written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			URL: "http://localhost:8096",
		},
		Metadata: MetadataSettings{
			SecondLanguage: "de-DE",
		},
		Library: LibrarySettings{
			BaseDirectory: "data",
		},
		Matching: MatchingSettings{
			FuzzyThreshold: 90,
			FreshnessDays:  7,
		},
		Intake: IntakeSettings{
			BatchWindowSeconds: 60,
		},
		Sync: SyncSettings{
			UploadWorkers: 20,
			LookupWorkers: 5,
		},
		Runner: RunnerSettings{
			IntervalSeconds:      30,
			WatchIntervalSeconds: 5,
			ErrorBackoffSeconds:  300,
		},
		Webhook: WebhookSettings{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
		},
		Log: LogConfig{
			File:       "logs/coversync.log",
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
// Fields absent from an older config file are backfilled with defaults.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	backfillDefaults(&s)
	return s, nil
}

// Save writes settings atomically (temp file + rename).
func (m *Manager) Save(s Settings) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

func backfillDefaults(s *Settings) {
	d := DefaultSettings()

	if strings.TrimSpace(s.Server.URL) == "" {
		s.Server.URL = d.Server.URL
	}
	s.Server.URL = strings.TrimRight(strings.TrimSpace(s.Server.URL), "/")
	if strings.TrimSpace(s.Metadata.SecondLanguage) == "" {
		s.Metadata.SecondLanguage = d.Metadata.SecondLanguage
	}
	if strings.TrimSpace(s.Library.BaseDirectory) == "" {
		s.Library.BaseDirectory = d.Library.BaseDirectory
	}
	if s.Matching.FuzzyThreshold <= 0 || s.Matching.FuzzyThreshold > 100 {
		s.Matching.FuzzyThreshold = d.Matching.FuzzyThreshold
	}
	if s.Matching.FreshnessDays <= 0 {
		s.Matching.FreshnessDays = d.Matching.FreshnessDays
	}
	if s.Intake.BatchWindowSeconds <= 0 {
		s.Intake.BatchWindowSeconds = d.Intake.BatchWindowSeconds
	}
	if s.Sync.UploadWorkers <= 0 {
		s.Sync.UploadWorkers = d.Sync.UploadWorkers
	}
	if s.Sync.LookupWorkers <= 0 {
		s.Sync.LookupWorkers = d.Sync.LookupWorkers
	}
	if s.Runner.IntervalSeconds <= 0 {
		s.Runner.IntervalSeconds = d.Runner.IntervalSeconds
	}
	if s.Runner.WatchIntervalSeconds <= 0 {
		s.Runner.WatchIntervalSeconds = d.Runner.WatchIntervalSeconds
	}
	if s.Runner.ErrorBackoffSeconds <= 0 {
		s.Runner.ErrorBackoffSeconds = d.Runner.ErrorBackoffSeconds
	}
	if strings.TrimSpace(s.Webhook.Host) == "" {
		s.Webhook.Host = d.Webhook.Host
	}
	if s.Webhook.Port <= 0 {
		s.Webhook.Port = d.Webhook.Port
	}
	if s.Log.MaxSize <= 0 {
		s.Log.MaxSize = d.Log.MaxSize
	}
	if s.Log.MaxAge <= 0 {
		s.Log.MaxAge = d.Log.MaxAge
	}
	if s.Log.MaxBackups <= 0 {
		s.Log.MaxBackups = d.Log.MaxBackups
	}
}
