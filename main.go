package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"coversync/api"
	"coversync/config"
	"coversync/handlers"
	"coversync/services/intake"
	"coversync/services/jellyfin"
	"coversync/services/matcher"
	"coversync/services/quarantine"
	"coversync/services/runner"
	"coversync/services/syncer"
	"coversync/services/titlestore"
	"coversync/services/tmdb"
)

func main() {
	forceRun := flag.Bool("force", false, "run a full sync cycle on startup, even if the catalog is unchanged")
	flag.Parse()

	fmt.Println("🚀 coversync starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("COVERSYNC_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("config", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if settings.Server.APIKey == "" {
		log.Fatalf("media server API key is not configured; set server.apiKey in %s", configPath)
	}

	// Bootstrap the artwork tree so drops work from the first run
	for _, dir := range []string{
		settings.IntakeDir(),
		settings.PosterDir(),
		settings.CollectionsDir(),
		settings.ConsumedDir(),
		settings.ReplacedDir(),
		settings.NoMatchDir(),
		settings.StateDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	fsys := afero.NewOsFs()

	// Media server catalog
	jfClient := jellyfin.NewClient(settings.Server.URL, settings.Server.APIKey, nil)
	blacklist := jellyfin.NewBlacklist(fsys, settings.BlacklistFile())
	if err := blacklist.Load(); err != nil {
		log.Printf("[main] blacklist load: %v", err)
	}
	catalog := jellyfin.NewCatalog(jfClient, fsys, blacklist, settings.RawItemsFile(), settings.SortedItemsFile(), settings.IDCacheFile())

	// Title lookups
	tmdbClient := tmdb.New(settings.Metadata.TMDBAPIKey, settings.Metadata.SecondLanguage, nil)
	if !tmdbClient.IsConfigured() {
		log.Printf("[main] no TMDB API key configured; matching uses library titles only")
	}
	store := titlestore.New(fsys, settings.TitleStoreFile(), tmdbClient, settings.Sync.LookupWorkers, settings.Matching.FreshnessDays)
	if err := store.Load(); err != nil {
		log.Printf("[main] title store load: %v", err)
	}

	// Intake, quarantine reprocessing and the sync engine
	pipeline := intake.New(fsys, intake.Paths{
		Intake:      settings.IntakeDir(),
		Poster:      settings.PosterDir(),
		Collections: settings.CollectionsDir(),
		Consumed:    settings.ConsumedDir(),
		Replaced:    settings.ReplacedDir(),
		NoMatch:     settings.NoMatchDir(),
	}, settings.Intake.BatchWindowSeconds)
	reprocessor := quarantine.New(fsys, settings.NoMatchDir(), settings.IntakeDir(), pipeline)
	engine := syncer.New(fsys, jfClient, settings.PosterDir(), settings.CollectionsDir(), settings.MissingFoldersFile(), settings.ExtraFoldersFile(), settings.Sync.UploadWorkers)

	cycle := func(ctx context.Context, force bool) error {
		cache := matcher.Build(store.Snapshot(), settings.Matching.FuzzyThreshold)
		pipeline.ProcessAll(cache)

		items, changed, err := catalog.Snapshot(ctx)
		if err != nil {
			return err
		}
		if !changed && !force {
			return nil
		}

		if err := store.Refresh(ctx, items, time.Now()); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			log.Printf("[main] title store save: %v", err)
		}

		// Quarantined files may resolve against the refreshed titles; anything
		// they feed back through intake lands before the upload pass.
		cache = matcher.Build(store.Snapshot(), settings.Matching.FuzzyThreshold)
		reprocessor.Reprocess(cache)

		index := engine.Scan()
		report := engine.Run(ctx, items, index, store.Snapshot())
		log.Printf("[main] cycle complete: %d uploaded, %d failed, %d missing folders, %d extra folders",
			report.Uploaded, len(report.Failures), len(report.MissingFolders), len(report.ExtraFolders))
		return nil
	}

	// Webhook surface
	webhook := handlers.NewWebhookHandler(settings.Webhook.Enabled)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", settings.Webhook.Host, settings.Webhook.Port),
		Handler:      api.NewRouter(webhook),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("[main] webhook listening on %s (enabled=%v)", srv.Addr, settings.Webhook.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("webhook server error: %v", err)
		}
	}()

	watcher := runner.NewWatcher(fsys, settings.IntakeDir())
	loop := runner.New(runner.Options{
		Interval:       time.Duration(settings.Runner.IntervalSeconds) * time.Second,
		WatchInterval:  time.Duration(settings.Runner.WatchIntervalSeconds) * time.Second,
		ErrorBackoff:   time.Duration(settings.Runner.ErrorBackoffSeconds) * time.Second,
		Schedule:       runner.ParseSchedule(settings.Runner.ScheduledTimes),
		RunImmediately: *forceRun,
	}, cycle, watcher, webhook)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("[main] runner stopped: %v", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	cancel()
	<-runDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("webhook server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
