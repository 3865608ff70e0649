// Program bandwatch ingests PSKReporter reception reports over MQTT, enriches
// them with continent and distance data, persists them to SQLite in batches,
// and serves per-band activity summaries from a TTL cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bandwatch/activity"
	"bandwatch/buffer"
	"bandwatch/config"
	"bandwatch/dedup"
	"bandwatch/ingest"
	"bandwatch/internal/observability"
	"bandwatch/monitor"
	"bandwatch/pskreporter"
	"bandwatch/spot"
	"bandwatch/stats"
	"bandwatch/store"
)

const (
	defaultConfigPath = "data/config.yaml"
	envConfigPath     = "BANDWATCH_CONFIG_PATH"

	statsInterval = 60 * time.Second
)

func main() {
	cfg := loadConfig()
	closeLog := setupLogging(cfg.Logging)
	defer closeLog()

	log.Printf("Starting %s...", cfg.Server.Name)
	cfg.Print()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preflight the spot database before opening it for real. A corrupt file
	// is quarantined so startup never hangs on a bad WAL.
	preflightTimeout := time.Duration(cfg.Store.PreflightTimeoutMS) * time.Millisecond
	if res, err := store.Preflight(cfg.Store.DBPath, preflightTimeout); err != nil {
		log.Fatalf("Failed spot database preflight: %v", err)
	} else if res.Quarantined {
		log.Printf("Spot database quarantined to %s; starting fresh", res.QuarantinePath)
	}

	spotStore, err := store.Open(cfg.Store.DBPath, cfg.Store.BusyTimeoutMS)
	if err != nil {
		log.Fatalf("Failed to open spot database: %v", err)
	}
	defer spotStore.Close()

	metrics := observability.New(nil)
	statsTracker := stats.NewTracker()

	// Transport dedup in front of the buffer. The journal survives restarts;
	// without one the window is memory-only.
	var deduplicator *dedup.Deduplicator
	if cfg.Dedup.Enabled {
		var journal *dedup.Journal
		if cfg.Dedup.JournalPath != "" {
			journal, err = dedup.OpenJournal(cfg.Dedup.JournalPath)
			if err != nil {
				log.Printf("Warning: dedup journal disabled: %v", err)
			} else {
				defer journal.Close()
			}
		}
		window := time.Duration(cfg.Dedup.WindowSeconds) * time.Second
		deduplicator = dedup.NewDeduplicator(window, journal)
		go deduplicator.Run(ctx)
		log.Printf("Deduplication active with %v window", window)
	} else {
		log.Println("Deduplication disabled; transport duplicates pass through")
	}

	ring := buffer.NewRingBuffer(cfg.Buffer.Capacity)

	persister := ingest.NewPersister(spotStore, ingest.Options{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: time.Duration(cfg.Ingest.FlushIntervalMS) * time.Millisecond,
		MaxPending:    cfg.Ingest.MaxPending,
		Metrics:       metrics,
	})
	var persistWG sync.WaitGroup
	persistWG.Add(1)
	go func() {
		defer persistWG.Done()
		persister.Run(ctx)
	}()

	if cfg.Store.RetentionHours > 0 {
		horizon := time.Duration(cfg.Store.RetentionHours) * time.Hour
		go spotStore.RunRetention(ctx, horizon, time.Hour)
		log.Printf("Retention: deleting spots older than %dh", cfg.Store.RetentionHours)
	}

	notifier := activity.NewNotifier(metrics)
	aggregator := activity.NewAggregator(spotStore, cfg.Activity.WindowMinutes)
	cache := activity.NewCache(aggregator, activity.CacheOptions{
		TTL:      time.Duration(cfg.Activity.CacheTTLSeconds) * time.Second,
		Clock:    clockwork.NewRealClock(),
		Notifier: notifier,
		Metrics:  metrics,
	})

	// Log band/modes that turn favorable between snapshots.
	go logFavorableChanges(ctx, notifier)

	// Connect to PSKReporter if enabled. Parsed and enriched spots flow
	// through dedup into the ring buffer and the batch persister.
	var pskrClient *pskreporter.Client
	if cfg.PSKReporter.Enabled {
		topics := cfg.PSKReporter.Topics
		if len(topics) == 0 {
			topics = pskreporter.DefaultTopics(cfg.PSKReporter.Mode)
		}
		pskrClient = pskreporter.NewClient(cfg.PSKReporter.Broker, cfg.PSKReporter.Port,
			topics, func(s *spot.Spot) {
				if deduplicator != nil && deduplicator.Seen(s) {
					statsTracker.IncrementDuplicate()
					metrics.Duplicates.Inc()
					return
				}
				ring.Add(s)
				persister.Accept(s)
			}, statsTracker, metrics)
		if err := pskrClient.Connect(); err != nil {
			log.Printf("Warning: Failed to connect to PSKReporter: %v", err)
		} else {
			log.Printf("PSKReporter client subscribed to %d topics", len(topics))
		}
	}

	mon := monitor.New(pskrClient, spotStore, persister, cache, ring)
	adminServer := startAdminServer(cfg.Admin, mon, cache)

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Println(statsTracker.Summary())
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Bandwatch is running. Press Ctrl+C to stop.")
	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down gracefully...")

	if pskrClient != nil {
		pskrClient.Stop()
	}

	// Cancelling the context triggers the persister's final flush; wait for
	// it so a clean shutdown loses nothing the store would have taken.
	cancel()
	persistWG.Wait()

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = adminServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	log.Printf("Persisted %d batches (%d rows inserted, %d merged, %d overflow drops)",
		persister.BatchesPersisted(), persister.RowsInserted(), persister.RowsMerged(), persister.Overflow())
	log.Println("Bandwatch stopped")
}

func loadConfig() *config.Config {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config at %s; using defaults", path)
			return config.Default()
		}
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// logFavorableChanges watches activity snapshots and logs each band/mode the
// moment it crosses into favorable conditions.
func logFavorableChanges(ctx context.Context, notifier *activity.Notifier) {
	snapshots, cancel := notifier.Subscribe(4)
	defer cancel()

	wasFavorable := map[activity.Key]bool{}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			for key, act := range snap {
				fav := act.Favorable()
				if fav && !wasFavorable[key] {
					log.Printf("Conditions favorable on %s: %d spots (%+.0f%%), paths %v",
						key, act.SpotCount, act.TrendPercentage, act.ActivePaths)
				}
				wasFavorable[key] = fav
			}
		}
	}
}

// startAdminServer serves metrics plus the JSON activity endpoints.
func startAdminServer(cfg config.AdminConfig, mon *monitor.Monitor, cache *activity.Cache) *http.Server {
	if cfg.HTTPPort <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
		resp, err := mon.CurrentActivity(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/activity/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		cache.Clear()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Warning: admin server: %v", err)
		}
	}()
	log.Printf("Admin interface on %s:%d (/metrics, /activity)", cfg.BindAddress, cfg.HTTPPort)
	return srv
}

var adminJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := adminJSON.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: admin response encode: %v", err)
	}
}
