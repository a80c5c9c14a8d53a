// Command focusd runs the focus tracking service: the frame detection
// pipeline, the session state machine, and the HTTP API in front of a
// sqlite store.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/attentive-data/focus.report/internal/api"
	"github.com/attentive-data/focus.report/internal/config"
	"github.com/attentive-data/focus.report/internal/db"
	"github.com/attentive-data/focus.report/internal/engine"
	"github.com/attentive-data/focus.report/internal/monitoring"
	"github.com/attentive-data/focus.report/internal/presence"
	"github.com/attentive-data/focus.report/internal/session"
	"github.com/attentive-data/focus.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "focus.db", "Path to the sqlite database")
	configPath    = flag.String("config", "", "Path to a tuning config JSON file (defaults to built-in values)")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "Path to the migrations directory")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("focusd %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// Subcommand dispatch before any long-lived resources are opened.
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile, *migrationsDir)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *config.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	deb := presence.NewDebouncer(cfg.GetDebounceWindow(), cfg.GetFPSWindow())
	eng := engine.New(engine.KeypointDetector{}, deb, nil)
	defer eng.Close()

	machine := session.NewMachine(database, eng.Latest, session.MachineConfig{
		Rates:                cfg.Rates(),
		TickInterval:         cfg.GetTickInterval(),
		AutosaveInterval:     cfg.GetAutosaveInterval(),
		DistractionThreshold: cfg.GetDistractionThreshold(),
		PauseOnDistraction:   cfg.GetPauseOnDistraction(),
	}, nil)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)

		apiMux := api.NewServer(database, machine, eng, cfg).ServeMux()
		mux.Handle("/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			monitoring.Logf("focusd %s listening on %s", version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Persist any in-flight session before exiting so a kill mid-session
	// is not silently lost.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if sess, err := machine.Stop(context.Background()); err != nil {
			log.Printf("failed to persist session at shutdown: %v", err)
		} else if sess != nil {
			log.Printf("persisted session %s at shutdown (%ds recorded)", sess.ID, sess.DurationSeconds)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
