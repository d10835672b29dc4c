// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parasitepool/parastats-sub001/internal/api"
	"github.com/parasitepool/parastats-sub001/internal/stats"
	"github.com/parasitepool/parastats-sub001/internal/upstream"
)

// newHub returns a new stats hub configured with the provided details.
func newHub(cfg *config, db stats.Database) *stats.Hub {
	source := upstream.NewClient(cfg.SourceURL,
		time.Duration(cfg.SourceTimeout)*time.Second)

	hcfg := &stats.HubConfig{
		DB:                       db,
		Source:                   source,
		RequestLimit:             cfg.RequestLimit,
		RequestWindow:            time.Duration(cfg.RequestWindow) * time.Second,
		SweepInterval:            time.Duration(cfg.SweepInterval) * time.Second,
		MaxConcurrentCollections: cfg.MaxCollections,
		CollectTimeout:           time.Duration(cfg.CollectTimeout) * time.Second,
		ReconcileInterval:        time.Duration(cfg.ReconcileInterval) * time.Second,
		ReconcileRate:            rate.Limit(cfg.ReconcileRate),
	}

	return stats.NewHub(hcfg)
}

// newAPI returns a new API configured with the provided details that is ready
// to run.
func newAPI(cfg *config, hub *stats.Hub) *api.API {
	acfg := &api.Config{
		Listen:                      cfg.Listen,
		TLSCertFile:                 cfg.TLSCert,
		TLSKeyFile:                  cfg.TLSKey,
		UseLEHTTPS:                  cfg.UseLEHTTPS,
		NoTLS:                       cfg.NoTLS,
		Domain:                      cfg.Domain,
		Admit:                       hub.Admit,
		FetchRecentWatermarks:       hub.RecentWatermarks,
		FetchLeaderboard:            hub.WatermarkLeaderboard,
		FetchCombinedLeaderboard:    hub.CombinedLeaderboard,
		FetchParticipantWatermarks:  hub.ParticipantWatermarkHistory,
		FetchParticipantSubmissions: hub.ParticipantSubmissionHistory,
		CollectIntervals:            hub.CollectIntervals,
		FetchCacheChannel:           hub.FetchCacheChannel,
	}

	return api.NewAPI(acfg)
}

// realMain is the real main function for parastats.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func realMain() error {
	// Load configuration and parse command line. This also initializes
	// logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var e suppressUsageError
		if !errors.As(err, &e) {
			usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context whose done channel will be closed when a shutdown
	// signal has been triggered from an OS signal such as SIGINT (Ctrl+C)
	// or when the returned cancel function is manually called.
	//
	// Primary context that controls the entire process.
	ctx, cancel := shutdownListener()
	defer pLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	pLog.Infof("%s version %s (Go version %s %s/%s)", appName,
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	pLog.Infof("Home dir: %s", cfg.HomeDir)

	var db stats.Database
	if cfg.UsePostgres {
		db, err = stats.InitPostgresDB(cfg.PGHost, cfg.PGPort, cfg.PGUser,
			cfg.PGPass, cfg.PGDBName)
	} else {
		db, err = stats.InitBoltDB(cfg.DBFile)
	}
	if err != nil {
		cancel()
		pLog.Errorf("failed to initialize database: %v", err)
		return err
	}
	defer db.Close()

	if cfg.Profile != "" {
		// Start the profiler.
		go func() {
			listenAddr := cfg.Profile
			pLog.Infof("Creating profiling server listening on %s",
				listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			server := &http.Server{
				Addr:              listenAddr,
				ReadHeaderTimeout: time.Second * 3,
			}
			err := server.ListenAndServe()
			if err != nil {
				pLog.Critical(err)
				cancel()
			}
		}()
	}

	// Create the hub and API instances.
	hub := newHub(cfg, db)
	apiServer := newAPI(cfg, hub)

	// Run the API and hub in the background.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		// Ensure the overall process context is cancelled once Run
		// returns since the engine can't operate without it.
		hub.Run(ctx)
		cancel()
		wg.Done()
	}()
	go func() {
		apiServer.Run(ctx)
		wg.Done()
	}()
	wg.Wait()

	// Write a backup of the DB (if not using postgres) once the hub shuts
	// down.
	if !cfg.UsePostgres {
		pLog.Info("Backing up database.")
		err = db.Backup(stats.BoltBackupFile)
		if err != nil {
			pLog.Errorf("Failed to write database backup file: %v", err)
		}
	}

	pLog.Info("Hub shutdown complete")
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
