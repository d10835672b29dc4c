// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package api provides the public JSON API of the stats engine.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/gorilla/mux"

	"github.com/parasitepool/parastats-sub001/internal/stats"
)

// Config contains all of the required configuration values for the API
// component.
type Config struct {
	// Listen represents the listening address the API is served on.
	Listen string
	// TLSCertFile represents the TLS certificate file path.
	TLSCertFile string
	// TLSKeyFile represents the TLS key file path.
	TLSKeyFile string
	// UseLEHTTPS represents Letsencrypt HTTPS mode.
	UseLEHTTPS bool
	// NoTLS starts the webserver listening for plain HTTP.
	NoTLS bool
	// Domain represents the domain name of the dashboard.
	Domain string
	// Admit applies the request rate limit to the provided client.
	Admit func(client string) stats.LimitStatus
	// FetchRecentWatermarks returns the most recent watermarks prepared
	// for display.
	FetchRecentWatermarks func(limit int) ([]*stats.WatermarkView, error)
	// FetchLeaderboard returns public participants ranked by watermark
	// win count.
	FetchLeaderboard func(limit int) ([]*stats.LeaderboardEntry, error)
	// FetchCombinedLeaderboard returns public participants ranked on best
	// winning difficulty and win count combined.
	FetchCombinedLeaderboard func(limit int) ([]*stats.CombinedLeaderboardEntry, error)
	// FetchParticipantWatermarks returns the watermarks won by the
	// provided address.
	FetchParticipantWatermarks func(address string, limit int) ([]*stats.WatermarkView, error)
	// FetchParticipantSubmissions returns the submission history of the
	// provided address.
	FetchParticipantSubmissions func(address string, limit int) ([]*stats.SubmissionView, error)
	// CollectIntervals collects the provided intervals and returns
	// per-interval success.
	CollectIntervals func(ctx context.Context, intervalIDs []int64) map[int64]bool
	// FetchCacheChannel returns the cache update signal channel.
	FetchCacheChannel func() chan stats.CacheUpdateEvent
}

// API represents the public JSON API of the stats engine.
type API struct {
	cfg             *Config
	router          *mux.Router
	websocketServer *WebsocketServer
}

// route configures the http router of the API.
func (a *API) route() {
	apiRouter := a.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(a.rateLimitMiddleware)

	apiRouter.HandleFunc("/watermarks", a.recentWatermarks).Methods("GET")
	apiRouter.HandleFunc("/leaderboard", a.leaderboard).Methods("GET")
	apiRouter.HandleFunc("/leaderboard/combined", a.combinedLeaderboard).Methods("GET")
	apiRouter.HandleFunc("/participant/{address}/watermarks", a.participantWatermarks).Methods("GET")
	apiRouter.HandleFunc("/participant/{address}/submissions", a.participantSubmissions).Methods("GET")
	apiRouter.HandleFunc("/collect", a.collect).Methods("POST")

	// Websocket endpoint allows clients to receive watermark updates.
	a.router.HandleFunc("/ws", a.websocketServer.registerClient).Methods("GET")
}

// NewAPI creates an instance of the API.
func NewAPI(cfg *Config) *API {
	a := API{
		cfg:             cfg,
		router:          mux.NewRouter(),
		websocketServer: NewWebsocketServer(),
	}
	a.route()
	return &a
}

// runWebServer starts the web server per the configuration options associated
// with the API instance.
//
// It must be run as a routine.
func (a *API) runWebServer(ctx context.Context) {
	// Create base HTTP/S server configuration.
	server := http.Server{
		// Use the provided context as the parent context for all requests
		// to ensure handlers are able to react to both client disconnects
		// as well as shutdown via the provided context.
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},

		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 30,
		IdleTimeout:  time.Second * 30,
		Addr:         a.cfg.Listen,
		Handler:      a.router,
	}

	switch {
	case a.cfg.UseLEHTTPS:
		certMgr := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache("certs"),
			HostPolicy: autocert.HostWhitelist(a.cfg.Domain),
		}

		server.Addr = ":https"
		server.TLSConfig = &tls.Config{
			GetCertificate: certMgr.GetCertificate,
			MinVersion:     tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}

		go func() {
			log.Info("Starting API server on port 443 (https)")
			if err := server.ListenAndServeTLS("", ""); err != nil {
				log.Error(err)
			}
		}()

	case a.cfg.NoTLS:
		go func() {
			log.Infof("Starting API server on %s (http)", a.cfg.Listen)
			if err := server.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.Error(err)
			}
		}()

	default:
		go func() {
			log.Infof("Starting API server on %s (https)", a.cfg.Listen)
			if err := server.ListenAndServeTLS(a.cfg.TLSCertFile,
				a.cfg.TLSKeyFile); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.Error(err)
			}
		}()
	}

	// Wait until the context is canceled and gracefully shutdown the server.
	<-ctx.Done()
	server.Shutdown(ctx)
}

// notifyWebsocketClients pushes watermark updates to any established
// websocket clients.
//
// It must be run as a routine.
func (a *API) notifyWebsocketClients(ctx context.Context) {
	signalCh := a.cfg.FetchCacheChannel()
	for {
		select {
		case msg := <-signalCh:
			switch msg {
			case stats.WatermarkUpdated:
				watermarks, err := a.cfg.FetchRecentWatermarks(1)
				if err != nil {
					log.Error(err)
					continue
				}
				if len(watermarks) == 0 {
					continue
				}

				a.websocketServer.send(payload{
					Watermark: watermarks[0],
				})

			default:
				log.Errorf("unknown cache signal received: %v", msg)
			}

		case <-ctx.Done():
			return
		}
	}
}

// Run starts the API.
func (a *API) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		a.runWebServer(ctx)
		wg.Done()
	}()
	go func() {
		a.notifyWebsocketClients(ctx)
		wg.Done()
	}()
	wg.Wait()
}
