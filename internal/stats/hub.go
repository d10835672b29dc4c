// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CacheUpdateEvent represents a cache update event message.
type CacheUpdateEvent int

// Constants for the type of cache update event messages.
const (
	// WatermarkUpdated indicates a watermark was written for an interval.
	WatermarkUpdated CacheUpdateEvent = iota
)

// bufferSize represents the size of the cache update channel.
const bufferSize = 128

// HubConfig contains all of the configuration values which should be set to
// create a stats hub.
type HubConfig struct {
	// DB represents the stats database.
	DB Database
	// Source provides raw per-interval share submissions.
	Source SubmissionSource
	// RequestLimit is the number of admissions per client per window.
	RequestLimit uint32
	// RequestWindow is the length of the rate limit window.
	RequestWindow time.Duration
	// SweepInterval is the wait between sweeps of expired limiter entries.
	SweepInterval time.Duration
	// MaxConcurrentCollections bounds concurrent interval collections.
	MaxConcurrentCollections int
	// CollectTimeout bounds how long a triggered collection waits before
	// reporting.
	CollectTimeout time.Duration
	// ReconcileInterval is the wait between watermark gap scans.
	ReconcileInterval time.Duration
	// ReconcileRate bounds backfill collections per second.
	ReconcileRate rate.Limit
}

// Hub ties the stats engine together: the database, the request rate
// limiter, the watermark collector, the ranking engine and the background
// reconciler.
type Hub struct {
	cfg        *HubConfig
	db         Database
	limiter    *RateLimiter
	collector  *Collector
	rankings   *Rankings
	privacy    *PrivacyFilter
	reconciler *Reconciler
	cacheCh    chan CacheUpdateEvent
	wg         *sync.WaitGroup
}

// NewHub creates a stats hub.
func NewHub(hcfg *HubConfig) *Hub {
	h := &Hub{
		cfg:     hcfg,
		db:      hcfg.DB,
		limiter: NewRateLimiter(hcfg.RequestLimit, hcfg.RequestWindow, hcfg.SweepInterval),
		privacy: NewPrivacyFilter(hcfg.DB),
		cacheCh: make(chan CacheUpdateEvent, bufferSize),
		wg:      new(sync.WaitGroup),
	}

	h.collector = NewCollector(&CollectorConfig{
		DB:          hcfg.DB,
		Source:      hcfg.Source,
		SignalCache: h.SignalCache,
	})
	h.rankings = NewRankings(&RankingConfig{
		DB:      hcfg.DB,
		Privacy: h.privacy,
	})
	h.reconciler = NewReconciler(&ReconcilerConfig{
		DB:                hcfg.DB,
		Collect:           h.collector.Collect,
		ReconcileInterval: hcfg.ReconcileInterval,
		ReconcileRate:     hcfg.ReconcileRate,
	})

	return h
}

// SignalCache sends the provided cache update event to the websocket feed.
func (h *Hub) SignalCache(event CacheUpdateEvent) {
	select {
	case h.cacheCh <- event:
	default:
		// Non-breaking send fallthrough.
	}
}

// FetchCacheChannel returns the cache update signal channel.
func (h *Hub) FetchCacheChannel() chan CacheUpdateEvent {
	return h.cacheCh
}

// Admit applies the request rate limit to the provided client.
func (h *Hub) Admit(client string) LimitStatus {
	return h.limiter.Admit(client)
}

// RecentWatermarks returns the most recent watermarks prepared for display.
func (h *Hub) RecentWatermarks(limit int) ([]*WatermarkView, error) {
	return h.rankings.RecentWatermarks(limit)
}

// WatermarkLeaderboard returns public participants ranked by watermark win
// count.
func (h *Hub) WatermarkLeaderboard(limit int) ([]*LeaderboardEntry, error) {
	return h.rankings.WatermarkLeaderboard(limit)
}

// CombinedLeaderboard returns public participants ranked on best winning
// difficulty and win count combined.
func (h *Hub) CombinedLeaderboard(limit int) ([]*CombinedLeaderboardEntry, error) {
	return h.rankings.CombinedLeaderboard(limit)
}

// ParticipantWatermarkHistory returns the watermarks won by the provided
// address, empty for non-public participants.
func (h *Hub) ParticipantWatermarkHistory(address string, limit int) ([]*WatermarkView, error) {
	return h.rankings.ParticipantWatermarkHistory(address, limit)
}

// ParticipantSubmissionHistory returns the submission history of the provided
// address, empty for non-public participants.
func (h *Hub) ParticipantSubmissionHistory(address string, limit int) ([]*SubmissionView, error) {
	return h.rankings.ParticipantSubmissionHistory(address, limit)
}

// CollectIntervals collects the provided intervals and returns per-interval
// success.
func (h *Hub) CollectIntervals(ctx context.Context, intervalIDs []int64) map[int64]bool {
	return h.collector.CollectMany(ctx, intervalIDs,
		h.cfg.MaxConcurrentCollections, h.cfg.CollectTimeout)
}

// Run handles the process lifecycles of the stats hub. The database is owned
// by the caller and stays open after the hub winds down so it can still be
// backed up.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		h.limiter.Run(ctx)
		h.wg.Done()
	}()

	h.wg.Add(1)
	go func() {
		h.reconciler.run(ctx)
		h.wg.Done()
	}()

	h.wg.Wait()
}
