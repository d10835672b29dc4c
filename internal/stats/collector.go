// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parasitepool/parastats-sub001/errors"
)

const (
	// defaultMaxConcurrentCollections is the default bound on concurrent
	// interval collections performed by a single CollectMany call.
	defaultMaxConcurrentCollections = 5

	// defaultCollectTimeout is the default deadline for reporting the
	// results of a CollectMany call.
	defaultCollectTimeout = time.Second * 30
)

// SourceSubmission represents a raw share submission reported by the
// submission source for an interval. Source order is preserved, the earliest
// seen submission comes first.
type SourceSubmission struct {
	Address    string  `json:"address"`
	Difficulty float64 `json:"difficulty"`
}

// SubmissionSource defines the functionality needed by a provider of raw
// per-interval share submissions.
type SubmissionSource interface {
	// IntervalSubmissions returns all share submissions recorded by the
	// source for the provided interval, in the order they were seen.
	IntervalSubmissions(ctx context.Context, intervalID int64) ([]*SourceSubmission, error)
}

// CollectorConfig contains all of the configuration values which should be
// set to create a watermark collector.
type CollectorConfig struct {
	// DB represents the stats database.
	DB Database
	// Source provides raw per-interval share submissions.
	Source SubmissionSource
	// SignalCache relays the provided cache update event to the hub.
	SignalCache func(event CacheUpdateEvent)
}

// Collector derives per-interval difficulty watermarks from the submission
// source and maintains the participant registry.
type Collector struct {
	cfg *CollectorConfig
}

// NewCollector creates a watermark collector.
func NewCollector(cCfg *CollectorConfig) *Collector {
	return &Collector{
		cfg: cCfg,
	}
}

// Collect derives the watermark of the provided interval from the submission
// source and persists it along with the per-participant submission records.
// The stored watermark only ever increases, so re-collecting an interval is
// idempotent and a source reporting lower difficulties than previously seen
// leaves the record untouched. Ties on difficulty go to the earliest seen
// submission.
//
// An interval with no recorded submissions returns an error of kind
// errors.NoSubmissions, which is a normal outcome rather than an engine
// fault.
func (c *Collector) Collect(ctx context.Context, intervalID int64) error {
	const funcName = "Collect"

	if intervalID < 0 {
		desc := fmt.Sprintf("%s: interval id cannot be negative, got %d",
			funcName, intervalID)
		return errors.StatsError(errors.InvalidInput, desc)
	}

	submissions, err := c.cfg.Source.IntervalSubmissions(ctx, intervalID)
	if err != nil {
		return err
	}
	if len(submissions) == 0 {
		desc := fmt.Sprintf("%s: no submissions found for interval %d",
			funcName, intervalID)
		return errors.StatsError(errors.NoSubmissions, desc)
	}

	// Pick the winning submission. Only a strictly greater difficulty
	// displaces the current best, so the earliest seen submission wins
	// ties.
	best := submissions[0]
	for _, submission := range submissions[1:] {
		if submission.Difficulty > best.Difficulty {
			best = submission
		}
	}

	watermark := NewIntervalWatermark(intervalID, best.Address, best.Difficulty)
	written, err := c.cfg.DB.upsertWatermark(watermark)
	if err != nil {
		return err
	}
	if written {
		log.Tracef("Watermark for interval %d set to %f by %s",
			intervalID, best.Difficulty, best.Address)
	}

	// Fold the submissions into one best-difficulty record per
	// participant for the interval.
	bestByAddress := make(map[string]float64)
	order := make([]string, 0, len(submissions))
	for _, submission := range submissions {
		current, ok := bestByAddress[submission.Address]
		if !ok {
			order = append(order, submission.Address)
		}
		if !ok || submission.Difficulty > current {
			bestByAddress[submission.Address] = submission.Difficulty
		}
	}

	for _, address := range order {
		difficulty := bestByAddress[address]
		created, err := c.cfg.DB.upsertSubmission(&IntervalSubmission{
			IntervalID: intervalID,
			Address:    address,
			Difficulty: difficulty,
		})
		if err != nil {
			return err
		}

		var newIntervals int64
		if created {
			newIntervals = 1
		}
		err = c.cfg.DB.upsertParticipantStats(address, difficulty, newIntervals)
		if err != nil {
			return err
		}
	}

	if written && c.cfg.SignalCache != nil {
		c.cfg.SignalCache(WatermarkUpdated)
	}

	return nil
}

// CollectMany collects the provided intervals concurrently, bounded by
// maxConcurrent workers, and returns per-interval success. The timeout bounds
// how long the call waits before reporting; collections still in flight when
// it fires run to completion in the background so store writes are never
// abandoned midway, their results are just not reported.
//
// Non-positive maxConcurrent and timeout values fall back to the defaults.
func (c *Collector) CollectMany(ctx context.Context, intervalIDs []int64,
	maxConcurrent int, timeout time.Duration) map[int64]bool {

	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentCollections
	}
	if timeout <= 0 {
		timeout = defaultCollectTimeout
	}

	var mtx sync.Mutex
	results := make(map[int64]bool, len(intervalIDs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)
	for _, intervalID := range intervalIDs {
		mtx.Lock()
		_, seen := results[intervalID]
		if !seen {
			results[intervalID] = false
		}
		mtx.Unlock()
		if seen {
			continue
		}

		wg.Add(1)
		go func(intervalID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := c.Collect(ctx, intervalID)
			if err != nil {
				if errors.Is(err, errors.NoSubmissions) {
					log.Debugf("No submissions for interval %d", intervalID)
				} else {
					log.Errorf("Unable to collect interval %d: %v",
						intervalID, err)
				}
				return
			}

			mtx.Lock()
			results[intervalID] = true
			mtx.Unlock()
		}(intervalID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warnf("Collection deadline reached after %v, reporting "+
			"partial results", timeout)
	case <-ctx.Done():
	}

	mtx.Lock()
	reported := make(map[int64]bool, len(results))
	for intervalID, collected := range results {
		reported[intervalID] = collected
	}
	mtx.Unlock()

	return reported
}
