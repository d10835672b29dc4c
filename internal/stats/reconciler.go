// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/parasitepool/parastats-sub001/errors"
)

const (
	// defaultReconcileInterval is the default wait between gap scans of
	// the watermark table.
	defaultReconcileInterval = time.Minute * 10

	// defaultReconcileRate is the default bound on backfill collections
	// per second, keeping bulk reconciliation from hammering the
	// submission source.
	defaultReconcileRate = rate.Limit(2)
)

// ReconcilerConfig contains all of the configuration values which should be
// set to create a watermark reconciler.
type ReconcilerConfig struct {
	// DB represents the stats database.
	DB Database
	// Collect collects the watermark of the provided interval.
	Collect func(ctx context.Context, intervalID int64) error
	// ReconcileInterval is the wait between gap scans.
	ReconcileInterval time.Duration
	// ReconcileRate bounds backfill collections per second.
	ReconcileRate rate.Limit
}

// Reconciler periodically scans the recorded watermark intervals for gaps and
// re-collects the missing intervals. It is the background path of watermark
// collection; the collect endpoint is the interactive one. Both paths share
// the same monotonic store writes, so they cannot conflict.
type Reconciler struct {
	cfg  *ReconcilerConfig
	pace *rate.Limiter
}

// NewReconciler creates a watermark reconciler.
func NewReconciler(rCfg *ReconcilerConfig) *Reconciler {
	if rCfg.ReconcileInterval <= 0 {
		rCfg.ReconcileInterval = defaultReconcileInterval
	}
	if rCfg.ReconcileRate <= 0 {
		rCfg.ReconcileRate = defaultReconcileRate
	}
	return &Reconciler{
		cfg:  rCfg,
		pace: rate.NewLimiter(rCfg.ReconcileRate, 1),
	}
}

// missingIntervals returns the interval ids absent from the span covered by
// the recorded watermarks.
func (r *Reconciler) missingIntervals() ([]int64, error) {
	watermarks, err := r.cfg.DB.fetchRecentWatermarks(maxRecentWatermarks)
	if err != nil {
		return nil, err
	}
	if len(watermarks) < 2 {
		return nil, nil
	}

	// Watermarks are ordered most recent first.
	recorded := make(map[int64]struct{}, len(watermarks))
	for _, watermark := range watermarks {
		recorded[watermark.IntervalID] = struct{}{}
	}

	newest := watermarks[0].IntervalID
	oldest := watermarks[len(watermarks)-1].IntervalID
	var missing []int64
	for intervalID := oldest + 1; intervalID < newest; intervalID++ {
		if _, ok := recorded[intervalID]; !ok {
			missing = append(missing, intervalID)
		}
	}
	return missing, nil
}

// reconcile runs a single gap scan, re-collecting every missing interval at
// the configured pace.
func (r *Reconciler) reconcile(ctx context.Context) {
	missing, err := r.missingIntervals()
	if err != nil {
		log.Errorf("Unable to scan for missing intervals: %v", err)
		return
	}
	if len(missing) == 0 {
		return
	}

	log.Infof("Reconciling %d missing intervals", len(missing))
	for _, intervalID := range missing {
		err := r.pace.Wait(ctx)
		if err != nil {
			return
		}

		err = r.cfg.Collect(ctx, intervalID)
		if err != nil {
			if errors.Is(err, errors.NoSubmissions) {
				log.Debugf("No submissions for interval %d", intervalID)
				continue
			}
			log.Errorf("Unable to reconcile interval %d: %v",
				intervalID, err)
		}
	}
}

// run periodically reconciles missing watermark intervals. It must be run as
// a goroutine.
func (r *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}
