// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"sort"
)

// WatermarkView represents a watermark prepared for display. The address is
// truncated and is empty when no public participant can be credited with the
// interval.
type WatermarkView struct {
	IntervalID   int64   `json:"intervalid"`
	Address      string  `json:"address"`
	Difficulty   float64 `json:"difficulty"`
	IntervalTime int64   `json:"intervaltime"`
}

// LeaderboardEntry represents a row of the watermark leaderboard. The address
// is truncated.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	Address        string  `json:"address"`
	Wins           int64   `json:"wins"`
	BestDifficulty float64 `json:"bestdifficulty"`
	AvgDifficulty  float64 `json:"avgdifficulty"`
}

// SubmissionView represents a participant's per-interval best submission
// prepared for display. The address is truncated.
type SubmissionView struct {
	IntervalID int64   `json:"intervalid"`
	Address    string  `json:"address"`
	Difficulty float64 `json:"difficulty"`
}

// CombinedLeaderboardEntry represents a row of the combined leaderboard,
// which ranks participants on best winning difficulty and win count at the
// same time. The address is truncated.
type CombinedLeaderboardEntry struct {
	Rank           int     `json:"rank"`
	Address        string  `json:"address"`
	Wins           int64   `json:"wins"`
	BestDifficulty float64 `json:"bestdifficulty"`
	QualityRank    int     `json:"qualityrank"`
	LoyaltyRank    int     `json:"loyaltyrank"`
	CombinedScore  float64 `json:"combinedscore"`
}

// RankingConfig contains all of the configuration values which should be set
// to create a ranking engine.
type RankingConfig struct {
	// DB represents the stats database.
	DB Database
	// Privacy filters participants that opted out of being listed.
	Privacy *PrivacyFilter
}

// Rankings derives the privacy-filtered leaderboard views served by the API.
type Rankings struct {
	cfg *RankingConfig
}

// NewRankings creates a ranking engine.
func NewRankings(rCfg *RankingConfig) *Rankings {
	return &Rankings{
		cfg: rCfg,
	}
}

// RecentWatermarks returns the most recent interval watermarks prepared for
// display. A watermark won by a non-public participant is re-credited to the
// best public submitter of its interval; when the interval has no public
// submitter at all it is kept with an empty address so the timeline stays
// gapless without naming anyone.
func (r *Rankings) RecentWatermarks(limit int) ([]*WatermarkView, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	watermarks, err := r.cfg.DB.fetchRecentWatermarks(limit)
	if err != nil {
		return nil, err
	}

	views := make([]*WatermarkView, 0, len(watermarks))
	for _, watermark := range watermarks {
		view := &WatermarkView{
			IntervalID:   watermark.IntervalID,
			Difficulty:   watermark.Difficulty,
			IntervalTime: watermark.IntervalTime,
		}

		public, err := r.cfg.Privacy.IsPublic(watermark.Address)
		if err != nil {
			return nil, err
		}
		if public {
			view.Address = TruncateAddress(watermark.Address)
			views = append(views, view)
			continue
		}

		substitute, err := r.bestPublicSubmitter(watermark.IntervalID)
		if err != nil {
			return nil, err
		}
		if substitute != nil {
			view.Address = TruncateAddress(substitute.Address)
			view.Difficulty = substitute.Difficulty
		}
		views = append(views, view)
	}
	return views, nil
}

// bestPublicSubmitter returns the highest difficulty submission of the
// provided interval made by a public participant, or nil if the interval has
// none.
func (r *Rankings) bestPublicSubmitter(intervalID int64) (*IntervalSubmission, error) {
	submissions, err := r.cfg.DB.fetchIntervalSubmissions(intervalID,
		maxIntervalSubmissions)
	if err != nil {
		return nil, err
	}
	for _, submission := range submissions {
		public, err := r.cfg.Privacy.IsPublic(submission.Address)
		if err != nil {
			return nil, err
		}
		if public {
			return submission, nil
		}
	}
	return nil, nil
}

// WatermarkLeaderboard returns public participants ranked by watermark win
// count. Visibility is filtered in the store so hidden winners never occupy a
// leaderboard slot.
func (r *Rankings) WatermarkLeaderboard(limit int) ([]*LeaderboardEntry, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	counts, err := r.cfg.DB.fetchPublicWinCounts(limit)
	if err != nil {
		return nil, err
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}

	entries := make([]*LeaderboardEntry, 0, len(counts))
	for idx, count := range counts {
		entries = append(entries, &LeaderboardEntry{
			Rank:           idx + 1,
			Address:        TruncateAddress(count.Address),
			Wins:           count.Wins,
			BestDifficulty: count.BestDifficulty,
			AvgDifficulty:  count.AvgDifficulty,
		})
	}
	return entries, nil
}

// denseRanks assigns dense ranks (ties share a rank, the next distinct value
// gets the following rank) over the provided win counts using the provided
// metric, highest metric first.
func denseRanks(counts []*WinCount, metric func(*WinCount) float64) map[string]int {
	ordered := make([]*WinCount, len(counts))
	copy(ordered, counts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return metric(ordered[i]) > metric(ordered[j])
	})

	ranks := make(map[string]int, len(ordered))
	rank := 0
	var prev float64
	for idx, count := range ordered {
		value := metric(count)
		if idx == 0 || value != prev {
			rank++
			prev = value
		}
		ranks[count.Address] = rank
	}
	return ranks
}

// CombinedLeaderboard returns public participants ranked on best winning
// difficulty and win count at the same time. Each participant gets a dense
// rank per metric and the two ranks are averaged into the combined score,
// lowest score first. Participants with equal scores keep the win-count
// order they came out of the store in, so repeated calls with no intervening
// writes return identical rankings.
func (r *Rankings) CombinedLeaderboard(limit int) ([]*CombinedLeaderboardEntry, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	counts, err := r.cfg.DB.fetchPublicWinCounts(maxRecentWatermarks)
	if err != nil {
		return nil, err
	}

	qualityRanks := denseRanks(counts, func(c *WinCount) float64 {
		return c.BestDifficulty
	})
	loyaltyRanks := denseRanks(counts, func(c *WinCount) float64 {
		return float64(c.Wins)
	})

	entries := make([]*CombinedLeaderboardEntry, 0, len(counts))
	for _, count := range counts {
		quality := qualityRanks[count.Address]
		loyalty := loyaltyRanks[count.Address]
		entries = append(entries, &CombinedLeaderboardEntry{
			Address:        TruncateAddress(count.Address),
			Wins:           count.Wins,
			BestDifficulty: count.BestDifficulty,
			QualityRank:    quality,
			LoyaltyRank:    loyalty,
			CombinedScore:  float64(quality+loyalty) / 2,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CombinedScore < entries[j].CombinedScore
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for idx, entry := range entries {
		entry.Rank = idx + 1
	}
	return entries, nil
}

// ParticipantWatermarkHistory returns the watermarks won by the provided
// address, prepared for display. A participant that opted out of public
// listing gets an empty result rather than an error, so the response does not
// reveal whether the participant exists.
func (r *Rankings) ParticipantWatermarkHistory(address string, limit int) ([]*WatermarkView, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	public, err := r.cfg.Privacy.IsPublic(address)
	if err != nil {
		return nil, err
	}
	if !public {
		return []*WatermarkView{}, nil
	}

	watermarks, err := r.cfg.DB.fetchWatermarksByAddress(address, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*WatermarkView, 0, len(watermarks))
	for _, watermark := range watermarks {
		views = append(views, &WatermarkView{
			IntervalID:   watermark.IntervalID,
			Address:      TruncateAddress(watermark.Address),
			Difficulty:   watermark.Difficulty,
			IntervalTime: watermark.IntervalTime,
		})
	}
	return views, nil
}

// ParticipantSubmissionHistory returns the per-interval best submissions of
// the provided address, prepared for display, under the same privacy rule as
// ParticipantWatermarkHistory.
func (r *Rankings) ParticipantSubmissionHistory(address string, limit int) ([]*SubmissionView, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	public, err := r.cfg.Privacy.IsPublic(address)
	if err != nil {
		return nil, err
	}
	if !public {
		return []*SubmissionView{}, nil
	}

	submissions, err := r.cfg.DB.fetchSubmissionsByAddress(address, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*SubmissionView, 0, len(submissions))
	for _, submission := range submissions {
		views = append(views, &SubmissionView{
			IntervalID: submission.IntervalID,
			Address:    TruncateAddress(submission.Address),
			Difficulty: submission.Difficulty,
		})
	}
	return views, nil
}
