// Package tracker maintains the running episode statistics a training
// run reports: per-environment accumulators folded at episode
// boundaries, a sliding window of accumulator snapshots for smoothing,
// and a scalar time-series sink standing in for the metrics backend.
package tracker

import (
	"fmt"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// Stats tracks running episode statistics for a batch of environments.
// Every step, per-environment cumulative rewards grow; when an
// environment's continuation mask drops to zero, the finished episode's
// totals fold into the running accumulators and the cumulative reward
// resets. Metrics extracted from info payloads are folded the same way,
// lazily initialized to zero history on first sight.
type Stats struct {
	numEnvs   int
	blacklist map[string]bool

	cumulativeReward []float64

	// accumulators maps metric name to one running total per
	// environment. "reward" and "count" always exist; "count" grows by
	// exactly one at each episode boundary.
	accumulators map[string][]float64

	window *statsWindow
}

// NewStats creates a Stats for numEnvs environments with a snapshot
// window of windowSize entries. Metric names on the blacklist are never
// extracted from info payloads.
func NewStats(numEnvs, windowSize int, blacklist []string) (*Stats, error) {
	if numEnvs < 1 {
		return nil, fmt.Errorf("newStats: need at least 1 environment, "+
			"have %d", numEnvs)
	}
	if windowSize < 1 {
		return nil, fmt.Errorf("newStats: window size must be positive, "+
			"have %d", windowSize)
	}

	black := make(map[string]bool, len(blacklist))
	for _, key := range blacklist {
		black[key] = true
	}

	return &Stats{
		numEnvs:          numEnvs,
		blacklist:        black,
		cumulativeReward: make([]float64, numEnvs),
		accumulators: map[string][]float64{
			"reward": make([]float64, numEnvs),
			"count":  make([]float64, numEnvs),
		},
		window: newStatsWindow(windowSize),
	}, nil
}

// ExtractScalars flattens an info payload to named scalar metrics.
// Nested maps recurse with dot-joined keys; strings and anything not
// reducible to a single number are skipped.
func ExtractScalars(info env.Info, blacklist map[string]bool) map[string]float64 {
	result := make(map[string]float64)
	for key, value := range info {
		if blacklist[key] {
			continue
		}

		switch v := value.(type) {
		case env.Info:
			for subKey, subValue := range ExtractScalars(v, blacklist) {
				joined := key + "." + subKey
				if !blacklist[joined] {
					result[joined] = subValue
				}
			}
		case float64:
			result[key] = v
		case float32:
			result[key] = float64(v)
		case int:
			result[key] = float64(v)
		case bool:
			if v {
				result[key] = 1.0
			} else {
				result[key] = 0.0
			}
		}
	}
	return result
}

// metricHistory returns the per-environment accumulator for a metric,
// creating a zeroed one on first sight.
func (s *Stats) metricHistory(key string) []float64 {
	history, ok := s.accumulators[key]
	if !ok {
		history = make([]float64, s.numEnvs)
		s.accumulators[key] = history
	}
	return history
}

// Update folds one batched transition into the running statistics.
// masks holds the continuation mask per environment: 1.0 while the
// episode continues, 0.0 at the step that ended it.
func (s *Stats) Update(rewards, masks []float64, infos []env.Info) error {
	if len(rewards) != s.numEnvs || len(masks) != s.numEnvs ||
		len(infos) != s.numEnvs {
		return fmt.Errorf("update: have %d rewards, %d masks, %d infos "+
			"for %d environments", len(rewards), len(masks), len(infos),
			s.numEnvs)
	}

	reward := s.accumulators["reward"]
	count := s.accumulators["count"]
	for i := 0; i < s.numEnvs; i++ {
		s.cumulativeReward[i] += rewards[i]
		boundary := 1.0 - masks[i]
		reward[i] += boundary * s.cumulativeReward[i]
		count[i] += boundary

		for key, value := range ExtractScalars(infos[i], s.blacklist) {
			s.metricHistory(key)[i] += boundary * value
		}

		s.cumulativeReward[i] *= masks[i]
	}
	return nil
}

// Snapshot pushes a copy of the current accumulators into the sliding
// window.
func (s *Stats) Snapshot() {
	s.window.push(s.accumulators)
}

// Report computes the smoothed per-episode metrics over the snapshot
// window: the accumulator growth across the window (or the newest
// snapshot when the window holds a single entry), summed over
// environments, divided per metric by the episode-count delta clamped
// to at least one. The returned map includes the clamped "count".
func (s *Stats) Report() map[string]float64 {
	deltas := s.window.deltas()
	if len(deltas) == 0 {
		return deltas
	}

	if deltas["count"] < 1.0 {
		deltas["count"] = 1.0
	}
	for key := range deltas {
		if key != "count" {
			deltas[key] /= deltas["count"]
		}
	}
	return deltas
}

// WindowLen returns the number of snapshots currently in the window.
func (s *Stats) WindowLen() int { return s.window.len() }
