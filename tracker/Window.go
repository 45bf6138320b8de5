package tracker

// statsWindow is a bounded FIFO of accumulator snapshots. When full,
// pushing evicts the oldest snapshot.
type statsWindow struct {
	snapshots []map[string][]float64
	maxLen    int
}

func newStatsWindow(maxLen int) *statsWindow {
	return &statsWindow{
		snapshots: make([]map[string][]float64, 0, maxLen),
		maxLen:    maxLen,
	}
}

func (w *statsWindow) push(accumulators map[string][]float64) {
	snapshot := make(map[string][]float64, len(accumulators))
	for key, history := range accumulators {
		copied := make([]float64, len(history))
		copy(copied, history)
		snapshot[key] = copied
	}

	if len(w.snapshots) == w.maxLen {
		w.snapshots = w.snapshots[1:]
	}
	w.snapshots = append(w.snapshots, snapshot)
}

func (w *statsWindow) len() int { return len(w.snapshots) }

// deltas returns, per metric, the growth from the oldest to the newest
// snapshot summed over environments. With a single snapshot the totals
// themselves are returned. Metrics missing from the oldest snapshot
// contribute their full newest value.
func (w *statsWindow) deltas() map[string]float64 {
	if len(w.snapshots) == 0 {
		return map[string]float64{}
	}

	newest := w.snapshots[len(w.snapshots)-1]
	oldest := w.snapshots[0]

	result := make(map[string]float64, len(newest))
	for key, history := range newest {
		total := 0.0
		for _, value := range history {
			total += value
		}
		if len(w.snapshots) > 1 {
			if first, ok := oldest[key]; ok {
				for _, value := range first {
					total -= value
				}
			}
		}
		result[key] = total
	}
	return result
}
