package progressbar

import (
	"strings"
	"testing"
)

// TestRenderTracksProgress checks the gauge fill and the counters in
// the rendered line.
func TestRenderTracksProgress(t *testing.T) {
	bar := New(10, 4)

	line := bar.render()
	if strings.Contains(line, "█") {
		t.Errorf("expected an empty gauge before any increment, got %q", line)
	}
	if !strings.Contains(line, "[0/4 | 0.0%") {
		t.Errorf("expected zero counters, got %q", line)
	}

	bar.Increment()
	bar.Increment()
	line = bar.render()
	if got := strings.Count(line, "█"); got != 5 {
		t.Errorf("expected 5 filled cells at the midpoint, got %d in %q",
			got, line)
	}
	if !strings.Contains(line, "[2/4 | 50.0%") {
		t.Errorf("expected midpoint counters, got %q", line)
	}
	if !strings.Contains(line, "left:") {
		t.Errorf("expected a remaining-time estimate mid-run, got %q", line)
	}
}

// TestIncrementSaturates checks that extra increments past max neither
// overflow the counter nor the gauge.
func TestIncrementSaturates(t *testing.T) {
	bar := New(8, 2)
	for i := 0; i < 5; i++ {
		bar.Increment()
	}

	line := bar.render()
	if got := strings.Count(line, "█"); got != 8 {
		t.Errorf("expected a full gauge, got %d cells in %q", got, line)
	}
	if !strings.Contains(line, "[2/2 | 100.0%") {
		t.Errorf("expected saturated counters, got %q", line)
	}
	if strings.Contains(line, "left:") {
		t.Errorf("expected no remaining-time estimate when done, got %q",
			line)
	}
}
