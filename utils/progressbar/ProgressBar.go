// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar draws a single-line progress bar that must be manually
// managed: call Increment once per completed iteration and Display
// whenever the bar should be redrawn. No concurrency is used.
type ProgressBar struct {
	width     int
	max       int
	current   int
	startTime time.Time
}

// New returns a ProgressBar that is width characters wide and reaches
// 100% after max Increment calls.
func New(width, max int) *ProgressBar {
	return &ProgressBar{
		width:     width,
		max:       max,
		startTime: time.Now(),
	}
}

// Increment records one completed iteration. Past max it has no
// effect.
func (p *ProgressBar) Increment() {
	if p.current < p.max {
		p.current++
	}
}

// render builds the bar line: a filled gauge followed by the iteration
// fraction, percentage, elapsed time, and a remaining-time estimate
// extrapolated from the mean time per iteration so far.
func (p *ProgressBar) render() string {
	filled := p.current * p.width / p.max

	var line strings.Builder
	line.WriteString("|")
	line.WriteString(strings.Repeat("█", filled))
	line.WriteString(strings.Repeat(" ", p.width-filled))

	elapsed := time.Since(p.startTime)
	fmt.Fprintf(&line, "| [%d/%d | %.1f%% | elapsed: %v", p.current,
		p.max, float64(p.current)/float64(p.max)*100,
		elapsed.Truncate(time.Second))
	if p.current > 0 && p.current < p.max {
		remaining := elapsed / time.Duration(p.current) *
			time.Duration(p.max-p.current)
		fmt.Fprintf(&line, " | left: %v", remaining.Truncate(time.Second))
	}
	line.WriteString("]")
	return line.String()
}

// Display redraws the progress bar in place on the current terminal
// line.
func (p *ProgressBar) Display() {
	fmt.Printf("\n\033[1A\033[K%v", p.render())
}

// Finish jumps to the next terminal line, leaving the completed bar in
// place.
func (p *ProgressBar) Finish() {
	fmt.Println()
}
