package trainer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sachinb20/IntExpl4HiddenObject/agent/linear"
	"github.com/sachinb20/IntExpl4HiddenObject/checkpoint"
	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
	"github.com/sachinb20/IntExpl4HiddenObject/environment/hiddenobject"
	"github.com/sachinb20/IntExpl4HiddenObject/tracker"
)

// TestLinearDecay checks the endpoints, midpoint, and clamping of the
// linear decay factor.
func TestLinearDecay(t *testing.T) {
	if got := LinearDecay(0, 10); got != 1.0 {
		t.Errorf("expected decay 1.0 at update 0, got %v", got)
	}
	if got := LinearDecay(10, 10); got != 0.0 {
		t.Errorf("expected decay 0.0 at the final update, got %v", got)
	}
	if got := LinearDecay(5, 10); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected decay 0.5 at the midpoint, got %v", got)
	}
	if got := LinearDecay(15, 10); got != 0.0 {
		t.Errorf("expected decay clamped to 0.0 past the end, got %v", got)
	}

	previous := math.Inf(1)
	for u := 0; u <= 12; u++ {
		factor := LinearDecay(u, 10)
		if factor > previous {
			t.Fatalf("decay increased from %v to %v at update %d",
				previous, factor, u)
		}
		previous = factor
	}
}

// newTestBatch builds a batch of deterministic rooms for loop tests.
func newTestBatch(t *testing.T, numEnvs int) env.VecEnv {
	t.Helper()

	envs := make([]env.Env, numEnvs)
	for i := range envs {
		episodes := make([]env.Episode, 4)
		for j := range episodes {
			episodes[j] = env.Episode{
				SceneID:   fmt.Sprintf("FloorPlan%d", i+1),
				EpisodeID: fmt.Sprintf("%d", j),
			}
		}
		room, err := hiddenobject.New(hiddenobject.NewInteractionTask(),
			hiddenobject.Config{
				Receptacles: 3,
				TargetAt:    1,
				BonusAt:     -1,
				Cutoff:      6,
				Episodes:    episodes,
				Actions:     env.FullActionSet(),
			})
		if err != nil {
			t.Fatal(err)
		}
		envs[i] = room
	}

	batch, err := env.NewSyncVecEnv(envs)
	if err != nil {
		t.Fatal(err)
	}
	return batch
}

// newTestOptimizer builds a linear softmax policy and its optimizer
// sized to the batch.
func newTestOptimizer(t *testing.T, batch env.VecEnv) *linear.Reinforce {
	t.Helper()

	policy, err := linear.NewSoftmax(batch.ObservationSize(),
		batch.ActionCount(), 42)
	if err != nil {
		t.Fatal(err)
	}
	optimizer, err := linear.NewReinforce(policy, linear.ReinforceConfig{
		LearningRate:      0.01,
		ValueLearningRate: 0.01,
		ClipParam:         0.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return optimizer
}

// TestLoopRunsToCompletion runs a short training loop end to end and
// checks step accounting, decay application, checkpoints, and metrics.
func TestLoopRunsToCompletion(t *testing.T) {
	const (
		numEnvs      = 2
		numSteps     = 8
		totalUpdates = 4
	)

	batch := newTestBatch(t, numEnvs)
	optimizer := newTestOptimizer(t, batch)
	dir := t.TempDir()

	config := Config{
		TotalUpdates:       totalUpdates,
		NumSteps:           numSteps,
		Gamma:              0.99,
		Tau:                0.95,
		UseGAE:             true,
		DecayLearningRate:  true,
		DecayClipParam:     true,
		LogInterval:        2,
		CheckpointInterval: 2,
		CheckpointFolder:   filepath.Join(dir, "ckpts"),
		MetricsFile:        filepath.Join(dir, "scalars.bin"),
		StatsWindowSize:    10,
	}

	loop, err := NewLoop(batch, optimizer, config)
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if got := loop.StepCount(); got != numEnvs*numSteps*totalUpdates {
		t.Errorf("expected %d transitions, got %d",
			numEnvs*numSteps*totalUpdates, got)
	}

	// The final update applied decay for index totalUpdates-1.
	wantClip := 0.2 * LinearDecay(totalUpdates-1, totalUpdates)
	if got := optimizer.ClipParam(); math.Abs(got-wantClip) > 1e-12 {
		t.Errorf("expected clip parameter %v after decay, got %v",
			wantClip, got)
	}

	// Updates 0 and 2 wrote checkpoints 0 and 1.
	for seq := 0; seq < 2; seq++ {
		name := checkpoint.Filename(config.CheckpointFolder, seq)
		if _, err := os.Stat(name); err != nil {
			t.Errorf("missing checkpoint %q: %v", name, err)
		}
	}

	series, err := tracker.LoadScalars(config.MetricsFile)
	if err != nil {
		t.Fatal(err)
	}

	// Every update records reward and the three loss series, keyed by
	// the cumulative environment-step count.
	batchSteps := numEnvs * numSteps
	for _, tag := range []string{
		"reward", "policy_loss", "value_loss", "dist_entropy",
	} {
		points := series[tag]
		if len(points) != totalUpdates {
			t.Fatalf("expected %d %q points, got %d",
				totalUpdates, tag, len(points))
		}
		for u, point := range points {
			if want := (u + 1) * batchSteps; point.Step != want {
				t.Errorf("expected %q point %d keyed by step %d, got %d",
					tag, u, want, point.Step)
			}
		}
	}

	// Throughput is only sampled on the logging cadence.
	if len(series["fps"]) != 2 {
		t.Errorf("expected 2 logged fps points, got %d", len(series["fps"]))
	}
}

// TestLoopResumeRestoresState resumes from a saved checkpoint and
// checks that both the update counter and the cumulative step count
// pick up where the run left off.
func TestLoopResumeRestoresState(t *testing.T) {
	batch := newTestBatch(t, 1)
	optimizer := newTestOptimizer(t, batch)
	dir := t.TempDir()

	config := Config{
		TotalUpdates:       2,
		NumSteps:           4,
		Gamma:              0.99,
		Tau:                0.95,
		UseGAE:             true,
		LogInterval:        1,
		CheckpointInterval: 1,
		CheckpointFolder:   dir,
		StatsWindowSize:    4,
	}

	loop, err := NewLoop(batch, optimizer, config)
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	resumed := config
	resumed.TotalUpdates = 4
	resumed.ResumeFrom = checkpoint.Filename(dir, 1)

	batch2 := newTestBatch(t, 1)
	optimizer2 := newTestOptimizer(t, batch2)
	loop2, err := NewLoop(batch2, optimizer2, resumed)
	if err != nil {
		t.Fatal(err)
	}
	if loop2.startUpdate != 1 {
		t.Errorf("expected resume at update 1, got %d", loop2.startUpdate)
	}
	// Checkpoint 1 was taken during update 1, after its 4 transitions.
	if got := loop2.StepCount(); got != 8 {
		t.Errorf("expected 8 transitions restored, got %d", got)
	}
	if err := loop2.Run(); err != nil {
		t.Fatal(err)
	}
}

// TestLoopResumeMissingCheckpoint checks that the training path fails
// fast when the named resume checkpoint does not exist.
func TestLoopResumeMissingCheckpoint(t *testing.T) {
	batch := newTestBatch(t, 1)
	optimizer := newTestOptimizer(t, batch)

	config := Config{
		TotalUpdates:       2,
		NumSteps:           4,
		Gamma:              0.99,
		Tau:                0.95,
		LogInterval:        1,
		CheckpointInterval: 1,
		CheckpointFolder:   t.TempDir(),
		StatsWindowSize:    4,
		ResumeFrom:         filepath.Join(t.TempDir(), "ckpt.7.bin"),
	}

	if _, err := NewLoop(batch, optimizer, config); err == nil {
		t.Error("expected error resuming from a missing checkpoint")
	}
}
