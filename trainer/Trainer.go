// Package trainer drives on-policy training: it steps a vectorized
// batch of environments, fills rollout windows, schedules policy
// updates with linearly decayed learning rate and clip threshold, and
// emits smoothed metrics and periodic checkpoints.
package trainer

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/sachinb20/IntExpl4HiddenObject/agent"
	"github.com/sachinb20/IntExpl4HiddenObject/checkpoint"
	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
	"github.com/sachinb20/IntExpl4HiddenObject/rollout"
	"github.com/sachinb20/IntExpl4HiddenObject/tracker"
	"github.com/sachinb20/IntExpl4HiddenObject/utils/progressbar"
)

// LinearDecay returns the linear decay factor for a given update
// index: 1.0 at update 0, 0.0 at totalUpdates, clamped below at zero.
func LinearDecay(update, totalUpdates int) float64 {
	factor := 1.0 - float64(update)/float64(totalUpdates)
	if factor < 0.0 {
		return 0.0
	}
	return factor
}

// Config holds the hyperparameters of a training run.
type Config struct {
	TotalUpdates int `json:"totalUpdates"`
	NumSteps     int `json:"numSteps"`

	Gamma  float64 `json:"gamma"`
	Tau    float64 `json:"tau"`
	UseGAE bool    `json:"useGAE"`

	DecayLearningRate bool `json:"decayLearningRate"`
	DecayClipParam    bool `json:"decayClipParam"`

	LogInterval        int    `json:"logInterval"`
	CheckpointInterval int    `json:"checkpointInterval"`
	CheckpointFolder   string `json:"checkpointFolder"`
	MetricsFile        string `json:"metricsFile"`

	StatsWindowSize  int      `json:"statsWindowSize"`
	MetricsBlacklist []string `json:"metricsBlacklist"`

	// ResumeFrom, when set, names a checkpoint to restore policy
	// weights and the update counter from before training continues. A
	// missing file is an error on this path.
	ResumeFrom string `json:"resumeFrom,omitempty"`

	// ShowProgress draws a terminal progress bar over updates.
	ShowProgress bool `json:"showProgress"`
}

// Validate checks the configuration for a runnable training loop.
func (c Config) Validate() error {
	if c.TotalUpdates < 1 {
		return fmt.Errorf("validate: totalUpdates must be positive, have %d",
			c.TotalUpdates)
	}
	if c.NumSteps < 1 {
		return fmt.Errorf("validate: numSteps must be positive, have %d",
			c.NumSteps)
	}
	if c.Gamma < 0.0 || c.Gamma > 1.0 {
		return fmt.Errorf("validate: gamma must be in [0, 1], have %v",
			c.Gamma)
	}
	if c.Tau < 0.0 || c.Tau > 1.0 {
		return fmt.Errorf("validate: tau must be in [0, 1], have %v", c.Tau)
	}
	if c.LogInterval < 1 {
		return fmt.Errorf("validate: logInterval must be positive, have %d",
			c.LogInterval)
	}
	if c.CheckpointInterval < 1 {
		return fmt.Errorf("validate: checkpointInterval must be positive, "+
			"have %d", c.CheckpointInterval)
	}
	if c.StatsWindowSize < 1 {
		return fmt.Errorf("validate: statsWindowSize must be positive, "+
			"have %d", c.StatsWindowSize)
	}
	return nil
}

// Loop runs on-policy training to a fixed number of policy updates.
type Loop struct {
	config    Config
	envs      env.VecEnv
	optimizer agent.Optimizer

	window *rollout.Window
	stats  *tracker.Stats
	writer *tracker.ScalarWriter

	runID          uuid.UUID
	startUpdate    int
	stepCount      int
	baseLearning   float64
	baseClip       float64
	nextCheckpoint func() string

	envTime     time.Duration
	computeTime time.Duration
}

// NewLoop assembles a training loop over the given environments and
// optimizer. When the configuration names a resume checkpoint, the
// policy weights, update counter, and cumulative step count are
// restored from it; a missing resume checkpoint is an error.
func NewLoop(envs env.VecEnv, optimizer agent.Optimizer,
	config Config) (*Loop, error) {

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newLoop: %v", err)
	}

	policy := optimizer.Policy()
	window, err := rollout.NewWindow(config.NumSteps, envs.NumEnvs(),
		envs.ObservationSize(), policy.HiddenSize())
	if err != nil {
		return nil, fmt.Errorf("newLoop: %v", err)
	}

	stats, err := tracker.NewStats(envs.NumEnvs(), config.StatsWindowSize,
		config.MetricsBlacklist)
	if err != nil {
		return nil, fmt.Errorf("newLoop: %v", err)
	}

	var writer *tracker.ScalarWriter
	if config.MetricsFile != "" {
		writer, err = tracker.NewScalarWriter(config.MetricsFile)
		if err != nil {
			return nil, fmt.Errorf("newLoop: %v", err)
		}
	}

	loop := &Loop{
		config:       config,
		envs:         envs,
		optimizer:    optimizer,
		window:       window,
		stats:        stats,
		writer:       writer,
		runID:        uuid.New(),
		baseLearning: optimizer.LearningRate(),
		baseClip:     optimizer.ClipParam(),
	}

	checkpointSeq := 0
	if config.ResumeFrom != "" {
		ckpt, err := checkpoint.Load(config.ResumeFrom)
		if err != nil {
			return nil, fmt.Errorf("newLoop: could not resume: %v", err)
		}
		if err := policy.LoadStateDict(ckpt.PolicyState); err != nil {
			return nil, fmt.Errorf("newLoop: could not restore policy: %v",
				err)
		}
		loop.startUpdate = ckpt.UpdateIndex
		loop.stepCount = ckpt.StepCount
		loop.runID = ckpt.RunID
		checkpointSeq = ckpt.UpdateIndex/config.CheckpointInterval + 1
	}
	loop.nextCheckpoint = checkpoint.FilenameEnumerator(
		config.CheckpointFolder, checkpointSeq)

	return loop, nil
}

// StepCount returns the total environment transitions consumed so far.
func (l *Loop) StepCount() int { return l.stepCount }

// collect fills the rollout window with numSteps lock-step
// transitions, updating running statistics as it goes.
func (l *Loop) collect() error {
	policy := l.optimizer.Policy()
	numEnvs := l.envs.NumEnvs()

	for l.window.Step() < l.config.NumSteps {
		t := l.window.Step()

		computeStart := time.Now()
		values, actions, logProbs, nextHidden, err := policy.Act(
			l.window.StepObservations(t), l.window.StepHidden(t),
			l.window.StepPrevActions(t), l.window.StepMasks(t), false)
		l.computeTime += time.Since(computeStart)
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}

		envStart := time.Now()
		results, err := l.envs.Step(actions)
		l.envTime += time.Since(envStart)
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}

		obs := make([]mat.Vector, numEnvs)
		rewards := make([]float64, numEnvs)
		masks := make([]float64, numEnvs)
		infos := make([]env.Info, numEnvs)
		for i, result := range results {
			obs[i] = result.Observation
			rewards[i] = result.Reward
			if result.Done {
				masks[i] = 0.0
			} else {
				masks[i] = 1.0
			}
			infos[i] = result.Info
		}

		if err := l.stats.Update(rewards, masks, infos); err != nil {
			return fmt.Errorf("collect: %v", err)
		}
		if err := l.window.Insert(obs, nextHidden, actions, logProbs,
			values, rewards, masks); err != nil {
			return fmt.Errorf("collect: %v", err)
		}
		l.stepCount += numEnvs
	}
	return nil
}

// saveCheckpoint persists the current policy and run state under the
// next enumerated checkpoint filename.
func (l *Loop) saveCheckpoint(update int) error {
	policyState, err := l.optimizer.Policy().StateDict()
	if err != nil {
		return fmt.Errorf("saveCheckpoint: %v", err)
	}
	configJSON, err := json.Marshal(l.config)
	if err != nil {
		return fmt.Errorf("saveCheckpoint: %v", err)
	}

	ckpt := &checkpoint.Checkpoint{
		PolicyState: policyState,
		Config:      configJSON,
		UpdateIndex: update,
		StepCount:   l.stepCount,
		RunID:       l.runID,
		WallTime:    time.Now(),
	}
	if err := ckpt.Save(l.nextCheckpoint()); err != nil {
		return fmt.Errorf("saveCheckpoint: %v", err)
	}
	return nil
}

// recordScalars writes the training series for one policy update. All
// series are keyed by the cumulative environment-step count so that
// curves from runs with different batch shapes line up.
func (l *Loop) recordScalars(report map[string]float64, valueLoss,
	actionLoss, entropy float64) {

	if l.writer == nil {
		return
	}
	l.writer.AddScalar("reward", l.stepCount, report["reward"])
	l.writer.AddScalar("value_loss", l.stepCount, valueLoss)
	l.writer.AddScalar("policy_loss", l.stepCount, actionLoss)
	l.writer.AddScalar("dist_entropy", l.stepCount, entropy)
	for key, value := range report {
		if key == "reward" || key == "count" {
			continue
		}
		l.writer.AddScalar("metrics/"+key, l.stepCount, value)
	}
}

// logProgress prints throughput and smoothed window metrics.
func (l *Loop) logProgress(update int, start time.Time,
	report map[string]float64) {

	elapsed := time.Since(start).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(l.stepCount) / elapsed
	}
	log.Printf("update %d\tfps %.0f\tenv-time %.1fs\tcompute-time %.1fs",
		update, fps, l.envTime.Seconds(), l.computeTime.Seconds())
	log.Printf("update %d\twindow of %d snapshots, %.0f episodes: "+
		"reward %.3f", update, l.stats.WindowLen(), report["count"],
		report["reward"])

	if l.writer != nil {
		l.writer.AddScalar("fps", l.stepCount, fps)
	}
}

// Run executes the configured number of policy updates, then closes
// the environments. Environment or policy failures propagate
// immediately and terminate the run.
func (l *Loop) Run() error {
	policy := l.optimizer.Policy()
	policy.Train()

	firstObs, err := l.envs.Reset()
	if err != nil {
		return fmt.Errorf("run: %v", err)
	}
	if err := l.window.SetFirstObservation(firstObs); err != nil {
		return fmt.Errorf("run: %v", err)
	}

	var bar *progressbar.ProgressBar
	if l.config.ShowProgress {
		bar = progressbar.New(65, l.config.TotalUpdates)
		bar.Display()
	}

	start := time.Now()
	for update := l.startUpdate; update < l.config.TotalUpdates; update++ {
		decay := LinearDecay(update, l.config.TotalUpdates)
		if l.config.DecayLearningRate {
			l.optimizer.SetLearningRate(l.baseLearning * decay)
		}
		if l.config.DecayClipParam {
			l.optimizer.SetClipParam(l.baseClip * decay)
		}

		if err := l.collect(); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		computeStart := time.Now()
		last := l.config.NumSteps
		nextValue, err := policy.GetValue(l.window.StepObservations(last),
			l.window.StepHidden(last), l.window.StepPrevActions(last),
			l.window.StepMasks(last))
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if err := l.window.ComputeReturns(nextValue, l.config.UseGAE,
			l.config.Gamma, l.config.Tau); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		valueLoss, actionLoss, entropy, err := l.optimizer.Update(l.window)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		l.window.AfterUpdate()
		l.computeTime += time.Since(computeStart)

		l.stats.Snapshot()
		if bar != nil {
			bar.Increment()
			bar.Display()
		}

		report := l.stats.Report()
		l.recordScalars(report, valueLoss, actionLoss, entropy)
		if update%l.config.LogInterval == 0 {
			l.logProgress(update, start, report)
		}
		if update%l.config.CheckpointInterval == 0 {
			if err := l.saveCheckpoint(update); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if l.writer != nil {
		if err := l.writer.Save(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}
	if err := l.envs.Close(); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	return nil
}
