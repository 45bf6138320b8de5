// Package evaluation runs a trained policy over a schedule of episodes
// while one of three intervention state machines watches for reward and
// success signals, injects scripted interactions, and serializes the
// labeled trajectories of every completed episode for offline use.
package evaluation

import (
	"fmt"
	"log"
	"math"
	"path/filepath"

	"golang.org/x/exp/rand"

	"github.com/sachinb20/IntExpl4HiddenObject/agent"
	"github.com/sachinb20/IntExpl4HiddenObject/checkpoint"
	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// Config configures an evaluation run.
type Config struct {
	Variant        Variant
	TargetEpisodes int

	// CheckpointFile names the policy weights to evaluate. A missing
	// or unreadable file is not fatal: the run proceeds with the
	// policy as constructed and logs a warning.
	CheckpointFile string

	// OutputDir is the root the variant's artifact directory is
	// created under.
	OutputDir string

	// Actions maps the policy's action indices to action names.
	Actions *env.ActionSet

	Seed uint64
}

// Validate checks the configuration for a runnable evaluation.
func (c Config) Validate() error {
	if c.TargetEpisodes < 1 {
		return fmt.Errorf("validate: targetEpisodes must be positive, "+
			"have %d", c.TargetEpisodes)
	}
	if c.Actions == nil {
		return fmt.Errorf("validate: no action set given")
	}
	return nil
}

// Evaluator drives the shared evaluation loop with one variant's
// intervention overlaid.
type Evaluator struct {
	config Config
	envs   env.VecEnv
	policy agent.Policy

	intervention intervention
	state        *batchState
	lastActions  []int

	// recorded tracks artifact names already written, so environments
	// scheduled onto an already-recorded episode are retired.
	recorded map[string]bool
}

// New creates an evaluator over a single-environment batch. The
// intervention state machines act on environment slot 0 only, so a
// larger batch is rejected outright.
func New(envs env.VecEnv, policy agent.Policy, config Config) (*Evaluator,
	error) {

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if envs.NumEnvs() != 1 {
		return nil, fmt.Errorf("new: interventions require exactly 1 "+
			"environment, have %d", envs.NumEnvs())
	}

	rng := rand.New(rand.NewSource(config.Seed))
	intervention, err := newIntervention(config.Variant, rng)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &Evaluator{
		config:       config,
		envs:         envs,
		policy:       policy,
		intervention: intervention,
		recorded:     make(map[string]bool),
	}, nil
}

// ArtifactDir returns the directory episode records are written to.
func (e *Evaluator) ArtifactDir() string {
	return filepath.Join(e.config.OutputDir, e.config.Variant.subdir())
}

// loadPolicy restores checkpointed weights when available. Absence is
// tolerated: evaluation proceeds with the policy as constructed.
func (e *Evaluator) loadPolicy() error {
	if e.config.CheckpointFile == "" {
		return nil
	}
	ckpt, err := checkpoint.Load(e.config.CheckpointFile)
	if err != nil {
		log.Printf("warning: could not load checkpoint %q, evaluating "+
			"an untrained policy: %v", e.config.CheckpointFile, err)
		return nil
	}
	if err := e.policy.LoadStateDict(ckpt.PolicyState); err != nil {
		return fmt.Errorf("loadPolicy: %v", err)
	}
	return nil
}

// finishEpisode saves the completed record, retires the environment if
// its next scheduled episode was already recorded, and otherwise
// resets the record for the new episode. It returns the episode's
// total reward.
func (e *Evaluator) finishEpisode(record *EpisodeRecord) (float64, error) {
	record.Reward = e.state.cumulativeReward[0]
	e.state.cumulativeReward[0] = 0.0

	if err := record.Save(e.ArtifactDir()); err != nil {
		return 0, fmt.Errorf("finishEpisode: %v", err)
	}
	e.recorded[ArtifactName(env.Episode{
		SceneID: record.Scene, EpisodeID: record.Episode,
	})] = true
	reward := record.Reward

	next := e.envs.CurrentEpisodes()[0]
	if e.recorded[ArtifactName(next)] {
		if err := e.state.pause(e.envs, 0); err != nil {
			return 0, fmt.Errorf("finishEpisode: %v", err)
		}
	} else {
		record.Reset(next)
	}
	return reward, nil
}

// Run evaluates until the target number of episodes has been recorded
// or every environment has been retired. It returns the mean reward of
// the completed episodes, NaN when none completed.
func (e *Evaluator) Run() (float64, error) {
	if err := e.loadPolicy(); err != nil {
		return math.NaN(), fmt.Errorf("run: %v", err)
	}
	e.policy.Eval()

	obs, err := e.envs.Reset()
	if err != nil {
		return math.NaN(), fmt.Errorf("run: %v", err)
	}
	e.state = newBatchState(obs, e.policy.HiddenSize())

	record := &EpisodeRecord{}
	record.Reset(e.envs.CurrentEpisodes()[0])

	completed := 0
	rewardSum := 0.0
	for completed < e.config.TargetEpisodes && e.envs.NumEnvs() > 0 {
		_, actions, _, nextHidden, err := e.policy.Act(e.state.obs,
			e.state.hidden, e.state.prevActions, e.state.masks, false)
		if err != nil {
			return math.NaN(), fmt.Errorf("run: %v", err)
		}
		e.lastActions = actions

		results, err := e.envs.Step(actions)
		if err != nil {
			return math.NaN(), fmt.Errorf("run: %v", err)
		}

		name, err := e.config.Actions.Name(actions[0])
		if err != nil {
			return math.NaN(), fmt.Errorf("run: %v", err)
		}
		ctx := stepContext{
			action:  name,
			prevObs: e.state.obs[0],
			result:  results[0],
			step:    record.Length,
		}

		replay, err := e.intervention.apply(e, ctx, record)
		if err != nil {
			return math.NaN(), fmt.Errorf("run: %v", err)
		}

		e.state.hidden = nextHidden
		e.state.absorb(results, actions)
		record.Length++

		final := results[0]
		if replay != nil {
			e.state.absorb(replay, actions)
			record.Length++
			final = replay[0]
		}

		if final.Done {
			reward, err := e.finishEpisode(record)
			if err != nil {
				return math.NaN(), fmt.Errorf("run: %v", err)
			}
			rewardSum += reward
			completed++
		}
	}

	if err := e.envs.Close(); err != nil {
		return math.NaN(), fmt.Errorf("run: %v", err)
	}

	mean := math.NaN()
	if completed > 0 {
		mean = rewardSum / float64(completed)
	}
	log.Printf("%v evaluation: %d episodes, mean reward %.3f",
		e.config.Variant, completed, mean)
	return mean, nil
}
