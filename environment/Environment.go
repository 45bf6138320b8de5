// Package environment outlines the interfaces needed to drive simulated
// embodied-agent environments, both singly and as a lock-step vectorized
// batch
package environment

import (
	"gonum.org/v1/gonum/mat"
)

// Info holds the auxiliary payload an environment returns on each step.
// Values may be numeric scalars, booleans, strings, or nested Info maps.
type Info map[string]interface{}

// Episode identifies the episode an environment slot is currently
// running. Together, SceneID and EpisodeID are unique within a run.
type Episode struct {
	SceneID   string
	EpisodeID string
}

// StepResult packages everything an environment returns for a single
// transition. Signal tags the reward with its cause so that consumers
// never branch on raw reward magnitudes.
type StepResult struct {
	Observation mat.Vector
	Reward      float64
	Signal      RewardSignal
	Done        bool
	Info        Info
}

// ActResult is returned by scripted single-environment interactions.
// Success reports whether the interaction's precondition was met. The
// before/after observations and metadata are always populated so that a
// successful attempt can be logged with its full context.
type ActResult struct {
	Success      bool
	PrevObs      mat.Vector
	NextObs      mat.Vector
	PrevMetadata Info
	NextMetadata Info
}

// Env implements a single simulated environment. Environments start
// ready to use; Reset begins a fresh episode and returns its first
// observation.
type Env interface {
	Reset() (mat.Vector, error)
	Step(action int) (StepResult, error)

	// Act performs a named scripted interaction outside the normal
	// step cycle. It never advances the episode's done flag.
	Act(name ActionName) (ActResult, error)

	CurrentEpisode() Episode
	ObservationSize() int
	ActionCount() int
	Close() error
}

// VecEnv drives a batch of environments in lock-step. Every Step call
// advances all active slots by exactly one transition; there is no
// per-slot scheduling. Act applies to slot 0 only.
type VecEnv interface {
	Reset() ([]mat.Vector, error)
	Step(actions []int) ([]StepResult, error)
	Act(name ActionName) (ActResult, error)
	CurrentEpisodes() []Episode

	// Pause removes a slot from the active batch. Surviving slots keep
	// their original relative order, so any state arrays co-indexed
	// with the batch can be shrunk by removing the same index.
	Pause(slot int) error

	NumEnvs() int
	ObservationSize() int
	ActionCount() int
	Close() error
}
