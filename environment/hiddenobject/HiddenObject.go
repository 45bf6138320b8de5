// Package hiddenobject implements a deterministic room environment in
// which target objects are hidden inside a row of closed receptacles.
// The agent navigates along the row, opens and closes receptacles, and
// takes or replaces the objects it uncovers. The package exists so that
// the training and evaluation loops can run end-to-end without the
// production simulator.
package hiddenobject

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// Headings the agent can face. Only headingWall looks at the
// receptacles; turning right cycles through the headings.
const (
	headingWall = iota
	headingRight
	headingAway
	headingLeft
	numHeadings
)

// Config configures a hidden-object room.
type Config struct {
	// Receptacles is the number of receptacles along the wall.
	Receptacles int

	// TargetAt and BonusAt are the receptacle indices hiding the
	// target and the high-value object. BonusAt < 0 disables the
	// bonus object.
	TargetAt int
	BonusAt  int

	// Cutoff ends an episode after this many steps regardless of
	// progress.
	Cutoff int

	// Episodes is the schedule of episode identities this environment
	// cycles through, in order.
	Episodes []env.Episode

	// Actions is the discrete vocabulary the policy samples from.
	Actions *env.ActionSet
}

// Validate checks a Config for usability.
func (c Config) Validate() error {
	if c.Receptacles < 1 {
		return fmt.Errorf("validate: need at least 1 receptacle, have %d",
			c.Receptacles)
	}
	if c.TargetAt < 0 || c.TargetAt >= c.Receptacles {
		return fmt.Errorf("validate: target index %d out of range [0, %d)",
			c.TargetAt, c.Receptacles)
	}
	if c.BonusAt >= c.Receptacles {
		return fmt.Errorf("validate: bonus index %d out of range [0, %d)",
			c.BonusAt, c.Receptacles)
	}
	if c.Cutoff < 1 {
		return fmt.Errorf("validate: cutoff must be positive, have %d",
			c.Cutoff)
	}
	if len(c.Episodes) == 0 {
		return fmt.Errorf("validate: no episodes scheduled")
	}
	if c.Actions == nil {
		return fmt.Errorf("validate: no action set given")
	}
	return nil
}

// Env is a single hidden-object room. When an episode finishes, the
// room resets itself for the next scheduled episode and the returned
// observation is the first observation of that episode.
type Env struct {
	Task
	config     Config
	episodeIdx int

	position int // receptacle index currently in front of the agent
	heading  int
	gaze     int // -1 down, 0 level, +1 up

	opened      []bool
	targetTaken bool
	bonusTaken  bool
	holding     bool

	stepNum int
	closed  bool
}

// New creates a hidden-object room running the first scheduled episode.
func New(task Task, config Config) (*Env, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	e := &Env{
		Task:   task,
		config: config,
		opened: make([]bool, config.Receptacles),
	}
	e.resetState()
	return e, nil
}

// resetState restores the room to the start of an episode.
func (e *Env) resetState() {
	e.position = 0
	e.heading = headingWall
	e.gaze = 0
	for i := range e.opened {
		e.opened[i] = false
	}
	e.targetTaken = false
	e.bonusTaken = false
	e.holding = false
	e.stepNum = 0
}

// Reset begins a fresh run of the current scheduled episode.
func (e *Env) Reset() (mat.Vector, error) {
	if e.closed {
		return nil, fmt.Errorf("reset: environment closed")
	}
	e.resetState()
	return e.observation(), nil
}

// CurrentEpisode returns the identity of the running episode.
func (e *Env) CurrentEpisode() env.Episode {
	return e.config.Episodes[e.episodeIdx%len(e.config.Episodes)]
}

// ObservationSize returns the length of observation vectors.
func (e *Env) ObservationSize() int {
	// position one-hot, opened flags, heading one-hot, gaze one-hot,
	// target-visible and holding flags
	return 2*e.config.Receptacles + numHeadings + 3 + 2
}

// ActionCount returns the size of the discrete action space.
func (e *Env) ActionCount() int { return e.config.Actions.Len() }

// observation encodes the room state as a flat feature vector.
func (e *Env) observation() mat.Vector {
	n := e.config.Receptacles
	obs := make([]float64, e.ObservationSize())
	obs[e.position] = 1.0
	for i, open := range e.opened {
		if open {
			obs[n+i] = 1.0
		}
	}
	obs[2*n+e.heading] = 1.0
	obs[2*n+numHeadings+e.gaze+1] = 1.0
	if e.targetVisible() {
		obs[2*n+numHeadings+3] = 1.0
	}
	if e.holding {
		obs[2*n+numHeadings+4] = 1.0
	}
	return mat.NewVecDense(len(obs), obs)
}

// targetVisible reports whether the target object is currently exposed.
func (e *Env) targetVisible() bool {
	return e.opened[e.config.TargetAt] && !e.targetTaken
}

// facingReceptacle reports whether interactions with the receptacle in
// front of the agent can succeed.
func (e *Env) facingReceptacle() bool {
	return e.heading == headingWall && e.gaze == 0
}

// metadata captures the interaction-relevant state, mirroring the
// nested metadata payloads the production simulator attaches to steps.
func (e *Env) metadata() env.Info {
	openCount := 0.0
	for _, open := range e.opened {
		if open {
			openCount++
		}
	}
	return env.Info{
		"agent": env.Info{
			"position": float64(e.position),
			"heading":  float64(e.heading),
			"gaze":     float64(e.gaze),
		},
		"scene": env.Info{
			"open_count":     openCount,
			"target_visible": boolToFloat(e.targetVisible()),
			"holding":        boolToFloat(e.holding),
		},
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// apply performs the mechanics of one named action and returns its
// reward, signal, and whether its precondition was met.
func (e *Env) apply(name env.ActionName) (float64, env.RewardSignal, bool) {
	switch name {
	case env.Forward:
		switch e.heading {
		case headingRight:
			if e.position+1 < e.config.Receptacles {
				e.position++
				return e.StepReward, env.SignalNone, true
			}
		case headingLeft:
			if e.position > 0 {
				e.position--
				return e.StepReward, env.SignalNone, true
			}
		}
		return e.StepReward, env.SignalNone, false

	case env.Up:
		if e.gaze < 1 {
			e.gaze++
			return e.StepReward, env.SignalNone, true
		}
		return e.StepReward, env.SignalNone, false

	case env.Down:
		if e.gaze > -1 {
			e.gaze--
			return e.StepReward, env.SignalNone, true
		}
		return e.StepReward, env.SignalNone, false

	case env.TurnRight:
		e.heading = (e.heading + 1) % numHeadings
		return e.StepReward, env.SignalNone, true

	case env.TurnLeft:
		e.heading = (e.heading + numHeadings - 1) % numHeadings
		return e.StepReward, env.SignalNone, true

	case env.Open:
		if !e.facingReceptacle() || e.opened[e.position] {
			return e.StepReward, env.SignalNone, false
		}
		e.opened[e.position] = true
		if e.position == e.config.TargetAt && !e.targetTaken {
			reward, signal := e.reveal()
			return reward, signal, true
		}
		return e.StepReward, env.SignalNone, true

	case env.Close:
		if !e.facingReceptacle() || !e.opened[e.position] {
			return e.StepReward, env.SignalNone, false
		}
		e.opened[e.position] = false
		return e.StepReward, env.SignalNone, true

	case env.Take:
		if !e.facingReceptacle() || !e.opened[e.position] || e.holding {
			return e.StepReward, env.SignalNone, false
		}
		if e.position == e.config.TargetAt && !e.targetTaken {
			e.targetTaken = true
			e.holding = true
			reward, signal := e.acquire(false)
			return reward, signal, true
		}
		if e.position == e.config.BonusAt && !e.bonusTaken {
			e.bonusTaken = true
			e.holding = true
			reward, signal := e.acquire(true)
			return reward, signal, true
		}
		return e.StepReward, env.SignalNone, false

	case env.Put:
		if !e.holding {
			return e.StepReward, env.SignalNone, false
		}
		e.holding = false
		return e.StepReward, env.SignalNone, true
	}

	return e.StepReward, env.SignalNone, false
}

// Step advances the episode by one sampled action. A finished episode
// rolls the environment over to the next scheduled episode; the
// returned observation then belongs to the new episode.
func (e *Env) Step(action int) (env.StepResult, error) {
	if e.closed {
		return env.StepResult{}, fmt.Errorf("step: environment closed")
	}
	name, err := e.config.Actions.Name(action)
	if err != nil {
		return env.StepResult{}, fmt.Errorf("step: %v", err)
	}

	prevMeta := e.metadata()
	reward, signal, success := e.apply(name)
	e.stepNum++

	done := e.targetTaken || e.stepNum >= e.config.Cutoff

	info := env.Info{
		"success":       success,
		"action":        string(name),
		"prev_metadata": prevMeta,
		"next_metadata": e.metadata(),
		"progress": env.Info{
			"target_taken": boolToFloat(e.targetTaken),
			"bonus_taken":  boolToFloat(e.bonusTaken),
		},
	}

	obs := e.observation()
	if done {
		e.episodeIdx++
		e.resetState()
		obs = e.observation()
	}

	return env.StepResult{
		Observation: obs,
		Reward:      reward,
		Signal:      signal,
		Done:        done,
		Info:        info,
	}, nil
}

// Act performs a scripted interaction outside the sampled step cycle.
// It never ends the episode and never advances the step counter.
func (e *Env) Act(name env.ActionName) (env.ActResult, error) {
	if e.closed {
		return env.ActResult{}, fmt.Errorf("act: environment closed")
	}
	prevObs := e.observation()
	prevMeta := e.metadata()
	_, _, success := e.apply(name)
	return env.ActResult{
		Success:      success,
		PrevObs:      prevObs,
		NextObs:      e.observation(),
		PrevMetadata: prevMeta,
		NextMetadata: e.metadata(),
	}, nil
}

// Close marks the environment unusable.
func (e *Env) Close() error {
	e.closed = true
	return nil
}
