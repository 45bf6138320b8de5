package hiddenobject

import (
	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// Task implements the reward scheme for interacting with hidden objects.
// Each event maps to a reward magnitude and a named signal; consumers
// should branch on the signal, the magnitude exists for return
// computation only.
type Task struct {
	RevealReward float64
	RevealSignal env.RewardSignal

	AcquireReward float64
	BonusReward   float64

	StepReward float64
}

// NewInteractionTask returns the reward scheme used when the policy
// itself manipulates objects: revealing the hiding receptacle signals
// an opened container, and acquiring an object signals a pick.
func NewInteractionTask() Task {
	return Task{
		RevealReward:  1.0,
		RevealSignal:  env.SignalOpenedContainer,
		AcquireReward: 2.0,
		BonusReward:   5.0,
	}
}

// NewCoverageTask returns the reward scheme used when the policy only
// navigates and reveals: exposing the target signals visibility, and
// any acquisition happens through scripted interventions.
func NewCoverageTask() Task {
	return Task{
		RevealReward:  1.0,
		RevealSignal:  env.SignalTargetVisible,
		AcquireReward: 2.0,
		BonusReward:   5.0,
	}
}

// reveal returns the reward and signal for exposing the target.
func (t Task) reveal() (float64, env.RewardSignal) {
	return t.RevealReward, t.RevealSignal
}

// acquire returns the reward and signal for picking up an object.
func (t Task) acquire(bonus bool) (float64, env.RewardSignal) {
	if bonus {
		return t.BonusReward, env.SignalObjectBonus
	}
	return t.AcquireReward, env.SignalObjectAcquired
}
