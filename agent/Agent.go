// Package agent defines the contracts of the learned collaborators the
// control loops drive: the actor-critic policy that samples actions and
// estimates state values, and the optimizer that consumes filled rollout
// windows.
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/sachinb20/IntExpl4HiddenObject/rollout"
)

// Policy chooses actions for a batch of environments and estimates the
// value of the batched states. Implementations carry their own model;
// the control loops never inspect it beyond this interface.
//
// Recurrent state is carried per environment slot as a vector, so that
// pausing a slot only removes the matching index. Policies without
// recurrent state still return a placeholder vector per slot;
// HiddenSize must be at least 1.
type Policy interface {
	// Act samples one action per environment given the batched
	// observation, recurrent state, previous action, and continuation
	// mask. When deterministic is true the mode of the action
	// distribution is returned instead of a sample. No gradient
	// bookkeeping happens here.
	Act(obs []mat.Vector, hidden []*mat.VecDense, prevActions []int,
		masks []float64, deterministic bool) (values []float64,
		actions []int, logProbs []float64, nextHidden []*mat.VecDense,
		err error)

	// GetValue runs the critic head only, for bootstrapping the value
	// of a window's final state.
	GetValue(obs []mat.Vector, hidden []*mat.VecDense, prevActions []int,
		masks []float64) ([]float64, error)

	HiddenSize() int

	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode

	// StateDict and LoadStateDict serialize the policy's parameters
	// for checkpointing.
	StateDict() ([]byte, error)
	LoadStateDict([]byte) error

	// NumParameters returns the total learnable parameter count.
	NumParameters() int
}

// Optimizer updates a Policy from a filled rollout window. The
// clipped-surrogate math lives behind this interface; the training loop
// only schedules calls and decays the exposed knobs.
type Optimizer interface {
	// Update consumes a window whose returns have been computed and
	// performs one policy update, reporting its losses.
	Update(w *rollout.Window) (valueLoss, actionLoss, entropy float64,
		err error)

	ClipParam() float64
	SetClipParam(float64)

	LearningRate() float64
	SetLearningRate(float64)

	// Policy returns the policy this optimizer updates.
	Policy() Policy
}
