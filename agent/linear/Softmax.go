// Package linear implements policies and optimizers using linear
// function approximation. The softmax policy here doubles as the
// untrained fallback the evaluation path uses when no checkpoint
// exists: with zero weights it selects actions uniformly at random.
package linear

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/sachinb20/IntExpl4HiddenObject/utils/floatutils"
)

// Softmax is a Boltzmann policy over linear action preferences with a
// linear state-value head. It carries no recurrent state; the single
// placeholder hidden unit exists only to keep batch arrays uniform.
type Softmax struct {
	weights      *mat.Dense    // actions x features
	valueWeights *mat.VecDense // features

	features int
	actions  int

	rng  *rand.Rand
	eval bool
}

// NewSoftmax creates a zero-initialized softmax policy for the given
// observation and action space sizes.
func NewSoftmax(features, actions int, seed uint64) (*Softmax, error) {
	if features < 1 || actions < 2 {
		return nil, fmt.Errorf("newSoftmax: need at least 1 feature and 2 "+
			"actions, have %d and %d", features, actions)
	}
	return &Softmax{
		weights:      mat.NewDense(actions, features, nil),
		valueWeights: mat.NewVecDense(features, nil),
		features:     features,
		actions:      actions,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// HiddenSize returns the per-environment recurrent state length.
func (s *Softmax) HiddenSize() int { return 1 }

// Eval sets the policy to evaluation mode.
func (s *Softmax) Eval() { s.eval = true }

// Train sets the policy to training mode.
func (s *Softmax) Train() { s.eval = false }

// IsEval indicates whether the policy is in evaluation mode.
func (s *Softmax) IsEval() bool { return s.eval }

// NumParameters returns the learnable parameter count.
func (s *Softmax) NumParameters() int {
	return s.actions*s.features + s.features
}

// probs returns the action distribution in a state.
func (s *Softmax) probs(obs mat.Vector) []float64 {
	logits := make([]float64, s.actions)
	for a := 0; a < s.actions; a++ {
		logits[a] = mat.Dot(s.weights.RowView(a), obs)
	}

	// Shift by the max logit for numerical stability
	max := floatutils.Max(logits...)
	sum := 0.0
	probs := make([]float64, s.actions)
	for a, l := range logits {
		probs[a] = math.Exp(l - max)
		sum += probs[a]
	}
	for a := range probs {
		probs[a] /= sum
	}
	return probs
}

// value returns the state-value estimate in a state.
func (s *Softmax) value(obs mat.Vector) float64 {
	return mat.Dot(s.valueWeights, obs)
}

// sample draws an action index from a distribution.
func (s *Softmax) sample(probs []float64) int {
	u := s.rng.Float64()
	cumulative := 0.0
	for a, p := range probs {
		cumulative += p
		if u < cumulative {
			return a
		}
	}
	return len(probs) - 1
}

// Act samples one action per environment. The recurrent state passes
// through unchanged.
func (s *Softmax) Act(obs []mat.Vector, hidden []*mat.VecDense,
	prevActions []int, masks []float64, deterministic bool) ([]float64,
	[]int, []float64, []*mat.VecDense, error) {

	if len(obs) != len(hidden) || len(obs) != len(prevActions) ||
		len(obs) != len(masks) {
		return nil, nil, nil, nil, fmt.Errorf("act: batch arrays must " +
			"have one entry per environment")
	}

	n := len(obs)
	values := make([]float64, n)
	actions := make([]int, n)
	logProbs := make([]float64, n)
	for i := 0; i < n; i++ {
		probs := s.probs(obs[i])
		var a int
		if deterministic {
			_, indices := floatutils.MaxSlice(probs)
			a = indices[0]
		} else {
			a = s.sample(probs)
		}
		actions[i] = a
		logProbs[i] = math.Log(probs[a])
		values[i] = s.value(obs[i])
	}
	return values, actions, logProbs, hidden, nil
}

// GetValue runs the value head only.
func (s *Softmax) GetValue(obs []mat.Vector, hidden []*mat.VecDense,
	prevActions []int, masks []float64) ([]float64, error) {

	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = s.value(o)
	}
	return values, nil
}

// softmaxState is the serialized form of a Softmax policy.
type softmaxState struct {
	Weights      []float64
	ValueWeights []float64
	Actions      int
	Features     int
}

// StateDict serializes the policy parameters.
func (s *Softmax) StateDict() ([]byte, error) {
	state := softmaxState{
		Weights:      append([]float64(nil), s.weights.RawMatrix().Data...),
		ValueWeights: append([]float64(nil), s.valueWeights.RawVector().Data...),
		Actions:      s.actions,
		Features:     s.features,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("stateDict: %v", err)
	}
	return buf.Bytes(), nil
}

// LoadStateDict restores serialized policy parameters.
func (s *Softmax) LoadStateDict(data []byte) error {
	var state softmaxState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("loadStateDict: %v", err)
	}
	if state.Actions != s.actions || state.Features != s.features {
		return fmt.Errorf("loadStateDict: state is %dx%d, want %dx%d",
			state.Actions, state.Features, s.actions, s.features)
	}
	s.weights = mat.NewDense(s.actions, s.features, state.Weights)
	s.valueWeights = mat.NewVecDense(s.features, state.ValueWeights)
	return nil
}
