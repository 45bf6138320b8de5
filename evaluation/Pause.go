package evaluation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// batchState is the per-environment state the evaluation loop carries
// between steps. Every field is indexed by environment slot; removing
// a slot must drop the same index from every field at once so the
// arrays stay aligned with the vectorized batch.
type batchState struct {
	obs              []mat.Vector
	hidden           []*mat.VecDense
	masks            []float64
	prevActions      []int
	cumulativeReward []float64
}

// newBatchState initializes carried state for numEnvs environments:
// zero recurrent state, zero masks, zero previous actions.
func newBatchState(obs []mat.Vector, hiddenSize int) *batchState {
	numEnvs := len(obs)
	hidden := make([]*mat.VecDense, numEnvs)
	for i := range hidden {
		hidden[i] = mat.NewVecDense(hiddenSize, nil)
	}
	return &batchState{
		obs:              obs,
		hidden:           hidden,
		masks:            make([]float64, numEnvs),
		prevActions:      make([]int, numEnvs),
		cumulativeReward: make([]float64, numEnvs),
	}
}

func (s *batchState) numEnvs() int { return len(s.obs) }

// pause retires one environment slot: the environment leaves the
// vectorized batch and the matching index is removed from every
// carried array, preserving the alignment of the remaining slots.
func (s *batchState) pause(envs env.VecEnv, slot int) error {
	if slot < 0 || slot >= len(s.obs) {
		return fmt.Errorf("pause: slot %d out of range [0, %d)", slot,
			len(s.obs))
	}
	if err := envs.Pause(slot); err != nil {
		return fmt.Errorf("pause: %v", err)
	}

	s.obs = append(s.obs[:slot], s.obs[slot+1:]...)
	s.hidden = append(s.hidden[:slot], s.hidden[slot+1:]...)
	s.masks = append(s.masks[:slot], s.masks[slot+1:]...)
	s.prevActions = append(s.prevActions[:slot], s.prevActions[slot+1:]...)
	s.cumulativeReward = append(s.cumulativeReward[:slot],
		s.cumulativeReward[slot+1:]...)
	return nil
}

// absorb folds one batch of step results into the carried state.
func (s *batchState) absorb(results []env.StepResult, actions []int) {
	for i, result := range results {
		s.obs[i] = result.Observation
		if result.Done {
			s.masks[i] = 0.0
		} else {
			s.masks[i] = 1.0
		}
		s.cumulativeReward[i] += result.Reward
		s.prevActions[i] = actions[i]
	}
}
