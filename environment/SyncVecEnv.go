package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SyncVecEnv drives a batch of Envs synchronously in lock-step. Slots
// can be paused as their episode budgets run out; surviving slots keep
// their original relative order so that co-indexed state held by the
// caller stays aligned after removing the same index.
type SyncVecEnv struct {
	envs []Env
}

// NewSyncVecEnv creates a vectorized batch over the argument
// environments. All environments must share observation and action
// layouts.
func NewSyncVecEnv(envs []Env) (*SyncVecEnv, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newSyncVecEnv: no environments given")
	}
	obsSize := envs[0].ObservationSize()
	actions := envs[0].ActionCount()
	for i, e := range envs[1:] {
		if e.ObservationSize() != obsSize || e.ActionCount() != actions {
			return nil, fmt.Errorf("newSyncVecEnv: environment %d has "+
				"mismatched spaces", i+1)
		}
	}
	return &SyncVecEnv{envs: envs}, nil
}

// NumEnvs returns the number of active environment slots. It shrinks as
// slots are paused.
func (v *SyncVecEnv) NumEnvs() int { return len(v.envs) }

// ObservationSize returns the per-environment observation length.
func (v *SyncVecEnv) ObservationSize() int {
	return v.envs[0].ObservationSize()
}

// ActionCount returns the size of the discrete action space.
func (v *SyncVecEnv) ActionCount() int { return v.envs[0].ActionCount() }

// Reset resets every active slot and returns the first observations in
// slot order.
func (v *SyncVecEnv) Reset() ([]mat.Vector, error) {
	obs := make([]mat.Vector, len(v.envs))
	for i, e := range v.envs {
		o, err := e.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset: environment %d: %v", i, err)
		}
		obs[i] = o
	}
	return obs, nil
}

// Step advances every active slot by one transition. Exactly one action
// per slot is required.
func (v *SyncVecEnv) Step(actions []int) ([]StepResult, error) {
	if len(actions) != len(v.envs) {
		return nil, fmt.Errorf("step: have %d actions for %d environments",
			len(actions), len(v.envs))
	}
	results := make([]StepResult, len(v.envs))
	for i, e := range v.envs {
		r, err := e.Step(actions[i])
		if err != nil {
			return nil, fmt.Errorf("step: environment %d: %v", i, err)
		}
		results[i] = r
	}
	return results, nil
}

// Act performs a scripted interaction on slot 0.
func (v *SyncVecEnv) Act(name ActionName) (ActResult, error) {
	return v.envs[0].Act(name)
}

// CurrentEpisodes returns the episode identity of every active slot.
func (v *SyncVecEnv) CurrentEpisodes() []Episode {
	episodes := make([]Episode, len(v.envs))
	for i, e := range v.envs {
		episodes[i] = e.CurrentEpisode()
	}
	return episodes
}

// Pause removes a slot from the active batch, closing its environment.
func (v *SyncVecEnv) Pause(slot int) error {
	if slot < 0 || slot >= len(v.envs) {
		return fmt.Errorf("pause: slot %d out of range [0, %d)", slot,
			len(v.envs))
	}
	if err := v.envs[slot].Close(); err != nil {
		return fmt.Errorf("pause: close slot %d: %v", slot, err)
	}
	v.envs = append(v.envs[:slot], v.envs[slot+1:]...)
	return nil
}

// Close closes every remaining active environment.
func (v *SyncVecEnv) Close() error {
	for i, e := range v.envs {
		if err := e.Close(); err != nil {
			return fmt.Errorf("close: environment %d: %v", i, err)
		}
	}
	v.envs = nil
	return nil
}
