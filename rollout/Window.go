// Package rollout implements fixed-horizon storage for the transitions
// a batch of environments produces between policy updates, including
// the return and advantage targets computed from them.
package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Window stores numSteps transitions for numEnvs lock-step
// environments. Observations, recurrent state, previous actions, and
// continuation masks are stored for numSteps+1 positions so that the
// state following the final transition is available for bootstrapping;
// everything else is per-transition. A single step pointer tracks the
// insertion position; AfterUpdate rolls the final position over to
// position 0 and resets the pointer.
type Window struct {
	numSteps   int
	numEnvs    int
	obsSize    int
	hiddenSize int

	step int

	// Tensors shaped (numSteps+1, numEnvs, featureSize). They own the
	// storage; the flat slices alias their backings for row access, so
	// writes through either side land in the same memory.
	observations *tensor.Dense
	hidden       *tensor.Dense
	obsData      []float64
	hiddenData   []float64

	actions     []int     // numSteps * numEnvs
	prevActions []int     // (numSteps+1) * numEnvs
	logProbs    []float64 // numSteps * numEnvs
	values      []float64 // (numSteps+1) * numEnvs; final row is bootstrap
	rewards     []float64 // numSteps * numEnvs
	returns     []float64 // (numSteps+1) * numEnvs
	masks       []float64 // (numSteps+1) * numEnvs
}

// NewWindow creates an empty rollout window.
func NewWindow(numSteps, numEnvs, obsSize, hiddenSize int) (*Window, error) {
	if numSteps < 1 || numEnvs < 1 {
		return nil, fmt.Errorf("newWindow: need positive dimensions, have "+
			"%d steps x %d envs", numSteps, numEnvs)
	}
	if obsSize < 1 || hiddenSize < 1 {
		return nil, fmt.Errorf("newWindow: need positive feature sizes, "+
			"have obs %d, hidden %d", obsSize, hiddenSize)
	}

	observations := tensor.New(
		tensor.WithShape(numSteps+1, numEnvs, obsSize),
		tensor.Of(tensor.Float64),
	)
	hidden := tensor.New(
		tensor.WithShape(numSteps+1, numEnvs, hiddenSize),
		tensor.Of(tensor.Float64),
	)

	w := &Window{
		numSteps:   numSteps,
		numEnvs:    numEnvs,
		obsSize:    obsSize,
		hiddenSize: hiddenSize,

		observations: observations,
		hidden:       hidden,
		obsData:      observations.Data().([]float64),
		hiddenData:   hidden.Data().([]float64),

		actions:     make([]int, numSteps*numEnvs),
		prevActions: make([]int, (numSteps+1)*numEnvs),
		logProbs:    make([]float64, numSteps*numEnvs),
		values:      make([]float64, (numSteps+1)*numEnvs),
		rewards:     make([]float64, numSteps*numEnvs),
		returns:     make([]float64, (numSteps+1)*numEnvs),
		masks:       make([]float64, (numSteps+1)*numEnvs),
	}
	return w, nil
}

// NumSteps returns the window horizon.
func (w *Window) NumSteps() int { return w.numSteps }

// NumEnvs returns the environment batch size.
func (w *Window) NumEnvs() int { return w.numEnvs }

// ObservationSize returns the per-environment observation length.
func (w *Window) ObservationSize() int { return w.obsSize }

// Step returns the current insertion position.
func (w *Window) Step() int { return w.step }

// Observations returns the stored observations as a tensor shaped
// (numSteps+1, numEnvs, observationSize). The tensor owns the storage
// that the per-step vector views alias, so batched reads through it see
// every inserted transition.
func (w *Window) Observations() *tensor.Dense { return w.observations }

// Hidden returns the stored recurrent state as a tensor shaped
// (numSteps+1, numEnvs, hiddenSize).
func (w *Window) Hidden() *tensor.Dense { return w.hidden }

// obsRow returns the flat slice holding the observation of env i at
// position t.
func (w *Window) obsRow(t, i int) []float64 {
	start := (t*w.numEnvs + i) * w.obsSize
	return w.obsData[start : start+w.obsSize]
}

// hiddenRow returns the flat slice holding the recurrent state of env
// i at position t.
func (w *Window) hiddenRow(t, i int) []float64 {
	start := (t*w.numEnvs + i) * w.hiddenSize
	return w.hiddenData[start : start+w.hiddenSize]
}

// SetFirstObservation seeds position 0 with the observations returned
// by the environments' reset.
func (w *Window) SetFirstObservation(obs []mat.Vector) error {
	if len(obs) != w.numEnvs {
		return fmt.Errorf("setFirstObservation: have %d observations for "+
			"%d environments", len(obs), w.numEnvs)
	}
	for i, o := range obs {
		if o.Len() != w.obsSize {
			return fmt.Errorf("setFirstObservation: observation %d has "+
				"length %d, want %d", i, o.Len(), w.obsSize)
		}
		row := w.obsRow(0, i)
		for j := range row {
			row[j] = o.AtVec(j)
		}
	}
	return nil
}

// Insert appends one batched transition. The observation, recurrent
// state, and mask describe the state after the transition; the action,
// log-probability, value, and reward belong to the transition itself.
// Inserting into a full window is an error; AfterUpdate must run first.
func (w *Window) Insert(obs []mat.Vector, hidden []*mat.VecDense,
	actions []int, logProbs, values, rewards, masks []float64) error {

	if w.step >= w.numSteps {
		return fmt.Errorf("insert: window full at %d transitions", w.numSteps)
	}
	if len(obs) != w.numEnvs || len(hidden) != w.numEnvs ||
		len(actions) != w.numEnvs || len(logProbs) != w.numEnvs ||
		len(values) != w.numEnvs || len(rewards) != w.numEnvs ||
		len(masks) != w.numEnvs {
		return fmt.Errorf("insert: all arrays must have one entry per " +
			"environment")
	}

	t := w.step
	for i := 0; i < w.numEnvs; i++ {
		row := w.obsRow(t+1, i)
		for j := range row {
			row[j] = obs[i].AtVec(j)
		}
		hrow := w.hiddenRow(t+1, i)
		for j := range hrow {
			hrow[j] = hidden[i].AtVec(j)
		}

		w.actions[t*w.numEnvs+i] = actions[i]
		w.prevActions[(t+1)*w.numEnvs+i] = actions[i]
		w.logProbs[t*w.numEnvs+i] = logProbs[i]
		w.values[t*w.numEnvs+i] = values[i]
		w.rewards[t*w.numEnvs+i] = rewards[i]
		w.masks[(t+1)*w.numEnvs+i] = masks[i]
	}
	w.step++
	return nil
}

// StepObservations returns the batched observation at position t as
// one vector per environment. The vectors alias the window's storage.
func (w *Window) StepObservations(t int) []mat.Vector {
	obs := make([]mat.Vector, w.numEnvs)
	for i := 0; i < w.numEnvs; i++ {
		obs[i] = mat.NewVecDense(w.obsSize, w.obsRow(t, i))
	}
	return obs
}

// StepHidden returns the recurrent state at position t, one vector per
// environment, aliasing the window's storage.
func (w *Window) StepHidden(t int) []*mat.VecDense {
	hidden := make([]*mat.VecDense, w.numEnvs)
	for i := 0; i < w.numEnvs; i++ {
		hidden[i] = mat.NewVecDense(w.hiddenSize, w.hiddenRow(t, i))
	}
	return hidden
}

// StepPrevActions returns the previous actions at position t.
func (w *Window) StepPrevActions(t int) []int {
	return w.prevActions[t*w.numEnvs : (t+1)*w.numEnvs]
}

// StepMasks returns the continuation masks at position t.
func (w *Window) StepMasks(t int) []float64 {
	return w.masks[t*w.numEnvs : (t+1)*w.numEnvs]
}

// ActionAt returns the action env i took at transition t.
func (w *Window) ActionAt(t, i int) int { return w.actions[t*w.numEnvs+i] }

// ValueAt returns the value estimate for env i at transition t.
func (w *Window) ValueAt(t, i int) float64 { return w.values[t*w.numEnvs+i] }

// ReturnAt returns the computed return target for env i at transition t.
func (w *Window) ReturnAt(t, i int) float64 { return w.returns[t*w.numEnvs+i] }

// LogProbAt returns the behaviour log-probability of the action env i
// took at transition t.
func (w *Window) LogProbAt(t, i int) float64 {
	return w.logProbs[t*w.numEnvs+i]
}

// RewardAt returns the reward env i received at transition t.
func (w *Window) RewardAt(t, i int) float64 { return w.rewards[t*w.numEnvs+i] }

// ComputeReturns fills the return targets for every stored transition,
// bootstrapping from the value estimates of the states following the
// final transition. With useGAE the targets are generalized advantage
// estimates added back onto the value baseline, following
// https://arxiv.org/abs/1506.02438; otherwise they are plain discounted
// returns.
func (w *Window) ComputeReturns(nextValue []float64, useGAE bool,
	gamma, tau float64) error {

	if len(nextValue) != w.numEnvs {
		return fmt.Errorf("computeReturns: have %d bootstrap values for "+
			"%d environments", len(nextValue), w.numEnvs)
	}
	if w.step != w.numSteps {
		return fmt.Errorf("computeReturns: window has %d of %d transitions",
			w.step, w.numSteps)
	}

	n := w.numEnvs
	if useGAE {
		copy(w.values[w.numSteps*n:], nextValue)
		for i := 0; i < n; i++ {
			gae := 0.0
			for t := w.numSteps - 1; t >= 0; t-- {
				delta := w.rewards[t*n+i] +
					gamma*w.values[(t+1)*n+i]*w.masks[(t+1)*n+i] -
					w.values[t*n+i]
				gae = delta + gamma*tau*w.masks[(t+1)*n+i]*gae
				w.returns[t*n+i] = gae + w.values[t*n+i]
			}
		}
		return nil
	}

	copy(w.returns[w.numSteps*n:], nextValue)
	for i := 0; i < n; i++ {
		for t := w.numSteps - 1; t >= 0; t-- {
			w.returns[t*n+i] = w.returns[(t+1)*n+i]*gamma*
				w.masks[(t+1)*n+i] + w.rewards[t*n+i]
		}
	}
	return nil
}

// AfterUpdate rolls the state following the final transition over to
// position 0 and resets the step pointer, readying the window for the
// next collection cycle.
func (w *Window) AfterUpdate() {
	n := w.numEnvs
	last := w.numSteps
	for i := 0; i < n; i++ {
		copy(w.obsRow(0, i), w.obsRow(last, i))
		copy(w.hiddenRow(0, i), w.hiddenRow(last, i))
		w.masks[i] = w.masks[last*n+i]
		w.prevActions[i] = w.prevActions[last*n+i]
	}
	w.step = 0
}
