package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sachinb20/IntExpl4HiddenObject/agent"
	"github.com/sachinb20/IntExpl4HiddenObject/rollout"
	"github.com/sachinb20/IntExpl4HiddenObject/utils/floatutils"
)

// ReinforceConfig configures the linear policy-gradient optimizer.
type ReinforceConfig struct {
	LearningRate      float64
	ValueLearningRate float64

	// ClipParam bounds the magnitude of the normalized advantage each
	// transition may contribute. The training loop decays it linearly
	// alongside the learning rate.
	ClipParam float64
}

// Validate checks a ReinforceConfig for usability.
func (c ReinforceConfig) Validate() error {
	if c.LearningRate <= 0 || c.ValueLearningRate <= 0 {
		return fmt.Errorf("validate: learning rates must be positive")
	}
	if c.ClipParam <= 0 {
		return fmt.Errorf("validate: clip parameter must be positive")
	}
	return nil
}

// Reinforce updates a Softmax policy by plain advantage-weighted
// policy gradient over a filled rollout window, with the advantages
// standardized and clipped. It stands in for the production
// clipped-surrogate optimizer wherever a self-contained update is
// enough: the demo binary and the loop tests.
type Reinforce struct {
	policy *Softmax

	learningRate      float64
	valueLearningRate float64
	clipParam         float64
}

// NewReinforce creates an optimizer over the argument policy.
func NewReinforce(policy *Softmax, config ReinforceConfig) (*Reinforce, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newReinforce: %v", err)
	}
	return &Reinforce{
		policy:            policy,
		learningRate:      config.LearningRate,
		valueLearningRate: config.ValueLearningRate,
		clipParam:         config.ClipParam,
	}, nil
}

// Policy returns the policy being updated.
func (r *Reinforce) Policy() agent.Policy { return r.policy }

// ClipParam returns the advantage clipping bound.
func (r *Reinforce) ClipParam() float64 { return r.clipParam }

// SetClipParam sets the advantage clipping bound.
func (r *Reinforce) SetClipParam(c float64) { r.clipParam = c }

// LearningRate returns the policy learning rate.
func (r *Reinforce) LearningRate() float64 { return r.learningRate }

// SetLearningRate sets the policy learning rate.
func (r *Reinforce) SetLearningRate(lr float64) { r.learningRate = lr }

// Update performs one gradient step over every transition in the
// window and reports the mean value loss, policy loss, and entropy of
// the action distributions seen.
func (r *Reinforce) Update(w *rollout.Window) (float64, float64, float64,
	error) {

	steps := w.NumSteps()
	envs := w.NumEnvs()
	total := steps * envs

	// Standardize advantages over the whole window before clipping
	advantages := make([]float64, 0, total)
	for t := 0; t < steps; t++ {
		for i := 0; i < envs; i++ {
			advantages = append(advantages, w.ReturnAt(t, i)-w.ValueAt(t, i))
		}
	}
	mean := stat.Mean(advantages, nil)
	std := stat.StdDev(advantages, nil) + 1e-8
	for i := range advantages {
		advantages[i] = floatutils.Clip((advantages[i]-mean)/std,
			-r.clipParam, r.clipParam)
	}

	// Read observations back out of the window's batched tensor, one
	// (step, env) row at a time.
	obsTensor := w.Observations()
	obsSize := w.ObservationSize()

	var valueLoss, actionLoss, entropy float64
	idx := 0
	for t := 0; t < steps; t++ {
		for i := 0; i < envs; i++ {
			features := make([]float64, obsSize)
			for k := range features {
				v, err := obsTensor.At(t, i, k)
				if err != nil {
					return 0, 0, 0, fmt.Errorf("update: %v", err)
				}
				features[k] = v.(float64)
			}
			obs := mat.NewVecDense(obsSize, features)
			action := w.ActionAt(t, i)
			ret := w.ReturnAt(t, i)
			adv := advantages[idx]
			idx++

			probs := r.policy.probs(obs)
			actionLoss -= math.Log(probs[action]) * adv
			for _, p := range probs {
				if p > 0 {
					entropy -= p * math.Log(p)
				}
			}

			// Policy gradient: ∇ log π(a|s) = (1{j=a} − π(j|s)) s
			for j := 0; j < r.policy.actions; j++ {
				indicator := 0.0
				if j == action {
					indicator = 1.0
				}
				scale := r.learningRate * adv * (indicator - probs[j])
				row := r.policy.weights.RawRowView(j)
				for k := range row {
					row[k] += scale * obs.AtVec(k)
				}
			}

			// Value head: move the estimate toward the return target
			predicted := r.policy.value(obs)
			residual := ret - predicted
			valueLoss += residual * residual
			vw := r.policy.valueWeights.RawVector().Data
			for k := range vw {
				vw[k] += r.valueLearningRate * residual * obs.AtVec(k)
			}
		}
	}

	n := float64(total)
	return valueLoss / n, actionLoss / n, entropy / n, nil
}
