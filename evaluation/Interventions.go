package evaluation

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

// stepContext is what an intervention sees after each vectorized step:
// everything concerns environment slot 0.
type stepContext struct {
	action  env.ActionName
	prevObs mat.Vector
	result  env.StepResult
	step    int
}

// intervention is one of the three state machines overlaid on the
// evaluation loop. An implementation may issue extra single-environment
// act calls and label events into the record; when it re-steps the
// vectorized batch it returns the replacement results, otherwise nil.
type intervention interface {
	apply(e *Evaluator, ctx stepContext,
		record *EpisodeRecord) ([]env.StepResult, error)
}

// newIntervention maps a variant to its state machine.
func newIntervention(variant Variant, rng *rand.Rand) (intervention, error) {
	switch variant {
	case Autonomous:
		return &autonomous{}, nil
	case ScriptedInterleave:
		return &scriptedInterleave{rng: rng}, nil
	case ScriptedProbe:
		return &scriptedProbe{}, nil
	default:
		return nil, fmt.Errorf("newIntervention: unknown variant %v", variant)
	}
}

// stepSuccess reads the interaction success flag from a step's info.
func stepSuccess(info env.Info) bool {
	success, ok := info["success"].(bool)
	return ok && success
}

// stepEvent builds a labeled event from the observations and metadata
// around a policy-sampled step.
func stepEvent(ctx stepContext) Event {
	return Event{
		Action:          ctx.action,
		Step:            ctx.step,
		PrevObservation: vecSlice(ctx.prevObs),
		NextObservation: vecSlice(ctx.result.Observation),
		PrevMetadata:    infoMetadata(ctx.result.Info, "prev_metadata"),
		NextMetadata:    infoMetadata(ctx.result.Info, "next_metadata"),
	}
}

// actEvent builds a labeled event from a scripted act call's result.
func actEvent(name env.ActionName, step int, result env.ActResult) Event {
	return Event{
		Action:          name,
		Step:            step,
		PrevObservation: vecSlice(result.PrevObs),
		NextObservation: vecSlice(result.NextObs),
		PrevMetadata:    result.PrevMetadata,
		NextMetadata:    result.NextMetadata,
	}
}

// autonomous labels the policy's own successful opens and takes. It
// never calls act: the policy alone drives the environment.
type autonomous struct{}

func (a *autonomous) apply(e *Evaluator, ctx stepContext,
	record *EpisodeRecord) ([]env.StepResult, error) {

	if ctx.result.Done || !stepSuccess(ctx.result.Info) {
		return nil, nil
	}

	switch {
	case ctx.action == env.Open &&
		ctx.result.Signal == env.SignalOpenedContainer:
		record.OpenEvents = append(record.OpenEvents, stepEvent(ctx))
		record.CoverageSteps = append(record.CoverageSteps, ctx.step)

	case ctx.action == env.Take &&
		(ctx.result.Signal == env.SignalObjectAcquired ||
			ctx.result.Signal == env.SignalObjectBonus):
		record.TakeEvents = append(record.TakeEvents, stepEvent(ctx))
		record.PickSteps = append(record.PickSteps, ctx.step)
	}
	return nil, nil
}

// stallWindow holds the last few (action, success) pairs the policy
// produced in slot 0.
type stallPair struct {
	action  env.ActionName
	success bool
}

const stallWindowLen = 5

// scriptedInterleave interleaves two scripted behaviours with the
// policy's own: a stall-recovery maneuver when the policy repeats the
// same action and outcome, and a take/put/close extraction probe after
// every successful step.
type scriptedInterleave struct {
	rng    *rand.Rand
	window []stallPair
}

// stalled reports whether the window is full of identical pairs.
func (s *scriptedInterleave) stalled() bool {
	if len(s.window) < stallWindowLen {
		return false
	}
	first := s.window[0]
	for _, pair := range s.window[1:] {
		if pair != first {
			return false
		}
	}
	return true
}

// recover breaks a stall with 1-3 right turns followed by 4 forward
// moves, bypassing the policy. Act failures are ignored.
func (s *scriptedInterleave) recover(e *Evaluator) error {
	turns := 1 + s.rng.Intn(3)
	for i := 0; i < turns; i++ {
		if _, err := e.envs.Act(env.TurnRight); err != nil {
			return fmt.Errorf("recover: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if _, err := e.envs.Act(env.Forward); err != nil {
			return fmt.Errorf("recover: %v", err)
		}
	}
	s.window = s.window[:0]
	return nil
}

func (s *scriptedInterleave) apply(e *Evaluator, ctx stepContext,
	record *EpisodeRecord) ([]env.StepResult, error) {

	success := stepSuccess(ctx.result.Info)

	s.window = append(s.window, stallPair{ctx.action, success})
	if len(s.window) > stallWindowLen {
		s.window = s.window[1:]
	}
	if s.stalled() {
		if err := s.recover(e); err != nil {
			return nil, err
		}
	}

	if ctx.result.Done || !success {
		return nil, nil
	}

	if ctx.action == env.Open &&
		ctx.result.Signal == env.SignalOpenedContainer {
		record.OpenEvents = append(record.OpenEvents, stepEvent(ctx))
		record.CoverageSteps = append(record.CoverageSteps, ctx.step)
	}

	// Extraction probe: always attempt a take after any success, then
	// put the object back and close up. Failed attempts are simply not
	// logged.
	take, err := e.envs.Act(env.Take)
	if err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	if take.Success {
		record.TakeEvents = append(record.TakeEvents,
			actEvent(env.Take, ctx.step, take))
		record.PickSteps = append(record.PickSteps, ctx.step)
	}
	if _, err := e.envs.Act(env.Put); err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	if _, err := e.envs.Act(env.Close); err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	return nil, nil
}

// scriptedProbe ignores what the policy chose: whenever the
// environment signals a visible target it runs a fixed
// open/take/put/close extraction, then replays the sampled action
// through the vectorized step so the main loop state keeps advancing.
type scriptedProbe struct{}

func (p *scriptedProbe) apply(e *Evaluator, ctx stepContext,
	record *EpisodeRecord) ([]env.StepResult, error) {

	if ctx.result.Done || ctx.result.Signal != env.SignalTargetVisible {
		return nil, nil
	}

	record.CoverageSteps = append(record.CoverageSteps, ctx.step)

	open, err := e.envs.Act(env.Open)
	if err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	if open.Success {
		record.OpenEvents = append(record.OpenEvents,
			actEvent(env.Open, ctx.step, open))
	}
	take, err := e.envs.Act(env.Take)
	if err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	if take.Success {
		record.TakeEvents = append(record.TakeEvents,
			actEvent(env.Take, ctx.step, take))
		record.PickSteps = append(record.PickSteps, ctx.step)
	}
	if _, err := e.envs.Act(env.Put); err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	if _, err := e.envs.Act(env.Close); err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}

	results, err := e.envs.Step(e.lastActions)
	if err != nil {
		return nil, fmt.Errorf("apply: %v", err)
	}
	return results, nil
}
